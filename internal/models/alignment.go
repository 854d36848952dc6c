package models

// Alignment is one contiguous matching passage between a source and a target
// document. Offsets are token offsets, ranges are half-open [Start, End).
type Alignment struct {
	SourceDocID    string            `json:"source_doc_id"`
	SourceStart    int               `json:"source_start"`
	SourceEnd      int               `json:"source_end"`
	TargetDocID    string            `json:"target_doc_id"`
	TargetStart    int               `json:"target_start"`
	TargetEnd      int               `json:"target_end"`
	MatchedNgrams  int               `json:"matched_ngrams"`
	GapTokens      int               `json:"gap_tokens"`
	Score          float64           `json:"score"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
	TargetMetadata map[string]string `json:"target_metadata,omitempty"`
}

// SourceLength returns the passage length in source tokens
func (a *Alignment) SourceLength() int {
	return a.SourceEnd - a.SourceStart
}

// TargetLength returns the passage length in target tokens
func (a *Alignment) TargetLength() int {
	return a.TargetEnd - a.TargetStart
}
