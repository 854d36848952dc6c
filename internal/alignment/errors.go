package alignment

import "errors"

var (
	ErrInvalidParams      = errors.New("invalid comparison parameters")
	ErrEmptyCorpus        = errors.New("source corpus contains no documents")
	ErrIndexUnavailable   = errors.New("ngram index unavailable")
	ErrAllDocumentsFailed = errors.New("every source document failed")
	ErrCorruptDocument    = errors.New("corrupt document")
	ErrNgramMismatch      = errors.New("source and target indices use different ngram lengths")
)
