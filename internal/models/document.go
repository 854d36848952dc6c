package models

// Document is one tokenized text unit of a corpus. Tokens are produced by an
// external tokenizer; Metadata is carried through to the output untouched.
type Document struct {
	ID       string            `bson:"docId" json:"id"`
	Corpus   string            `bson:"corpus" json:"corpus,omitempty"`
	Order    int64             `bson:"order" json:"order,omitempty"`
	Tokens   []string          `bson:"tokens" json:"tokens"`
	Metadata map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// DocumentError records a single document that could not be indexed or compared
type DocumentError struct {
	DocID string
	Line  int
	Err   error
}

func (e DocumentError) Error() string {
	if e.DocID == "" {
		return e.Err.Error()
	}
	return e.DocID + ": " + e.Err.Error()
}

func (e DocumentError) Unwrap() error {
	return e.Err
}
