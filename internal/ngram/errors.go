package ngram

import "errors"

var (
	ErrInvalidNgramLength   = errors.New("ngram length must be at least 1")
	ErrNoDocuments          = errors.New("corpus contains no documents")
	ErrNoIndexableDocuments = errors.New("no document could be indexed")
	ErrMalformedDocument    = errors.New("malformed document")
	ErrCorruptIndex         = errors.New("corrupt index file")
)
