package ngram

import (
	"fmt"

	"github.com/RishiKendai/textpair/internal/models"
)

// Position anchors one ngram occurrence: document slot in the index and the
// 0-based token offset of the window start.
type Position struct {
	Doc    int32
	Offset int32
}

// DocInfo describes an indexed document
type DocInfo struct {
	ID       string
	Metadata map[string]string
	Tokens   int
	// Corrupt is set when a stored record's keys disagree with its token count
	Corrupt bool
}

// Index is a position-aware inverted index over one corpus. It is immutable
// after Build or Load and safe for concurrent readers.
type Index struct {
	n        int
	docs     []DocInfo
	keys     [][]Key
	postings map[Key][]Position
	total    int
}

func newIndex(n, docHint int) *Index {
	return &Index{
		n:        n,
		docs:     make([]DocInfo, 0, docHint),
		keys:     make([][]Key, 0, docHint),
		postings: make(map[Key][]Position),
	}
}

// add appends a document and its key sequence. Documents are added in
// corpus order with ascending offsets, so every posting list stays grouped by
// document and sorted by offset.
func (idx *Index) add(info DocInfo, keys []Key) {
	slot := int32(len(idx.docs))
	idx.docs = append(idx.docs, info)
	idx.keys = append(idx.keys, keys)
	for offset, key := range keys {
		idx.postings[key] = append(idx.postings[key], Position{Doc: slot, Offset: int32(offset)})
	}
	idx.total += len(keys)
}

// Build indexes documents with windows of n tokens. Malformed documents are
// skipped and returned as per-document errors.
func Build(docs []models.Document, n int) (*Index, []models.DocumentError, error) {
	if n < 1 {
		return nil, nil, ErrInvalidNgramLength
	}
	if len(docs) == 0 {
		return nil, nil, ErrNoDocuments
	}

	idx := newIndex(n, len(docs))
	hasher := NewHasher()
	seen := make(map[string]struct{}, len(docs))
	var docErrs []models.DocumentError

	for i := range docs {
		doc := &docs[i]
		if err := checkDocument(doc, seen); err != nil {
			docErrs = append(docErrs, models.DocumentError{DocID: doc.ID, Line: i + 1, Err: err})
			continue
		}
		seen[doc.ID] = struct{}{}
		idx.add(DocInfo{
			ID:       doc.ID,
			Metadata: doc.Metadata,
			Tokens:   len(doc.Tokens),
		}, windowKeys(hasher, doc.Tokens, n))
	}

	if len(idx.docs) == 0 {
		return nil, docErrs, ErrNoIndexableDocuments
	}
	return idx, docErrs, nil
}

func checkDocument(doc *models.Document, seen map[string]struct{}) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedDocument)
	}
	if _, dup := seen[doc.ID]; dup {
		return fmt.Errorf("%w: duplicate id %q", ErrMalformedDocument, doc.ID)
	}
	for i, tok := range doc.Tokens {
		if tok == "" {
			return fmt.Errorf("%w: empty token at offset %d", ErrMalformedDocument, i)
		}
	}
	return nil
}

// windowKeys returns one key per window start offset
func windowKeys(hasher *Hasher, tokens []string, n int) []Key {
	count := len(tokens) - n + 1
	if count <= 0 {
		return nil
	}
	keys := make([]Key, count)
	for i := range keys {
		keys[i] = hasher.Sum(tokens[i : i+n])
	}
	return keys
}

// ExpectedNgrams returns the number of windows of n tokens in a document
func ExpectedNgrams(tokens, n int) int {
	return max(0, tokens-n+1)
}

// NgramLength returns the window size
func (idx *Index) NgramLength() int {
	return idx.n
}

// Len returns the number of indexed documents
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Doc returns the document stored in slot i
func (idx *Index) Doc(i int) DocInfo {
	return idx.docs[i]
}

// Keys returns the key sequence of document slot i, indexed by offset
func (idx *Index) Keys(i int) []Key {
	return idx.keys[i]
}

// PositionsFor returns every occurrence of key; callers must not modify it
func (idx *Index) PositionsFor(key Key) []Position {
	return idx.postings[key]
}

// Count returns the number of occurrences of key in the corpus
func (idx *Index) Count(key Key) int {
	return len(idx.postings[key])
}

// DistinctKeys returns the number of distinct ngram keys
func (idx *Index) DistinctKeys() int {
	return len(idx.postings)
}

// TotalNgrams returns the number of ngram occurrences in the corpus
func (idx *Index) TotalNgrams() int {
	return idx.total
}
