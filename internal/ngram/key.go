package ngram

import (
	"github.com/cespare/xxhash/v2"
)

// Key identifies an ngram by the content hash of its tokens
type Key uint64

// unit separator keeps ("ab","c") and ("a","bc") apart
var separator = []byte{0x1f}

// Hasher hashes token windows. Not safe for concurrent use.
type Hasher struct {
	digest *xxhash.Digest
}

func NewHasher() *Hasher {
	return &Hasher{digest: xxhash.New()}
}

// Sum returns the key of the given window
func (h *Hasher) Sum(window []string) Key {
	h.digest.Reset()
	for _, tok := range window {
		_, _ = h.digest.WriteString(tok)
		_, _ = h.digest.Write(separator)
	}
	return Key(h.digest.Sum64())
}

// KeyOf hashes a single window
func KeyOf(window ...string) Key {
	return NewHasher().Sum(window)
}
