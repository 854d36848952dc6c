package alignment

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/RishiKendai/textpair/internal/ngram"
)

func mustIndex(t *testing.T, n int, texts ...string) *ngram.Index {
	t.Helper()
	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		docs[i] = models.Document{ID: "doc" + strconv.Itoa(i), Tokens: strings.Fields(text)}
	}
	idx, docErrs, err := ngram.Build(docs, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(docErrs) > 0 {
		t.Fatalf("unexpected doc errors: %v", docErrs)
	}
	return idx
}

func testParams() Params {
	p := DefaultParams()
	p.MinMatchingNgrams = 1
	p.MinPassageLength = 1
	return p
}

// randomCorpora builds a source corpus and a target corpus that reuses
// passages of the source with small insertions
func randomCorpora(t *testing.T, seed int64, docs, length int) (*ngram.Index, *ngram.Index) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vocab := make([]string, 40)
	for i := range vocab {
		vocab[i] = "w" + strconv.Itoa(i)
	}
	words := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = vocab[rng.Intn(len(vocab))]
		}
		return out
	}

	source := make([]models.Document, docs)
	target := make([]models.Document, docs)
	for i := 0; i < docs; i++ {
		src := words(length)
		source[i] = models.Document{ID: "s" + strconv.Itoa(i), Tokens: src}

		tgt := words(rng.Intn(20))
		start := rng.Intn(length / 2)
		passage := src[start : start+length/3]
		for j, tok := range passage {
			tgt = append(tgt, tok)
			if j%7 == 6 {
				tgt = append(tgt, words(rng.Intn(3))...)
			}
		}
		tgt = append(tgt, words(rng.Intn(20))...)
		target[i] = models.Document{ID: "t" + strconv.Itoa(i), Tokens: tgt, Metadata: map[string]string{"n": strconv.Itoa(i)}}
	}

	srcIdx, _, err := ngram.Build(source, 3)
	if err != nil {
		t.Fatal(err)
	}
	tgtIdx, _, err := ngram.Build(target, 3)
	if err != nil {
		t.Fatal(err)
	}
	return srcIdx, tgtIdx
}
