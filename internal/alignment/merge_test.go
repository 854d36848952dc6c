package alignment

import (
	"slices"
	"testing"

	"github.com/RishiKendai/textpair/internal/ngram"
)

func mergeTexts(t *testing.T, n, gap int, source, target string) []Passage {
	t.Helper()
	src := mustIndex(t, n, source)
	tgt := mustIndex(t, n, target)
	return Merge(Generate(src, 0, tgt, ngram.Combined(src, tgt), testParams()), n, gap)
}

func TestMerge_identicalDocuments(t *testing.T) {
	passages := mergeTexts(t, 2, 2, "the quick brown fox jumps", "the quick brown fox jumps")
	if len(passages) != 1 {
		t.Fatalf("passages = %+v, want 1", passages)
	}
	p := passages[0]
	if p.SourceStart != 0 || p.SourceEnd != 5 || p.TargetStart != 0 || p.TargetEnd != 5 {
		t.Errorf("ranges = [%d,%d) [%d,%d), want [0,5) [0,5)", p.SourceStart, p.SourceEnd, p.TargetStart, p.TargetEnd)
	}
	if p.Matched != 4 {
		t.Errorf("matched = %d, want 4", p.Matched)
	}
	if p.Gaps != 0 {
		t.Errorf("gaps = %d, want 0", p.Gaps)
	}
}

func TestMerge_bridgesInsertion(t *testing.T) {
	passages := mergeTexts(t, 2, 2, "A B C D E", "A B X Y C D E")
	if len(passages) != 1 {
		t.Fatalf("passages = %+v, want a single bridged passage", passages)
	}
	p := passages[0]
	if p.SourceStart != 0 || p.SourceEnd != 5 {
		t.Errorf("source range = [%d,%d), want [0,5)", p.SourceStart, p.SourceEnd)
	}
	if p.TargetStart != 0 || p.TargetEnd != 7 {
		t.Errorf("target range = [%d,%d), want [0,7)", p.TargetStart, p.TargetEnd)
	}
	if p.Matched != 3 {
		t.Errorf("matched = %d, want 3", p.Matched)
	}
	if p.Gaps != 2 {
		t.Errorf("gaps = %d, want 2", p.Gaps)
	}
}

func TestMerge_gapBeyondToleranceSplits(t *testing.T) {
	passages := mergeTexts(t, 2, 2, "a b c d e f", "a b c x x x x d e f")
	if len(passages) != 2 {
		t.Fatalf("passages = %+v, want 2", passages)
	}
	if passages[0].SourceStart != 0 || passages[1].SourceStart != 3 {
		t.Errorf("passages not ordered by source start: %+v", passages)
	}
}

func TestMerge_duplicateHitsCountedOnce(t *testing.T) {
	key := ngram.KeyOf("a", "b")
	hit := func(s, tgt int32) Hit {
		return Hit{Source: ngram.Position{Offset: s}, Target: ngram.Position{Offset: tgt}, Key: key}
	}
	hits := []Hit{hit(0, 0), hit(0, 0), hit(1, 1), hit(1, 1), hit(1, 1), hit(2, 2)}
	passages := Merge(slices.Values(hits), 2, 1)
	if len(passages) != 1 {
		t.Fatalf("passages = %+v, want 1", passages)
	}
	if passages[0].Matched != 3 {
		t.Errorf("matched = %d, want 3", passages[0].Matched)
	}
}

func TestMerge_groupsByDocumentPair(t *testing.T) {
	src := mustIndex(t, 2, "a b c d", "e f g h")
	tgt := mustIndex(t, 2, "e f g h", "a b c d")
	params := testParams()
	freq := ngram.Combined(src, tgt)
	gen := NewGenerator(src, tgt, freq, params)

	var all []Passage
	for doc := 0; doc < src.Len(); doc++ {
		all = append(all, Merge(gen.Hits(doc), 2, 2)...)
	}
	if len(all) != 2 {
		t.Fatalf("passages = %+v, want 2", all)
	}
	if all[0].SourceDoc != 0 || all[0].TargetDoc != 1 {
		t.Errorf("first passage pair = (%d,%d), want (0,1)", all[0].SourceDoc, all[0].TargetDoc)
	}
	if all[1].SourceDoc != 1 || all[1].TargetDoc != 0 {
		t.Errorf("second passage pair = (%d,%d), want (1,0)", all[1].SourceDoc, all[1].TargetDoc)
	}
}

func TestMerge_diagonalConsistency(t *testing.T) {
	src, tgt := randomCorpora(t, 7, 20, 120)
	freq := ngram.Combined(src, tgt)
	gen := NewGenerator(src, tgt, freq, testParams())

	for _, gap := range []int{0, 1, 3, 6} {
		m := NewMerger(3, gap)
		accepted := 0
		m.onAccept = func(h Hit, chainDelta int) {
			accepted++
			delta := int(h.Target.Offset - h.Source.Offset)
			if abs(delta-chainDelta) > gap {
				t.Errorf("gap %d: hit %+v accepted with delta %d against chain delta %d", gap, h, delta, chainDelta)
			}
		}
		for doc := 0; doc < src.Len(); doc++ {
			m.Merge(gen.Hits(doc))
		}
		if accepted == 0 {
			t.Errorf("gap %d: no hit ever extended a chain", gap)
		}
	}
}

func TestMerge_passagesOfPairDoNotOverlap(t *testing.T) {
	src, tgt := randomCorpora(t, 11, 15, 150)
	freq := ngram.Combined(src, tgt)
	gen := NewGenerator(src, tgt, freq, testParams())

	for doc := 0; doc < src.Len(); doc++ {
		passages := Merge(gen.Hits(doc), 3, 3)
		for i := range passages {
			p := &passages[i]
			if p.SourceStart >= p.SourceEnd || p.TargetStart >= p.TargetEnd {
				t.Fatalf("empty range in %+v", p)
			}
			for j := i + 1; j < len(passages); j++ {
				q := &passages[j]
				if p.TargetDoc != q.TargetDoc {
					continue
				}
				if p.overlaps(q) {
					t.Errorf("doc %d: passages %+v and %+v overlap", doc, p, q)
				}
				if q.SourceStart < p.SourceStart {
					t.Errorf("doc %d: passages out of source order", doc)
				}
			}
		}
	}
}

func TestMerge_prefersConsistentChain(t *testing.T) {
	key := ngram.KeyOf("k")
	hit := func(s, tgt int32) Hit {
		return Hit{Source: ngram.Position{Offset: s}, Target: ngram.Position{Offset: tgt}, Key: key}
	}
	// two chains on diagonals 0 and 3; hit (1,4) is eligible for both and
	// the chain on diagonal 0 was touched last, yet diagonal 3 continues exactly
	hits := []Hit{hit(0, 0), hit(0, 3), hit(1, 1), hit(1, 4), hit(2, 2), hit(2, 5)}
	passages := Merge(slices.Values(hits), 1, 3)
	if len(passages) != 2 {
		t.Fatalf("passages = %+v, want 2", passages)
	}
	for _, p := range passages {
		if p.Matched != 3 || p.Gaps != 0 {
			t.Errorf("passage %+v should hold 3 hits with no gaps", p)
		}
	}
}

func TestMerge_repetitiveTextCountsEachWindowOnce(t *testing.T) {
	passages := mergeTexts(t, 1, 3, "a a a a", "a a a a")
	if len(passages) != 1 {
		t.Fatalf("passages = %+v, want 1", passages)
	}
	p := passages[0]
	if p.SourceStart != 0 || p.SourceEnd != 4 || p.TargetStart != 0 || p.TargetEnd != 4 {
		t.Errorf("ranges = [%d,%d) [%d,%d), want [0,4) [0,4)", p.SourceStart, p.SourceEnd, p.TargetStart, p.TargetEnd)
	}
	if p.Matched != 4 {
		t.Errorf("matched = %d, want 4", p.Matched)
	}
	if len(p.Keys) != p.Matched {
		t.Errorf("keys = %d, want one per matched offset (%d)", len(p.Keys), p.Matched)
	}
}

func TestMerge_matchedBoundedByWindows(t *testing.T) {
	text := "x y x y x y x y"
	for _, n := range []int{1, 2, 3} {
		for _, p := range mergeTexts(t, n, 3, text, text) {
			if windows := p.SourceEnd - p.SourceStart - n + 1; p.Matched > windows {
				t.Errorf("n=%d: passage %+v matches %d ngrams in %d windows", n, p, p.Matched, windows)
			}
			if !slices.IsSorted(p.offsets) || len(p.offsets) != p.Matched {
				t.Errorf("n=%d: offsets %v inconsistent with matched %d", n, p.offsets, p.Matched)
			}
		}
	}
}

func TestUnionMatches(t *testing.T) {
	ka, kb, kc, kd := ngram.Key(1), ngram.Key(2), ngram.Key(3), ngram.Key(4)
	offsets, keys := unionMatches(
		[]int{0, 2, 3}, []ngram.Key{ka, kc, kd},
		[]int{1, 2}, []ngram.Key{kb, kc},
	)
	if !slices.Equal(offsets, []int{0, 1, 2, 3}) {
		t.Errorf("offsets = %v, want [0 1 2 3]", offsets)
	}
	if !slices.Equal(keys, []ngram.Key{ka, kb, kc, kd}) {
		t.Errorf("keys = %v", keys)
	}
}
