package alignment

import (
	"testing"

	"github.com/RishiKendai/textpair/internal/ngram"
)

type fixedCounts map[ngram.Key]int

func (f fixedCounts) Count(key ngram.Key) int {
	return f[key]
}

func passage(srcLen, tgtLen, matched int, keys ...ngram.Key) *Passage {
	return &Passage{SourceEnd: srcLen, TargetEnd: tgtLen, Matched: matched, Keys: keys}
}

func TestScoreAndFilter_rejections(t *testing.T) {
	rare, common := ngram.Key(1), ngram.Key(2)
	freq := fixedCounts{rare: 2, common: 500}
	params := DefaultParams()
	params.MinMatchingNgrams = 3
	params.MinPassageLength = 5
	params.BanalityCeiling = 100
	params.BanalityThreshold = 0.5
	scorer := NewScorer(2, freq, params)

	tests := []struct {
		name string
		p    *Passage
		want Rejection
	}{
		{"too few ngrams", passage(10, 10, 2, rare, rare), RejectTooFewNgrams},
		{"too short in target", passage(10, 4, 3, rare, rare, rare), RejectTooShort},
		{"too short in source", passage(4, 10, 3, rare, rare, rare), RejectTooShort},
		{"banal", passage(10, 10, 4, common, common, common, rare), RejectBanal},
		{"at banality threshold", passage(10, 10, 4, common, common, rare, rare), Accepted},
		{"accepted", passage(6, 6, 5, rare, rare, rare, rare, rare), Accepted},
	}
	for _, tt := range tests {
		score, got := scorer.ScoreAndFilter(tt.p)
		if got != tt.want {
			t.Errorf("%s: rejection = %v, want %v", tt.name, got, tt.want)
		}
		if got == Accepted && score <= 0 {
			t.Errorf("%s: accepted passage has score %v", tt.name, score)
		}
		if got != Accepted && score != 0 {
			t.Errorf("%s: rejected passage has score %v", tt.name, score)
		}
	}
}

func TestScore_rareBeatsCommon(t *testing.T) {
	rare, common := ngram.Key(1), ngram.Key(2)
	freq := fixedCounts{rare: 2, common: 5000}
	scorer := NewScorer(3, freq, DefaultParams())

	rareScore := scorer.Score(passage(12, 12, 10, rare, rare, rare, rare, rare, rare, rare, rare, rare, rare))
	commonScore := scorer.Score(passage(12, 12, 10, common, common, common, common, common, common, common, common, common, common))
	if rareScore <= commonScore {
		t.Errorf("rare passage score %v should exceed common passage score %v", rareScore, commonScore)
	}
}

func TestScore_growsWithMatches(t *testing.T) {
	k := ngram.Key(9)
	freq := fixedCounts{k: 2}
	scorer := NewScorer(2, freq, DefaultParams())
	short := scorer.Score(passage(5, 5, 4, k, k, k, k))
	long := scorer.Score(passage(9, 9, 8, k, k, k, k, k, k, k, k))
	if long <= short {
		t.Errorf("longer passage score %v should exceed %v", long, short)
	}
}

func TestBanality_disabled(t *testing.T) {
	freq := fixedCounts{1: 1000}
	params := DefaultParams()
	params.BanalityCeiling = 0
	scorer := NewScorer(2, freq, params)
	if got := scorer.Banality(passage(10, 10, 3, 1, 1, 1)); got != 0 {
		t.Errorf("Banality with ceiling disabled = %v, want 0", got)
	}
}

func TestRejection_String(t *testing.T) {
	if RejectBanal.String() != "banal" || Accepted.String() != "accepted" {
		t.Error("unexpected rejection names")
	}
}
