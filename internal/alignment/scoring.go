package alignment

import (
	"math"

	"github.com/RishiKendai/textpair/internal/ngram"
)

// Rejection says why a passage was filtered out
type Rejection int

const (
	Accepted Rejection = iota
	RejectTooFewNgrams
	RejectTooShort
	RejectBanal
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectTooFewNgrams:
		return "too_few_ngrams"
	case RejectTooShort:
		return "too_short"
	case RejectBanal:
		return "banal"
	default:
		return "unknown"
	}
}

// Scorer attaches a strength score to passages and applies the inclusion
// thresholds
type Scorer struct {
	n      int
	freq   ngram.Frequencies
	params Params
}

func NewScorer(ngramLength int, freq ngram.Frequencies, params Params) *Scorer {
	return &Scorer{n: ngramLength, freq: freq, params: params}
}

// ScoreAndFilter returns the passage score, or the reason it was rejected
func (s *Scorer) ScoreAndFilter(p *Passage) (float64, Rejection) {
	if p.Matched < s.params.MinMatchingNgrams {
		return 0, RejectTooFewNgrams
	}
	if PassageLength(p) < s.params.MinPassageLength {
		return 0, RejectTooShort
	}
	if s.Banality(p) > s.params.BanalityThreshold {
		return 0, RejectBanal
	}
	return s.Score(p), Accepted
}

// PassageLength is the shorter of the source and target spans in tokens
func PassageLength(p *Passage) int {
	return min(p.SourceEnd-p.SourceStart, p.TargetEnd-p.TargetStart)
}

// Banality returns the fraction of matched ngrams above the banality
// ceiling. It is zero when the ceiling is disabled.
func (s *Scorer) Banality(p *Passage) float64 {
	ceiling := s.params.BanalityCeiling
	if ceiling == 0 || len(p.Keys) == 0 {
		return 0
	}
	banal := 0
	for _, k := range p.Keys {
		if s.freq.Count(k) > ceiling {
			banal++
		}
	}
	return float64(banal) / float64(len(p.Keys))
}

// Score combines how densely the passage is matched with how rare its ngrams
// are, scaled by the matched count:
//
//	score = matched * (wc*coverage + wr*rarity) / (wc + wr)
func (s *Scorer) Score(p *Passage) float64 {
	windows := ngram.ExpectedNgrams(p.SourceEnd-p.SourceStart, s.n)
	coverage := 0.0
	if windows > 0 {
		coverage = math.Min(1.0, float64(p.Matched)/float64(windows))
	}

	rarity := 0.0
	if len(p.Keys) > 0 {
		sum := 0.0
		for _, k := range p.Keys {
			sum += rarityWeight(s.freq.Count(k))
		}
		rarity = sum / float64(len(p.Keys))
	}

	wc, wr := s.params.CoverageWeight, s.params.RarityWeight
	score := float64(p.Matched) * (wc*coverage + wr*rarity) / (wc + wr)
	return math.Round(score*10000) / 10000
}

// rarityWeight maps a global occurrence count to (0, 1]
func rarityWeight(count int) float64 {
	if count <= 1 {
		return 1.0
	}
	return 1.0 / (1.0 + math.Log(float64(count)))
}
