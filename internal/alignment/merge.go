package alignment

import (
	"iter"
	"sort"

	"github.com/RishiKendai/textpair/internal/ngram"
)

// Passage is an unscored alignment between two index slots. Ranges are
// half-open token ranges.
type Passage struct {
	SourceDoc   int32
	TargetDoc   int32
	SourceStart int
	SourceEnd   int
	TargetStart int
	TargetEnd   int
	// Matched counts distinct matched source offsets, so it never exceeds the
	// number of windows in the source range
	Matched int
	Gaps    int
	// Keys holds the key of each matched source offset, used for banality
	// and rarity
	Keys []ngram.Key

	// offsets lists the matched source offsets in ascending order, parallel
	// to Keys
	offsets []int
}

func (p *Passage) overlaps(o *Passage) bool {
	return p.SourceStart < o.SourceEnd && o.SourceStart < p.SourceEnd &&
		p.TargetStart < o.TargetEnd && o.TargetStart < p.TargetEnd
}

func (p *Passage) absorb(o *Passage) {
	p.SourceStart = min(p.SourceStart, o.SourceStart)
	p.SourceEnd = max(p.SourceEnd, o.SourceEnd)
	p.TargetStart = min(p.TargetStart, o.TargetStart)
	p.TargetEnd = max(p.TargetEnd, o.TargetEnd)
	p.Gaps += o.Gaps
	p.offsets, p.Keys = unionMatches(p.offsets, p.Keys, o.offsets, o.Keys)
	p.Matched = len(p.offsets)
}

// unionMatches merges two ascending offset lists with their keys. An offset
// held by both is kept once; its key is the same in both since it names a
// window of the same source document.
func unionMatches(ao []int, ak []ngram.Key, bo []int, bk []ngram.Key) ([]int, []ngram.Key) {
	offsets := make([]int, 0, len(ao)+len(bo))
	keys := make([]ngram.Key, 0, len(ak)+len(bk))
	i, j := 0, 0
	for i < len(ao) || j < len(bo) {
		switch {
		case j == len(bo) || (i < len(ao) && ao[i] < bo[j]):
			offsets, keys = append(offsets, ao[i]), append(keys, ak[i])
			i++
		case i == len(ao) || bo[j] < ao[i]:
			offsets, keys = append(offsets, bo[j]), append(keys, bk[j])
			j++
		default:
			offsets, keys = append(offsets, ao[i]), append(keys, ak[i])
			i++
			j++
		}
	}
	return offsets, keys
}

// chain is an open alignment being extended during the sweep
type chain struct {
	id       int
	srcStart int
	srcLast  int
	tgtStart int
	tgtLast  int
	delta    int
	gaps     int
	touched  int
	// source offsets only grow along a chain, so offsets stays ascending
	offsets []int
	keys    []ngram.Key
}

// Merger clusters hits into gap-tolerant, diagonal-consistent passages
type Merger struct {
	n   int
	gap int

	// onAccept is called with the chain delta in force when a hit extends a chain
	onAccept func(h Hit, chainDelta int)
}

func NewMerger(ngramLength, gapTolerance int) *Merger {
	return &Merger{n: ngramLength, gap: gapTolerance}
}

// Merge is a shorthand for NewMerger(ngramLength, gapTolerance).Merge(hits)
func Merge(hits iter.Seq[Hit], ngramLength, gapTolerance int) []Passage {
	return NewMerger(ngramLength, gapTolerance).Merge(hits)
}

type pairKey struct {
	source int32
	target int32
}

// Merge groups hits by document pair and returns the passages of every pair,
// ordered by source doc, target doc, source start, target start.
func (m *Merger) Merge(hits iter.Seq[Hit]) []Passage {
	groups := make(map[pairKey][]Hit)
	for h := range hits {
		pk := pairKey{source: h.Source.Doc, target: h.Target.Doc}
		groups[pk] = append(groups[pk], h)
	}

	pairs := make([]pairKey, 0, len(groups))
	for pk := range groups {
		pairs = append(pairs, pk)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].source != pairs[j].source {
			return pairs[i].source < pairs[j].source
		}
		return pairs[i].target < pairs[j].target
	})

	var passages []Passage
	for _, pk := range pairs {
		passages = append(passages, m.mergePair(pk, groups[pk])...)
	}
	return passages
}

func (m *Merger) mergePair(pk pairKey, hits []Hit) []Passage {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Source.Offset != hits[j].Source.Offset {
			return hits[i].Source.Offset < hits[j].Source.Offset
		}
		return hits[i].Target.Offset < hits[j].Target.Offset
	})
	hits = dedupeHits(hits)

	var open, closed []*chain
	nextID := 0
	for i, h := range hits {
		s, t := int(h.Source.Offset), int(h.Target.Offset)

		// source offsets only grow, so a chain out of reach now stays out of reach
		kept := make([]*chain, 0, len(open))
		for _, c := range open {
			if s-(c.srcLast+m.n) > m.gap {
				closed = append(closed, c)
			} else {
				kept = append(kept, c)
			}
		}
		open = kept

		if c := m.choose(open, s, t); c != nil {
			m.extend(c, h, i)
			continue
		}
		open = append(open, &chain{
			id:       nextID,
			srcStart: s,
			srcLast:  s,
			tgtStart: t,
			tgtLast:  t,
			delta:    t - s,
			touched:  i,
			offsets:  []int{s},
			keys:     []ngram.Key{h.Key},
		})
		nextID++
	}
	closed = append(closed, open...)

	passages := make([]Passage, 0, len(closed))
	for _, c := range closed {
		passages = append(passages, Passage{
			SourceDoc:   pk.source,
			TargetDoc:   pk.target,
			SourceStart: c.srcStart,
			SourceEnd:   c.srcLast + m.n,
			TargetStart: c.tgtStart,
			TargetEnd:   c.tgtLast + m.n,
			Matched:     len(c.keys),
			Gaps:        c.gaps,
			Keys:        c.keys,
			offsets:     c.offsets,
		})
	}
	return mergeOverlapping(passages)
}

// choose returns the open chain h extends, or nil. Among eligible chains the
// smallest diagonal divergence wins, then the smallest accumulated gap, then
// the most recently touched chain, then the oldest.
//
// This is not recency-first: a hit that continues an older chain exactly is
// not pulled onto a more recently touched chain on a nearby diagonal.
// Recency only breaks ties between chains equally close to the hit.
func (m *Merger) choose(open []*chain, s, t int) *chain {
	var best *chain
	bestDiv := 0
	for _, c := range open {
		if s <= c.srcLast || t <= c.tgtLast {
			continue
		}
		if m.gapBefore(s, c.srcLast) > m.gap || m.gapBefore(t, c.tgtLast) > m.gap {
			continue
		}
		div := abs((t - s) - c.delta)
		if div > m.gap {
			continue
		}
		if best == nil || better(c, div, best, bestDiv) {
			best, bestDiv = c, div
		}
	}
	return best
}

func better(c *chain, div int, best *chain, bestDiv int) bool {
	if div != bestDiv {
		return div < bestDiv
	}
	if c.gaps != best.gaps {
		return c.gaps < best.gaps
	}
	if c.touched != best.touched {
		return c.touched > best.touched
	}
	return c.id < best.id
}

func (m *Merger) extend(c *chain, h Hit, seq int) {
	s, t := int(h.Source.Offset), int(h.Target.Offset)
	if m.onAccept != nil {
		m.onAccept(h, c.delta)
	}
	c.gaps += max(m.gapBefore(s, c.srcLast), m.gapBefore(t, c.tgtLast))
	c.srcLast = s
	c.tgtLast = t
	c.delta = t - s
	c.touched = seq
	c.offsets = append(c.offsets, s)
	c.keys = append(c.keys, h.Key)
}

// gapBefore counts the tokens between the end of the window at last and offset
func (m *Merger) gapBefore(offset, last int) int {
	return max(0, offset-(last+m.n))
}

// dedupeHits drops repeated (source offset, target offset) pairs from sorted hits
func dedupeHits(hits []Hit) []Hit {
	if len(hits) < 2 {
		return hits
	}
	out := hits[:1]
	for _, h := range hits[1:] {
		last := out[len(out)-1]
		if h.Source.Offset == last.Source.Offset && h.Target.Offset == last.Target.Offset {
			continue
		}
		out = append(out, h)
	}
	return out
}

// mergeOverlapping folds passages of one pair that overlap in both ranges
// until none do, and sorts the result by source start then target start.
func mergeOverlapping(passages []Passage) []Passage {
	for {
		sortPassages(passages)
		out := make([]Passage, 0, len(passages))
		for i := range passages {
			merged := false
			for j := range out {
				if out[j].overlaps(&passages[i]) {
					out[j].absorb(&passages[i])
					merged = true
					break
				}
			}
			if !merged {
				out = append(out, passages[i])
			}
		}
		if len(out) == len(passages) {
			sortPassages(out)
			return out
		}
		passages = out
	}
}

func sortPassages(passages []Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].SourceStart != passages[j].SourceStart {
			return passages[i].SourceStart < passages[j].SourceStart
		}
		return passages[i].TargetStart < passages[j].TargetStart
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
