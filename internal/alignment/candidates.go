package alignment

import (
	"iter"

	"github.com/RishiKendai/textpair/internal/ngram"
)

// Hit is one shared ngram between a source and a target position
type Hit struct {
	Source ngram.Position
	Target ngram.Position
	Key    ngram.Key
}

// Generator probes the target index with the ngrams of source documents
type Generator struct {
	source *ngram.Index
	target *ngram.Index
	freq   ngram.Frequencies
	params Params
	self   bool
}

// NewGenerator returns a generator for source against target. Comparing an
// index with itself never pairs a document with itself.
func NewGenerator(source, target *ngram.Index, freq ngram.Frequencies, params Params) *Generator {
	return &Generator{
		source: source,
		target: target,
		freq:   freq,
		params: params,
		self:   source == target,
	}
}

// Generate is a shorthand for NewGenerator(...).Hits(doc)
func Generate(source *ngram.Index, doc int, target *ngram.Index, freq ngram.Frequencies, params Params) iter.Seq[Hit] {
	return NewGenerator(source, target, freq, params).Hits(doc)
}

// Hits returns the hits of source document slot doc, in source offset order.
// The sequence is lazy and may be ranged over more than once.
func (g *Generator) Hits(doc int) iter.Seq[Hit] {
	return func(yield func(Hit) bool) {
		keys := g.source.Keys(doc)
		srcDoc := int32(doc)
		for offset, key := range keys {
			if g.skip(key) {
				continue
			}
			for _, pos := range g.target.PositionsFor(key) {
				if g.self && !g.pairAllowed(srcDoc, pos.Doc) {
					continue
				}
				hit := Hit{
					Source: ngram.Position{Doc: srcDoc, Offset: int32(offset)},
					Target: pos,
					Key:    key,
				}
				if !yield(hit) {
					return
				}
			}
		}
	}
}

// skip reports keys too common to carry alignment signal
func (g *Generator) skip(key ngram.Key) bool {
	ceiling := g.params.CommonNgramCeiling
	return ceiling > 0 && g.freq.Count(key) > ceiling
}

func (g *Generator) pairAllowed(src, tgt int32) bool {
	if src == tgt {
		return false
	}
	if g.params.OneWay {
		return tgt > src
	}
	return true
}
