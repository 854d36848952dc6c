package alignment

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/RishiKendai/textpair/internal/ngram"
	"github.com/rs/zerolog/log"
)

// Result is the outcome of a comparison run. Alignments are ordered by source
// document slot, then target document slot, then source and target offsets.
type Result struct {
	Alignments []models.Alignment
	Errors     []models.DocumentError
	Summary    models.RunSummary
}

// documentResult is the private output of one source document
type documentResult struct {
	done       bool
	alignments []models.Alignment
	hits       int64
	rejected   [RejectBanal + 1]int
	err        error
}

// comparison holds the read-only state shared by every worker of a run
type comparison struct {
	source *ngram.Index
	target *ngram.Index
	gen    *Generator
	merger *Merger
	scorer *Scorer
}

// chunkJob compares a contiguous range of source documents into its own buffer
type chunkJob struct {
	cmp   *comparison
	start int
	out   []documentResult
}

func (j *chunkJob) Execute(ctx context.Context) error {
	for i := range j.out {
		if ctx.Err() != nil {
			return nil
		}
		j.out[i] = j.cmp.compareDocument(j.start + i)
	}
	return nil
}

// Run compares every source document against target on a worker pool and
// merges the per-worker results in source document order. A cancelled run
// returns the documents finished so far with Summary.Canceled set.
func Run(ctx context.Context, source, target *ngram.Index, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if source == nil || target == nil {
		return nil, ErrIndexUnavailable
	}
	if source.Len() == 0 {
		return nil, ErrEmptyCorpus
	}
	if source.NgramLength() != target.NgramLength() {
		return nil, fmt.Errorf("%w: %d and %d", ErrNgramMismatch, source.NgramLength(), target.NgramLength())
	}

	started := time.Now()
	n := source.NgramLength()
	freq := ngram.Combined(source, target)
	cmp := &comparison{
		source: source,
		target: target,
		gen:    NewGenerator(source, target, freq, params),
		merger: NewMerger(n, params.GapTolerance),
		scorer: NewScorer(n, freq, params),
	}

	workers := params.WorkerCount(source.Len())
	chunks := partition(source.Len(), workers)
	log.Debug().
		Int("documents", source.Len()).
		Int("workers", workers).
		Int("chunks", len(chunks)).
		Msg("Comparison run partitioned")

	pool := NewWorkerPool(ctx, workers)
	jobs := make([]*chunkJob, 0, len(chunks))
	for _, c := range chunks {
		job := &chunkJob{cmp: cmp, start: c[0], out: make([]documentResult, c[1]-c[0])}
		if err := pool.Submit(job); err != nil {
			break
		}
		jobs = append(jobs, job)
	}
	pool.Close()

	result := collect(source, jobs)
	result.Summary.Canceled = ctx.Err() != nil && result.Summary.DocumentsSkipped > 0
	result.Summary.Duration = time.Since(started)

	s := result.Summary
	if s.DocumentsProcessed == 0 && s.DocumentsFailed > 0 && !s.Canceled {
		return nil, fmt.Errorf("%w: %d of %d documents", ErrAllDocumentsFailed, s.DocumentsFailed, s.DocumentsTotal)
	}
	return result, nil
}

// collect concatenates chunk buffers in chunk order, which is source order
func collect(source *ngram.Index, jobs []*chunkJob) *Result {
	result := &Result{}
	result.Summary.DocumentsTotal = source.Len()

	for _, job := range jobs {
		for i, dr := range job.out {
			if !dr.done {
				continue
			}
			slot := job.start + i
			if dr.err != nil {
				docID := source.Doc(slot).ID
				log.Warn().Err(dr.err).Str("docId", docID).Msg("Document comparison failed")
				result.Errors = append(result.Errors, models.DocumentError{DocID: docID, Line: slot + 1, Err: dr.err})
				result.Summary.DocumentsFailed++
				continue
			}
			result.Summary.DocumentsProcessed++
			result.Summary.Hits += dr.hits
			result.Summary.RejectedTooFew += dr.rejected[RejectTooFewNgrams]
			result.Summary.RejectedTooShort += dr.rejected[RejectTooShort]
			result.Summary.RejectedBanal += dr.rejected[RejectBanal]
			result.Alignments = append(result.Alignments, dr.alignments...)
		}
	}

	s := &result.Summary
	s.AlignmentsProduced = len(result.Alignments)
	s.AlignmentsRejected = s.RejectedTooFew + s.RejectedTooShort + s.RejectedBanal
	s.DocumentsSkipped = s.DocumentsTotal - s.DocumentsProcessed - s.DocumentsFailed
	return result
}

// compareDocument runs generation, merging and scoring for one source slot.
// Failures are returned in the result, never propagated.
func (c *comparison) compareDocument(slot int) (res documentResult) {
	defer func() {
		if r := recover(); r != nil {
			res = documentResult{done: true, err: fmt.Errorf("%w: %v", ErrCorruptDocument, r)}
		}
	}()

	res.done = true
	if c.source.Doc(slot).Corrupt {
		res.err = ErrCorruptDocument
		return res
	}

	passages := c.merger.Merge(counting(c.gen.Hits(slot), &res.hits))
	for i := range passages {
		p := &passages[i]
		score, rejection := c.scorer.ScoreAndFilter(p)
		if rejection != Accepted {
			res.rejected[rejection]++
			continue
		}
		res.alignments = append(res.alignments, c.alignment(p, score))
	}
	return res
}

func (c *comparison) alignment(p *Passage, score float64) models.Alignment {
	src := c.source.Doc(int(p.SourceDoc))
	tgt := c.target.Doc(int(p.TargetDoc))
	return models.Alignment{
		SourceDocID:    src.ID,
		SourceStart:    p.SourceStart,
		SourceEnd:      p.SourceEnd,
		TargetDocID:    tgt.ID,
		TargetStart:    p.TargetStart,
		TargetEnd:      p.TargetEnd,
		MatchedNgrams:  p.Matched,
		GapTokens:      p.Gaps,
		Score:          score,
		SourceMetadata: src.Metadata,
		TargetMetadata: tgt.Metadata,
	}
}

func counting(hits iter.Seq[Hit], count *int64) iter.Seq[Hit] {
	return func(yield func(Hit) bool) {
		for h := range hits {
			*count++
			if !yield(h) {
				return
			}
		}
	}
}

// partition splits docs into contiguous [start, end) ranges of near-equal size
func partition(docs, parts int) [][2]int {
	parts = max(1, min(parts, docs))
	base, rem := docs/parts, docs%parts
	chunks := make([][2]int, 0, parts)
	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < rem {
			size++
		}
		chunks = append(chunks, [2]int{start, start + size})
		start += size
	}
	return chunks
}
