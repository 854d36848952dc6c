package alignment

import (
	"fmt"
	"runtime"
)

// Params holds the comparison run settings. It is read-only once a run starts.
type Params struct {
	// GapTolerance bounds the uncovered tokens bridged between two hits and
	// the diagonal drift accepted when extending a chain
	GapTolerance int
	// MinMatchingNgrams is the minimum number of distinct matched ngrams
	MinMatchingNgrams int
	// MinPassageLength is the minimum passage length in tokens
	MinPassageLength int
	// CommonNgramCeiling makes the generator skip keys occurring more often
	// than this across both corpora. Zero disables skipping.
	CommonNgramCeiling int
	// BanalityCeiling marks a matched ngram as banal above this global count.
	// Zero disables banality filtering.
	BanalityCeiling int
	// BanalityThreshold rejects alignments whose banal fraction exceeds it
	BanalityThreshold float64
	// CoverageWeight and RarityWeight balance the score components
	CoverageWeight float64
	RarityWeight   float64
	// Workers is the worker pool size; zero derives it from the CPU count
	Workers int
	// OneWay reports each document pair once in within-corpus runs
	OneWay bool
}

// DefaultParams returns the settings used when nothing is configured
func DefaultParams() Params {
	return Params{
		GapTolerance:      3,
		MinMatchingNgrams: 4,
		MinPassageLength:  6,
		BanalityCeiling:   1000,
		BanalityThreshold: 0.75,
		CoverageWeight:    0.5,
		RarityWeight:      0.5,
		OneWay:            true,
	}
}

// Validate reports the first invalid setting
func (p Params) Validate() error {
	switch {
	case p.GapTolerance < 0:
		return fmt.Errorf("%w: gap tolerance must not be negative", ErrInvalidParams)
	case p.MinMatchingNgrams < 1:
		return fmt.Errorf("%w: minimum matching ngrams must be at least 1", ErrInvalidParams)
	case p.MinPassageLength < 1:
		return fmt.Errorf("%w: minimum passage length must be at least 1", ErrInvalidParams)
	case p.CommonNgramCeiling < 0:
		return fmt.Errorf("%w: common ngram ceiling must not be negative", ErrInvalidParams)
	case p.BanalityCeiling < 0:
		return fmt.Errorf("%w: banality ceiling must not be negative", ErrInvalidParams)
	case p.BanalityThreshold < 0 || p.BanalityThreshold > 1:
		return fmt.Errorf("%w: banality threshold must be within [0, 1]", ErrInvalidParams)
	case p.CoverageWeight < 0 || p.RarityWeight < 0 || p.CoverageWeight+p.RarityWeight <= 0:
		return fmt.Errorf("%w: score weights must be non-negative with a positive sum", ErrInvalidParams)
	case p.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidParams)
	}
	return nil
}

// WorkerCount resolves the pool size for a run over docs source documents
func (p Params) WorkerCount(docs int) int {
	workers := p.Workers
	if workers == 0 {
		workers = DefaultWorkers()
	}
	return max(1, min(workers, docs))
}

// DefaultWorkers sizes the pool from the CPU count, leaving a quarter of the
// cores to the rest of the system
func DefaultWorkers() int {
	totalCPU := runtime.NumCPU()
	systemReserve := max(1, totalCPU/4)
	return max(1, totalCPU-systemReserve)
}
