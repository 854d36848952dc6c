// Package compare runs one comparison end to end: load corpora, build
// indices, align, write the result file and record the run.
package compare

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RishiKendai/textpair/internal/alignment"
	"github.com/RishiKendai/textpair/internal/metrics"
	"github.com/RishiKendai/textpair/internal/models"
	"github.com/RishiKendai/textpair/internal/ngram"
	"github.com/RishiKendai/textpair/internal/output"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ReportPending   = "pending"
	ReportCompleted = "completed"
	ReportCanceled  = "canceled"
	ReportFailed    = "failed"
)

// DocumentSource loads the documents of a named corpus in corpus order
type DocumentSource interface {
	GetDocumentsByCorpus(ctx context.Context, corpus string) ([]models.Document, error)
}

type ReportStore interface {
	InsertRunReport(ctx context.Context, report *models.RunReport) error
	UpdateRunReport(ctx context.Context, report *models.RunReport) error
}

type StatusStore interface {
	Update(ctx context.Context, runID string, step models.Step) error
}

// Options are the fixed settings of every run executed by a Service
type Options struct {
	NgramLength int
	Params      alignment.Params
	Format      output.Format
	OutputDir   string
}

type Service struct {
	docs    DocumentSource
	reports ReportStore
	status  StatusStore
	opts    Options
}

// NewService wires a run service. reports and status may be nil.
func NewService(docs DocumentSource, reports ReportStore, status StatusStore, opts Options) *Service {
	return &Service{
		docs:    docs,
		reports: reports,
		status:  status,
		opts:    opts,
	}
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.New().String()
}

// Prepare fills in the run id of req and records the run as pending
func (s *Service) Prepare(ctx context.Context, req *models.RunRequest) (*models.RunReport, error) {
	if req.SourceCorpus == "" {
		return nil, errors.New("source corpus is required")
	}
	if req.RunID == "" {
		req.RunID = NewRunID()
	}
	report := &models.RunReport{
		RunID:        req.RunID,
		SourceCorpus: req.SourceCorpus,
		TargetCorpus: req.TargetCorpus,
		Status:       ReportPending,
	}
	if s.reports != nil {
		if err := s.reports.InsertRunReport(ctx, report); err != nil {
			return nil, err
		}
	}
	s.setStep(ctx, req.RunID, models.StepInitiated)
	return report, nil
}

// Execute runs the comparison described by req. A pending report is created
// when req carries no run id yet.
func (s *Service) Execute(ctx context.Context, req models.RunRequest) (*models.RunReport, error) {
	var report *models.RunReport
	if req.RunID == "" {
		var err error
		if report, err = s.Prepare(ctx, &req); err != nil {
			return nil, err
		}
	} else {
		report = &models.RunReport{
			RunID:        req.RunID,
			SourceCorpus: req.SourceCorpus,
			TargetCorpus: req.TargetCorpus,
			Status:       ReportPending,
		}
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	logger := log.With().Str("runId", req.RunID).Str("source", req.SourceCorpus).Str("target", req.TargetCorpus).Logger()
	logger.Info().Msg("Comparison run started")
	s.setStep(ctx, req.RunID, models.StepStarted)

	result, path, err := s.run(ctx, req)
	// persistence must outlive a cancelled run context
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Comparison run failed")
		report.Status = ReportFailed
		report.Error = err.Error()
		if result != nil {
			report.Summary = result.Summary
		}
		s.finish(finishCtx, report, models.StepFailed)
		return report, err
	}

	report.OutputPath = path
	report.Summary = result.Summary
	report.Status = ReportCompleted
	step := models.StepCompleted
	if result.Summary.Canceled {
		report.Status = ReportCanceled
		step = models.StepFailed
	}
	s.finish(finishCtx, report, step)

	logger.Info().
		Str("output", path).
		Int("documents", result.Summary.DocumentsTotal).
		Int("failed", result.Summary.DocumentsFailed).
		Int("skipped", result.Summary.DocumentsSkipped).
		Int("alignments", result.Summary.AlignmentsProduced).
		Int("rejected", result.Summary.AlignmentsRejected).
		Dur("duration", result.Summary.Duration).
		Bool("canceled", result.Summary.Canceled).
		Msg("Comparison run finished")
	return report, nil
}

func (s *Service) run(ctx context.Context, req models.RunRequest) (*alignment.Result, string, error) {
	s.setStep(ctx, req.RunID, models.StepIndexing)
	source, err := s.index(ctx, req.SourceCorpus)
	if err != nil {
		return nil, "", err
	}
	target := source
	if req.TargetCorpus != "" && req.TargetCorpus != req.SourceCorpus {
		if target, err = s.index(ctx, req.TargetCorpus); err != nil {
			return nil, "", err
		}
	}

	s.setStep(ctx, req.RunID, models.StepMatching)
	result, err := alignment.Run(ctx, source, target, s.opts.Params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to align corpora: %w", err)
	}

	s.setStep(ctx, req.RunID, models.StepWriting)
	path := s.outputPath(req)
	if err := output.WriteFile(path, result.Alignments, s.opts.Format); err != nil {
		return result, "", err
	}
	return result, path, nil
}

func (s *Service) index(ctx context.Context, corpus string) (*ngram.Index, error) {
	docs, err := s.docs.GetDocumentsByCorpus(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", corpus, err)
	}
	started := time.Now()
	idx, docErrs, err := ngram.Build(docs, s.opts.NgramLength)
	if err != nil {
		return nil, fmt.Errorf("failed to index corpus %s: %w", corpus, err)
	}
	for _, de := range docErrs {
		log.Warn().Err(de.Err).Str("corpus", corpus).Str("docId", de.DocID).Msg("Skipping malformed document")
	}
	log.Info().
		Str("corpus", corpus).
		Int("documents", idx.Len()).
		Int("distinctNgrams", idx.DistinctKeys()).
		Int("ngrams", idx.TotalNgrams()).
		Dur("elapsed", time.Since(started)).
		Msg("Corpus indexed")
	return idx, nil
}

// outputPath keeps client supplied names inside the output directory
func (s *Service) outputPath(req models.RunRequest) string {
	if req.OutputPath != "" {
		return filepath.Join(s.opts.OutputDir, filepath.Base(req.OutputPath))
	}
	return filepath.Join(s.opts.OutputDir, req.RunID+s.opts.Format.Extension())
}

func (s *Service) finish(ctx context.Context, report *models.RunReport, step models.Step) {
	metrics.ObserveRun(report.Status, report.Summary)
	if s.reports != nil {
		if err := s.reports.UpdateRunReport(ctx, report); err != nil {
			log.Error().Err(err).Str("runId", report.RunID).Msg("Failed to update run report")
		}
	}
	s.setStep(ctx, report.RunID, step)
}

// setStep is best effort; a status outage never fails a run
func (s *Service) setStep(ctx context.Context, runID string, step models.Step) {
	if s.status == nil {
		return
	}
	if err := s.status.Update(ctx, runID, step); err != nil {
		log.Warn().Err(err).Str("runId", runID).Str("step", string(step)).Msg("Failed to update run status")
	}
}
