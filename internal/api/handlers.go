package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RunService prepares and executes comparison runs
type RunService interface {
	Prepare(ctx context.Context, req *models.RunRequest) (*models.RunReport, error)
	Execute(ctx context.Context, req models.RunRequest) (*models.RunReport, error)
}

type ReportReader interface {
	GetRunReport(ctx context.Context, runID string) (*models.RunReport, error)
}

type StatusReader interface {
	Get(ctx context.Context, runID string) (models.Step, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	runs       RunService
	reports    ReportReader
	status     StatusReader
	runSem     chan struct{} // Semaphore for bounded concurrency
	runTimeout time.Duration
	baseCtx    context.Context
	wg         sync.WaitGroup
}

// NewHandler creates a new handler. Runs started by the handler are
// cancelled when ctx is.
func NewHandler(
	ctx context.Context,
	runs RunService,
	reports ReportReader,
	status StatusReader,
	maxConcurrentRuns int,
	runTimeout time.Duration,
) *Handler {
	// Create semaphore for bounded concurrency
	sem := make(chan struct{}, max(1, maxConcurrentRuns))

	return &Handler{
		runs:       runs,
		reports:    reports,
		status:     status,
		runSem:     sem,
		runTimeout: runTimeout,
		baseCtx:    ctx,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (h *Handler) SubmitRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	req.SourceCorpus = strings.TrimSpace(req.SourceCorpus)
	req.TargetCorpus = strings.TrimSpace(req.TargetCorpus)
	if req.SourceCorpus == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "sourceCorpus is required",
			Code:  "INVALID_CORPUS",
		})
		return
	}
	// run ids are assigned by the server
	req.RunID = ""

	// Acquire semaphore (bounded concurrency)
	ctx := c.Request.Context()
	select {
	case h.runSem <- struct{}{}:
	case <-ctx.Done():
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
		return
	}

	report, err := h.runs.Prepare(ctx, &req)
	if err != nil {
		<-h.runSem
		log.Error().Err(err).Str("source", req.SourceCorpus).Str("caller", c.GetString(callerKey)).Msg("Failed to create run")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create run",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	log.Info().
		Str("runId", report.RunID).
		Str("source", req.SourceCorpus).
		Str("target", req.TargetCorpus).
		Str("caller", c.GetString(callerKey)).
		Msg("Run accepted")

	// Return 202 Accepted immediately
	c.JSON(http.StatusAccepted, models.RunResponse{
		Step:  models.StepInitiated,
		RunID: report.RunID,
	})

	h.wg.Add(1)
	go h.processRun(req)
}

// processRun executes a prepared run asynchronously
func (h *Handler) processRun(req models.RunRequest) {
	defer h.wg.Done()
	defer func() { <-h.runSem }() // Release semaphore

	ctx, cancel := context.WithTimeout(h.baseCtx, h.runTimeout)
	defer cancel()

	if _, err := h.runs.Execute(ctx, req); err != nil {
		log.Error().Err(err).Str("runId", req.RunID).Msg("Run failed")
		return
	}
	log.Debug().Str("runId", req.RunID).Msg("Run completed")
}

func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	ctx := c.Request.Context()

	report, err := h.reports.GetRunReport(ctx, runID)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Failed to get run report")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to get run",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	step := models.StepIdle
	if h.status != nil {
		if step, err = h.status.Get(ctx, runID); err != nil {
			log.Warn().Err(err).Str("runId", runID).Msg("Failed to get run status")
			step = models.StepIdle
		}
	}

	if report == nil && step == models.StepIdle {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, models.RunStatusResponse{
		RunID:  runID,
		Step:   step,
		Report: report,
	})
}

// Wait blocks until every run started by the handler has returned
func (h *Handler) Wait() {
	h.wg.Wait()
}
