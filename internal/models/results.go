package models

import (
	"time"
)

type Step string

const (
	StepIdle      Step = "idle"
	StepInitiated Step = "initiated"
	StepStarted   Step = "started"
	StepIndexing  Step = "indexing"
	StepMatching  Step = "matching"
	StepWriting   Step = "writing"
	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
)

// RunSummary holds the per-run counts reported for operational visibility
type RunSummary struct {
	DocumentsTotal     int           `bson:"documents_total" json:"documents_total"`
	DocumentsProcessed int           `bson:"documents_processed" json:"documents_processed"`
	DocumentsFailed    int           `bson:"documents_failed" json:"documents_failed"`
	DocumentsSkipped   int           `bson:"documents_skipped" json:"documents_skipped"`
	Hits               int64         `bson:"hits" json:"hits"`
	AlignmentsProduced int           `bson:"alignments_produced" json:"alignments_produced"`
	AlignmentsRejected int           `bson:"alignments_rejected" json:"alignments_rejected"`
	RejectedTooFew     int           `bson:"rejected_too_few" json:"rejected_too_few"`
	RejectedTooShort   int           `bson:"rejected_too_short" json:"rejected_too_short"`
	RejectedBanal      int           `bson:"rejected_banal" json:"rejected_banal"`
	Canceled           bool          `bson:"canceled" json:"canceled"`
	Duration           time.Duration `bson:"duration" json:"duration"`
}

// RunReport represents a persisted comparison run
type RunReport struct {
	RunID        string     `bson:"runId" json:"runId"`
	SourceCorpus string     `bson:"sourceCorpus" json:"sourceCorpus"`
	TargetCorpus string     `bson:"targetCorpus" json:"targetCorpus"`
	OutputPath   string     `bson:"outputPath" json:"outputPath"`
	Status       string     `bson:"status" json:"status"` // pending, completed, failed
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
	Summary      RunSummary `bson:"summary" json:"summary"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// RunRequest represents a request to compare two corpora
type RunRequest struct {
	RunID        string `json:"runId,omitempty"`
	SourceCorpus string `json:"sourceCorpus" binding:"required"`
	TargetCorpus string `json:"targetCorpus,omitempty"`
	OutputPath   string `json:"outputPath,omitempty"`
}

// RunResponse represents the response from the submit endpoint
type RunResponse struct {
	Step  Step   `json:"step"`
	RunID string `json:"runId"`
}

// RunStatusResponse combines the live step and the persisted report
type RunStatusResponse struct {
	RunID  string     `json:"runId"`
	Step   Step       `json:"step"`
	Report *RunReport `json:"report,omitempty"`
}
