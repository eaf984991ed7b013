package store

import (
	"context"

	"github.com/bracketworks/standings-cli/internal/model"
)

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	Status  model.SubmissionStatus `json:"status,omitempty"`
	BatchID string                 `json:"batch_id,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
	Offset  int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, batch model.Batch) (*model.Batch, error)
	UpdateBatchCounts(ctx context.Context, batchID string, completed, validated, errored int) error
	CompleteBatch(ctx context.Context, batchID string, averageConfidence float64) error
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]model.Batch, error)

	// Submissions. UpsertSubmissionBySource is keyed by SourceMessageID:
	// reprocessing the same source event updates the existing row in place.
	UpsertSubmissionBySource(ctx context.Context, sub model.Submission) (*model.Submission, error)
	UpdateSubmissionResult(ctx context.Context, sub *model.Submission) error
	SetSubmissionStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, method model.ValidationMethod) error
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)

	// Placements. ReplacePlacements writes a submission's records
	// transactionally: all rows land together or not at all.
	ReplacePlacements(ctx context.Context, submissionID string, records []model.PlacementRecord) error
	ListPlacements(ctx context.Context, submissionID string) ([]model.PlacementRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
