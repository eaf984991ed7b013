package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/store"
	"github.com/bracketworks/standings-cli/pkg/vision"
)

// memStore is an in-memory store.Store for orchestrator tests. Upsert
// semantics mirror the real stores: submissions are keyed by source message.
type memStore struct {
	mu          sync.Mutex
	batches     map[string]*model.Batch
	subsByID    map[string]*model.Submission
	idBySource  map[string]string
	placements  map[string][]model.PlacementRecord
	failUpsert  bool
	failReplace bool
}

func newMemStore() *memStore {
	return &memStore{
		batches:    make(map[string]*model.Batch),
		subsByID:   make(map[string]*model.Submission),
		idBySource: make(map[string]string),
		placements: make(map[string][]model.PlacementRecord),
	}
}

func (m *memStore) CreateBatch(_ context.Context, batch model.Batch) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch.ID = uuid.New().String()
	batch.Status = model.BatchStatusProcessing
	batch.StartedAt = time.Now().UTC()
	m.batches[batch.ID] = &batch
	copied := batch
	return &copied, nil
}

func (m *memStore) UpdateBatchCounts(_ context.Context, batchID string, completed, validated, errored int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return eris.Errorf("batch %s not found", batchID)
	}
	b.Completed = completed
	b.Validated = validated
	b.Errored = errored
	return nil
}

func (m *memStore) CompleteBatch(_ context.Context, batchID string, averageConfidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return eris.Errorf("batch %s not found", batchID)
	}
	now := time.Now().UTC()
	b.Status = model.BatchStatusCompleted
	b.AverageConfidence = averageConfidence
	b.CompletedAt = &now
	return nil
}

func (m *memStore) GetBatch(_ context.Context, batchID string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, eris.Errorf("batch %s not found", batchID)
	}
	copied := *b
	return &copied, nil
}

func (m *memStore) ListBatches(_ context.Context, _ int) ([]model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, *b)
	}
	return out, nil
}

func (m *memStore) UpsertSubmissionBySource(_ context.Context, sub model.Submission) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return nil, eris.New("mem: upsert failed")
	}
	now := time.Now().UTC()
	if id, ok := m.idBySource[sub.SourceMessageID]; ok {
		existing := m.subsByID[id]
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		sub.Status = existing.Status
		sub.ValidationMethod = existing.ValidationMethod
	} else {
		sub.ID = uuid.New().String()
		sub.CreatedAt = now
		sub.Status = model.SubmissionStatusPending
		m.idBySource[sub.SourceMessageID] = sub.ID
	}
	sub.UpdatedAt = now
	m.subsByID[sub.ID] = &sub
	copied := sub
	return &copied, nil
}

func (m *memStore) UpdateSubmissionResult(_ context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.subsByID[sub.ID]
	if !ok {
		return eris.Errorf("submission %s not found", sub.ID)
	}
	existing.ClassificationScore = sub.ClassificationScore
	existing.ExtractionConfidence = sub.ExtractionConfidence
	existing.StructuralScore = sub.StructuralScore
	existing.MatchScore = sub.MatchScore
	existing.OverallConfidence = sub.OverallConfidence
	existing.Status = sub.Status
	existing.ValidationMethod = sub.ValidationMethod
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) SetSubmissionStatus(_ context.Context, submissionID string, status model.SubmissionStatus, method model.ValidationMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subsByID[submissionID]
	if !ok {
		return eris.Errorf("submission %s not found", submissionID)
	}
	sub.Status = status
	sub.ValidationMethod = method
	return nil
}

func (m *memStore) GetSubmission(_ context.Context, submissionID string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subsByID[submissionID]
	if !ok {
		return nil, eris.Errorf("submission %s not found", submissionID)
	}
	copied := *sub
	return &copied, nil
}

func (m *memStore) ListSubmissions(_ context.Context, filter store.SubmissionFilter) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, sub := range m.subsByID {
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.BatchID != "" && sub.BatchID != filter.BatchID {
			continue
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (m *memStore) ReplacePlacements(_ context.Context, submissionID string, records []model.PlacementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplace {
		return eris.New("mem: replace placements failed")
	}
	m.placements[submissionID] = append([]model.PlacementRecord(nil), records...)
	return nil
}

func (m *memStore) ListPlacements(_ context.Context, submissionID string) ([]model.PlacementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PlacementRecord(nil), m.placements[submissionID]...), nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

// mockExtractor maps image payloads to canned extractions.
type mockExtractor struct {
	mu      sync.Mutex
	results map[string]*vision.Extraction
	err     error
	calls   int
}

func (m *mockExtractor) Extract(_ context.Context, imageBytes []byte) (*vision.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.results[string(imageBytes)]; ok {
		return r, nil
	}
	return &vision.Extraction{Success: false, Error: "no standings table detected"}, nil
}
