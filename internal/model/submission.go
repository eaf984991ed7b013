package model

import (
	"encoding/json"
	"time"
)

// SubmissionStatus represents the review state of one screenshot's record.
type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusValidated SubmissionStatus = "validated"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
)

// ValidationMethod records how a submission reached its terminal status.
// Empty while the submission is still pending.
type ValidationMethod string

const (
	ValidationMethodAuto   ValidationMethod = "auto"
	ValidationMethodManual ValidationMethod = "manual"
)

// FailReason tags a per-image terminal failure. All reasons are non-fatal to
// the batch: they terminate one image's contribution and are counted.
type FailReason string

const (
	FailDownload     FailReason = "download_failed"
	FailNotStandings FailReason = "not_standings"
	FailOCR          FailReason = "ocr_failed"
	FailProcessing   FailReason = "processing_error"
)

// ImageInput identifies one screenshot to process within a batch.
type ImageInput struct {
	URL             string `json:"url"`
	SourceMessageID string `json:"source_message_id"`
	SourceChannelID string `json:"source_channel_id"`
	AuthorID        string `json:"author_id"`
	RoundName       string `json:"round_name,omitempty"`
	LobbyNumber     int    `json:"lobby_number,omitempty"`
}

// Submission is one screenshot's processing record. SourceMessageID is the
// idempotency key: reprocessing the same message updates the existing row.
type Submission struct {
	ID              string `json:"id"`
	BatchID         string `json:"batch_id"`
	SourceMessageID string `json:"source_message_id"`
	SourceChannelID string `json:"source_channel_id"`
	AuthorID        string `json:"author_id"`
	ImageURL        string `json:"image_url"`
	RoundName       string `json:"round_name"`
	LobbyNumber     int    `json:"lobby_number"`

	ClassificationScore  float64 `json:"classification_score"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
	StructuralScore      float64 `json:"structural_score"`
	MatchScore           float64 `json:"match_score"`
	OverallConfidence    float64 `json:"overall_confidence"`

	Status           SubmissionStatus `json:"status"`
	ValidationMethod ValidationMethod `json:"validation_method,omitempty"`

	// RawExtraction preserves the extractor's payload for audit and replay.
	RawExtraction json.RawMessage `json:"raw_extraction,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
