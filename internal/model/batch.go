package model

import "time"

// BatchStatus represents the lifecycle state of a screenshot batch.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
)

// Batch represents one submission event: N screenshots uploaded for a round.
// Counters are mutated only by the orchestrator as images reach terminal
// per-image outcomes; completed + errored never exceeds Size.
type Batch struct {
	ID                string      `json:"id"`
	TournamentID      string      `json:"tournament_id"`
	GuildID           string      `json:"guild_id"`
	RoundName         string      `json:"round_name"`
	Size              int         `json:"size"`
	Completed         int         `json:"completed"`
	Validated         int         `json:"validated"`
	Errored           int         `json:"errored"`
	AverageConfidence float64     `json:"average_confidence"`
	Status            BatchStatus `json:"status"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
}
