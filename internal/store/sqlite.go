package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bracketworks/standings-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id                 TEXT PRIMARY KEY,
	tournament_id      TEXT NOT NULL,
	guild_id           TEXT NOT NULL,
	round_name         TEXT NOT NULL,
	size               INTEGER NOT NULL,
	completed          INTEGER NOT NULL DEFAULT 0,
	validated          INTEGER NOT NULL DEFAULT 0,
	errored            INTEGER NOT NULL DEFAULT 0,
	average_confidence REAL NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'processing',
	started_at         DATETIME NOT NULL,
	completed_at       DATETIME
);

CREATE TABLE IF NOT EXISTS submissions (
	id                    TEXT PRIMARY KEY,
	batch_id              TEXT NOT NULL REFERENCES batches(id),
	source_message_id     TEXT NOT NULL UNIQUE,
	source_channel_id     TEXT NOT NULL,
	author_id             TEXT NOT NULL,
	image_url             TEXT NOT NULL,
	round_name            TEXT NOT NULL,
	lobby_number          INTEGER NOT NULL DEFAULT 0,
	classification_score  REAL NOT NULL DEFAULT 0,
	extraction_confidence REAL NOT NULL DEFAULT 0,
	structural_score      REAL NOT NULL DEFAULT 0,
	match_score           REAL NOT NULL DEFAULT 0,
	overall_confidence    REAL NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	validation_method     TEXT NOT NULL DEFAULT '',
	raw_extraction        TEXT,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS placements (
	id               TEXT PRIMARY KEY,
	submission_id    TEXT NOT NULL REFERENCES submissions(id),
	player_id        TEXT,
	raw_name         TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	tournament_id    TEXT NOT NULL,
	round_name       TEXT NOT NULL,
	lobby_number     INTEGER NOT NULL,
	placement        INTEGER NOT NULL,
	points           INTEGER NOT NULL,
	match_method     TEXT NOT NULL,
	match_confidence REAL NOT NULL,
	validated        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_submissions_batch_id ON submissions(batch_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_placements_submission_id ON placements(submission_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, batch model.Batch) (*model.Batch, error) {
	batch.ID = uuid.New().String()
	batch.Status = model.BatchStatusProcessing
	batch.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, tournament_id, guild_id, round_name, size, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.TournamentID, batch.GuildID, batch.RoundName, batch.Size,
		string(batch.Status), batch.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
	}
	return &batch, nil
}

func (s *SQLiteStore) UpdateBatchCounts(ctx context.Context, batchID string, completed, validated, errored int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET completed = ?, validated = ?, errored = ? WHERE id = ?`,
		completed, validated, errored, batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch counts %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

func (s *SQLiteStore) CompleteBatch(ctx context.Context, batchID string, averageConfidence float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, average_confidence = ?, completed_at = ? WHERE id = ?`,
		string(model.BatchStatusCompleted), averageConfidence, time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete batch %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

const sqliteBatchColumns = `id, tournament_id, guild_id, round_name, size, completed, validated, errored, average_confidence, status, started_at, completed_at`

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM batches WHERE id = ?`, batchID)
	b, err := scanBatch(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", batchID)
	}
	return b, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) UpsertSubmissionBySource(ctx context.Context, sub model.Submission) (*model.Submission, error) {
	now := time.Now().UTC()
	sub.ID = uuid.New().String()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = model.SubmissionStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (
			id, batch_id, source_message_id, source_channel_id, author_id, image_url,
			round_name, lobby_number, extraction_confidence, classification_score,
			status, raw_extraction, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_message_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			image_url = excluded.image_url,
			round_name = excluded.round_name,
			lobby_number = excluded.lobby_number,
			extraction_confidence = excluded.extraction_confidence,
			classification_score = excluded.classification_score,
			raw_extraction = excluded.raw_extraction,
			updated_at = excluded.updated_at`,
		sub.ID, sub.BatchID, sub.SourceMessageID, sub.SourceChannelID, sub.AuthorID,
		sub.ImageURL, sub.RoundName, sub.LobbyNumber, sub.ExtractionConfidence,
		sub.ClassificationScore, string(sub.Status), string(sub.RawExtraction),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert submission %s", sub.SourceMessageID)
	}

	// Re-read: on conflict the stored row keeps its original id and created_at.
	return s.getSubmissionBySource(ctx, sub.SourceMessageID)
}

func (s *SQLiteStore) UpdateSubmissionResult(ctx context.Context, sub *model.Submission) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET
			classification_score = ?, extraction_confidence = ?, structural_score = ?,
			match_score = ?, overall_confidence = ?, status = ?, validation_method = ?,
			updated_at = ?
		 WHERE id = ?`,
		sub.ClassificationScore, sub.ExtractionConfidence, sub.StructuralScore,
		sub.MatchScore, sub.OverallConfidence, string(sub.Status),
		string(sub.ValidationMethod), time.Now().UTC(), sub.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update submission result %s", sub.ID)
	}
	return checkRowsAffected(res, "submission", sub.ID)
}

func (s *SQLiteStore) SetSubmissionStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, method model.ValidationMethod) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET status = ?, validation_method = ?, updated_at = ? WHERE id = ?`,
		string(status), string(method), time.Now().UTC(), submissionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set submission status %s", submissionID)
	}
	return checkRowsAffected(res, "submission", submissionID)
}

const sqliteSubmissionColumns = `id, batch_id, source_message_id, source_channel_id, author_id, image_url, round_name, lobby_number, classification_score, extraction_confidence, structural_score, match_score, overall_confidence, status, validation_method, raw_extraction, created_at, updated_at`

func (s *SQLiteStore) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSubmissionColumns+` FROM submissions WHERE id = ?`, submissionID)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", submissionID)
	}
	return sub, nil
}

func (s *SQLiteStore) getSubmissionBySource(ctx context.Context, sourceMessageID string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSubmissionColumns+` FROM submissions WHERE source_message_id = ?`, sourceMessageID)
	sub, err := scanSubmission(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission by source %s", sourceMessageID)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + sqliteSubmissionColumns + ` FROM submissions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) ReplacePlacements(ctx context.Context, submissionID string, records []model.PlacementRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin placements tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM placements WHERE submission_id = ?`, submissionID); err != nil {
		return eris.Wrapf(err, "sqlite: clear placements %s", submissionID)
	}

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		var playerID any
		if rec.Player.Resolved() {
			playerID = rec.Player.PlayerID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO placements (
				id, submission_id, player_id, raw_name, display_name, tournament_id,
				round_name, lobby_number, placement, points, match_method,
				match_confidence, validated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, submissionID, playerID, rec.Player.RawName, rec.DisplayName,
			rec.TournamentID, rec.RoundName, rec.LobbyNumber, rec.Placement,
			rec.Points, string(rec.MatchMethod), rec.MatchConfidence, rec.Validated,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert placement for %s", submissionID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit placements")
}

func (s *SQLiteStore) ListPlacements(ctx context.Context, submissionID string) ([]model.PlacementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, player_id, raw_name, display_name, tournament_id,
		        round_name, lobby_number, placement, points, match_method,
		        match_confidence, validated
		 FROM placements WHERE submission_id = ? ORDER BY placement`, submissionID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list placements %s", submissionID)
	}
	defer rows.Close()

	var records []model.PlacementRecord
	for rows.Next() {
		var rec model.PlacementRecord
		var playerID sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.SubmissionID, &playerID, &rec.Player.RawName,
			&rec.DisplayName, &rec.TournamentID, &rec.RoundName, &rec.LobbyNumber,
			&rec.Placement, &rec.Points, &rec.MatchMethod, &rec.MatchConfidence,
			&rec.Validated,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan placement")
		}
		rec.Player.PlayerID = playerID.String
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list placements iterate")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*model.Batch, error) {
	var b model.Batch
	var status string
	var completedAt sql.NullTime
	if err := row.Scan(
		&b.ID, &b.TournamentID, &b.GuildID, &b.RoundName, &b.Size,
		&b.Completed, &b.Validated, &b.Errored, &b.AverageConfidence,
		&status, &b.StartedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

func scanSubmission(row scanner) (*model.Submission, error) {
	var sub model.Submission
	var status, method string
	var raw sql.NullString
	if err := row.Scan(
		&sub.ID, &sub.BatchID, &sub.SourceMessageID, &sub.SourceChannelID,
		&sub.AuthorID, &sub.ImageURL, &sub.RoundName, &sub.LobbyNumber,
		&sub.ClassificationScore, &sub.ExtractionConfidence, &sub.StructuralScore,
		&sub.MatchScore, &sub.OverallConfidence, &status, &method, &raw,
		&sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = model.SubmissionStatus(status)
	sub.ValidationMethod = model.ValidationMethod(method)
	if raw.Valid && raw.String != "" {
		sub.RawExtraction = []byte(raw.String)
	}
	return &sub, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s %s not found", entity, id)
	}
	return nil
}
