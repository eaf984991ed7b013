package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bracketworks/standings-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id                 TEXT PRIMARY KEY,
	tournament_id      TEXT NOT NULL,
	guild_id           TEXT NOT NULL,
	round_name         TEXT NOT NULL,
	size               INTEGER NOT NULL,
	completed          INTEGER NOT NULL DEFAULT 0,
	validated          INTEGER NOT NULL DEFAULT 0,
	errored            INTEGER NOT NULL DEFAULT 0,
	average_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'processing',
	started_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ
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
	classification_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	structural_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	overall_confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	validation_method     TEXT NOT NULL DEFAULT '',
	raw_extraction        JSONB,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
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
	match_confidence DOUBLE PRECISION NOT NULL,
	validated        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_submissions_batch_id ON submissions(batch_id);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_placements_submission_id ON placements(submission_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch model.Batch) (*model.Batch, error) {
	batch.ID = uuid.New().String()
	batch.Status = model.BatchStatusProcessing
	batch.StartedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, tournament_id, guild_id, round_name, size, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		batch.ID, batch.TournamentID, batch.GuildID, batch.RoundName, batch.Size,
		string(batch.Status), batch.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert batch")
	}
	return &batch, nil
}

func (s *PostgresStore) UpdateBatchCounts(ctx context.Context, batchID string, completed, validated, errored int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET completed = $1, validated = $2, errored = $3 WHERE id = $4`,
		completed, validated, errored, batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch counts %s", batchID)
	}
	return checkTag(tag, "batch", batchID)
}

func (s *PostgresStore) CompleteBatch(ctx context.Context, batchID string, averageConfidence float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET status = $1, average_confidence = $2, completed_at = $3 WHERE id = $4`,
		string(model.BatchStatusCompleted), averageConfidence, time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete batch %s", batchID)
	}
	return checkTag(tag, "batch", batchID)
}

const pgBatchColumns = `id, tournament_id, guild_id, round_name, size, completed, validated, errored, average_confidence, status, started_at, completed_at`

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBatchColumns+` FROM batches WHERE id = $1`, batchID)
	b, err := scanPgBatch(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", batchID)
	}
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgBatchColumns+` FROM batches ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanPgBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

const pgSubmissionColumns = `id, batch_id, source_message_id, source_channel_id, author_id, image_url, round_name, lobby_number, classification_score, extraction_confidence, structural_score, match_score, overall_confidence, status, validation_method, raw_extraction, created_at, updated_at`

func (s *PostgresStore) UpsertSubmissionBySource(ctx context.Context, sub model.Submission) (*model.Submission, error) {
	now := time.Now().UTC()
	sub.ID = uuid.New().String()
	if sub.Status == "" {
		sub.Status = model.SubmissionStatusPending
	}

	var raw any
	if len(sub.RawExtraction) > 0 {
		raw = []byte(sub.RawExtraction)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO submissions (
			id, batch_id, source_message_id, source_channel_id, author_id, image_url,
			round_name, lobby_number, extraction_confidence, classification_score,
			status, raw_extraction, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (source_message_id) DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			image_url = EXCLUDED.image_url,
			round_name = EXCLUDED.round_name,
			lobby_number = EXCLUDED.lobby_number,
			extraction_confidence = EXCLUDED.extraction_confidence,
			classification_score = EXCLUDED.classification_score,
			raw_extraction = EXCLUDED.raw_extraction,
			updated_at = EXCLUDED.updated_at
		RETURNING `+pgSubmissionColumns,
		sub.ID, sub.BatchID, sub.SourceMessageID, sub.SourceChannelID, sub.AuthorID,
		sub.ImageURL, sub.RoundName, sub.LobbyNumber, sub.ExtractionConfidence,
		sub.ClassificationScore, string(sub.Status), raw, now, now,
	)
	stored, err := scanPgSubmission(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert submission %s", sub.SourceMessageID)
	}
	return stored, nil
}

func (s *PostgresStore) UpdateSubmissionResult(ctx context.Context, sub *model.Submission) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET
			classification_score = $1, extraction_confidence = $2, structural_score = $3,
			match_score = $4, overall_confidence = $5, status = $6, validation_method = $7,
			updated_at = $8
		 WHERE id = $9`,
		sub.ClassificationScore, sub.ExtractionConfidence, sub.StructuralScore,
		sub.MatchScore, sub.OverallConfidence, string(sub.Status),
		string(sub.ValidationMethod), time.Now().UTC(), sub.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update submission result %s", sub.ID)
	}
	return checkTag(tag, "submission", sub.ID)
}

func (s *PostgresStore) SetSubmissionStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, method model.ValidationMethod) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions SET status = $1, validation_method = $2, updated_at = $3 WHERE id = $4`,
		string(status), string(method), time.Now().UTC(), submissionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set submission status %s", submissionID)
	}
	return checkTag(tag, "submission", submissionID)
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSubmissionColumns+` FROM submissions WHERE id = $1`, submissionID)
	sub, err := scanPgSubmission(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", submissionID)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := `SELECT ` + pgSubmissionColumns + ` FROM submissions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		query += ` AND batch_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanPgSubmission(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) ReplacePlacements(ctx context.Context, submissionID string, records []model.PlacementRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin placements tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM placements WHERE submission_id = $1`, submissionID); err != nil {
		return eris.Wrapf(err, "postgres: clear placements %s", submissionID)
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO placements (
				id, submission_id, player_id, raw_name, display_name, tournament_id,
				round_name, lobby_number, placement, points, match_method,
				match_confidence, validated
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			id, submissionID, playerID, rec.Player.RawName, rec.DisplayName,
			rec.TournamentID, rec.RoundName, rec.LobbyNumber, rec.Placement,
			rec.Points, string(rec.MatchMethod), rec.MatchConfidence, rec.Validated,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert placement for %s", submissionID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit placements")
}

func (s *PostgresStore) ListPlacements(ctx context.Context, submissionID string) ([]model.PlacementRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, player_id, raw_name, display_name, tournament_id,
		        round_name, lobby_number, placement, points, match_method,
		        match_confidence, validated
		 FROM placements WHERE submission_id = $1 ORDER BY placement`, submissionID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list placements %s", submissionID)
	}
	defer rows.Close()

	var records []model.PlacementRecord
	for rows.Next() {
		var rec model.PlacementRecord
		var playerID sql.NullString
		var method string
		if err := rows.Scan(
			&rec.ID, &rec.SubmissionID, &playerID, &rec.Player.RawName,
			&rec.DisplayName, &rec.TournamentID, &rec.RoundName, &rec.LobbyNumber,
			&rec.Placement, &rec.Points, &method, &rec.MatchConfidence,
			&rec.Validated,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan placement")
		}
		rec.Player.PlayerID = playerID.String
		rec.MatchMethod = model.MatchMethod(method)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list placements iterate")
}

func scanPgBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	var status string
	var completedAt *time.Time
	if err := row.Scan(
		&b.ID, &b.TournamentID, &b.GuildID, &b.RoundName, &b.Size,
		&b.Completed, &b.Validated, &b.Errored, &b.AverageConfidence,
		&status, &b.StartedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	b.CompletedAt = completedAt
	return &b, nil
}

func scanPgSubmission(row pgx.Row) (*model.Submission, error) {
	var sub model.Submission
	var status, method string
	var raw []byte
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
	if len(raw) > 0 {
		sub.RawExtraction = raw
	}
	return &sub, nil
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s %s not found", entity, id)
	}
	return nil
}

