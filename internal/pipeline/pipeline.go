// Package pipeline orchestrates batches of screenshot submissions: download,
// classify, extract, match, validate, fuse, decide, persist. Images run
// concurrently under a bounded errgroup; one bad image never aborts its
// siblings.
package pipeline

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bracketworks/standings-cli/internal/classify"
	"github.com/bracketworks/standings-cli/internal/config"
	"github.com/bracketworks/standings-cli/internal/match"
	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/store"
	"github.com/bracketworks/standings-cli/internal/validate"
	"github.com/bracketworks/standings-cli/pkg/vision"
)

// Fetcher downloads a screenshot to a scratch file.
type Fetcher interface {
	DownloadToTemp(ctx context.Context, url string) (string, error)
}

// ImageOutcome is the terminal result of processing one image.
type ImageOutcome struct {
	Input        model.ImageInput
	SubmissionID string
	Validated    bool
	Confidence   float64
	FailReason   model.FailReason
	Err          error
	Rows         []model.ExtractedRow
	LobbyNumber  int
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	Batch            *model.Batch
	Outcomes         []ImageOutcome
	CrossLobbyIssues []validate.Issue
}

// Pipeline orchestrates the extraction pipeline for screenshot batches.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	fetcher    Fetcher
	classifier *classify.Classifier
	matcher    *match.Matcher
	vision     vision.Client
}

// New creates a new Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	fetcher Fetcher,
	classifier *classify.Classifier,
	matcher *match.Matcher,
	visionClient vision.Client,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		fetcher:    fetcher,
		classifier: classifier,
		matcher:    matcher,
		vision:     visionClient,
	}
}

// ProcessBatch runs every image through the pipeline and finalizes batch
// counters. The only hard error is an empty image list or a failure to
// create the batch record; per-image failures become counted outcomes.
func (p *Pipeline) ProcessBatch(ctx context.Context, images []model.ImageInput, tournamentID, guildID, roundName string) (*BatchResult, error) {
	if len(images) == 0 {
		return nil, eris.New("pipeline: no images in batch")
	}

	log := zap.L().With(
		zap.String("tournament_id", tournamentID),
		zap.String("round", roundName),
		zap.Int("size", len(images)),
	)
	log.Info("pipeline: starting batch")

	batch, err := p.store.CreateBatch(ctx, model.Batch{
		TournamentID: tournamentID,
		GuildID:      guildID,
		RoundName:    roundName,
		Size:         len(images),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create batch")
	}

	outcomes := make([]ImageOutcome, len(images))

	maxConcurrent := p.cfg.Pipeline.MaxConcurrentImages
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, img := range images {
		g.Go(func() error {
			outcomes[i] = p.processImage(gCtx, batch, img)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Batch: batch, Outcomes: outcomes}

	// Cross-lobby consistency over the lobbies that produced rows. Findings
	// are advisory: they ride on the batch result for reviewers and never
	// demote an already-validated submission.
	lobbies := make(map[int][]model.ExtractedRow)
	for _, o := range outcomes {
		if o.FailReason == "" && o.Err == nil && len(o.Rows) > 0 {
			lobbies[o.LobbyNumber] = append(lobbies[o.LobbyNumber], o.Rows...)
		}
	}
	if len(lobbies) > 1 {
		round := validate.Round(lobbies, validate.RoundOptions{
			ExpectedLobbies: p.cfg.Validation.ExpectedLobbies,
			PlayersPerLobby: p.cfg.Validation.PlayersPerLobby,
			Strict:          p.cfg.Validation.Strict,
		})
		result.CrossLobbyIssues = round.Issues
		if !round.Valid {
			log.Warn("pipeline: cross-lobby validation flagged the round",
				zap.Float64("score", round.Score),
				zap.Int("issues", len(round.Issues)),
			)
		}
	}

	var completed, validated, errored int
	var confidenceSum float64
	for _, o := range outcomes {
		if o.FailReason != "" || o.Err != nil {
			errored++
			continue
		}
		completed++
		confidenceSum += o.Confidence
		if o.Validated {
			validated++
		}
	}
	average := 0.0
	if completed > 0 {
		average = confidenceSum / float64(completed)
	}

	// Finalize with a fresh context: batch bookkeeping should land even when
	// the caller's context was canceled mid-batch.
	finalizeCtx := context.WithoutCancel(ctx)
	if err := p.store.UpdateBatchCounts(finalizeCtx, batch.ID, completed, validated, errored); err != nil {
		log.Warn("pipeline: failed to update batch counts", zap.Error(err))
	}
	if err := p.store.CompleteBatch(finalizeCtx, batch.ID, average); err != nil {
		log.Warn("pipeline: failed to complete batch", zap.Error(err))
	}
	batch.Completed = completed
	batch.Validated = validated
	batch.Errored = errored
	batch.AverageConfidence = average
	batch.Status = model.BatchStatusCompleted

	log.Info("pipeline: batch finished",
		zap.String("batch_id", batch.ID),
		zap.Int("completed", completed),
		zap.Int("validated", validated),
		zap.Int("errored", errored),
		zap.Float64("average_confidence", average),
	)
	return result, nil
}

// processImage runs one screenshot through the full pipeline. Every return
// is a terminal outcome; errors never propagate to siblings.
func (p *Pipeline) processImage(ctx context.Context, batch *model.Batch, img model.ImageInput) ImageOutcome {
	log := zap.L().With(
		zap.String("batch_id", batch.ID),
		zap.String("source_message_id", img.SourceMessageID),
	)
	outcome := ImageOutcome{Input: img, LobbyNumber: img.LobbyNumber}

	if ctx.Err() != nil {
		outcome.FailReason = model.FailProcessing
		outcome.Err = ctx.Err()
		return outcome
	}

	// 1. Download to a scratch file, removed on every exit path.
	path, err := p.fetcher.DownloadToTemp(ctx, img.URL)
	if err != nil {
		log.Warn("pipeline: download failed", zap.Error(err))
		outcome.FailReason = model.FailDownload
		outcome.Err = err
		return outcome
	}
	defer os.Remove(path) //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		outcome.FailReason = model.FailProcessing
		outcome.Err = eris.Wrap(err, "pipeline: read downloaded image")
		return outcome
	}

	// 2. Classify.
	cls := p.classifier.Classify(data, img.SourceChannelID)
	if !cls.IsStandings {
		log.Info("pipeline: image rejected by classifier",
			zap.Float64("confidence", cls.Confidence),
			zap.String("issue", cls.Error),
		)
		outcome.FailReason = model.FailNotStandings
		return outcome
	}

	// 3. Extract.
	extraction, err := p.vision.Extract(ctx, data)
	if err != nil {
		log.Warn("pipeline: extraction failed", zap.Error(err))
		outcome.FailReason = model.FailOCR
		outcome.Err = err
		return outcome
	}
	if !extraction.Success || len(extraction.Players) == 0 {
		log.Info("pipeline: extractor could not read standings",
			zap.String("extractor_error", extraction.Error),
		)
		outcome.FailReason = model.FailOCR
		if extraction.Error != "" {
			outcome.Err = eris.New(extraction.Error)
		}
		return outcome
	}

	roundName := img.RoundName
	if roundName == "" {
		roundName = batch.RoundName
	}

	// 4. Create or update the submission, keyed by source message.
	raw, err := marshalExtraction(extraction)
	if err != nil {
		outcome.FailReason = model.FailProcessing
		outcome.Err = err
		return outcome
	}
	sub, err := p.store.UpsertSubmissionBySource(ctx, model.Submission{
		BatchID:              batch.ID,
		SourceMessageID:      img.SourceMessageID,
		SourceChannelID:      img.SourceChannelID,
		AuthorID:             img.AuthorID,
		ImageURL:             img.URL,
		RoundName:            roundName,
		LobbyNumber:          img.LobbyNumber,
		ClassificationScore:  cls.Confidence,
		ExtractionConfidence: extraction.Confidence,
		RawExtraction:        raw,
	})
	if err != nil {
		log.Warn("pipeline: upsert submission failed", zap.Error(err))
		outcome.FailReason = model.FailProcessing
		outcome.Err = err
		return outcome
	}
	outcome.SubmissionID = sub.ID

	// 5. Match players.
	matches := p.matcher.MatchPlayers(extraction.Players)

	// 6. Structural and match-quality validation.
	structural := validate.Lobby(extraction.Players, validate.LobbyOptions{
		ExpectedPlayers: p.cfg.Validation.PlayersPerLobby,
		Strict:          p.cfg.Validation.Strict,
	})
	quality := validate.MatchQuality(matches, validate.QualityOptions{
		Strict:           p.cfg.Validation.Strict,
		MinAvgConfidence: p.cfg.Validation.MinAvgMatchConfidence,
	})

	// 7. Fuse per-stage confidences.
	w := p.cfg.Pipeline.Weights
	overall := w.Classification*cls.Confidence + w.Extraction*extraction.Confidence + w.Match*quality.Score

	// 8. Auto-validate only when the score clears the bar AND both
	// validations passed on their own.
	autoValidate := overall >= p.cfg.Pipeline.AutoValidateThreshold && structural.Valid && quality.Valid

	// 9. Persist placements for every row, resolved or not.
	records := buildPlacements(sub.ID, batch.TournamentID, roundName, img.LobbyNumber, matches, p.cfg.Scoring.Points, autoValidate)
	if err := p.store.ReplacePlacements(ctx, sub.ID, records); err != nil {
		log.Warn("pipeline: persist placements failed", zap.Error(err))
		outcome.FailReason = model.FailProcessing
		outcome.Err = err
		return outcome
	}

	// 10. Write terminal submission fields.
	sub.ClassificationScore = cls.Confidence
	sub.ExtractionConfidence = extraction.Confidence
	sub.StructuralScore = structural.Score
	sub.MatchScore = quality.Score
	sub.OverallConfidence = overall
	if autoValidate {
		sub.Status = model.SubmissionStatusValidated
		sub.ValidationMethod = model.ValidationMethodAuto
	} else {
		sub.Status = model.SubmissionStatusPending
		sub.ValidationMethod = ""
	}
	if err := p.store.UpdateSubmissionResult(ctx, sub); err != nil {
		log.Warn("pipeline: update submission result failed", zap.Error(err))
		outcome.FailReason = model.FailProcessing
		outcome.Err = err
		return outcome
	}

	log.Info("pipeline: image processed",
		zap.String("submission_id", sub.ID),
		zap.Float64("overall_confidence", overall),
		zap.Bool("auto_validated", autoValidate),
	)
	outcome.Validated = autoValidate
	outcome.Confidence = overall
	outcome.Rows = extraction.Players
	return outcome
}

// buildPlacements turns match results into placement records. Unresolved
// names keep their raw identity so reviewers see exactly what was extracted.
func buildPlacements(submissionID, tournamentID, roundName string, lobbyNumber int, matches []match.RowMatch, points []int, validated bool) []model.PlacementRecord {
	records := make([]model.PlacementRecord, 0, len(matches))
	for _, m := range matches {
		player := model.UnresolvedPlayer(m.Row.Name)
		display := m.Row.Name
		if m.Success {
			player = model.ResolvedPlayer(m.PlayerID, m.Row.Name)
			display = m.MatchedName
		}
		records = append(records, model.PlacementRecord{
			SubmissionID:    submissionID,
			Player:          player,
			DisplayName:     display,
			TournamentID:    tournamentID,
			RoundName:       roundName,
			LobbyNumber:     lobbyNumber,
			Placement:       m.Row.Placement,
			Points:          pointsFor(m.Row.Placement, points),
			MatchMethod:     m.Method,
			MatchConfidence: m.Confidence,
			Validated:       validated,
		})
	}
	return records
}

func pointsFor(placement int, points []int) int {
	if placement < 1 || placement > len(points) {
		return 0
	}
	return points[placement-1]
}

func marshalExtraction(e *vision.Extraction) (json.RawMessage, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: marshal extraction")
	}
	return raw, nil
}
