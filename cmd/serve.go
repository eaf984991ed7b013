package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API and batch webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := newServeMux(ctx, env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux wires the review API routes. ctx bounds async webhook batches
// to the server lifetime rather than the request.
func newServeMux(ctx context.Context, env *pipelineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		batch, err := env.Store.GetBatch(r.Context(), r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
			return
		}
		writeJSON(w, http.StatusOK, batch)
	})

	mux.HandleFunc("GET /submissions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		subs, err := env.Store.ListSubmissions(r.Context(), store.SubmissionFilter{
			Status:  model.SubmissionStatus(q.Get("status")),
			BatchID: q.Get("batch_id"),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list submissions failed"})
			return
		}
		writeJSON(w, http.StatusOK, subs)
	})

	mux.HandleFunc("GET /submissions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sub, err := env.Store.GetSubmission(r.Context(), r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
			return
		}
		placements, err := env.Store.ListPlacements(r.Context(), sub.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list placements failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"submission": sub,
			"placements": placements,
		})
	})

	mux.HandleFunc("POST /submissions/{id}/review", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status model.SubmissionStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Status != model.SubmissionStatusValidated && req.Status != model.SubmissionStatusRejected {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be validated or rejected"})
			return
		}
		if err := env.Store.SetSubmissionStatus(r.Context(), r.PathValue("id"), req.Status, model.ValidationMethodManual); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
	})

	mux.HandleFunc("POST /webhook/process", func(w http.ResponseWriter, r *http.Request) {
		var req batchManifest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.TournamentID == "" || len(req.Images) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tournament_id and images are required"})
			return
		}

		// Process asynchronously; the webhook caller only needs the ack.
		go func() {
			result, err := env.Pipeline.ProcessBatch(ctx, req.Images, req.TournamentID, req.GuildID, req.RoundName)
			if err != nil {
				zap.L().Error("webhook batch failed",
					zap.String("tournament_id", req.TournamentID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook batch complete",
				zap.String("batch_id", result.Batch.ID),
				zap.Int("validated", result.Batch.Validated),
				zap.Int("errored", result.Batch.Errored),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "accepted",
			"images": len(req.Images),
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
