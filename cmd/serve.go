package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/document"
	"github.com/sells-group/ledger-intake/internal/model"
)

var servePort int

// documentProcessor is the part of *document.Processor the server needs.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, id string) model.ProcessingResult
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server that triggers document processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIntake(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Processor, env.Store, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// pinger reports whether the database is reachable. It may be nil.
type pinger interface {
	Ping(ctx context.Context) error
}

// buildRouter wires the HTTP routes. The caller identity comes from the
// X-User-ID and X-User-Role headers set by the upstream gateway.
func buildRouter(proc documentProcessor, db pinger, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-User-ID", "X-User-Role"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/documents/{id}/process", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if proc == nil {
			writeJSON(w, http.StatusServiceUnavailable, model.FailedResult("processor not configured", http.StatusServiceUnavailable))
			return
		}

		ctx := r.Context()
		if uid := r.Header.Get("X-User-ID"); uid != "" {
			ctx = document.WithActor(ctx, model.Actor{UserID: uid, Role: r.Header.Get("X-User-Role")})
		}

		res := proc.ProcessDocument(ctx, id)
		status := http.StatusOK
		if !res.Success {
			status = res.StatusCode
			if status == 0 {
				status = http.StatusInternalServerError
			}
		}
		writeJSON(w, status, res)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
