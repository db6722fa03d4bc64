package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruretse/mosweather/internal/store"
)

// Server is the read-only JSON surface over the store and the latest
// forecast artifact. It never mutates anything; all writes happen in
// the pipelines.
type Server struct {
	store        *store.Store
	port         string
	artifactPath string
}

func NewServer(st *store.Store, port, artifactPath string) *Server {
	return &Server{
		store:        st,
		port:         port,
		artifactPath: artifactPath,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/forecast", s.handleForecast)
	mux.HandleFunc("/api/model", s.handleModel)
	mux.HandleFunc("/api/verification", s.handleVerification)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if n, err := s.store.CountObservations(); err == nil {
		status["observations"] = n
	}
	if version, err := s.store.MigrationVersion(); err == nil {
		status["schema"] = version
	}

	writeJSON(w, status)
}

// handleForecast serves the latest forecast artifact verbatim.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	artifact, err := store.ReadArtifact(s.artifactPath)
	if err != nil {
		http.Error(w, "no forecast available yet", http.StatusNotFound)
		return
	}
	writeJSON(w, artifact)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	meta, _, err := s.store.ActiveBundle()
	if errors.Is(err, store.ErrNoActiveBundle) {
		http.Error(w, "no model trained yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var scores json.RawMessage
	if meta.ScoresJSON != "" {
		scores = json.RawMessage(meta.ScoresJSON)
	}
	writeJSON(w, map[string]any{
		"id":             meta.ID,
		"trained_at":     meta.TrainedAt.Format(time.RFC3339),
		"schema_version": meta.SchemaVersion,
		"calibrated":     meta.Calibrated,
		"scores":         scores,
	})
}

func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.RecentVerificationReports(14)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(reports))
	for _, rep := range reports {
		out = append(out, map[string]any{
			"date":   rep.Date,
			"report": json.RawMessage(rep.JSON),
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
