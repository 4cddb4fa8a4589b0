package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"glycoscope/internal/config"
	"glycoscope/internal/engine"
	"glycoscope/internal/model"
	"glycoscope/internal/results"
)

type EngineControl interface {
	Reset()
	Subjects() []string
	UpdateConfig(cfg *config.Config)
	AnalyzeSubject(ctx context.Context, subjectID string, patient *model.PatientContext) (*model.AnalysisResult, error)
}

type Server struct {
	cfg     *config.Manager
	results *results.Store
	engine  EngineControl
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	Subjects   []string     `json:"subjects"`
	Ingest     ingestStatus `json:"ingest"`
	API        apiStatus    `json:"api"`
}

type ingestStatus struct {
	REST   bool `json:"rest"`
	Stream bool `json:"stream"`
	Kafka  bool `json:"kafka"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, resultsStore *results.Store, eng EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		results: resultsStore,
		engine:  eng,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/results", server.handleResults)
	mux.HandleFunc("/results/", server.handleResultBySubject)
	mux.HandleFunc("/analyze", server.handleAnalyze)
	mux.HandleFunc("/admin/clear", server.handleClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	var subjects []string
	if s.engine != nil {
		subjects = s.engine.Subjects()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Subjects:   subjects,
		Ingest: ingestStatus{
			REST:   cfg.Ingest.REST.Enabled,
			Stream: cfg.Ingest.Stream.Enabled,
			Kafka:  cfg.Ingest.Kafka.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []*model.AnalysisResult
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.results.Since(ts)
	} else {
		list = s.results.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": list,
		"count":   len(list),
	})
}

func (s *Server) handleResultBySubject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	subjectID := strings.TrimPrefix(r.URL.Path, "/results/")
	subjectID = strings.TrimSuffix(subjectID, "/")
	if subjectID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	result, ok := s.results.Latest(subjectID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req struct {
		SubjectID string                `json:"subject_id"`
		Patient   *model.PatientContext `json:"patient,omitempty"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	result, err := s.engine.AnalyzeSubject(r.Context(), req.SubjectID, req.Patient)
	if err != nil {
		// A rejected series still has a usable quality report.
		if errors.Is(err, engine.ErrQualityRejected) && result != nil {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		if s.logger != nil {
			s.logger.Warn("analyze request failed", "subject_id", req.SubjectID, "err", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engine != nil {
		s.engine.Reset()
	}
	if s.results != nil {
		s.results.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
