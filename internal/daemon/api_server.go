package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"storybook/internal/api"
	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/logging"
	"storybook/internal/run"
	"storybook/internal/services"
	"storybook/internal/stt"
)

const maxSTTUploadBytes = 16 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", srv.handleCreateRun)
	mux.HandleFunc("GET /api/runs", srv.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", srv.handleRunState)
	mux.HandleFunc("GET /api/runs/{id}/events", srv.handleRunEvents)
	mux.HandleFunc("GET /api/runs/{id}/images/{filename}", srv.artifactHandler("image/png"))
	mux.HandleFunc("GET /api/runs/{id}/audio/{filename}", srv.artifactHandler("audio/wav"))
	mux.HandleFunc("POST /api/stt/field", srv.handleFieldSTT)
	mux.HandleFunc("GET /api/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           corsMiddleware(authMiddleware(cfg.Paths.APIToken, mux.ServeHTTP)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inputs := run.Inputs{
		Era:        strings.TrimSpace(req.EraKo),
		Place:      strings.TrimSpace(req.PlaceKo),
		Characters: strings.TrimSpace(req.CharactersKo),
		Topic:      strings.TrimSpace(req.TopicKo),
		TTSEnabled: true,
	}
	if req.TTSEnabled != nil {
		inputs.TTSEnabled = *req.TTSEnabled
	}
	if inputs.Era == "" || inputs.Place == "" || inputs.Characters == "" || inputs.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "era_ko, place_ko, characters_ko, and topic_ko are required")
		return
	}

	created, err := s.daemon.StartRun(inputs)
	if err != nil {
		if errors.Is(err, services.ErrBusy) {
			s.writeError(w, http.StatusServiceUnavailable, "another run is in progress, please try again later")
			return
		}
		s.logger.Error("run admission failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, api.CreateRunResponse{RunID: created.ID})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries := make([]api.RunSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, api.SummaryFromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: summaries})
}

func (s *apiServer) handleRunState(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	live := s.daemon.store.Get(runID)
	if live == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunStateFromSnapshot(live.Snapshot()))
}

func (s *apiServer) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	live := s.daemon.store.Get(runID)
	if live == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.daemon.bus.Subscribe(runID, events.FromSnapshot(live.Snapshot()))
	for {
		evt, ok, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		if !ok {
			fmt.Fprint(w, "event: done\ndata: \n\n")
			flusher.Flush()
			return
		}
		if evt.Keepalive {
			fmt.Fprint(w, "event: keepalive\ndata: \n\n")
			flusher.Flush()
			continue
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			s.logger.Error("encode event", logging.Error(err))
			continue
		}
		fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}

func (s *apiServer) artifactHandler(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("id")
		filename := r.PathValue("filename")

		known, err := s.daemon.store.Has(r.Context(), runID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !known {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
			return
		}

		path, err := s.daemon.store.ArtifactPath(runID, filename)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid filename")
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

func (s *apiServer) handleFieldSTT(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSTTUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	field, err := stt.ParseField(r.FormValue("field_type"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	language := r.FormValue("language")
	if language == "" {
		language = "ko-KR"
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(io.LimitReader(file, maxSTTUploadBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read audio_file")
		return
	}

	result, err := s.daemon.sttSvc.Process(r.Context(), audio, header.Filename, field, language)
	if err != nil {
		if errors.Is(err, services.ErrUnavailable) || errors.Is(err, services.ErrTimeout) {
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FieldSTTResponse{
		STTText:     result.STTText,
		ParsedValue: result.ParsedValue,
		Confidence:  result.Confidence,
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.StatusResponse{
		Running:       status.Running,
		PID:           status.PID,
		UptimeSeconds: int64(status.Uptime.Seconds()),
		Busy:          status.Busy,
		InFlightRun:   status.InFlightRun,
		RetainedRuns:  status.RetainedRuns,
		OutputDir:     status.OutputDir,
		LockFilePath:  status.LockFilePath,
		Backends:      status.Backends,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
