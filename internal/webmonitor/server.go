package webmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sfm/tilapia-camera/internal/correlator"
	"github.com/sfm/tilapia-camera/internal/engine"
	"github.com/sfm/tilapia-camera/internal/logger"
	"github.com/sfm/tilapia-camera/internal/snapshot"
)

const maxRequestBytes = 4 << 10

// Server serves the web monitor endpoints.
type Server struct {
	cfg               Config
	deps              Deps
	monitor           *Monitor
	broadcaster       *FrameBroadcaster
	statusBroadcaster *StatusBroadcaster
}

// NewServer returns a configured monitor server with its broadcasters running.
func NewServer(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	monitor := NewMonitor(deps)

	var frames FrameSource
	if deps.Camera != nil {
		frames = deps.Camera
	}
	broadcaster := NewFrameBroadcaster(frames, cfg.MJPEGInterval, cfg.JPEGQuality, deps.Metrics)
	broadcaster.Start()

	statusBroadcaster := NewStatusBroadcaster(monitor, cfg.StatusInterval, deps.Metrics)
	statusBroadcaster.Start()
	if deps.Store != nil {
		deps.Store.Subscribe(func(snapshot.PublishedState, snapshot.Change) {
			statusBroadcaster.Notify()
		})
	}

	return &Server{
		cfg:               cfg,
		deps:              deps,
		monitor:           monitor,
		broadcaster:       broadcaster,
		statusBroadcaster: statusBroadcaster,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	assetHandler := newAssetHandler(s.cfg.AssetsDir)

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", assetHandler))
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/camera/start", s.handleCameraStart)
	mux.HandleFunc("/api/camera/stop", s.handleCameraStop)
	mux.HandleFunc("/api/weight", s.handleWeight)
	mux.HandleFunc("GET /api/sampling/{id}/next", s.handleNextSample)

	return mux
}

// Close stops the broadcasters.
func (s *Server) Close() {
	s.broadcaster.Stop()
	s.statusBroadcaster.Stop()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "snapshot storage is not configured"}, http.StatusNotFound)
		return
	}
	path := s.deps.Recorder.Path()
	if _, err := os.Stat(path); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "no snapshot saved yet"}, http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": float64(time.Now().Unix()),
	}
	if s.deps.Camera != nil {
		payload["camera_running"] = s.deps.Camera.Status().Running
	}
	writeJSON(w, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.statusBroadcaster.Subscribe()
	defer s.statusBroadcaster.Unsubscribe(id)

	// Content negotiation based on Accept header
	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	streamEventsFromChannel(r.Context(), w, eventCh, useProtobuf)
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Camera == nil {
		writeJSONWithStatus(w, map[string]any{"error": "camera is not configured"}, http.StatusServiceUnavailable)
		return
	}

	if err := s.deps.Camera.Start(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "running",
		"camera":     s.deps.Camera.Status(),
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Camera == nil {
		writeJSONWithStatus(w, map[string]any{"error": "camera is not configured"}, http.StatusServiceUnavailable)
		return
	}

	if err := s.deps.Camera.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"camera":     s.deps.Camera.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleWeight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Correlator == nil {
		writeJSONWithStatus(w, map[string]any{"error": "weight service is not configured"}, http.StatusServiceUnavailable)
		return
	}

	doc, err := readDoc(r)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid request body"}, http.StatusBadRequest)
		return
	}

	res, err := s.deps.Correlator.Correlate(r.Context(), doc)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, correlationStatus(err))
		return
	}

	resp := WeightResponse{Result: res}
	if s.deps.Store != nil {
		resp.Published = s.deps.Store.Snapshot()
	}
	writeJSON(w, resp)
}

// readDoc accepts a JSON body or a form field named doc
func readDoc(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.PostFormValue("doc"), nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return "", err
	}
	var req WeightRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	return req.Doc, nil
}

func (s *Server) handleNextSample(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sampling == nil {
		writeJSONWithStatus(w, map[string]any{"error": "weight service is not configured"}, http.StatusServiceUnavailable)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONWithStatus(w, map[string]any{"error": "sampling id must be a positive integer"}, http.StatusBadRequest)
		return
	}

	progress, err := s.deps.Sampling.NextSample(r.Context(), id)
	if err != nil {
		logger.Warn("WebMonitor", "Next sample for sampling %d failed: %v", id, err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, correlationStatus(err))
		return
	}
	writeJSON(w, progress)
}

// correlationStatus maps correlator errors onto HTTP status codes
func correlationStatus(err error) int {
	switch {
	case errors.Is(err, correlator.ErrInvalidIdentifier), errors.Is(err, correlator.ErrNoMeasurement):
		return http.StatusBadRequest
	case errors.Is(err, correlator.ErrIdentifierNotFound):
		return http.StatusNotFound
	case errors.Is(err, correlator.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, correlator.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, snapshot.ErrSnapshotChanged):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
