// Package bridge exposes the import, export and validation operations over
// loopback HTTP for editor hooks.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/history"
	"github.com/kingrea/critic/internal/markup"
	"github.com/kingrea/critic/internal/pipeline"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrServerDisabled is returned by Start when the settings disable the bridge.
var ErrServerDisabled = errors.New("bridge: server disabled")

// Server wraps the HTTP listener and handlers backing the bridge.
type Server struct {
	settings  Settings
	validator *pipeline.Validator
	history   *history.History
	logger    *zap.Logger
	clock     func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithValidator replaces the validator built from the settings thresholds.
func WithValidator(v *pipeline.Validator) Option {
	return func(s *Server) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithHistory records every validation to h.
func WithHistory(h *history.History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		logger:   zap.NewNop(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.validator == nil {
		thresholds := settings.Thresholds
		if thresholds.MaxLengthRatio == 0 {
			thresholds = pipeline.DefaultThresholds()
		}
		s.validator = pipeline.NewValidator(pipeline.WithThresholds(thresholds), pipeline.WithLogger(s.logger))
	}
	return s
}

// Handler returns the routes served by the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/import", s.post(s.handleImport))
	mux.HandleFunc("/v1/export", s.post(s.handleExport))
	mux.HandleFunc("/v1/resolve", s.post(s.handleResolve))
	mux.HandleFunc("/v1/validate", s.post(s.handleValidate))
	mux.HandleFunc("/v1/generate", s.post(s.handleGenerate))
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("bridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.timeout(),
		WriteTimeout: s.settings.timeout(),
		IdleTimeout:  s.settings.idleTimeout(),
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge: serve error", zap.Error(err))
		}
	}()
	s.logger.Info("bridge: listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.now().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		UptimeSeconds: s.uptimeSeconds(),
	})
}

// post wraps a handler that decodes a JSON body, enforcing method and size.
func (s *Server) post(next func(http.ResponseWriter, []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		if r.Body == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
			return
		}
		reader := http.MaxBytesReader(w, r.Body, s.settings.maxBodyBytes())
		defer reader.Close()
		body, err := io.ReadAll(reader)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
			return
		}
		s.logger.Debug("bridge: request", zap.String("path", r.URL.Path), zap.Int("bytes", len(body)))
		next(w, body)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, body []byte) {
	var req ImportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	var root *document.Node
	if req.Raw {
		root = markup.Load(req.Text)
	} else {
		root = markup.Import(req.Text)
	}
	writeJSON(w, http.StatusOK, ImportResponse{Document: root, Changes: len(document.Diffs(root))})
}

func (s *Server) handleExport(w http.ResponseWriter, body []byte) {
	var req ExportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	root := req.Document
	if root == nil {
		root = markup.Load(req.Text)
	}
	text, err := Render(root, req.Mode, req.Options())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Text: text})
}

func (s *Server) handleResolve(w http.ResponseWriter, body []byte) {
	var req ResolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Normalize()
	decision, err := req.Validate()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := ResolveChange(req.Document, req.Key, decision); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrChangeNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Debug("bridge: resolved change", zap.String("key", req.Key), zap.Stringer("decision", decision))
	writeJSON(w, http.StatusOK, ResolveResponse{
		Document:  req.Document,
		Text:      markup.Export(req.Document),
		Remaining: len(document.Diffs(req.Document)),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, body []byte) {
	var req ValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	report := s.validator.Validate(req.Snapshots...)
	s.record(report)
	writeJSON(w, http.StatusOK, validateResponse{Valid: report.Valid(), Report: report})
}

func (s *Server) handleGenerate(w http.ResponseWriter, body []byte) {
	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	run := s.validator.Run(req.Original, req.Edited)
	s.record(run.Report)
	writeJSON(w, http.StatusOK, GenerateResponse{Markup: run.Markup(), Run: run, Valid: run.Report.Valid()})
}

func (s *Server) record(report pipeline.Report) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(history.FromReport(report, "bridge", "", s.now())); err != nil {
		s.logger.Warn("bridge: record history", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
