package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hypersales/generator"
	"hypersales/leads"
	"hypersales/metrics"
	"hypersales/render"
)

// Options 服务端运行参数。
type Options struct {
	Batch          generator.BatchOptions
	RequestTimeout time.Duration
	MaxUploadBytes int64
	Logger         *zap.Logger
}

type Server struct {
	agent  *generator.Agent
	opts   Options
	store  *sessionStore
	logger *zap.Logger
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*generator.Session
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*generator.Session)}
}

func (s *sessionStore) set(id string, sess *generator.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *sessionStore) get(id string) (*generator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func New(agent *generator.Agent, opts Options) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		agent:  agent,
		opts:   opts,
		store:  newStore(),
		logger: logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/sample-csv", s.handleSampleCSV)
	mux.HandleFunc("POST /api/upload-csv", s.handleUploadCSV)
	mux.HandleFunc("POST /api/sessions", s.handleSessionCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("POST /api/sessions/{id}/emails/{index}/regenerate", s.handleRegenerate)
	mux.HandleFunc("PATCH /api/sessions/{id}/emails/{index}", s.handleEdit)
	mux.HandleFunc("GET /api/sessions/{id}/emails/{index}/preview", s.handlePreview)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	return s.logMiddleware(mux)
}

// --- Handlers ---

type sessionCreateReq struct {
	Sender        generator.Sender        `json:"sender"`
	EmailSettings generator.EmailSettings `json:"emailSettings"`
	Leads         []generator.Lead        `json:"leads"`
}

type sessionResp struct {
	SessionID string                     `json:"session_id"`
	Status    generator.Status           `json:"status"`
	Summary   string                     `json:"summary"`
	Emails    []generator.GeneratedEmail `json:"emails"`
	Failures  []generator.Failure        `json:"failures"`
	Leads     *leads.Report              `json:"leads,omitempty"`
	History   []generator.Turn           `json:"history,omitempty"`
}

type emailResp struct {
	Index int                      `json:"index"`
	Email generator.GeneratedEmail `json:"email"`
}

type uploadResp struct {
	Message string           `json:"message"`
	Leads   []generator.Lead `json:"leads"`
	Report  leads.Report     `json:"report"`
}

type errorResp struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func (s *Server) handleSampleCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sample_leads.csv")
	_, _ = w.Write(leads.SampleCSV())
}

func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded", err)
		return
	}
	defer file.Close()

	parsed, report, err := leads.Ingest(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to process CSV file", err)
		return
	}
	if parsed == nil {
		parsed = []generator.Lead{}
	}
	s.logger.Info("csv ingested", zap.String("report", report.String()))
	writeJSON(w, http.StatusOK, uploadResp{
		Message: fmt.Sprintf("CSV processed: %s", report),
		Leads:   parsed,
		Report:  report,
	})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := req.Sender.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sender", err)
		return
	}
	if err := req.EmailSettings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email settings", err)
		return
	}
	valid, report := leads.Filter(req.Leads)
	if len(valid) == 0 {
		writeError(w, http.StatusBadRequest, "Each lead must have a name and company name", generator.ErrNoLeads)
		return
	}

	id := uuid.NewString()
	sess := generator.NewSession(id, req.Sender, req.EmailSettings.Normalize(), valid, s.opts.Batch, s.agent)
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	res, err := sess.Generate(ctx)
	if err != nil {
		s.writeGenerationError(w, "Failed to generate emails", err)
		return
	}
	s.store.set(id, sess)
	writeJSON(w, http.StatusOK, sessionResp{
		SessionID: id,
		Status:    res.Status,
		Summary:   res.Summary(),
		Emails:    res.Emails,
		Failures:  res.Failures,
		Leads:     &report,
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, history := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResp{
		SessionID: sess.ID,
		Status:    res.Status,
		Summary:   res.Summary(),
		Emails:    res.Emails,
		Failures:  res.Failures,
		History:   history,
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess, index, ok := s.sessionEmail(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	email, err := sess.Regenerate(ctx, index)
	if err != nil {
		if errors.Is(err, generator.ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, "Email not found", err)
			return
		}
		s.writeGenerationError(w, "Failed to regenerate email", err)
		return
	}
	writeJSON(w, http.StatusOK, emailResp{Index: index, Email: email})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	sess, index, ok := s.sessionEmail(w, r)
	if !ok {
		return
	}
	var patch generator.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	email, err := sess.Edit(index, patch)
	switch {
	case errors.Is(err, generator.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, "Email not found", err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Failed to update email", err)
		return
	}
	writeJSON(w, http.StatusOK, emailResp{Index: index, Email: email})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, index, ok := s.sessionEmail(w, r)
	if !ok {
		return
	}
	email, err := sess.Email(index)
	if err != nil {
		writeError(w, http.StatusNotFound, "Email not found", err)
		return
	}
	page, err := render.Document(email.Subject, email.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render preview", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, _ := sess.Snapshot()
	data, err := leads.ExportBytes(res.Emails)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to export emails", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+leads.ExportFilename)
	_, _ = w.Write(data)
}

// --- Helpers ---

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*generator.Session, bool) {
	sess, ok := s.store.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", nil)
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionEmail(w http.ResponseWriter, r *http.Request) (*generator.Session, int, bool) {
	sess, ok := s.session(w, r)
	if !ok {
		return nil, 0, false
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "email index must be an integer", err)
		return nil, 0, false
	}
	return sess, index, true
}

// writeGenerationError 配置错误返回 503 和固定提示，其余后端错误返回 502。
func (s *Server) writeGenerationError(w http.ResponseWriter, msg string, err error) {
	switch {
	case generator.IsConfigError(err):
		s.logger.Error("generation backend not configured", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResp{
			Message: generator.ConfigErrorMessage,
			Kind:    string(generator.KindConfig),
		})
	default:
		writeJSON(w, http.StatusBadGateway, errorResp{
			Message: msg,
			Error:   err.Error(),
			Kind:    string(generator.KindOf(err)),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResp{Message: msg}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		// ServeMux 在匹配后回填 r.Pattern，用它做标签避免把 session id 打进指标。
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(r.Method, pattern, strconv.Itoa(rec.status), elapsed)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}
