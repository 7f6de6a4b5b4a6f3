// Package server exposes a running Connect session over local HTTP: status,
// show and stop controls, a websocket feed of delivered events and the
// Prometheus endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"kanmonconnect/internal/connect"
	"kanmonconnect/internal/protocol"
)

const (
	maxBodySize     = 64 << 10
	shutdownTimeout = 5 * time.Second
)

// Controller is the session the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Show(args connect.ShowArgs) error
	Stop()
}

// Status is what GET /status reports.
type Status struct {
	Phase     string `json:"phase"`
	SurfaceID string `json:"surfaceId,omitempty"`
	Origin    string `json:"origin,omitempty"`
	Ready     bool   `json:"ready"`
	Pending   int    `json:"pending"`
	Presented bool   `json:"presented"`
}

// Config configures the server. Browser pages may reach the control routes
// and the event feed only from the server's own host or AllowedOrigins;
// requests without an Origin header pass.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Logger         *slog.Logger
	Controller     Controller
	Status         func() Status
	Metrics        http.Handler // optional
	MetricsPath    string
	Version        string
}

// Server is the local control server.
type Server struct {
	host    string
	port    int
	origins []string
	logger  *slog.Logger
	ctrl    Controller
	status  func() Status
	metrics http.Handler
	mpath   string
	version string
	hub     *Hub
	server  *http.Server
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		host:    cfg.Host,
		port:    cfg.Port,
		origins: cfg.AllowedOrigins,
		logger:  cfg.Logger,
		ctrl:    cfg.Controller,
		status:  cfg.Status,
		metrics: cfg.Metrics,
		mpath:   cfg.MetricsPath,
		version: cfg.Version,
	}
	s.hub = NewHub(cfg.Logger, s.originAllowed)
	return s
}

// Hub returns the event feed. Encoded events passed to Broadcast reach
// every connected websocket client.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routes without listening.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.guard(s.handleStart))
	mux.HandleFunc("POST /show", s.guard(s.handleShow))
	mux.HandleFunc("POST /stop", s.guard(s.handleStop))
	mux.HandleFunc("GET /events", s.hub.ServeHTTP)
	if s.metrics != nil {
		mux.Handle("GET "+s.mpath, s.metrics)
	}
	return mux
}

// originAllowed reports whether r comes from a non-browser client, a page
// served from this host or one of the configured origins.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

// guard rejects control requests sent from a foreign page.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			s.logger.Warn("control request from foreign origin rejected",
				"path", r.URL.Path, "origin", r.Header.Get("Origin"))
			writeError(rw, http.StatusForbidden, "origin not allowed")
			return
		}
		next(rw, r)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("control server started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code int, msg string) {
	writeJSON(rw, code, map[string]string{"error": msg})
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	st := Status{Phase: "UNINITIALIZED"}
	if s.status != nil {
		st = s.status()
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"session": st,
		"clients": s.hub.Clients(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStart(rw http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		s.writeControlError(rw, "start", err)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]string{"status": "loading"})
}

type showRequest struct {
	Component         string `json:"component"`
	SessionToken      string `json:"sessionToken"`
	InvoiceID         string `json:"invoiceId"`
	PlatformInvoiceID string `json:"platformInvoiceId"`
}

func (s *Server) handleShow(rw http.ResponseWriter, r *http.Request) {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeError(rw, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(rw, http.StatusBadRequest, "bad request")
		return
	}

	var req showRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(rw, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	err = s.ctrl.Show(connect.ShowArgs{
		Component:         protocol.Component(req.Component),
		SessionToken:      req.SessionToken,
		InvoiceID:         req.InvoiceID,
		PlatformInvoiceID: req.PlatformInvoiceID,
	})
	if err != nil {
		s.writeControlError(rw, "show", err)
		return
	}
	writeJSON(rw, http.StatusAccepted, map[string]string{"status": "shown"})
}

func (s *Server) handleStop(rw http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(rw, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) writeControlError(rw http.ResponseWriter, op string, err error) {
	var verr *connect.ValidationError
	if errors.As(err, &verr) {
		writeError(rw, http.StatusBadRequest, verr.Error())
		return
	}
	s.logger.Error("control request failed", "op", op, "err", err)
	writeError(rw, http.StatusConflict, err.Error())
}
