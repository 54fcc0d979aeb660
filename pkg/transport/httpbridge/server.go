// Package httpbridge exposes the device transport queue to a desktop host
// over HTTP.
package httpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/andri/cardwallet/internal/logger"
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/transport"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
)

// Defaults for Config.
const (
	DefaultListenAddr      = "127.0.0.1:8420"
	DefaultShutdownTimeout = 5 * time.Second
	maxWait                = 30 * time.Second
	maxBodyOverhead        = 1024
)

// Config configures the bridge server.
type Config struct {
	ListenAddr string
	// MaxPayload bounds the decoded frame payload (default command.MaxPayload).
	MaxPayload      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *logger.Logger
}

// Frame is a host frame as posted to /api/v1/frames. Type is a command name
// such as SEND_TXN_START or a hex tag such as 0x22.
type Frame struct {
	Type    string        `json:"type"`
	Payload hexutil.Bytes `json:"payload,omitempty"`
}

// Response is a device response as returned by /api/v1/responses.
type Response struct {
	Kind    string        `json:"kind"`
	Code    uint8         `json:"code"`
	Payload hexutil.Bytes `json:"payload,omitempty"`
}

type responsesBody struct {
	Responses []Response `json:"responses"`
}

type statusBody struct {
	Status  string `json:"status"`
	Pending int    `json:"pending,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server serves the bridge API on top of a transport queue.
type Server struct {
	cfg   Config
	queue *transport.Queue
	log   *logger.Logger
	srv   *http.Server
}

// New creates a bridge for queue.
func New(cfg Config, queue *transport.Queue) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = command.MaxPayload
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefault()
	}

	s := &Server{
		cfg:   cfg,
		queue: queue,
		log:   cfg.Logger.With("component", "httpbridge"),
	}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the bridge router.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.With(s.httpLogger).Post("/api/v1/frames", s.handleFrame)
	mux.With(s.httpLogger).Get("/api/v1/responses", s.handleResponses)
	mux.With(s.httpLogger).Post("/api/v1/reset", s.handleReset)
	mux.Get("/livez", s.handleLivenessCheck)
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log.Logger, next)
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("host bridge listening", "addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("host bridge: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful bridge shutdown failed", "error", err)
		return err
	}
	s.log.Info("host bridge stopped")
	return nil
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	// Hex doubles the payload on the wire.
	r.Body = http.MaxBytesReader(w, r.Body, int64(2*s.cfg.MaxPayload+maxBodyOverhead))

	var f Frame
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, statusBody{Status: "rejected", Error: "frame too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, statusBody{Status: "rejected", Error: fmt.Sprintf("decode frame: %v", err)})
		return
	}

	t, err := command.ParseType(f.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusBody{Status: "rejected", Error: err.Error()})
		return
	}
	if len(f.Payload) > s.cfg.MaxPayload {
		writeJSON(w, http.StatusRequestEntityTooLarge, statusBody{Status: "rejected", Error: "payload too large"})
		return
	}

	if err := s.queue.Push(command.Command{Type: t, Payload: f.Payload}); err != nil {
		if errors.Is(err, transport.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, statusBody{Status: "busy", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, statusBody{Status: "rejected", Error: err.Error()})
		return
	}

	s.log.Debug("frame queued", "type", t.String(), "bytes", len(f.Payload))
	writeJSON(w, http.StatusAccepted, statusBody{Status: "queued", Pending: s.queue.Pending()})
}

// handleResponses drains queued responses. With ?wait=<duration> it blocks
// until a response is queued or the wait elapses.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusBody{Status: "rejected", Error: err.Error()})
		return
	}

	out := s.queue.Drain()
	if len(out) == 0 && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-s.queue.Notify():
			out = s.queue.Drain()
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	body := responsesBody{Responses: make([]Response, 0, len(out))}
	for _, resp := range out {
		body.Responses = append(body.Responses, Response{Kind: resp.Kind.String(), Code: resp.Code, Payload: resp.Payload})
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.queue.HostReset() {
		writeJSON(w, http.StatusConflict, statusBody{Status: "refused", Error: "no session to reset"})
		return
	}
	s.log.Warn("host reset requested")
	writeJSON(w, http.StatusOK, statusBody{Status: "reset"})
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusBody{Status: "alive"})
}

func parseWait(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		ms, msErr := strconv.Atoi(v)
		if msErr != nil {
			return 0, fmt.Errorf("invalid wait %q", v)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid wait %q", v)
	}
	return min(d, maxWait), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
