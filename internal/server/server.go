// ABOUTME: HTTP surface for health checks and programmatic turns
// ABOUTME: Serves health checks, POST /api/turns and the GET /api/turns ledger with graceful shutdown

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/filedesk/internal/answer"
	"github.com/2389/filedesk/internal/conversation"
	"github.com/2389/filedesk/internal/delivery"
	"github.com/2389/filedesk/internal/store"
)

const (
	// maxRequestBody caps POST /api/turns bodies.
	maxRequestBody = 1 << 20

	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

// TurnHandler runs a conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn conversation.Turn) (*conversation.TurnResult, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TurnLedger lists recorded turn outcomes.
type TurnLedger interface {
	ListTurns(ctx context.Context, userID string, limit int) ([]*store.TurnRecord, error)
}

// TurnRequest is the body of POST /api/turns.
type TurnRequest struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// TurnResponse is returned when a turn finishes.
type TurnResponse struct {
	TurnID     string   `json:"turn_id"`
	ThreadID   string   `json:"thread_id"`
	RunID      string   `json:"run_id,omitempty"`
	RolledOver bool     `json:"rolled_over"`
	Strategy   string   `json:"strategy"`
	Delivered  []string `json:"delivered,omitempty"`
	Failures   []string `json:"failures,omitempty"`
}

// TurnRecordResponse is one entry of GET /api/turns.
type TurnRecordResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	RequestKind string    `json:"request_kind,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Server is the HTTP API.
type Server struct {
	addr       string
	turns      TurnHandler
	ready      Pinger
	ledger     TurnLedger
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server listening on addr. ledger may be nil when the session
// backend keeps no turn history.
func New(addr string, turns TurnHandler, ready Pinger, ledger TurnLedger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		turns:  turns,
		ready:  ready,
		ledger: ledger,
		logger: logger.With("component", "server"),
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.HandleFunc("POST /api/turns", s.handleTurn)
	mux.HandleFunc("GET /api/turns", s.handleListTurns)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// The original context is already canceled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the session store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "session store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleTurn runs a turn synchronously and reports what it delivered.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	req, err := parseTurnRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.turns.HandleTurn(r.Context(), conversation.Turn{
		ChatID:   req.ChatID,
		UserID:   req.UserID,
		Question: req.Question,
		ReplyTo:  req.ReplyTo,
		Kind:     answer.ParseRequestKind(req.Kind),
	})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("turn failed", "chat_id", req.ChatID, "error", err)
		}
		s.sendJSONError(w, status, err.Error())
		return
	}

	resp := TurnResponse{
		TurnID:     result.TurnID,
		ThreadID:   result.ThreadID,
		RunID:      result.RunID,
		RolledOver: result.RolledOver,
		Strategy:   result.Envelope.Strategy.String(),
	}
	for _, f := range result.Delivered {
		resp.Delivered = append(resp.Delivered, f.Name)
	}
	for _, ferr := range result.Failures {
		resp.Failures = append(resp.Failures, ferr.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleListTurns returns a user's recent turn outcomes, newest first.
func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.sendJSONError(w, http.StatusNotImplemented, "turn history is not kept by this session backend")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	records, err := s.ledger.ListTurns(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("listing turns failed", "user_id", userID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "listing turns failed")
		return
	}

	resp := make([]TurnRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, TurnRecordResponse{
			ID:          rec.ID,
			UserID:      rec.UserID,
			ThreadID:    rec.ThreadID,
			RequestKind: rec.RequestKind,
			Outcome:     rec.Outcome,
			Detail:      rec.Detail,
			CreatedAt:   rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps turn errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, delivery.ErrInvalidChatID), errors.Is(err, delivery.ErrUnknownFrontend):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, conversation.ErrInterrupted):
		return http.StatusServiceUnavailable
	case errors.Is(err, conversation.ErrSequence), errors.Is(err, conversation.ErrEmptyAnswer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseTurnRequest parses and validates a TurnRequest.
func parseTurnRequest(r io.Reader) (*TurnRequest, error) {
	var req TurnRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.ChatID == "" {
		return nil, errors.New("chat_id is required")
	}
	if _, _, err := delivery.SplitChatID(req.ChatID); err != nil {
		return nil, errors.New("chat_id must look like <frontend>:<id>")
	}
	if req.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	if req.Question == "" {
		return nil, errors.New("question is required")
	}
	return &req, nil
}
