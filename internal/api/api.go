// Package api exposes the HTTP surface: health, inbound-message webhooks, and
// read-only listings consumed by the dashboard.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/saxo751/ottercoach.ai-sub000/internal/messaging"
	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	listLimit         = 50
)

// SMSReceiver accepts webhook-delivered SMS messages. Implemented by the
// Twilio adapter.
type SMSReceiver interface {
	EnqueueInbound(from, body string)
}

// Opts holds configuration options for the HTTP server.
type Opts struct {
	Addr string
	SMS  SMSReceiver
}

// Option defines a configuration option for the HTTP server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSMSReceiver enables the Twilio inbound webhook.
func WithSMSReceiver(sms SMSReceiver) Option {
	return func(o *Opts) { o.SMS = sms }
}

// Server is the HTTP front of the system.
type Server struct {
	store    store.Store
	dispatch messaging.Dispatch
	sms      SMSReceiver
	httpSrv  *http.Server
}

// NewServer wires the HTTP server. Inbound webhook messages are handed to
// dispatch, the same path channel backends use.
func NewServer(st store.Store, dispatch messaging.Dispatch, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{store: st, dispatch: dispatch, sms: cfg.SMS}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /v1/messages", s.messagesHandler)
	mux.HandleFunc("POST /v1/twilio/sms", s.twilioHandler)
	mux.HandleFunc("GET /v1/users/{id}/sessions", s.sessionsHandler)
	mux.HandleFunc("GET /v1/users/{id}/memories", s.memoriesHandler)
	mux.HandleFunc("POST /v1/users/{id}/focus-periods", s.createFocusPeriodHandler)
	mux.HandleFunc("POST /v1/users/{id}/goals", s.createGoalHandler)
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		slog.Info("Server.Start: listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Start: serve failed", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal response", "error", err)
		jsonData = []byte(`{"error":"internal server error"}`)
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(jsonData); err != nil {
		slog.Error("Server.writeJSONResponse: failed to write response", "error", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// messagesHandler is the generic inbound webhook used by channel glue that
// has no dedicated adapter.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	if err := msg.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	// Handling is asynchronous: the webhook acknowledges receipt, the reply
	// goes out through the user's channel.
	go s.dispatch(context.Background(), msg)
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// twilioHandler accepts Twilio's form-encoded inbound SMS callback.
func (s *Server) twilioHandler(w http.ResponseWriter, r *http.Request) {
	if s.sms == nil {
		writeJSONResponse(w, http.StatusNotFound, errorBody{Error: "SMS channel not configured"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid form payload"})
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "From and Body are required"})
		return
	}
	s.sms.EnqueueInbound(from, body)
	// Twilio expects TwiML; an empty response suppresses the auto-reply.
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	sessions, err := s.store.RecentTrainingSessions(userID, listLimit)
	if err != nil {
		slog.Error("Server.sessionsHandler: query failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "failed to load sessions"})
		return
	}
	if sessions == nil {
		sessions = []models.TrainingSession{}
	}
	writeJSONResponse(w, http.StatusOK, sessions)
}

// createFocusPeriodHandler lets the dashboard open a new training emphasis.
func (s *Server) createFocusPeriodHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID := r.PathValue("id")
	var fp models.FocusPeriod
	if err := json.NewDecoder(r.Body).Decode(&fp); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}
	if fp.Name == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "name is required"})
		return
	}
	if fp.StartDate == "" {
		fp.StartDate = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", fp.StartDate); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "start_date must be YYYY-MM-DD"})
		return
	}
	fp.ID = uuid.NewString()
	fp.UserID = userID
	if fp.Status == "" {
		fp.Status = models.FocusPeriodActive
	}
	if err := s.store.AddFocusPeriod(&fp); err != nil {
		slog.Error("Server.createFocusPeriodHandler: insert failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "failed to create focus period"})
		return
	}
	writeJSONResponse(w, http.StatusCreated, fp)
}

// createGoalHandler lets the dashboard record a training objective.
func (s *Server) createGoalHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	userID := r.PathValue("id")
	var g models.Goal
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}
	if g.Text == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "text is required"})
		return
	}
	g.ID = uuid.NewString()
	g.UserID = userID
	if g.Status == "" {
		g.Status = models.GoalActive
	}
	g.CreatedAt = time.Now()
	if err := s.store.AddGoal(&g); err != nil {
		slog.Error("Server.createGoalHandler: insert failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "failed to create goal"})
		return
	}
	writeJSONResponse(w, http.StatusCreated, g)
}

func (s *Server) memoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	memories, err := s.store.ActiveMemories(userID)
	if err != nil {
		slog.Error("Server.memoriesHandler: query failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "failed to load memories"})
		return
	}
	if memories == nil {
		memories = []models.Memory{}
	}
	writeJSONResponse(w, http.StatusOK, memories)
}
