package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

type recordingSMS struct {
	mu   sync.Mutex
	from []string
	body []string
}

func (r *recordingSMS) EnqueueInbound(from, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.from = append(r.from, from)
	r.body = append(r.body, body)
}

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore, chan models.InboundMessage, *recordingSMS) {
	t.Helper()
	st := store.NewInMemoryStore()
	dispatched := make(chan models.InboundMessage, 4)
	sms := &recordingSMS{}
	srv := NewServer(st, func(ctx context.Context, msg models.InboundMessage) {
		dispatched <- msg
	}, WithSMSReceiver(sms))
	return srv, st, dispatched, sms
}

func TestHealthHandler(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMessagesHandler_DispatchesValidMessage(t *testing.T) {
	srv, _, dispatched, _ := newTestServer(t)
	payload := `{"platform":"webhook","platform_user_id":"u-42","text":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	select {
	case msg := <-dispatched:
		if msg.Platform != "webhook" || msg.Text != "hello" {
			t.Errorf("dispatched = %+v", msg)
		}
		if msg.Time.IsZero() {
			t.Error("missing time not defaulted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestMessagesHandler_RejectsInvalid(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	tests := []struct {
		name    string
		payload string
	}{
		{"bad json", "{"},
		{"missing platform", `{"platform_user_id":"u-42","text":"hi"}`},
		{"missing user", `{"platform":"webhook","text":"hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTwilioHandler(t *testing.T) {
	srv, _, _, sms := newTestServer(t)
	form := url.Values{"From": {"+15551234567"}, "Body": {"trained today"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q, want text/xml", ct)
	}
	if len(sms.from) != 1 || sms.from[0] != "+15551234567" || sms.body[0] != "trained today" {
		t.Errorf("enqueued = %v / %v", sms.from, sms.body)
	}
}

func TestSessionsHandler(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	_ = st.AddTrainingSession(&models.TrainingSession{
		ID: "s1", UserID: "u1", Date: "2026-03-02", TrainingType: "gi", CreatedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sessions []models.TrainingSession
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("sessions = %+v", sessions)
	}

	// Unknown user: empty array, not null.
	req = httptest.NewRequest(http.MethodGet, "/v1/users/nobody/sessions", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty listing = %q, want []", body)
	}
}

func TestCreateFocusPeriodHandler(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	payload := `{"name":"half guard block","positions":["half guard"],"start_date":"2026-03-01"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users/u1/focus-periods", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created models.FocusPeriod
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if created.ID == "" || created.UserID != "u1" || created.Status != models.FocusPeriodActive {
		t.Errorf("created = %+v", created)
	}
	fp, err := st.ActiveFocusPeriod("u1")
	if err != nil || fp == nil || fp.Name != "half guard block" {
		t.Errorf("stored period = %+v (%v)", fp, err)
	}

	// Missing name and malformed date are rejected.
	for _, payload := range []string{`{}`, `{"name":"x","start_date":"March 1"}`} {
		req = httptest.NewRequest(http.MethodPost, "/v1/users/u1/focus-periods", strings.NewReader(payload))
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("payload %s: status = %d, want 400", payload, rec.Code)
		}
	}
}

func TestCreateGoalHandler(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	payload := `{"text":"hit 3 sessions a week for 8 weeks"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/users/u1/goals", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	goals, err := st.ActiveGoals("u1")
	if err != nil || len(goals) != 1 || goals[0].Text != "hit 3 sessions a week for 8 weeks" {
		t.Errorf("stored goals = %+v (%v)", goals, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/users/u1/goals", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty goal: status = %d, want 400", rec.Code)
	}
}

func TestMemoriesHandler(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	_ = st.AddMemory(&models.Memory{
		ID: "m1", UserID: "u1", Category: models.MemoryFact, Content: "left-handed",
		Confidence: 3, CreatedAt: time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/users/u1/memories", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var memories []models.Memory
	if err := json.Unmarshal(rec.Body.Bytes(), &memories); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(memories) != 1 || memories[0].Content != "left-handed" {
		t.Errorf("memories = %+v", memories)
	}
}
