package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bothub/internal/auth"
)

func limitedHandler(t *testing.T, limits Limits, clock Clock, onLimited func()) http.Handler {
	t.Helper()
	limiter := NewMemoryLimiter(clock)
	t.Cleanup(func() { _ = limiter.Close() })
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(limiter, limits, onLimited)(inner)
}

func doRequest(handler http.Handler, subject *auth.Subject) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	if subject != nil {
		req = req.WithContext(auth.WithSubject(req.Context(), subject))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareEnforcesHumanLimit(t *testing.T) {
	limited := 0
	handler := limitedHandler(t, Limits{HumanPerMinute: 2, AgentPerMinute: 10},
		&fakeClock{now: time.Unix(1_700_000_000, 0)}, func() { limited++ })
	human := &auth.Subject{ID: 1, Username: "ada", Kind: auth.KindHuman}

	for i := 0; i < 2; i++ {
		if rec := doRequest(handler, human); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i+1, rec.Code)
		}
	}
	rec := doRequest(handler, human)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if limited != 1 {
		t.Fatalf("expected one limited callback, got %d", limited)
	}
}

func TestMiddlewareAgentGetsHigherQuota(t *testing.T) {
	handler := limitedHandler(t, Limits{HumanPerMinute: 1, AgentPerMinute: 5},
		&fakeClock{now: time.Unix(1_700_000_000, 0)}, nil)
	agent := &auth.Subject{ID: 2, Username: "crawler", Kind: auth.KindAgent}

	for i := 0; i < 5; i++ {
		if rec := doRequest(handler, agent); rec.Code != http.StatusOK {
			t.Fatalf("agent request %d: got %d", i+1, rec.Code)
		}
	}
	if rec := doRequest(handler, agent); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after quota, got %d", rec.Code)
	}
}

func TestMiddlewareSuperuserBypasses(t *testing.T) {
	handler := limitedHandler(t, Limits{HumanPerMinute: 1, AgentPerMinute: 1},
		&fakeClock{now: time.Unix(1_700_000_000, 0)}, nil)
	root := &auth.Subject{ID: 3, Username: "root", Kind: auth.KindHuman, Superuser: true}

	for i := 0; i < 10; i++ {
		if rec := doRequest(handler, root); rec.Code != http.StatusOK {
			t.Fatalf("superuser request %d: got %d", i+1, rec.Code)
		}
	}
}

func TestMiddlewareAnonymousKeyedByAddress(t *testing.T) {
	handler := limitedHandler(t, Limits{HumanPerMinute: 1, AgentPerMinute: 10},
		&fakeClock{now: time.Unix(1_700_000_000, 0)}, nil)

	if rec := doRequest(handler, nil); rec.Code != http.StatusOK {
		t.Fatalf("first anonymous request: got %d", rec.Code)
	}
	if rec := doRequest(handler, nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second anonymous request should be limited, got %d", rec.Code)
	}
}
