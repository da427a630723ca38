package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bothub/internal/hub"
)

type delivery struct {
	signature string
	body      []byte
}

func captureServer(t *testing.T) (*httptest.Server, func() []delivery) {
	t.Helper()
	var mu sync.Mutex
	var deliveries []delivery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, delivery{
			signature: r.Header.Get(SignatureHeader),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server, func() []delivery {
		mu.Lock()
		defer mu.Unlock()
		return append([]delivery(nil), deliveries...)
	}
}

func TestDeliverSignsAndPosts(t *testing.T) {
	server, got := captureServer(t)
	store := hub.NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateWebhook(ctx, &hub.Webhook{
		Name: "all", URL: server.URL, Secret: "s3cret", Active: true,
	}); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	dispatcher := NewDispatcher(NewMemoryQueue(4), store, Config{Timeout: time.Second})
	event := &hub.AuditEvent{
		ID: 12, ActorID: 0, Verb: "task.created", TargetKind: "task", TargetID: 7,
		Metadata: map[string]any{"title": "build"}, CreatedAt: 1_700_000_000,
	}
	if err := dispatcher.Deliver(ctx, event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	deliveries := got()
	if len(deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(deliveries))
	}
	if want := Sign("s3cret", deliveries[0].body); deliveries[0].signature != want {
		t.Fatalf("signature mismatch: got %q want %q", deliveries[0].signature, want)
	}

	var payload Payload
	if err := json.Unmarshal(deliveries[0].body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != "task.created" || payload.Target == nil || payload.Target.ID != 7 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDeliverHonoursEventFilter(t *testing.T) {
	server, got := captureServer(t)
	store := hub.NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateWebhook(ctx, &hub.Webhook{
		Name: "tasks-only", URL: server.URL, Events: []string{"task.created"}, Active: true,
	}); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	dispatcher := NewDispatcher(NewMemoryQueue(4), store, Config{Timeout: time.Second})
	if err := dispatcher.Deliver(ctx, &hub.AuditEvent{Verb: "project.created"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if err := dispatcher.Deliver(ctx, &hub.AuditEvent{Verb: "task.created"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	deliveries := got()
	if len(deliveries) != 1 {
		t.Fatalf("expected only the subscribed event, got %d deliveries", len(deliveries))
	}
}

func TestDeliverSkipsInactiveWebhooks(t *testing.T) {
	server, got := captureServer(t)
	store := hub.NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateWebhook(ctx, &hub.Webhook{
		Name: "paused", URL: server.URL, Active: false,
	}); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	dispatcher := NewDispatcher(NewMemoryQueue(4), store, Config{Timeout: time.Second})
	if err := dispatcher.Deliver(ctx, &hub.AuditEvent{Verb: "task.created"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(got()) != 0 {
		t.Fatalf("inactive webhook must not receive deliveries")
	}
}

func TestPublishAndRunRoundTrip(t *testing.T) {
	server, got := captureServer(t)
	store := hub.NewMemoryStore()
	background := context.Background()
	if err := store.CreateWebhook(background, &hub.Webhook{
		Name: "all", URL: server.URL, Active: true,
	}); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	dispatcher := NewDispatcher(NewMemoryQueue(4), store, Config{Timeout: time.Second, Workers: 1})
	ctx, cancel := context.WithCancel(background)
	done := make(chan struct{})
	go func() {
		_ = dispatcher.Run(ctx)
		close(done)
	}()

	if err := dispatcher.Publish(background, &hub.AuditEvent{Verb: "message.created", TargetKind: "message", TargetID: 3}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(got()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("delivery never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign("secret", []byte(`{"event":"x"}`))
	b := Sign("secret", []byte(`{"event":"x"}`))
	if a != b {
		t.Fatalf("signature must be deterministic")
	}
	if a == Sign("other", []byte(`{"event":"x"}`)) {
		t.Fatalf("different secrets must differ")
	}
}

func TestSignFormatIsBareHex(t *testing.T) {
	signature := Sign("secret", []byte(`{"event":"x"}`))
	// 裸十六进制小写，不带 sha256= 之类的前缀
	if len(signature) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %q", len(signature), signature)
	}
	if decoded, err := hex.DecodeString(signature); err != nil || len(decoded) != sha256.Size {
		t.Fatalf("signature is not bare hex: %q", signature)
	}
}
