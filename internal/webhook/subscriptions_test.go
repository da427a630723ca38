package webhook

import (
	"context"
	"testing"

	"bothub/internal/hub"
)

func TestEnsureSubscriptionsRegistersFromConfig(t *testing.T) {
	store := hub.NewMemoryStore()
	ctx := context.Background()

	subs := []Subscription{
		{Name: "audit-mirror", URL: "https://example.com/hook", Secret: "s3cret", Events: []string{"task.created"}},
		{Name: "catch-all", URL: "https://example.com/all"},
	}
	if err := EnsureSubscriptions(ctx, store, subs); err != nil {
		t.Fatalf("EnsureSubscriptions: %v", err)
	}

	hooks, err := store.ListWebhooks(ctx, true)
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("expected two active webhooks, got %d", len(hooks))
	}
	if hooks[0].Name != "audit-mirror" || hooks[0].Secret != "s3cret" {
		t.Fatalf("unexpected webhook %+v", hooks[0])
	}
}

func TestEnsureSubscriptionsIsIdempotent(t *testing.T) {
	store := hub.NewMemoryStore()
	ctx := context.Background()

	subs := []Subscription{{Name: "audit-mirror", URL: "https://example.com/hook"}}
	for i := 0; i < 3; i++ {
		if err := EnsureSubscriptions(ctx, store, subs); err != nil {
			t.Fatalf("EnsureSubscriptions run %d: %v", i+1, err)
		}
	}

	hooks, err := store.ListWebhooks(ctx, false)
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if len(hooks) != 1 {
		t.Fatalf("restart must not duplicate subscriptions, got %d", len(hooks))
	}
}

func TestEnsureSubscriptionsRejectsIncomplete(t *testing.T) {
	store := hub.NewMemoryStore()
	if err := EnsureSubscriptions(context.Background(), store, []Subscription{{Name: "no-url"}}); err == nil {
		t.Fatal("subscription without url must be rejected")
	}
}
