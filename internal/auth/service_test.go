package auth

import (
	"context"
	"testing"
)

func newTestService(t *testing.T, seeds []Seed) *Service {
	t.Helper()
	store, err := NewMemoryStore(nil)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	svc, err := NewService(context.Background(), Config{
		Mode: ModeJWT,
		JWT: JWTOptions{
			Secret:     "test-secret",
			Issuer:     "bothub-test",
			AccessTTL:  60,
			RefreshTTL: 120,
		},
		Seeds: seeds,
	}, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestAuthenticateIssuesTokenPair(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret", Kind: KindHuman}})

	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ada", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", pair.TokenType)
	}
	if pair.Subject == nil || pair.Subject.Kind != KindHuman {
		t.Fatalf("unexpected subject %+v", pair.Subject)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret"}})

	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ada", Password: "wrong"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "nobody", Password: "secret"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthenticateRejectsDisabledUser(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret", Disabled: true}})

	if _, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ada", Password: "secret"}); err != ErrSubjectRevoked {
		t.Fatalf("expected ErrSubjectRevoked, got %v", err)
	}
}

func TestAuthenticateRequestRoundTrip(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "bot", Password: "secret", Kind: KindAgent, Superuser: true}})

	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "bot", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	subject, err := svc.AuthenticateRequest(context.Background(), "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if subject.Username != "bot" || subject.Kind != KindAgent || !subject.Superuser {
		t.Fatalf("unexpected subject %+v", subject)
	}
}

func TestAuthenticateRequestRejectsRefreshToken(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret"}})

	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ada", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.AuthenticateRequest(context.Background(), "Bearer "+pair.RefreshToken); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for refresh token, got %v", err)
	}
}

func TestAuthenticateRequestMissingToken(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret"}})

	if _, err := svc.AuthenticateRequest(context.Background(), ""); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(context.Background(), "Basic abc"); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken for non-bearer scheme, got %v", err)
	}
}

func TestJWTVerifyRejectsTampering(t *testing.T) {
	svc := newTestService(t, []Seed{{Username: "ada", Password: "secret"}})

	pair, err := svc.Authenticate(context.Background(), TokenRequest{Username: "ada", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := svc.AuthenticateRequest(context.Background(), "Bearer "+tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestHashPasswordVerify(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !verifyPassword(hashed, "hunter2") {
		t.Fatalf("expected password to verify")
	}
	if verifyPassword(hashed, "hunter3") {
		t.Fatalf("expected mismatch to fail")
	}
	if _, err := HashPassword("  "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}
