package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "SignalProof-Chain/internal/errors"
)

func newTokenService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Mode: ModeToken,
		Tokens: []TokenConfig{
			{Name: "reader", SHA256: HashToken("read-secret"), Permissions: []string{PermissionReadProofs}},
			{Name: "admin", SHA256: HashToken("admin-secret"), Permissions: []string{PermissionAll}},
			{Name: "old", SHA256: HashToken("old-secret"), Permissions: []string{PermissionAll}, Disabled: true},
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	cases := map[string]Config{
		"unknown mode": {Mode: "oauth"},
		"no tokens":    {Mode: ModeToken},
		"bad digest":   {Mode: ModeToken, Tokens: []TokenConfig{{Name: "a", SHA256: "abcd"}}},
		"duplicate": {Mode: ModeToken, Tokens: []TokenConfig{
			{Name: "a", SHA256: HashToken("x")},
			{Name: "a", SHA256: HashToken("y")},
		}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewService(cfg); !xerrors.HasCode(err, xerrors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}

	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("disabled service: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("empty config should disable auth")
	}
}

func TestAuthenticateRequest(t *testing.T) {
	svc := newTokenService(t)

	subject, err := svc.AuthenticateRequest("Bearer read-secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject.Name != "reader" || !subject.HasPermission(PermissionReadProofs) {
		t.Fatalf("unexpected subject: %+v", subject)
	}
	if subject.HasPermission(PermissionSubmitProofs) {
		t.Fatalf("reader must not submit")
	}

	if _, err := svc.AuthenticateRequest(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest("Bearer nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest("Bearer old-secret"); !errors.Is(err, ErrSubjectRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}

	admin, err := svc.AuthenticateRequest("bearer admin-secret")
	if err != nil {
		t.Fatalf("authenticate admin: %v", err)
	}
	if err := admin.Authorize(PermissionSubmitProofs, PermissionDeriveSlots); err != nil {
		t.Fatalf("wildcard should grant everything: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc := newTokenService(t)
	var seen *Subject
	h := svc.Middleware(MiddlewareConfig{
		RequiredPermissions: map[string][]string{
			http.MethodGet:  {PermissionReadProofs},
			http.MethodPost: {PermissionSubmitProofs},
		},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		method string
		token  string
		status int
	}{
		{"missing token", http.MethodGet, "", http.StatusUnauthorized},
		{"reader can read", http.MethodGet, "read-secret", http.StatusNoContent},
		{"reader cannot submit", http.MethodPost, "read-secret", http.StatusForbidden},
		{"admin can submit", http.MethodPost, "admin-secret", http.StatusNoContent},
		{"disabled token", http.MethodGet, "old-secret", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(tc.method, "/api/v1/proofs", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusNoContent && seen == nil {
				t.Fatalf("subject missing from context")
			}
		})
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeDisabled})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	called := false
	h := svc.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("handler not called")
	}
}

func TestCallerName(t *testing.T) {
	if got := CallerName(context.Background()); got != "anonymous" {
		t.Fatalf("unexpected caller %q", got)
	}
	ctx := ContextWithSubject(context.Background(), &Subject{Name: "ci"})
	if got := CallerName(ctx); got != "ci" {
		t.Fatalf("unexpected caller %q", got)
	}
}
