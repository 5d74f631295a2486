package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidohq/nido/internal/domain"
	"github.com/nidohq/nido/internal/kv"
	"github.com/nidohq/nido/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("GetRequestID() empty inside handler")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("response header = %q, context id = %q; want match", rec.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestIDMiddlewareHonorsInbound(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream-42" {
		t.Errorf("GetRequestID() = %q, want upstream-42", seen)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want handler to observe context timeout", rec.Code)
	}
}

func newResolverWithSession(t *testing.T, token string, ident session.Identity) *session.Resolver {
	t.Helper()
	resolver := session.NewResolver(kv.NewMemory())
	if err := resolver.Grant(context.Background(), token, ident, time.Hour); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	return resolver
}

func TestSessionMiddleware(t *testing.T) {
	ident := session.Identity{UserID: "u-anna", FamilyID: "fam-1", Role: domain.RoleAdmin}
	resolver := newResolverWithSession(t, "tok-1", ident)

	var got session.Identity
	var ok bool
	h := SessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetIdentity(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ok || got != ident {
		t.Errorf("GetIdentity() = %+v/%t, want %+v", got, ok, ident)
	}
}

func TestSessionMiddlewareRejects(t *testing.T) {
	resolver := session.NewResolver(kv.NewMemory())
	h := SessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran without a valid session")
	}))

	// No Authorization header at all.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for missing header", rec.Code)
	}

	// Unknown token.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for unknown token", rec.Code)
	}
}

func TestServerRouting(t *testing.T) {
	srv := New(0, discardLogger())
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("middleware chain did not attach a request id")
	}
}
