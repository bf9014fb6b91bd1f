package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/services"
)

type stubParser struct {
	principal *services.Principal
}

func (s stubParser) ParseToken(token string) (*services.Principal, error) {
	if token == "good" {
		return s.principal, nil
	}
	return nil, services.ErrUnauthorized
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestID_GeneratedWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
}

func TestRequestID_HonorsUpstreamHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "proxy-abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "proxy-abc-123", seen)
	assert.Equal(t, "proxy-abc-123", rec.Header().Get("X-Request-Id"))
}

func TestAuthenticate_BearerAndQueryFallback(t *testing.T) {
	parser := stubParser{principal: &services.Principal{UserID: 7}}
	var got *services.Principal
	handler := Authenticate(parser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.UserID)

	// Websocket handshakes cannot set headers; the query parameter works too.
	got = nil
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?token=good", nil))
	require.NotNil(t, got)
	assert.Equal(t, 7, got.UserID)
}

func TestAuthenticate_RejectsWithEnvelope(t *testing.T) {
	parser := stubParser{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	handler := Authenticate(parser)(next)

	for name, req := range map[string]*http.Request{
		"missing token": httptest.NewRequest(http.MethodGet, "/", nil),
		"bad token":     httptest.NewRequest(http.MethodGet, "/?token=forged", nil),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)

		var body struct {
			Success bool `json:"success"`
			Error   struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), name)
		assert.False(t, body.Success, name)
		assert.Equal(t, "unauthorized", body.Error.Code, name)
	}
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 2, discardLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst of two is spent")
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")
}

func TestRateLimiter_MiddlewareRejectsWith429(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, discardLogger())
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	req.RemoteAddr = "192.0.2.1:4242"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)
}

func TestRedactQuery_MasksCredentialKeys(t *testing.T) {
	assert.Equal(t, "", RedactQuery(url.Values{}))

	got := RedactQuery(url.Values{
		"token":    {"eyJhbGci"},
		"PASSWORD": {"hunter2"},
		"state":    {"pending"},
	})
	assert.Contains(t, got, "state=pending")
	assert.NotContains(t, got, "eyJhbGci")
	assert.NotContains(t, got, "hunter2")
}

// The access log line carries status and request id, and never a raw token.
func TestLogging_RedactsAndTags(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(Logging(logger))
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ws?token=eyJhbGci&view_all=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	line := buf.String()
	assert.Contains(t, line, "status=200")
	assert.Contains(t, line, "request_id=")
	assert.Contains(t, line, "view_all=true")
	assert.NotContains(t, line, "eyJhbGci")
}
