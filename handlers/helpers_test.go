package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/middleware"
	"github.com/bracketops/tournament-core/services"
)

type parserStub struct {
	principal *services.Principal
}

func (p parserStub) ParseToken(token string) (*services.Principal, error) {
	if token == "good" {
		return p.principal, nil
	}
	return nil, services.ErrUnauthorized
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteSuccess_EnvelopeShape(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, r, http.StatusCreated, envelope{"name": "Friday"})
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Friday", body["name"])
	assert.NotEmpty(t, body["requestId"])
}

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrTournamentNotFound, http.StatusNotFound, "not_found"},
		{services.ErrNoDeployment, http.StatusNotFound, "not_found"},
		{services.ErrParticipantNameConflict, http.StatusConflict, "conflict"},
		{services.ErrStationBusy, http.StatusConflict, "conflict"},
		{services.ErrMatchNotOpen, http.StatusConflict, "conflict"},
		{services.ErrNothingToUndo, http.StatusConflict, "conflict"},
		{services.ErrTournamentNotResettable, http.StatusConflict, "conflict"},
		{services.ErrInvalidScore, http.StatusBadRequest, "validation_failed"},
		{services.ErrTiedScoreNeedsWinner, http.StatusBadRequest, "validation_failed"},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode+"/"+tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, false, body["success"])
			errObj, ok := body["error"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errObj["code"])
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, errObj["message"], "disk", "internal details stay out of responses")
			}
		})
	}
}

func TestMapServiceErrorToHTTP_CapReachedPointsAtWaitlist(t *testing.T) {
	rec := httptest.NewRecorder()
	mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil), services.ErrSignupCapReached)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeEnvelope(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	details, ok := errObj["details"].(map[string]interface{})
	require.True(t, ok, "cap-reached error carries details")
	assert.Equal(t, true, details["waitlist_available"])
}

func TestReadJSON_Rejections(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", "body must not be empty"},
		{"malformed", `{"name":`, "badly-formed JSON"},
		{"unknown field", `{"nope": 1}`, `unknown key "nope"`},
		{"trailing garbage", `{"name":"x"}{"name":"y"}`, "single JSON value"},
		{"wrong type", `{"name": 42}`, `incorrect JSON type for field "name"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := readJSON(httptest.NewRecorder(), req, &dst)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	var dst payload
	require.NoError(t, readJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "ok", dst.Name)
}

func TestScopeFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Impersonate-User", "zero")
	_, err := scopeFromRequest(req)
	assert.ErrorIs(t, err, services.ErrValidationFailed)

	_, err = scopeFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, services.ErrUnauthorized)

	// Through the real authentication middleware, the principal resolves to
	// a plain tenant scope.
	var scope services.Scope
	var scopeErr error
	handler := middleware.Authenticate(parserStub{principal: &services.Principal{UserID: 7}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, scopeErr = scopeFromRequest(r)
		}),
	)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?token=good", nil))
	require.NoError(t, scopeErr)
	assert.Equal(t, services.Scope{TenantID: 7}, scope)
}

func TestGetIDFromURL(t *testing.T) {
	var gotID int
	var gotErr error
	router := chi.NewRouter()
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotID, gotErr = getIDFromURL(r, "id")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, 42, gotID)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/nan", nil))
	assert.Error(t, gotErr)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/-3", nil))
	assert.Error(t, gotErr)
}
