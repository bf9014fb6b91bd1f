// Package handlers is the HTTP boundary: request decoding, scope
// resolution, service error mapping and the JSON response envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bracketops/tournament-core/middleware"
	"github.com/bracketops/tournament-core/services"
)

type envelope map[string]interface{}

// writeSuccess wraps the payload in the success envelope. The requestId is
// always present so clients can correlate responses with server logs.
func writeSuccess(w http.ResponseWriter, r *http.Request, status int, payload envelope) {
	body := envelope{
		"success":   true,
		"requestId": middleware.RequestIDFromContext(r.Context()),
	}
	for k, v := range payload {
		body[k] = v
	}

	if err := writeJSON(w, status, body); err != nil {
		slog.Error("write response",
			slog.Any("error", err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	errBody := envelope{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errBody["details"] = details
	}

	body := envelope{
		"success":   false,
		"error":     errBody,
		"requestId": middleware.RequestIDFromContext(r.Context()),
	}
	if err := writeJSON(w, status, body); err != nil {
		slog.Error("write error response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// readJSON decodes a single JSON value into dst, rejecting unknown fields,
// trailing garbage and bodies over 1MB, with client-friendly error messages.
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "bad_request", err.Error(), nil)
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		slog.Any("error", err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}
	if principal := middleware.PrincipalFromContext(r.Context()); principal != nil {
		attrs = append(attrs, slog.Int("tenant", principal.UserID))
	}
	slog.Error("internal error", attrs...)

	writeError(w, r, http.StatusInternalServerError, "internal",
		"the server encountered a problem and could not process your request", nil)
}

// scopeFromRequest builds the tenant scope for an authenticated request from
// the principal plus the superadmin escape hatches (?view_all=true and the
// X-Impersonate-User header).
func scopeFromRequest(r *http.Request) (services.Scope, error) {
	principal := middleware.PrincipalFromContext(r.Context())

	viewAll := r.URL.Query().Get("view_all") == "true"

	impersonateID := 0
	if raw := r.Header.Get("X-Impersonate-User"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return services.Scope{}, fmt.Errorf("%w: invalid X-Impersonate-User header %q", services.ErrValidationFailed, raw)
		}
		impersonateID = id
	}

	return services.ResolveScope(principal, viewAll, impersonateID)
}

// getIDFromURL parses a numeric chi route parameter.
func getIDFromURL(r *http.Request, param string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", param)
	}
	return id, nil
}

// tournamentRef returns the id-or-slug route parameter shared by the
// tournament-scoped routers.
func tournamentRef(r *http.Request) string {
	return chi.URLParam(r, "tournament")
}

// mapServiceErrorToHTTP translates service sentinels into envelope errors.
// Anything unrecognized is an internal error and gets logged with context.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrMatchNotFound),
		errors.Is(err, services.ErrStationNotFound),
		errors.Is(err, services.ErrWaitlistEntryNotFound),
		errors.Is(err, services.ErrNoDeployment):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error(), nil)

	// A full roster is still a conflict, but the caller can fall back to
	// the waitlist, so the response says so.
	case errors.Is(err, services.ErrSignupCapReached):
		writeError(w, r, http.StatusConflict, "conflict", err.Error(),
			envelope{"waitlist_available": true})

	// Conflicts cover both uniqueness collisions and refused state
	// transitions: the request was well formed, the resource just is not in
	// a state that allows it.
	case errors.Is(err, services.ErrUserEmailConflict),
		errors.Is(err, services.ErrSlugConflict),
		errors.Is(err, services.ErrParticipantNameConflict),
		errors.Is(err, services.ErrAlreadyCheckedIn),
		errors.Is(err, services.ErrAlreadyOnWaitlist),
		errors.Is(err, services.ErrStationNameConflict),
		errors.Is(err, services.ErrStationBusy),
		errors.Is(err, services.ErrDownstreamComplete),
		errors.Is(err, services.ErrNotEnoughParticipants),
		errors.Is(err, services.ErrSwissRoundIncomplete),
		errors.Is(err, services.ErrSwissRoundsExhausted),
		errors.Is(err, services.ErrTournamentNotInSignup),
		errors.Is(err, services.ErrMatchNotOpen),
		errors.Is(err, services.ErrMatchNotComplete),
		errors.Is(err, services.ErrMatchNotUnderway),
		errors.Is(err, services.ErrMatchIsBye),
		errors.Is(err, services.ErrNothingToUndo),
		errors.Is(err, services.ErrTournamentNotPending),
		errors.Is(err, services.ErrTournamentNotUnderway),
		errors.Is(err, services.ErrTournamentNotResettable),
		errors.Is(err, services.ErrMatchesIncomplete):
		writeError(w, r, http.StatusConflict, "conflict", err.Error(), nil)

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrInvalidTournamentType),
		errors.Is(err, services.ErrInvalidRankedBy),
		errors.Is(err, services.ErrInvalidByeStrategy),
		errors.Is(err, services.ErrInvalidGrandFinals),
		errors.Is(err, services.ErrInvalidSwissRounds),
		errors.Is(err, services.ErrInvalidSeed),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrWinnerNotInMatch),
		errors.Is(err, services.ErrParticipantNotInMatch),
		errors.Is(err, services.ErrTiedScoreNeedsWinner):
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error(), nil)

	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error(), nil)

	case errors.Is(err, services.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", err.Error(), nil)

	default:
		serverErrorResponse(w, r, err)
	}
}
