package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bracketops/tournament-core/services"
)

// SignupHandler serves the public collaborator surface. These routes are
// unauthenticated: the slug is the capability, and signups are rate limited
// upstream.
type SignupHandler struct {
	signupService services.SignupService
}

func NewSignupHandler(signupService services.SignupService) *SignupHandler {
	return &SignupHandler{signupService: signupService}
}

func signupSlug(r *http.Request) string {
	return chi.URLParam(r, "slug")
}

// Lookup returns the tournament's public signup view, filtered to roster
// entries matching ?name= when present.
func (h *SignupHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	result, err := h.signupService.Lookup(r.Context(), signupSlug(r), r.URL.Query().Get("name"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{
		"tournament":   result.Tournament,
		"participants": result.Participants,
	})
}

func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input services.SignupInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.signupService.Signup(r.Context(), signupSlug(r), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"participant": participant})
}

func (h *SignupHandler) WaitlistJoin(w http.ResponseWriter, r *http.Request) {
	var input services.WaitlistJoinInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entry, err := h.signupService.WaitlistJoin(r.Context(), signupSlug(r), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"entry": entry})
}

func (h *SignupHandler) WaitlistLeave(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		badRequestResponse(w, r, errors.New("email query parameter is required"))
		return
	}

	if err := h.signupService.WaitlistLeave(r.Context(), signupSlug(r), email); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{})
}

func (h *SignupHandler) WaitlistStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		badRequestResponse(w, r, errors.New("email query parameter is required"))
		return
	}

	status, err := h.signupService.WaitlistStatus(r.Context(), signupSlug(r), email)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"status": status})
}
