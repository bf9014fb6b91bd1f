package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/services"
)

type ParticipantHandler struct {
	participantService services.ParticipantService
}

func NewParticipantHandler(participantService services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantService: participantService}
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	participants, err := h.participantService.List(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"participants": participants})
}

func (h *ParticipantHandler) Add(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input services.AddParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.participantService.Add(r.Context(), scope, tournamentRef(r), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"participant": participant})
}

// BulkAdd registers a batch of names in one call. Per-name failures are
// reported alongside the added rows rather than failing the whole batch.
func (h *ParticipantHandler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input struct {
		Names []string `json:"names"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Names) == 0 {
		badRequestResponse(w, r, errors.New("names must not be empty"))
		return
	}

	result, err := h.participantService.BulkAdd(r.Context(), scope, tournamentRef(r), input.Names)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"result": result})
}

func (h *ParticipantHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.UpdateParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.participantService.Update(r.Context(), scope, tournamentRef(r), participantID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"participant": participant})
}

func (h *ParticipantHandler) Remove(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.participantService.Remove(r.Context(), scope, tournamentRef(r), participantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{})
}

func (h *ParticipantHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.checkInTransition(w, r, h.participantService.CheckIn)
}

func (h *ParticipantHandler) UndoCheckIn(w http.ResponseWriter, r *http.Request) {
	h.checkInTransition(w, r, h.participantService.UndoCheckIn)
}

func (h *ParticipantHandler) checkInTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, scope services.Scope, ref string, participantID int) (*models.Participant, error),
) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := op(r.Context(), scope, tournamentRef(r), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"participant": participant})
}

// Randomize shuffles the seed order of all active participants.
func (h *ParticipantHandler) Randomize(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	participants, err := h.participantService.Randomize(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"participants": participants})
}
