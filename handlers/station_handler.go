package handlers

import (
	"net/http"

	"github.com/bracketops/tournament-core/services"
)

type StationHandler struct {
	stationService services.StationService
}

func NewStationHandler(stationService services.StationService) *StationHandler {
	return &StationHandler{stationService: stationService}
}

func (h *StationHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	stations, err := h.stationService.List(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"stations": stations})
}

func (h *StationHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	station, err := h.stationService.Create(r.Context(), scope, tournamentRef(r), input.Name)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"station": station})
}

func (h *StationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	stationID, err := getIDFromURL(r, "stationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.stationService.Delete(r.Context(), scope, tournamentRef(r), stationID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{})
}
