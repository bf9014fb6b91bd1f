package handlers

import (
	"errors"
	"net/http"

	"github.com/bracketops/tournament-core/services"
)

// DeployHandler controls which tournament the tenant's public display is
// pointed at, plus the emergency broadcast overlay.
type DeployHandler struct {
	deploymentService services.DeploymentService
}

func NewDeployHandler(deploymentService services.DeploymentService) *DeployHandler {
	return &DeployHandler{deploymentService: deploymentService}
}

func (h *DeployHandler) Current(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	view, err := h.deploymentService.Current(r.Context(), scope)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"deployment": view})
}

func (h *DeployHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input struct {
		Tournament string `json:"tournament"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Tournament == "" {
		badRequestResponse(w, r, errors.New("tournament is required"))
		return
	}

	view, err := h.deploymentService.Deploy(r.Context(), scope, input.Tournament)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"deployment": view})
}

func (h *DeployHandler) Clear(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := h.deploymentService.Clear(r.Context(), scope); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{})
}

func (h *DeployHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input services.EmergencyBroadcast
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.deploymentService.Emergency(r.Context(), scope, input); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"broadcast": input})
}
