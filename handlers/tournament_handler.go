package handlers

import (
	"net/http"

	"github.com/bracketops/tournament-core/brackets"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(tournamentService services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: tournamentService}
}

// List returns the tenant's tournaments grouped into registration, active
// and completed buckets.
func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	buckets, err := h.tournamentService.List(r.Context(), scope)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"tournaments": buckets})
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), scope, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, envelope{"tournament": tournament})
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Resolve(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	stats, err := h.tournamentService.Stats(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"tournament": tournament, "stats": stats})
}

func (h *TournamentHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input services.UpdateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Update(r.Context(), scope, tournamentRef(r), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"tournament": tournament})
}

func (h *TournamentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := h.tournamentService.Delete(r.Context(), scope, tournamentRef(r)); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{})
}

// transition handles the state-changing operations that share the same
// request and response shape.
func (h *TournamentHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(scope services.Scope, ref string) (*models.Tournament, error),
) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tournament, err := op(scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"tournament": tournament})
}

// Start generates the bracket. The response carries the match count and the
// generated bracket's shape so the host UI can render without a refetch.
func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Start(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{
		"tournament":  tournament,
		"match_count": len(tournament.Matches),
		"stats":       brackets.StatsFromMatches(tournament.Matches),
	})
}

func (h *TournamentHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scope services.Scope, ref string) (*models.Tournament, error) {
		return h.tournamentService.Reset(r.Context(), scope, ref)
	})
}

func (h *TournamentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scope services.Scope, ref string) (*models.Tournament, error) {
		return h.tournamentService.Complete(r.Context(), scope, ref)
	})
}

func (h *TournamentHandler) OpenCheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scope services.Scope, ref string) (*models.Tournament, error) {
		return h.tournamentService.OpenCheckIn(r.Context(), scope, ref)
	})
}

func (h *TournamentHandler) CloseCheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(scope services.Scope, ref string) (*models.Tournament, error) {
		return h.tournamentService.CloseCheckIn(r.Context(), scope, ref)
	})
}

func (h *TournamentHandler) NextSwissRound(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matches, err := h.tournamentService.NextSwissRound(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"matches": matches})
}

// Bracket returns the tournament with its full match graph embedded, plus
// display labels for each generated round.
func (h *TournamentHandler) Bracket(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Bracket(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	minRound, maxRound := 0, 0
	for i := range tournament.Matches {
		round := tournament.Matches[i].Round
		if round > maxRound {
			maxRound = round
		}
		if round < minRound {
			minRound = round
		}
	}

	writeSuccess(w, r, http.StatusOK, envelope{
		"tournament": tournament,
		"rounds":     brackets.RoundNames(tournament, minRound, maxRound),
	})
}

func (h *TournamentHandler) Standings(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	standings, err := h.tournamentService.Standings(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"standings": standings})
}

func (h *TournamentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	stats, err := h.tournamentService.Stats(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"stats": stats})
}
