package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(matchService services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// List returns the tournament's matches, optionally filtered by
// ?state= and ?round=.
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	filter, err := matchFilterFromQuery(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	list, err := h.matchService.List(r.Context(), scope, tournamentRef(r), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{
		"matches":          list.Matches,
		"completed_count":  list.CompletedCount,
		"progress_percent": list.ProgressPercent,
		"next_match_id":    list.NextMatchID,
		"next_players":     list.NextMatchPlayers,
	})
}

func matchFilterFromQuery(r *http.Request) (services.MatchListFilter, error) {
	var filter services.MatchListFilter

	if raw := r.URL.Query().Get("state"); raw != "" {
		state := models.MatchState(raw)
		switch state {
		case models.MatchPending, models.MatchOpen, models.MatchUnderway, models.MatchComplete:
			filter.State = &state
		default:
			return filter, fmt.Errorf("invalid state filter %q", raw)
		}
	}

	if raw := r.URL.Query().Get("round"); raw != "" {
		round, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid round filter %q", raw)
		}
		filter.Round = &round
	}

	return filter, nil
}

func (h *MatchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	stats, err := h.matchService.Stats(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"stats": stats})
}

// Next returns the best match to call up, or null when nothing is waiting.
func (h *MatchHandler) Next(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	match, err := h.matchService.NextMatch(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.Get(r.Context(), scope, tournamentRef(r), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

func (h *MatchHandler) MarkUnderway(w http.ResponseWriter, r *http.Request) {
	h.matchTransition(w, r, h.matchService.MarkUnderway)
}

func (h *MatchHandler) UnmarkUnderway(w http.ResponseWriter, r *http.Request) {
	h.matchTransition(w, r, h.matchService.UnmarkUnderway)
}

func (h *MatchHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.matchTransition(w, r, h.matchService.Reopen)
}

func (h *MatchHandler) ClearScores(w http.ResponseWriter, r *http.Request) {
	h.matchTransition(w, r, h.matchService.ClearScores)
}

func (h *MatchHandler) matchTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, scope services.Scope, ref string, matchID int) (*models.Match, error),
) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := op(r.Context(), scope, tournamentRef(r), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

// Score records a result with scores. The winner may be omitted when the
// scores are decisive.
func (h *MatchHandler) Score(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.ReportResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.SetWinner(r.Context(), scope, tournamentRef(r), matchID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

// Winner records a result by winner; scores are optional and default 0-0.
func (h *MatchHandler) Winner(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		WinnerID     int `json:"winner_id"`
		Player1Score int `json:"player1_score"`
		Player2Score int `json:"player2_score"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WinnerID <= 0 {
		badRequestResponse(w, r, errors.New("winner_id is required"))
		return
	}

	match, err := h.matchService.SetWinner(r.Context(), scope, tournamentRef(r), matchID,
		services.ReportResultInput{
			WinnerID:     &input.WinnerID,
			Player1Score: input.Player1Score,
			Player2Score: input.Player2Score,
		})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

// Disqualify forfeits the named participant; the opponent advances.
func (h *MatchHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		ParticipantID int `json:"participant_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ParticipantID <= 0 {
		badRequestResponse(w, r, errors.New("participant_id is required"))
		return
	}

	match, err := h.matchService.SetForfeit(r.Context(), scope, tournamentRef(r), matchID, input.ParticipantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

// SetStation assigns the match to a station, or clears the assignment when
// station_id is null.
func (h *MatchHandler) SetStation(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		StationID *int `json:"station_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.SetStation(r.Context(), scope, tournamentRef(r), matchID, input.StationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}

// AutoAssign pairs every free station with the next open match.
func (h *MatchHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	matches, err := h.matchService.AutoAssignStations(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"matches": matches})
}

// BatchScores applies several results in one request, reporting per-match
// outcomes.
func (h *MatchHandler) BatchScores(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	var input struct {
		Scores []services.BatchScoreItem `json:"scores"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Scores) == 0 {
		badRequestResponse(w, r, errors.New("scores must not be empty"))
		return
	}

	result, err := h.matchService.BatchScores(r.Context(), scope, tournamentRef(r), input.Scores)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"result": result})
}

// Undo rolls back the most recent recorded match change.
func (h *MatchHandler) Undo(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	match, err := h.matchService.UndoLast(r.Context(), scope, tournamentRef(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, envelope{"match": match})
}
