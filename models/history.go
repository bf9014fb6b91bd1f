package models

import "time"

// ChangeAction labels a recorded match mutation.
type ChangeAction string

const (
	ActionSetWinner   ChangeAction = "set_winner"
	ActionSetForfeit  ChangeAction = "set_forfeit"
	ActionReopen      ChangeAction = "reopen"
	ActionClearScores ChangeAction = "clear_scores"
)

// MatchChange is one row of the per-tournament change ledger. The Prior*
// fields are a before-image of the match, captured just ahead of the write,
// sufficient to restore it on undo.
type MatchChange struct {
	ID                int          `json:"id"`
	UserID            int          `json:"user_id"`
	TournamentID      int          `json:"tournament_id"`
	MatchID           int          `json:"match_id"`
	Action            ChangeAction `json:"action"`
	PriorState        MatchState   `json:"prior_state"`
	PriorWinnerID     *int         `json:"prior_winner_id,omitempty"`
	PriorLoserID      *int         `json:"prior_loser_id,omitempty"`
	PriorPlayer1Score int          `json:"prior_player1_score"`
	PriorPlayer2Score int          `json:"prior_player2_score"`
	PriorForfeited    bool         `json:"prior_forfeited"`
	Actor             string       `json:"actor"`
	Undone            bool         `json:"undone"`
	CreatedAt         time.Time    `json:"created_at"`
}
