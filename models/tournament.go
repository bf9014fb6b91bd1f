package models

import "time"

// TournamentState mirrors the lifecycle enum persisted in tcc_tournaments.
type TournamentState string

const (
	TournamentPending        TournamentState = "pending"
	TournamentCheckingIn     TournamentState = "checking_in"
	TournamentUnderway       TournamentState = "underway"
	TournamentAwaitingReview TournamentState = "awaiting_review"
	TournamentComplete       TournamentState = "complete"
)

type TournamentType string

const (
	TypeSingleElim TournamentType = "single_elim"
	TypeDoubleElim TournamentType = "double_elim"
	TypeRoundRobin TournamentType = "round_robin"
	TypeSwiss      TournamentType = "swiss"
)

type GrandFinalsModifier string

const (
	GrandFinalsNone         GrandFinalsModifier = "none"
	GrandFinalsSkip         GrandFinalsModifier = "skip"
	GrandFinalsBracketReset GrandFinalsModifier = "bracket_reset"
)

type RankedBy string

const (
	RankedByMatchWins        RankedBy = "match_wins"
	RankedByGameWins         RankedBy = "game_wins"
	RankedByPointsScored     RankedBy = "points_scored"
	RankedByPointsDifference RankedBy = "points_difference"
)

type ByeStrategy string

const (
	ByeTraditional ByeStrategy = "traditional"
	ByeBalanced    ByeStrategy = "balanced"
	ByeCompact     ByeStrategy = "compact_bracket"
)

type Tournament struct {
	ID                  int                 `json:"id"`
	UserID              int                 `json:"user_id"`
	Name                string              `json:"name"`
	Slug                string              `json:"slug"`
	GameName            string              `json:"game_name"`
	TournamentType      TournamentType      `json:"tournament_type"`
	State               TournamentState     `json:"state"`
	Description         *string             `json:"description,omitempty"`
	SignupCap           int                 `json:"signup_cap"`
	HoldThirdPlaceMatch bool                `json:"hold_third_place_match"`
	GrandFinalsModifier GrandFinalsModifier `json:"grand_finals_modifier"`
	SwissRounds         int                 `json:"swiss_rounds"`
	RankedBy            RankedBy            `json:"ranked_by"`
	SequentialPairings  bool                `json:"sequential_pairings"`
	ByeStrategy         ByeStrategy         `json:"bye_strategy"`
	CreatedAt           time.Time           `json:"created_at"`
	StartedAt           *time.Time          `json:"started_at,omitempty"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`

	// Related entities, loaded on demand.
	Participants []Participant `json:"participants,omitempty"`
	Matches      []Match       `json:"matches,omitempty"`
	Stations     []Station     `json:"stations,omitempty"`
}

// InRegistration reports whether the roster is still editable.
func (t *Tournament) InRegistration() bool {
	return t.State == TournamentPending || t.State == TournamentCheckingIn
}

// Running reports whether matches are being played or reviewed.
func (t *Tournament) Running() bool {
	return t.State == TournamentUnderway || t.State == TournamentAwaitingReview
}

func (t *Tournament) Elimination() bool {
	return t.TournamentType == TypeSingleElim || t.TournamentType == TypeDoubleElim
}
