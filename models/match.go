package models

import (
	"fmt"
	"time"
)

// MatchState mirrors the per-match state machine persisted in tcc_matches.
type MatchState string

const (
	MatchPending  MatchState = "pending"
	MatchOpen     MatchState = "open"
	MatchUnderway MatchState = "underway"
	MatchComplete MatchState = "complete"
)

type Match struct {
	ID                    int        `json:"id"`
	UserID                int        `json:"user_id"`
	TournamentID          int        `json:"tournament_id"`
	Identifier            string     `json:"identifier"`
	Round                 int        `json:"round"`
	SuggestedPlayOrder    int        `json:"suggested_play_order"`
	LosersBracket         bool       `json:"losers_bracket"`
	Player1ID             *int       `json:"player1_id,omitempty"`
	Player2ID             *int       `json:"player2_id,omitempty"`
	Player1PrereqMatchID  *int       `json:"player1_prereq_match_id,omitempty"`
	Player2PrereqMatchID  *int       `json:"player2_prereq_match_id,omitempty"`
	Player1IsPrereqLoser  bool       `json:"player1_is_prereq_loser"`
	Player2IsPrereqLoser  bool       `json:"player2_is_prereq_loser"`
	WinnerID              *int       `json:"winner_id,omitempty"`
	LoserID               *int       `json:"loser_id,omitempty"`
	Player1Score          int        `json:"player1_score"`
	Player2Score          int        `json:"player2_score"`
	Forfeited             bool       `json:"forfeited"`
	ForfeitedParticipantID *int      `json:"forfeited_participant_id,omitempty"`
	StationID             *int       `json:"station_id,omitempty"`
	State                 MatchState `json:"state"`
	IsBye                 bool       `json:"is_bye"`
	UnderwayAt            *time.Time `json:"underway_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// ScoreDisplay renders the stored scores as "p1-p2".
func (m *Match) ScoreDisplay() string {
	return fmt.Sprintf("%d-%d", m.Player1Score, m.Player2Score)
}

// SlotsFilled reports whether both participant slots are populated.
func (m *Match) SlotsFilled() bool {
	return m.Player1ID != nil && m.Player2ID != nil
}

// HasPlayer reports whether participantID occupies either slot.
func (m *Match) HasPlayer(participantID int) bool {
	return (m.Player1ID != nil && *m.Player1ID == participantID) ||
		(m.Player2ID != nil && *m.Player2ID == participantID)
}

// Opponent returns the participant in the other slot, or nil.
func (m *Match) Opponent(participantID int) *int {
	if m.Player1ID != nil && *m.Player1ID == participantID {
		return m.Player2ID
	}
	if m.Player2ID != nil && *m.Player2ID == participantID {
		return m.Player1ID
	}
	return nil
}
