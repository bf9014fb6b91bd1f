package models

import "time"

type Participant struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	TournamentID int       `json:"tournament_id"`
	Name         string    `json:"name"`
	Seed         int       `json:"seed"`
	Active       bool      `json:"active"`
	CheckedIn    bool      `json:"checked_in"`
	Misc         *string   `json:"misc,omitempty"`
	FinalRank    *int      `json:"final_rank,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
