package models

import "time"

// Station is a physical play location (TV, console pod, table).
type Station struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id"`
	TournamentID   int       `json:"tournament_id"`
	Name           string    `json:"name"`
	CurrentMatchID *int      `json:"current_match_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
