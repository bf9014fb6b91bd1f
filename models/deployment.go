package models

import "time"

// Deployment is the per-tenant "deployed to displays" pointer. One row per
// tenant; external display services follow it via the flyer event room.
type Deployment struct {
	UserID       int       `json:"user_id"`
	TournamentID int       `json:"tournament_id"`
	DeployedAt   time.Time `json:"deployed_at"`
}
