package models

import "time"

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistPromoted WaitlistStatus = "promoted"
	WaitlistRemoved  WaitlistStatus = "removed"
)

// WaitlistEntry queues a would-be participant behind a full roster.
// Position is contiguous from 1 among entries still waiting.
type WaitlistEntry struct {
	ID           int            `json:"id"`
	UserID       int            `json:"user_id"`
	TournamentID int            `json:"tournament_id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Position     int            `json:"position"`
	Status       WaitlistStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	PromotedAt   *time.Time     `json:"promoted_at,omitempty"`
}
