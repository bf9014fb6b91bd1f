package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the tcc_* DDL, applied in order. Statements are idempotent
// so Migrate can run on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tcc_users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT    NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT    NOT NULL,
		display_name  TEXT    NOT NULL DEFAULT '',
		role          TEXT    NOT NULL DEFAULT 'user',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS tcc_tournaments (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id                INTEGER NOT NULL REFERENCES tcc_users(id) ON DELETE CASCADE,
		name                   TEXT    NOT NULL,
		slug                   TEXT    NOT NULL,
		game_name              TEXT    NOT NULL DEFAULT '',
		tournament_type        TEXT    NOT NULL DEFAULT 'single_elim',
		state                  TEXT    NOT NULL DEFAULT 'pending',
		description            TEXT,
		signup_cap             INTEGER NOT NULL DEFAULT 0,
		hold_third_place_match INTEGER NOT NULL DEFAULT 0,
		grand_finals_modifier  TEXT    NOT NULL DEFAULT 'none',
		swiss_rounds           INTEGER NOT NULL DEFAULT 0,
		ranked_by              TEXT    NOT NULL DEFAULT 'match_wins',
		sequential_pairings    INTEGER NOT NULL DEFAULT 0,
		bye_strategy           TEXT    NOT NULL DEFAULT 'traditional',
		created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at             DATETIME,
		completed_at           DATETIME,
		UNIQUE (user_id, slug)
	)`,

	`CREATE TABLE IF NOT EXISTS tcc_participants (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		tournament_id INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		name          TEXT    NOT NULL COLLATE NOCASE,
		seed          INTEGER NOT NULL DEFAULT 0,
		active        INTEGER NOT NULL DEFAULT 1,
		checked_in    INTEGER NOT NULL DEFAULT 0,
		misc          TEXT,
		final_rank    INTEGER,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (tournament_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tcc_participants_tournament
		ON tcc_participants (tournament_id, seed)`,

	`CREATE TABLE IF NOT EXISTS tcc_matches (
		id                       INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id                  INTEGER NOT NULL,
		tournament_id            INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		identifier               TEXT    NOT NULL,
		round                    INTEGER NOT NULL,
		suggested_play_order     INTEGER NOT NULL DEFAULT 0,
		losers_bracket           INTEGER NOT NULL DEFAULT 0,
		player1_id               INTEGER REFERENCES tcc_participants(id),
		player2_id               INTEGER REFERENCES tcc_participants(id),
		player1_prereq_match_id  INTEGER,
		player2_prereq_match_id  INTEGER,
		player1_is_prereq_loser  INTEGER NOT NULL DEFAULT 0,
		player2_is_prereq_loser  INTEGER NOT NULL DEFAULT 0,
		winner_id                INTEGER,
		loser_id                 INTEGER,
		player1_score            INTEGER NOT NULL DEFAULT 0,
		player2_score            INTEGER NOT NULL DEFAULT 0,
		forfeited                INTEGER NOT NULL DEFAULT 0,
		forfeited_participant_id INTEGER,
		station_id               INTEGER,
		state                    TEXT    NOT NULL DEFAULT 'pending',
		is_bye                   INTEGER NOT NULL DEFAULT 0,
		underway_at              DATETIME,
		completed_at             DATETIME,
		created_at               DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tcc_matches_tournament
		ON tcc_matches (tournament_id, suggested_play_order)`,
	`CREATE INDEX IF NOT EXISTS idx_tcc_matches_state
		ON tcc_matches (tournament_id, state)`,

	`CREATE TABLE IF NOT EXISTS tcc_stations (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id          INTEGER NOT NULL,
		tournament_id    INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		name             TEXT    NOT NULL,
		current_match_id INTEGER,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (tournament_id, name)
	)`,

	`CREATE TABLE IF NOT EXISTS tcc_waitlist (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		tournament_id INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		name          TEXT    NOT NULL,
		email         TEXT    NOT NULL,
		position      INTEGER NOT NULL DEFAULT 0,
		status        TEXT    NOT NULL DEFAULT 'waiting',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		promoted_at   DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tcc_waitlist_tournament
		ON tcc_waitlist (tournament_id, status, position)`,

	`CREATE TABLE IF NOT EXISTS tcc_match_history (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id             INTEGER NOT NULL,
		tournament_id       INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		match_id            INTEGER NOT NULL,
		action              TEXT    NOT NULL,
		prior_state         TEXT    NOT NULL,
		prior_winner_id     INTEGER,
		prior_loser_id      INTEGER,
		prior_player1_score INTEGER NOT NULL DEFAULT 0,
		prior_player2_score INTEGER NOT NULL DEFAULT 0,
		prior_forfeited     INTEGER NOT NULL DEFAULT 0,
		actor               TEXT    NOT NULL DEFAULT '',
		undone              INTEGER NOT NULL DEFAULT 0,
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tcc_match_history_tournament
		ON tcc_match_history (tournament_id, id)`,

	`CREATE TABLE IF NOT EXISTS tcc_deployments (
		user_id       INTEGER PRIMARY KEY,
		tournament_id INTEGER NOT NULL REFERENCES tcc_tournaments(id) ON DELETE CASCADE,
		deployed_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate applies the schema. Safe to call on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}
	return nil
}
