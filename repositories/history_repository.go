package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var ErrNoChangeToUndo = errors.New("no change available to undo")

// historyKeep is how many ledger rows survive a prune, newest first.
const historyKeep = 50

type HistoryRepository interface {
	Append(ctx context.Context, exec SQLExecutor, c *models.MatchChange) error
	Latest(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.MatchChange, error)
	MarkUndone(ctx context.Context, exec SQLExecutor, id int) error
	Prune(ctx context.Context, exec SQLExecutor, tournamentID int) error
	ListByTournament(ctx context.Context, tournamentID, limit int) ([]models.MatchChange, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type sqliteHistoryRepository struct {
	db *sql.DB
}

func NewSqliteHistoryRepository(db *sql.DB) HistoryRepository {
	return &sqliteHistoryRepository{db: db}
}

func (r *sqliteHistoryRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const historyColumns = `
	id, user_id, tournament_id, match_id, action, prior_state, prior_winner_id, prior_loser_id,
	prior_player1_score, prior_player2_score, prior_forfeited, actor, undone, created_at`

func (r *sqliteHistoryRepository) Append(ctx context.Context, exec SQLExecutor, c *models.MatchChange) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx,
		`INSERT INTO tcc_match_history (
			user_id, tournament_id, match_id, action, prior_state, prior_winner_id, prior_loser_id,
			prior_player1_score, prior_player2_score, prior_forfeited, actor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id, created_at`,
		c.UserID, c.TournamentID, c.MatchID, c.Action, c.PriorState, c.PriorWinnerID, c.PriorLoserID,
		c.PriorPlayer1Score, c.PriorPlayer2Score, c.PriorForfeited, c.Actor,
	).Scan(&c.ID, &c.CreatedAt)
	return mapSqliteError(err, nil, ErrMatchNotFound)
}

func scanMatchChange(row interface{ Scan(...interface{}) error }) (*models.MatchChange, error) {
	c := &models.MatchChange{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.TournamentID, &c.MatchID, &c.Action, &c.PriorState, &c.PriorWinnerID, &c.PriorLoserID,
		&c.PriorPlayer1Score, &c.PriorPlayer2Score, &c.PriorForfeited, &c.Actor, &c.Undone, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Latest returns the newest ledger row whether or not it has been undone.
// Undo is single-step, so callers inspect the Undone flag rather than walking
// back through older rows.
func (r *sqliteHistoryRepository) Latest(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.MatchChange, error) {
	executor := r.getExecutor(exec)
	c, err := scanMatchChange(executor.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM tcc_match_history
		 WHERE tournament_id = ?
		 ORDER BY id DESC LIMIT 1`, tournamentID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoChangeToUndo
		}
		return nil, err
	}
	return c, nil
}

func (r *sqliteHistoryRepository) MarkUndone(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_match_history SET undone = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrNoChangeToUndo)
}

func (r *sqliteHistoryRepository) Prune(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`DELETE FROM tcc_match_history
		 WHERE tournament_id = ? AND id NOT IN (
			SELECT id FROM tcc_match_history WHERE tournament_id = ? ORDER BY id DESC LIMIT ?
		 )`, tournamentID, tournamentID, historyKeep,
	)
	return err
}

func (r *sqliteHistoryRepository) ListByTournament(ctx context.Context, tournamentID, limit int) ([]models.MatchChange, error) {
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM tcc_match_history
		 WHERE tournament_id = ? ORDER BY id DESC LIMIT ?`, tournamentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]models.MatchChange, 0)
	for rows.Next() {
		c, scanErr := scanMatchChange(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		changes = append(changes, *c)
	}
	return changes, rows.Err()
}

func (r *sqliteHistoryRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM tcc_match_history WHERE tournament_id = ?`, tournamentID)
	return err
}
