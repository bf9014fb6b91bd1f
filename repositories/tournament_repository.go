package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentSlugConflict = errors.New("tournament slug already taken for this account")
)

type ListTournamentsFilter struct {
	UserID *int
	States []models.TournamentState
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	GetBySlug(ctx context.Context, userID int, slug string) (*models.Tournament, error)
	FindOpenBySlug(ctx context.Context, slug string) (*models.Tournament, error)
	SlugExists(ctx context.Context, userID int, slug string) (bool, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	UpdateState(ctx context.Context, exec SQLExecutor, id int, state models.TournamentState, startedAt, completedAt *time.Time) error
	Delete(ctx context.Context, id int) error
}

type sqliteTournamentRepository struct {
	db *sql.DB
}

func NewSqliteTournamentRepository(db *sql.DB) TournamentRepository {
	return &sqliteTournamentRepository{db: db}
}

func (r *sqliteTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, user_id, name, slug, game_name, tournament_type, state, description,
	signup_cap, hold_third_place_match, grand_finals_modifier, swiss_rounds,
	ranked_by, sequential_pairings, bye_strategy, created_at, started_at, completed_at`

func (r *sqliteTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tcc_tournaments (
			user_id, name, slug, game_name, tournament_type, state, description,
			signup_cap, hold_third_place_match, grand_finals_modifier, swiss_rounds,
			ranked_by, sequential_pairings, bye_strategy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.UserID, t.Name, t.Slug, t.GameName, t.TournamentType, t.State, t.Description,
		t.SignupCap, t.HoldThirdPlaceMatch, t.GrandFinalsModifier, t.SwissRounds,
		t.RankedBy, t.SequentialPairings, t.ByeStrategy,
	).Scan(&t.ID, &t.CreatedAt)

	return mapSqliteError(err, ErrTournamentSlugConflict, nil)
}

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.Slug, &t.GameName, &t.TournamentType, &t.State, &t.Description,
		&t.SignupCap, &t.HoldThirdPlaceMatch, &t.GrandFinalsModifier, &t.SwissRounds,
		&t.RankedBy, &t.SequentialPairings, &t.ByeStrategy, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *sqliteTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tcc_tournaments WHERE id = ?`
	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *sqliteTournamentRepository) GetBySlug(ctx context.Context, userID int, slug string) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tcc_tournaments WHERE user_id = ? AND slug = ?`
	t, err := scanTournament(r.db.QueryRowContext(ctx, query, userID, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindOpenBySlug resolves a slug without a tenant, for the public signup
// surface. Only tournaments still accepting registrations qualify, and the
// slug must match exactly one of them; an ambiguous slug resolves to nothing.
func (r *sqliteTournamentRepository) FindOpenBySlug(ctx context.Context, slug string) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tcc_tournaments
		WHERE slug = ? AND state IN (?, ?) LIMIT 2`
	rows, err := r.db.QueryContext(ctx, query, slug, models.TournamentPending, models.TournamentCheckingIn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found *models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if found != nil {
			return nil, ErrTournamentNotFound
		}
		found = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrTournamentNotFound
	}
	return found, nil
}

func (r *sqliteTournamentRepository) SlugExists(ctx context.Context, userID int, slug string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM tcc_tournaments WHERE user_id = ? AND slug = ?`, userID, slug,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *sqliteTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tcc_tournaments WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filter.UserID)
	}
	if len(filter.States) > 0 {
		query += ` AND state IN (?` + strings.Repeat(",?", len(filter.States)-1) + `)`
		for _, s := range filter.States {
			args = append(args, s)
		}
	}

	query += ` ORDER BY COALESCE(completed_at, started_at, created_at) DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

func (r *sqliteTournamentRepository) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tcc_tournaments SET
			name = ?, slug = ?, game_name = ?, tournament_type = ?, description = ?,
			signup_cap = ?, hold_third_place_match = ?, grand_finals_modifier = ?,
			swiss_rounds = ?, ranked_by = ?, sequential_pairings = ?, bye_strategy = ?
		WHERE id = ?`

	result, err := executor.ExecContext(ctx, query,
		t.Name, t.Slug, t.GameName, t.TournamentType, t.Description,
		t.SignupCap, t.HoldThirdPlaceMatch, t.GrandFinalsModifier,
		t.SwissRounds, t.RankedBy, t.SequentialPairings, t.ByeStrategy,
		t.ID,
	)
	if err != nil {
		return mapSqliteError(err, ErrTournamentSlugConflict, nil)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *sqliteTournamentRepository) UpdateState(ctx context.Context, exec SQLExecutor, id int, state models.TournamentState, startedAt, completedAt *time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_tournaments SET state = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		state, startedAt, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tournament state: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *sqliteTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tcc_tournaments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
