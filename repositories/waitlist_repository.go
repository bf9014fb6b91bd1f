package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrWaitlistConflict      = errors.New("email already on the waitlist")
)

type WaitlistRepository interface {
	Create(ctx context.Context, exec SQLExecutor, e *models.WaitlistEntry) error
	GetByID(ctx context.Context, id int) (*models.WaitlistEntry, error)
	FindByEmail(ctx context.Context, exec SQLExecutor, tournamentID int, email string) (*models.WaitlistEntry, error)
	ListWaiting(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.WaitlistEntry, error)
	NextPosition(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.WaitlistStatus, promotedAt *time.Time) error
	UpdatePosition(ctx context.Context, exec SQLExecutor, id, position int) error
}

type sqliteWaitlistRepository struct {
	db *sql.DB
}

func NewSqliteWaitlistRepository(db *sql.DB) WaitlistRepository {
	return &sqliteWaitlistRepository{db: db}
}

func (r *sqliteWaitlistRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const waitlistColumns = `id, user_id, tournament_id, name, email, position, status, promoted_at, created_at`

func (r *sqliteWaitlistRepository) Create(ctx context.Context, exec SQLExecutor, e *models.WaitlistEntry) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx,
		`INSERT INTO tcc_waitlist (user_id, tournament_id, name, email, position, status)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id, created_at`,
		e.UserID, e.TournamentID, e.Name, e.Email, e.Position, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
	return mapSqliteError(err, ErrWaitlistConflict, ErrTournamentNotFound)
}

func scanWaitlistEntry(row interface{ Scan(...interface{}) error }) (*models.WaitlistEntry, error) {
	e := &models.WaitlistEntry{}
	err := row.Scan(&e.ID, &e.UserID, &e.TournamentID, &e.Name, &e.Email, &e.Position, &e.Status, &e.PromotedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *sqliteWaitlistRepository) GetByID(ctx context.Context, id int) (*models.WaitlistEntry, error) {
	e, err := scanWaitlistEntry(r.db.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM tcc_waitlist WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *sqliteWaitlistRepository) FindByEmail(ctx context.Context, exec SQLExecutor, tournamentID int, email string) (*models.WaitlistEntry, error) {
	executor := r.getExecutor(exec)
	e, err := scanWaitlistEntry(executor.QueryRowContext(ctx,
		`SELECT `+waitlistColumns+` FROM tcc_waitlist
		 WHERE tournament_id = ? AND email = ? COLLATE NOCASE AND status = ?`,
		tournamentID, email, models.WaitlistWaiting,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *sqliteWaitlistRepository) ListWaiting(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.WaitlistEntry, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`SELECT `+waitlistColumns+` FROM tcc_waitlist
		 WHERE tournament_id = ? AND status = ? ORDER BY position ASC`,
		tournamentID, models.WaitlistWaiting,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.WaitlistEntry, 0)
	for rows.Next() {
		e, scanErr := scanWaitlistEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *sqliteWaitlistRepository) NextPosition(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var max sql.NullInt64
	err := executor.QueryRowContext(ctx,
		`SELECT MAX(position) FROM tcc_waitlist WHERE tournament_id = ? AND status = ?`,
		tournamentID, models.WaitlistWaiting,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func (r *sqliteWaitlistRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.WaitlistStatus, promotedAt *time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_waitlist SET status = ?, promoted_at = ? WHERE id = ?`,
		status, promotedAt, id,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrWaitlistEntryNotFound)
}

func (r *sqliteWaitlistRepository) UpdatePosition(ctx context.Context, exec SQLExecutor, id, position int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_waitlist SET position = ? WHERE id = ?`, position, id,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrWaitlistEntryNotFound)
}
