package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantConflict = errors.New("participant with this name already registered for this tournament")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	GetByID(ctx context.Context, id int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error)
	FindByName(ctx context.Context, exec SQLExecutor, tournamentID int, name string) (*models.Participant, error)
	SearchByName(ctx context.Context, tournamentID int, fragment string) ([]models.Participant, error)
	Update(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	UpdateSeed(ctx context.Context, exec SQLExecutor, id, seed int) error
	SetCheckedIn(ctx context.Context, exec SQLExecutor, id int, checkedIn bool) error
	SetActive(ctx context.Context, exec SQLExecutor, id int, active bool) error
	SetFinalRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error
	ClearFinalRanks(ctx context.Context, exec SQLExecutor, tournamentID int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	CountActive(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
}

type sqliteParticipantRepository struct {
	db *sql.DB
}

func NewSqliteParticipantRepository(db *sql.DB) ParticipantRepository {
	return &sqliteParticipantRepository{db: db}
}

func (r *sqliteParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const participantColumns = `
	id, user_id, tournament_id, name, seed, active, checked_in, misc, final_rank, created_at`

func (r *sqliteParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tcc_participants (user_id, tournament_id, name, seed, active, checked_in, misc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.UserID, p.TournamentID, p.Name, p.Seed, p.Active, p.CheckedIn, p.Misc,
	).Scan(&p.ID, &p.CreatedAt)

	return mapSqliteError(err, ErrParticipantConflict, ErrTournamentNotFound)
}

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.TournamentID, &p.Name, &p.Seed,
		&p.Active, &p.CheckedIn, &p.Misc, &p.FinalRank, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *sqliteParticipantRepository) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	query := `SELECT` + participantColumns + ` FROM tcc_participants WHERE id = ?`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *sqliteParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + ` FROM tcc_participants WHERE tournament_id = ? ORDER BY seed ASC, id ASC`
	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

func (r *sqliteParticipantRepository) FindByName(ctx context.Context, exec SQLExecutor, tournamentID int, name string) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + `
		FROM tcc_participants
		WHERE tournament_id = ? AND name = ? COLLATE NOCASE`
	p, err := scanParticipant(executor.QueryRowContext(ctx, query, tournamentID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *sqliteParticipantRepository) SearchByName(ctx context.Context, tournamentID int, fragment string) ([]models.Participant, error) {
	query := `SELECT` + participantColumns + `
		FROM tcc_participants
		WHERE tournament_id = ? AND name LIKE ? ESCAPE '\'
		ORDER BY seed ASC`
	rows, err := r.db.QueryContext(ctx, query, tournamentID, "%"+escapeLike(fragment)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

func (r *sqliteParticipantRepository) Update(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tcc_participants SET name = ?, seed = ?, active = ?, checked_in = ?, misc = ?
		WHERE id = ?`
	result, err := executor.ExecContext(ctx, query, p.Name, p.Seed, p.Active, p.CheckedIn, p.Misc, p.ID)
	if err != nil {
		return mapSqliteError(err, ErrParticipantConflict, nil)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) UpdateSeed(ctx context.Context, exec SQLExecutor, id, seed int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE tcc_participants SET seed = ? WHERE id = ?`, seed, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) SetCheckedIn(ctx context.Context, exec SQLExecutor, id int, checkedIn bool) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE tcc_participants SET checked_in = ? WHERE id = ?`, checkedIn, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) SetActive(ctx context.Context, exec SQLExecutor, id int, active bool) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE tcc_participants SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) SetFinalRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE tcc_participants SET final_rank = ? WHERE id = ?`, rank, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) ClearFinalRanks(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `UPDATE tcc_participants SET final_rank = NULL WHERE tournament_id = ?`, tournamentID)
	return err
}

func (r *sqliteParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM tcc_participants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqliteParticipantRepository) CountActive(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tcc_participants WHERE tournament_id = ? AND active = 1`, tournamentID,
	).Scan(&count)
	return count, err
}
