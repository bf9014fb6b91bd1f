package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrStationConflict = errors.New("station with this name already exists")
)

type StationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, s *models.Station) error
	GetByID(ctx context.Context, id int) (*models.Station, error)
	GetByIDExec(ctx context.Context, exec SQLExecutor, id int) (*models.Station, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Station, error)
	SetCurrentMatch(ctx context.Context, exec SQLExecutor, stationID int, matchID *int) error
	ClearByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type sqliteStationRepository struct {
	db *sql.DB
}

func NewSqliteStationRepository(db *sql.DB) StationRepository {
	return &sqliteStationRepository{db: db}
}

func (r *sqliteStationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const stationColumns = `id, user_id, tournament_id, name, current_match_id, created_at`

func (r *sqliteStationRepository) Create(ctx context.Context, exec SQLExecutor, s *models.Station) error {
	executor := r.getExecutor(exec)
	err := executor.QueryRowContext(ctx,
		`INSERT INTO tcc_stations (user_id, tournament_id, name) VALUES (?, ?, ?) RETURNING id, created_at`,
		s.UserID, s.TournamentID, s.Name,
	).Scan(&s.ID, &s.CreatedAt)
	return mapSqliteError(err, ErrStationConflict, ErrTournamentNotFound)
}

func scanStation(row interface{ Scan(...interface{}) error }) (*models.Station, error) {
	s := &models.Station{}
	err := row.Scan(&s.ID, &s.UserID, &s.TournamentID, &s.Name, &s.CurrentMatchID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sqliteStationRepository) GetByID(ctx context.Context, id int) (*models.Station, error) {
	return r.GetByIDExec(ctx, nil, id)
}

func (r *sqliteStationRepository) GetByIDExec(ctx context.Context, exec SQLExecutor, id int) (*models.Station, error) {
	executor := r.getExecutor(exec)
	s, err := scanStation(executor.QueryRowContext(ctx,
		`SELECT `+stationColumns+` FROM tcc_stations WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sqliteStationRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Station, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`SELECT `+stationColumns+` FROM tcc_stations WHERE tournament_id = ? ORDER BY name ASC, id ASC`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		s, scanErr := scanStation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		stations = append(stations, *s)
	}
	return stations, rows.Err()
}

func (r *sqliteStationRepository) SetCurrentMatch(ctx context.Context, exec SQLExecutor, stationID int, matchID *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_stations SET current_match_id = ? WHERE id = ?`, matchID, stationID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStationNotFound)
}

func (r *sqliteStationRepository) ClearByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`UPDATE tcc_stations SET current_match_id = NULL WHERE tournament_id = ?`, tournamentID,
	)
	return err
}

func (r *sqliteStationRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM tcc_stations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStationNotFound)
}
