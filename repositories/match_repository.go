package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var ErrMatchNotFound = errors.New("match not found")

type ListMatchesFilter struct {
	State *models.MatchState
	Round *int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, m *models.Match) error
	UpdatePrereqs(ctx context.Context, exec SQLExecutor, matchID int, player1Prereq, player2Prereq *int) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByIDExec(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ListMatchesFilter) ([]models.Match, error)
	ListSuccessors(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, m *models.Match) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	CountIncomplete(ctx context.Context, exec SQLExecutor, tournamentID int, ignoreByes bool) (int, error)
	CountCompleted(ctx context.Context, exec SQLExecutor, tournamentID int, ignoreByes bool) (int, error)
	MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
}

type sqliteMatchRepository struct {
	db *sql.DB
}

func NewSqliteMatchRepository(db *sql.DB) MatchRepository {
	return &sqliteMatchRepository{db: db}
}

func (r *sqliteMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, user_id, tournament_id, identifier, round, suggested_play_order, losers_bracket,
	player1_id, player2_id, player1_prereq_match_id, player2_prereq_match_id,
	player1_is_prereq_loser, player2_is_prereq_loser, winner_id, loser_id,
	player1_score, player2_score, forfeited, forfeited_participant_id,
	station_id, state, is_bye, underway_at, completed_at, created_at`

func (r *sqliteMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tcc_matches (
			user_id, tournament_id, identifier, round, suggested_play_order, losers_bracket,
			player1_id, player2_id, player1_prereq_match_id, player2_prereq_match_id,
			player1_is_prereq_loser, player2_is_prereq_loser, winner_id, loser_id,
			player1_score, player2_score, forfeited, forfeited_participant_id,
			station_id, state, is_bye, underway_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.UserID, m.TournamentID, m.Identifier, m.Round, m.SuggestedPlayOrder, m.LosersBracket,
		m.Player1ID, m.Player2ID, m.Player1PrereqMatchID, m.Player2PrereqMatchID,
		m.Player1IsPrereqLoser, m.Player2IsPrereqLoser, m.WinnerID, m.LoserID,
		m.Player1Score, m.Player2Score, m.Forfeited, m.ForfeitedParticipantID,
		m.StationID, m.State, m.IsBye, m.UnderwayAt, m.CompletedAt,
	).Scan(&m.ID, &m.CreatedAt)

	return mapSqliteError(err, nil, ErrTournamentNotFound)
}

func (r *sqliteMatchRepository) UpdatePrereqs(ctx context.Context, exec SQLExecutor, matchID int, player1Prereq, player2Prereq *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tcc_matches SET player1_prereq_match_id = ?, player2_prereq_match_id = ? WHERE id = ?`,
		player1Prereq, player2Prereq, matchID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID, &m.UserID, &m.TournamentID, &m.Identifier, &m.Round, &m.SuggestedPlayOrder, &m.LosersBracket,
		&m.Player1ID, &m.Player2ID, &m.Player1PrereqMatchID, &m.Player2PrereqMatchID,
		&m.Player1IsPrereqLoser, &m.Player2IsPrereqLoser, &m.WinnerID, &m.LoserID,
		&m.Player1Score, &m.Player2Score, &m.Forfeited, &m.ForfeitedParticipantID,
		&m.StationID, &m.State, &m.IsBye, &m.UnderwayAt, &m.CompletedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *sqliteMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	return r.GetByIDExec(ctx, nil, id)
}

func (r *sqliteMatchRepository) GetByIDExec(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM tcc_matches WHERE id = ?`
	m, err := scanMatch(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *sqliteMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ListMatchesFilter) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM tcc_matches WHERE tournament_id = ?`
	args := []interface{}{tournamentID}

	if filter.State != nil {
		query += ` AND state = ?`
		args = append(args, *filter.State)
	}
	if filter.Round != nil {
		query += ` AND round = ?`
		args = append(args, *filter.Round)
	}
	query += ` ORDER BY suggested_play_order ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (r *sqliteMatchRepository) ListSuccessors(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + `
		FROM tcc_matches
		WHERE player1_prereq_match_id = ? OR player2_prereq_match_id = ?
		ORDER BY suggested_play_order ASC`

	rows, err := executor.QueryContext(ctx, query, matchID, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (r *sqliteMatchRepository) Update(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tcc_matches SET
			player1_id = ?, player2_id = ?, winner_id = ?, loser_id = ?,
			player1_score = ?, player2_score = ?, forfeited = ?, forfeited_participant_id = ?,
			station_id = ?, state = ?, is_bye = ?, underway_at = ?, completed_at = ?
		WHERE id = ?`

	result, err := executor.ExecContext(ctx, query,
		m.Player1ID, m.Player2ID, m.WinnerID, m.LoserID,
		m.Player1Score, m.Player2Score, m.Forfeited, m.ForfeitedParticipantID,
		m.StationID, m.State, m.IsBye, m.UnderwayAt, m.CompletedAt,
		m.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *sqliteMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM tcc_matches WHERE tournament_id = ?`, tournamentID)
	return err
}

func (r *sqliteMatchRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tcc_matches WHERE tournament_id = ?`, tournamentID,
	).Scan(&count)
	return count, err
}

func (r *sqliteMatchRepository) CountIncomplete(ctx context.Context, exec SQLExecutor, tournamentID int, ignoreByes bool) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM tcc_matches WHERE tournament_id = ? AND state != ?`
	args := []interface{}{tournamentID, models.MatchComplete}
	if ignoreByes {
		query += ` AND is_bye = 0`
	}
	var count int
	err := executor.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *sqliteMatchRepository) CountCompleted(ctx context.Context, exec SQLExecutor, tournamentID int, ignoreByes bool) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM tcc_matches WHERE tournament_id = ? AND state = ?`
	args := []interface{}{tournamentID, models.MatchComplete}
	if ignoreByes {
		query += ` AND is_bye = 0`
	}
	var count int
	err := executor.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *sqliteMatchRepository) MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var round int
	err := executor.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round), 0) FROM tcc_matches WHERE tournament_id = ?`, tournamentID,
	).Scan(&round)
	return round, err
}
