package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bracketops/tournament-core/models"
)

var ErrDeploymentNotFound = errors.New("deployment not found")

// DeploymentRepository tracks which tournament each user currently has
// pushed to their public display. One row per user.
type DeploymentRepository interface {
	Set(ctx context.Context, d *models.Deployment) error
	Get(ctx context.Context, userID int) (*models.Deployment, error)
	Clear(ctx context.Context, userID int) error
}

type sqliteDeploymentRepository struct {
	db *sql.DB
}

func NewSqliteDeploymentRepository(db *sql.DB) DeploymentRepository {
	return &sqliteDeploymentRepository{db: db}
}

func (r *sqliteDeploymentRepository) Set(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO tcc_deployments (user_id, tournament_id, deployed_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			tournament_id = excluded.tournament_id,
			deployed_at = excluded.deployed_at
		RETURNING deployed_at`

	err := r.db.QueryRowContext(ctx, query, d.UserID, d.TournamentID).Scan(&d.DeployedAt)
	return mapSqliteError(err, nil, ErrTournamentNotFound)
}

func (r *sqliteDeploymentRepository) Get(ctx context.Context, userID int) (*models.Deployment, error) {
	d := &models.Deployment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, tournament_id, deployed_at FROM tcc_deployments WHERE user_id = ?`, userID,
	).Scan(&d.UserID, &d.TournamentID, &d.DeployedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeploymentNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *sqliteDeploymentRepository) Clear(ctx context.Context, userID int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tcc_deployments WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrDeploymentNotFound)
}
