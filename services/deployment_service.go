package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// DeploymentView pairs the deployment pointer with the tournament it points
// at, saving display clients a second lookup.
type DeploymentView struct {
	Deployment models.Deployment  `json:"deployment"`
	Tournament *models.Tournament `json:"tournament"`
}

// EmergencyBroadcast is a transient banner for every display a tenant runs.
// Nothing is persisted; the event is the message.
type EmergencyBroadcast struct {
	Active  bool   `json:"active"`
	Message string `json:"message,omitempty"`
}

type DeploymentService interface {
	Deploy(ctx context.Context, scope Scope, ref string) (*DeploymentView, error)
	Clear(ctx context.Context, scope Scope) error
	Current(ctx context.Context, scope Scope) (*DeploymentView, error)
	Emergency(ctx context.Context, scope Scope, broadcast EmergencyBroadcast) error
}

type deploymentService struct {
	tournamentRepo repositories.TournamentRepository
	deploymentRepo repositories.DeploymentRepository
	bus            *events.Bus
	logger         *slog.Logger
}

func NewDeploymentService(
	tournamentRepo repositories.TournamentRepository,
	deploymentRepo repositories.DeploymentRepository,
	bus *events.Bus,
	logger *slog.Logger,
) DeploymentService {
	return &deploymentService{
		tournamentRepo: tournamentRepo,
		deploymentRepo: deploymentRepo,
		bus:            bus,
		logger:         logger,
	}
}

func (s *deploymentService) Deploy(ctx context.Context, scope Scope, ref string) (*DeploymentView, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}

	d := &models.Deployment{UserID: t.UserID, TournamentID: t.ID}
	if err := s.deploymentRepo.Set(ctx, d); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tournament deployed",
		slog.Int("tournament_id", t.ID),
		slog.Int("tenant_id", t.UserID),
	)
	s.bus.Publish(events.FlyerRoom(t.UserID), events.Event{
		Event: events.DeploySet, TournamentID: t.ID, Payload: t,
	})
	return &DeploymentView{Deployment: *d, Tournament: t}, nil
}

func (s *deploymentService) Clear(ctx context.Context, scope Scope) error {
	if !scope.CanWrite() {
		return ErrForbidden
	}
	if err := s.deploymentRepo.Clear(ctx, scope.TenantID); err != nil {
		if errors.Is(err, repositories.ErrDeploymentNotFound) {
			return ErrNoDeployment
		}
		return err
	}

	s.logger.InfoContext(ctx, "deployment cleared", slog.Int("tenant_id", scope.TenantID))
	s.bus.Publish(events.FlyerRoom(scope.TenantID), events.Event{Event: events.DeployCleared})
	return nil
}

func (s *deploymentService) Current(ctx context.Context, scope Scope) (*DeploymentView, error) {
	if scope.TenantID == 0 {
		// A view-all scope has no tenant whose deployment could resolve.
		return nil, ErrNoDeployment
	}
	d, err := s.deploymentRepo.Get(ctx, scope.TenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrDeploymentNotFound) {
			return nil, ErrNoDeployment
		}
		return nil, err
	}
	t, err := s.tournamentRepo.GetByID(ctx, d.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrNoDeployment
		}
		return nil, err
	}
	return &DeploymentView{Deployment: *d, Tournament: t}, nil
}

// Emergency pushes or clears a banner on every tenant surface. The bracket
// rooms get it too so hosts see what their displays show.
func (s *deploymentService) Emergency(ctx context.Context, scope Scope, broadcast EmergencyBroadcast) error {
	if !scope.CanWrite() {
		return ErrForbidden
	}
	event := events.EmergencyDeactivated
	if broadcast.Active {
		event = events.EmergencyActivated
		if strings.TrimSpace(broadcast.Message) == "" {
			return ErrValidationFailed
		}
	}

	s.logger.InfoContext(ctx, "emergency broadcast",
		slog.Int("tenant_id", scope.TenantID),
		slog.Bool("active", broadcast.Active),
	)
	evt := events.Event{Event: event, Payload: broadcast}
	s.bus.Publish(events.FlyerRoom(scope.TenantID), evt)
	s.bus.Publish(events.TournamentsRoom(scope.TenantID), evt)
	return nil
}
