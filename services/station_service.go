package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

type StationService interface {
	List(ctx context.Context, scope Scope, ref string) ([]models.Station, error)
	Create(ctx context.Context, scope Scope, ref string, name string) (*models.Station, error)
	Delete(ctx context.Context, scope Scope, ref string, stationID int) error
}

type stationService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	stationRepo    repositories.StationRepository
	matchRepo      repositories.MatchRepository
	bus            *events.Bus
	locks          *LockTable
	logger         *slog.Logger
}

func NewStationService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	stationRepo repositories.StationRepository,
	matchRepo repositories.MatchRepository,
	bus *events.Bus,
	locks *LockTable,
	logger *slog.Logger,
) StationService {
	return &stationService{
		db:             db,
		tournamentRepo: tournamentRepo,
		stationRepo:    stationRepo,
		matchRepo:      matchRepo,
		bus:            bus,
		locks:          locks,
		logger:         logger,
	}
}

func (s *stationService) List(ctx context.Context, scope Scope, ref string) ([]models.Station, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	return s.stationRepo.ListByTournament(ctx, nil, t.ID)
}

func (s *stationService) Create(ctx context.Context, scope Scope, ref string, name string) (*models.Station, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	st := &models.Station{UserID: t.UserID, TournamentID: t.ID, Name: name}
	if err := s.stationRepo.Create(ctx, nil, st); err != nil {
		return nil, mapStationRepoError(err)
	}
	s.logger.InfoContext(ctx, "station created",
		slog.Int("tournament_id", t.ID),
		slog.String("name", name),
	)
	return st, nil
}

// Delete removes a station. A match currently assigned to it loses the
// assignment but keeps playing.
func (s *stationService) Delete(ctx context.Context, scope Scope, ref string, stationID int) error {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	released := false
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		released = false
		st, err := s.stationRepo.GetByIDExec(ctx, tx, stationID)
		if err != nil {
			return mapStationRepoError(err)
		}
		if st.TournamentID != t.ID {
			return ErrStationNotFound
		}
		if st.CurrentMatchID != nil {
			m, err := s.matchRepo.GetByIDExec(ctx, tx, *st.CurrentMatchID)
			if err != nil && !errors.Is(err, repositories.ErrMatchNotFound) {
				return err
			}
			if err == nil && m.StationID != nil && *m.StationID == st.ID {
				m.StationID = nil
				if err := s.matchRepo.Update(ctx, tx, m); err != nil {
					return err
				}
				released = true
			}
		}
		return s.stationRepo.Delete(ctx, tx, st.ID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "station deleted",
		slog.Int("tournament_id", t.ID),
		slog.Int("station_id", stationID),
	)
	if released {
		s.publishSnapshot(ctx, t)
	}
	return nil
}

func (s *stationService) publishSnapshot(ctx context.Context, t *models.Tournament) {
	matches, err := s.matchRepo.ListByTournament(ctx, nil, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		s.logger.WarnContext(ctx, "match snapshot publish skipped",
			slog.Int("tournament_id", t.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: events.MatchesUpdate, TournamentID: t.ID, Payload: matches,
	})
}
