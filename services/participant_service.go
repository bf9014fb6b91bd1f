package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// AddParticipantInput registers one roster slot. Seed 0 appends to the end;
// any other value inserts at that position and shifts the rest down.
type AddParticipantInput struct {
	Name string  `json:"name"`
	Misc *string `json:"misc"`
	Seed int     `json:"seed"`
}

// UpdateParticipantInput patches a participant. Name, misc, and seed are
// editable while the tournament is pending; active stays editable until the
// tournament completes so hosts can record drop-outs mid-bracket.
type UpdateParticipantInput struct {
	Name   *string `json:"name"`
	Misc   *string `json:"misc"`
	Seed   *int    `json:"seed"`
	Active *bool   `json:"active"`
}

// BulkAddResult reports a partial bulk registration: valid names land on the
// roster, rejects are itemized so the host can fix and resubmit just those.
type BulkAddResult struct {
	Added  []models.Participant `json:"added"`
	Errors []BulkAddError       `json:"errors,omitempty"`
}

type BulkAddError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type ParticipantService interface {
	Add(ctx context.Context, scope Scope, ref string, input AddParticipantInput) (*models.Participant, error)
	BulkAdd(ctx context.Context, scope Scope, ref string, names []string) (*BulkAddResult, error)
	List(ctx context.Context, scope Scope, ref string) ([]models.Participant, error)
	Update(ctx context.Context, scope Scope, ref string, participantID int, input UpdateParticipantInput) (*models.Participant, error)
	Remove(ctx context.Context, scope Scope, ref string, participantID int) error
	CheckIn(ctx context.Context, scope Scope, ref string, participantID int) (*models.Participant, error)
	UndoCheckIn(ctx context.Context, scope Scope, ref string, participantID int) (*models.Participant, error)
	Randomize(ctx context.Context, scope Scope, ref string) ([]models.Participant, error)
}

type participantService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	waitlistRepo    repositories.WaitlistRepository
	bus             *events.Bus
	locks           *LockTable
	logger          *slog.Logger
}

func NewParticipantService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	waitlistRepo repositories.WaitlistRepository,
	bus *events.Bus,
	locks *LockTable,
	logger *slog.Logger,
) ParticipantService {
	return &participantService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		waitlistRepo:    waitlistRepo,
		bus:             bus,
		locks:           locks,
		logger:          logger,
	}
}

func (s *participantService) Add(ctx context.Context, scope Scope, ref string, input AddParticipantInput) (*models.Participant, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotPending
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	roster, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}

	p := &models.Participant{
		UserID:       t.UserID,
		TournamentID: t.ID,
		Name:         name,
		Seed:         len(roster) + 1,
		Active:       true,
		Misc:         normalizeMisc(input.Misc),
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.participantRepo.Create(ctx, tx, p); err != nil {
			return mapParticipantRepoError(err)
		}
		if input.Seed > 0 && input.Seed <= len(roster) {
			order := insertAtSeed(roster, *p, input.Seed)
			if err := s.reseed(ctx, tx, order); err != nil {
				return err
			}
			p.Seed = input.Seed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "participant added",
		slog.Int("tournament_id", t.ID),
		slog.Int("participant_id", p.ID),
		slog.Int("seed", p.Seed),
	)
	s.publish(t, events.ParticipantAdded, p)
	return p, nil
}

func (s *participantService) BulkAdd(ctx context.Context, scope Scope, ref string, names []string) (*BulkAddResult, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotPending
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	roster, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(roster))
	for _, p := range roster {
		taken[strings.ToLower(p.Name)] = true
	}

	result := &BulkAddResult{Added: []models.Participant{}}
	nextSeed := len(roster) + 1

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, raw := range names {
			name := strings.TrimSpace(raw)
			if name == "" {
				result.Errors = append(result.Errors, BulkAddError{Name: raw, Message: "name is required"})
				continue
			}
			if taken[strings.ToLower(name)] {
				result.Errors = append(result.Errors, BulkAddError{Name: name, Message: ErrParticipantNameConflict.Error()})
				continue
			}
			p := models.Participant{
				UserID:       t.UserID,
				TournamentID: t.ID,
				Name:         name,
				Seed:         nextSeed,
				Active:       true,
			}
			if err := s.participantRepo.Create(ctx, tx, &p); err != nil {
				return mapParticipantRepoError(err)
			}
			taken[strings.ToLower(name)] = true
			nextSeed++
			result.Added = append(result.Added, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Added) > 0 {
		s.logger.InfoContext(ctx, "participants bulk added",
			slog.Int("tournament_id", t.ID),
			slog.Int("added", len(result.Added)),
			slog.Int("rejected", len(result.Errors)),
		)
		s.publish(t, events.ParticipantBulk, result.Added)
	}
	return result, nil
}

func (s *participantService) List(ctx context.Context, scope Scope, ref string) ([]models.Participant, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	return s.participantRepo.ListByTournament(ctx, nil, t.ID)
}

func (s *participantService) Update(ctx context.Context, scope Scope, ref string, participantID int, input UpdateParticipantInput) (*models.Participant, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	p, err := s.getRosterMember(ctx, t, participantID)
	if err != nil {
		return nil, err
	}

	// Active stays writable until completion so a host can record a
	// mid-bracket drop-out; everything else is locked once the bracket
	// exists.
	editsRoster := input.Name != nil || input.Misc != nil || input.Seed != nil
	if editsRoster && t.State != models.TournamentPending {
		return nil, ErrTournamentNotPending
	}
	if input.Active != nil && t.State == models.TournamentComplete {
		return nil, ErrTournamentNotUnderway
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		p.Name = name
	}
	if input.Misc != nil {
		p.Misc = normalizeMisc(input.Misc)
	}
	if input.Active != nil {
		p.Active = *input.Active
	}

	var order []models.Participant
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.participantRepo.Update(ctx, tx, p); err != nil {
			return mapParticipantRepoError(err)
		}
		if input.Seed == nil {
			return nil
		}
		roster, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		target := *input.Seed
		if target < 1 || target > len(roster) {
			return ErrInvalidSeed
		}
		order = moveToSeed(roster, p.ID, target)
		if err := s.reseed(ctx, tx, order); err != nil {
			return err
		}
		p.Seed = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(t, events.ParticipantUpdated, p)
	if order != nil {
		s.publish(t, events.ParticipantSeeded, order)
	}
	return p, nil
}

func (s *participantService) Remove(ctx context.Context, scope Scope, ref string, participantID int) error {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return err
	}
	if t.State != models.TournamentPending {
		return ErrTournamentNotPending
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	p, err := s.getRosterMember(ctx, t, participantID)
	if err != nil {
		return err
	}

	var promoted *models.Participant
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		promoted = nil
		if err := s.participantRepo.Delete(ctx, tx, p.ID); err != nil {
			return mapParticipantRepoError(err)
		}
		// Close the seed gap.
		roster, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if err := s.reseed(ctx, tx, roster); err != nil {
			return err
		}
		// A slot opened under the cap; the waitlist head takes it.
		if t.SignupCap > 0 && len(roster) < t.SignupCap {
			promoted, err = promoteFromWaitlist(ctx, tx, s.waitlistRepo, s.participantRepo, t)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participant removed",
		slog.Int("tournament_id", t.ID),
		slog.Int("participant_id", p.ID),
	)
	s.publish(t, events.ParticipantDeleted, p)
	if promoted != nil {
		s.logger.InfoContext(ctx, "waitlist entry promoted",
			slog.Int("tournament_id", t.ID),
			slog.Int("participant_id", promoted.ID),
		)
		s.publish(t, events.ParticipantAdded, promoted)
	}
	return nil
}

func (s *participantService) CheckIn(ctx context.Context, scope Scope, ref string, participantID int) (*models.Participant, error) {
	return s.setCheckedIn(ctx, scope, ref, participantID, true)
}

func (s *participantService) UndoCheckIn(ctx context.Context, scope Scope, ref string, participantID int) (*models.Participant, error) {
	return s.setCheckedIn(ctx, scope, ref, participantID, false)
}

func (s *participantService) setCheckedIn(ctx context.Context, scope Scope, ref string, participantID int, checkedIn bool) (*models.Participant, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	if !t.InRegistration() {
		return nil, ErrTournamentNotPending
	}
	p, err := s.getRosterMember(ctx, t, participantID)
	if err != nil {
		return nil, err
	}
	if p.CheckedIn == checkedIn {
		if checkedIn {
			return nil, ErrAlreadyCheckedIn
		}
		return p, nil
	}
	if err := s.participantRepo.SetCheckedIn(ctx, s.db, p.ID, checkedIn); err != nil {
		return nil, mapParticipantRepoError(err)
	}
	p.CheckedIn = checkedIn
	s.publish(t, events.ParticipantCheckin, p)
	return p, nil
}

// Randomize shuffles the whole roster into a fresh seed order.
func (s *participantService) Randomize(ctx context.Context, scope Scope, ref string) ([]models.Participant, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotPending
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	roster, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(roster), func(i, j int) {
		roster[i], roster[j] = roster[j], roster[i]
	})

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.reseed(ctx, tx, roster)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "seeds randomized",
		slog.Int("tournament_id", t.ID),
		slog.Int("participants", len(roster)),
	)
	s.publish(t, events.ParticipantSeeded, roster)
	return roster, nil
}

// getRosterMember fetches a participant and verifies it belongs to the
// tournament; a mismatch reads the same as a missing row.
func (s *participantService) getRosterMember(ctx context.Context, t *models.Tournament, participantID int) (*models.Participant, error) {
	p, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		return nil, mapParticipantRepoError(err)
	}
	if p.TournamentID != t.ID {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// reseed writes seeds 1..len(order) over the given roster order, touching
// only rows whose seed actually changes.
func (s *participantService) reseed(ctx context.Context, tx *sql.Tx, order []models.Participant) error {
	for i := range order {
		want := i + 1
		if order[i].Seed == want {
			continue
		}
		if err := s.participantRepo.UpdateSeed(ctx, tx, order[i].ID, want); err != nil {
			return err
		}
		order[i].Seed = want
	}
	return nil
}

func (s *participantService) publish(t *models.Tournament, event string, payload interface{}) {
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: event, TournamentID: t.ID, Payload: payload,
	})
}

// insertAtSeed builds the roster order with the new participant spliced in at
// the requested 1-based seed.
func insertAtSeed(roster []models.Participant, p models.Participant, seed int) []models.Participant {
	order := make([]models.Participant, 0, len(roster)+1)
	order = append(order, roster[:seed-1]...)
	order = append(order, p)
	order = append(order, roster[seed-1:]...)
	return order
}

// moveToSeed builds the roster order with participant id moved to the
// 1-based target seed, everyone else shifting to close the gap.
func moveToSeed(roster []models.Participant, id, target int) []models.Participant {
	var moved *models.Participant
	rest := make([]models.Participant, 0, len(roster)-1)
	for i := range roster {
		if roster[i].ID == id {
			moved = &roster[i]
			continue
		}
		rest = append(rest, roster[i])
	}
	if moved == nil {
		return roster
	}
	order := make([]models.Participant, 0, len(roster))
	order = append(order, rest[:target-1]...)
	order = append(order, *moved)
	order = append(order, rest[target-1:]...)
	return order
}

func normalizeMisc(misc *string) *string {
	if misc == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*misc)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapParticipantRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrParticipantNotFound):
		return ErrParticipantNotFound
	case errors.Is(err, repositories.ErrParticipantConflict):
		return ErrParticipantNameConflict
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	default:
		return err
	}
}
