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

// SignupTournamentView is the slice of a tournament the public signup page
// may see. No tenant internals, no timestamps.
type SignupTournamentView struct {
	Name           string                 `json:"name"`
	GameName       string                 `json:"game_name,omitempty"`
	TournamentType models.TournamentType  `json:"tournament_type"`
	State          models.TournamentState `json:"state"`
	SignupCap      int                    `json:"signup_cap"`
	SignupCount    int                    `json:"signup_count"`
	SpotsLeft      *int                   `json:"spots_left,omitempty"`
}

type SignupLookupResult struct {
	Tournament   SignupTournamentView `json:"tournament"`
	Participants []models.Participant `json:"participants"`
}

type SignupInput struct {
	Name string  `json:"name"`
	Misc *string `json:"misc"`
}

type WaitlistJoinInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type WaitlistStatusResult struct {
	Position int `json:"position"`
	Waiting  int `json:"waiting"`
}

// SignupService is the unauthenticated collaborator surface for the signup
// page. Tournaments are addressed by slug alone; only brackets still in
// registration resolve at all.
type SignupService interface {
	Lookup(ctx context.Context, slug, name string) (*SignupLookupResult, error)
	Signup(ctx context.Context, slug string, input SignupInput) (*models.Participant, error)
	WaitlistJoin(ctx context.Context, slug string, input WaitlistJoinInput) (*models.WaitlistEntry, error)
	WaitlistLeave(ctx context.Context, slug, email string) error
	WaitlistStatus(ctx context.Context, slug, email string) (*WaitlistStatusResult, error)
}

type signupService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	waitlistRepo    repositories.WaitlistRepository
	bus             *events.Bus
	locks           *LockTable
	logger          *slog.Logger
}

func NewSignupService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	waitlistRepo repositories.WaitlistRepository,
	bus *events.Bus,
	locks *LockTable,
	logger *slog.Logger,
) SignupService {
	return &signupService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		waitlistRepo:    waitlistRepo,
		bus:             bus,
		locks:           locks,
		logger:          logger,
	}
}

func (s *signupService) resolve(ctx context.Context, slug string) (*models.Tournament, error) {
	t, err := s.tournamentRepo.FindOpenBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return t, nil
}

// Lookup finds roster entries by name: an exact case-insensitive hit wins,
// otherwise a substring search. The tournament summary rides along so the
// page can show cap and state without a second request.
func (s *signupService) Lookup(ctx context.Context, slug, name string) (*SignupLookupResult, error) {
	t, err := s.resolve(ctx, slug)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	var participants []models.Participant
	if name != "" {
		if p, err := s.participantRepo.FindByName(ctx, nil, t.ID, name); err == nil {
			participants = []models.Participant{*p}
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return nil, err
		} else {
			participants, err = s.participantRepo.SearchByName(ctx, t.ID, name)
			if err != nil {
				return nil, err
			}
		}
	} else {
		participants, err = s.participantRepo.ListByTournament(ctx, nil, t.ID)
		if err != nil {
			return nil, err
		}
	}

	view, err := s.tournamentView(ctx, t)
	if err != nil {
		return nil, err
	}
	return &SignupLookupResult{Tournament: *view, Participants: participants}, nil
}

func (s *signupService) Signup(ctx context.Context, slug string, input SignupInput) (*models.Participant, error) {
	t, err := s.resolve(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotInSignup
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var p *models.Participant
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.participantRepo.FindByName(ctx, tx, t.ID, name); err == nil {
			return ErrParticipantNameConflict
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return err
		}
		roster, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if t.SignupCap > 0 && len(roster) >= t.SignupCap {
			return ErrSignupCapReached
		}
		p = &models.Participant{
			UserID:       t.UserID,
			TournamentID: t.ID,
			Name:         name,
			Seed:         len(roster) + 1,
			Active:       true,
			Misc:         normalizeMisc(input.Misc),
		}
		return mapParticipantRepoError(s.participantRepo.Create(ctx, tx, p))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "public signup",
		slog.Int("tournament_id", t.ID),
		slog.Int("participant_id", p.ID),
	)
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: events.ParticipantAdded, TournamentID: t.ID, Payload: p,
	})
	return p, nil
}

func (s *signupService) WaitlistJoin(ctx context.Context, slug string, input WaitlistJoinInput) (*models.WaitlistEntry, error) {
	t, err := s.resolve(ctx, slug)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotInSignup
	}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" {
		return nil, ErrNameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var entry *models.WaitlistEntry
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.waitlistRepo.FindByEmail(ctx, tx, t.ID, email); err == nil {
			return ErrAlreadyOnWaitlist
		} else if !errors.Is(err, repositories.ErrWaitlistEntryNotFound) {
			return err
		}
		position, err := s.waitlistRepo.NextPosition(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		entry = &models.WaitlistEntry{
			UserID:       t.UserID,
			TournamentID: t.ID,
			Name:         name,
			Email:        email,
			Position:     position,
			Status:       models.WaitlistWaiting,
		}
		return s.waitlistRepo.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "waitlist joined",
		slog.Int("tournament_id", t.ID),
		slog.Int("position", entry.Position),
	)
	return entry, nil
}

func (s *signupService) WaitlistLeave(ctx context.Context, slug, email string) error {
	t, err := s.resolve(ctx, slug)
	if err != nil {
		return err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrEmailRequired
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		entry, err := s.waitlistRepo.FindByEmail(ctx, tx, t.ID, email)
		if err != nil {
			return mapWaitlistRepoError(err)
		}
		if err := s.waitlistRepo.UpdateStatus(ctx, tx, entry.ID, models.WaitlistRemoved, nil); err != nil {
			return err
		}
		return compactWaitlist(ctx, tx, s.waitlistRepo, t.ID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "waitlist left", slog.Int("tournament_id", t.ID))
	return nil
}

func (s *signupService) WaitlistStatus(ctx context.Context, slug, email string) (*WaitlistStatusResult, error) {
	t, err := s.resolve(ctx, slug)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	entry, err := s.waitlistRepo.FindByEmail(ctx, nil, t.ID, email)
	if err != nil {
		return nil, mapWaitlistRepoError(err)
	}
	waiting, err := s.waitlistRepo.ListWaiting(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	return &WaitlistStatusResult{Position: entry.Position, Waiting: len(waiting)}, nil
}

func (s *signupService) tournamentView(ctx context.Context, t *models.Tournament) (*SignupTournamentView, error) {
	roster, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	view := &SignupTournamentView{
		Name:           t.Name,
		GameName:       t.GameName,
		TournamentType: t.TournamentType,
		State:          t.State,
		SignupCap:      t.SignupCap,
		SignupCount:    len(roster),
	}
	if t.SignupCap > 0 {
		left := t.SignupCap - len(roster)
		if left < 0 {
			left = 0
		}
		view.SpotsLeft = &left
	}
	return view, nil
}

// compactWaitlist renumbers the surviving waiting entries 1..M.
func compactWaitlist(ctx context.Context, tx *sql.Tx, repo repositories.WaitlistRepository, tournamentID int) error {
	waiting, err := repo.ListWaiting(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	for i := range waiting {
		want := i + 1
		if waiting[i].Position == want {
			continue
		}
		if err := repo.UpdatePosition(ctx, tx, waiting[i].ID, want); err != nil {
			return err
		}
	}
	return nil
}

// promoteFromWaitlist moves the head of the waitlist onto the roster when a
// registration slot opens. Returns nil without error when nobody is waiting.
func promoteFromWaitlist(
	ctx context.Context,
	tx *sql.Tx,
	waitlistRepo repositories.WaitlistRepository,
	participantRepo repositories.ParticipantRepository,
	t *models.Tournament,
) (*models.Participant, error) {
	waiting, err := waitlistRepo.ListWaiting(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	head := waiting[0]

	roster, err := participantRepo.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	p := &models.Participant{
		UserID:       t.UserID,
		TournamentID: t.ID,
		Name:         head.Name,
		Seed:         len(roster) + 1,
		Active:       true,
	}
	if err := participantRepo.Create(ctx, tx, p); err != nil {
		// A name collision just leaves the entry waiting for the host to sort out.
		if errors.Is(err, repositories.ErrParticipantConflict) {
			return nil, nil
		}
		return nil, err
	}
	if err := waitlistRepo.UpdateStatus(ctx, tx, head.ID, models.WaitlistPromoted, nowPtr()); err != nil {
		return nil, err
	}
	if err := compactWaitlist(ctx, tx, waitlistRepo, t.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func mapWaitlistRepoError(err error) error {
	if errors.Is(err, repositories.ErrWaitlistEntryNotFound) {
		return ErrWaitlistEntryNotFound
	}
	return err
}
