package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bracketops/tournament-core/brackets"
	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// CreateTournamentInput carries the host-supplied fields for a new
// tournament. Empty option fields fall back to defaults.
type CreateTournamentInput struct {
	Name                string                     `json:"name"`
	GameName            string                     `json:"game_name"`
	TournamentType      models.TournamentType      `json:"tournament_type"`
	Description         *string                    `json:"description"`
	SignupCap           int                        `json:"signup_cap"`
	HoldThirdPlaceMatch bool                       `json:"hold_third_place_match"`
	GrandFinalsModifier models.GrandFinalsModifier `json:"grand_finals_modifier"`
	SwissRounds         int                        `json:"swiss_rounds"`
	RankedBy            models.RankedBy            `json:"ranked_by"`
	SequentialPairings  bool                       `json:"sequential_pairings"`
	ByeStrategy         models.ByeStrategy         `json:"bye_strategy"`
}

// UpdateTournamentInput patches a pending tournament. Nil fields are left
// untouched. Renaming does not re-derive the slug: printed flyers and
// bookmarks keep working.
type UpdateTournamentInput struct {
	Name                *string                     `json:"name"`
	GameName            *string                     `json:"game_name"`
	TournamentType      *models.TournamentType      `json:"tournament_type"`
	Description         *string                     `json:"description"`
	SignupCap           *int                        `json:"signup_cap"`
	HoldThirdPlaceMatch *bool                       `json:"hold_third_place_match"`
	GrandFinalsModifier *models.GrandFinalsModifier `json:"grand_finals_modifier"`
	SwissRounds         *int                        `json:"swiss_rounds"`
	RankedBy            *models.RankedBy            `json:"ranked_by"`
	SequentialPairings  *bool                       `json:"sequential_pairings"`
	ByeStrategy         *models.ByeStrategy         `json:"bye_strategy"`
}

// TournamentBuckets groups a tenant's tournaments by lifecycle phase.
type TournamentBuckets struct {
	Registration []models.Tournament `json:"registration"`
	Active       []models.Tournament `json:"active"`
	Completed    []models.Tournament `json:"completed"`
}

// TournamentStats is the dashboard summary for one tournament. Counts and
// progress exclude byes, which complete themselves at generation time.
type TournamentStats struct {
	ParticipantCount int           `json:"participant_count"`
	CheckedInCount   int           `json:"checked_in_count"`
	MatchCount       int           `json:"match_count"`
	CompletedCount   int           `json:"completed_count"`
	OpenCount        int           `json:"open_count"`
	ProgressPercent  int           `json:"progress_percent"`
	StationCount     int           `json:"station_count"`
	CanStart         bool          `json:"can_start"`
	CanReset         bool          `json:"can_reset"`
	NextMatch        *models.Match `json:"next_match,omitempty"`
}

type TournamentService interface {
	Create(ctx context.Context, scope Scope, input CreateTournamentInput) (*models.Tournament, error)
	Resolve(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	List(ctx context.Context, scope Scope) (*TournamentBuckets, error)
	Update(ctx context.Context, scope Scope, ref string, input UpdateTournamentInput) (*models.Tournament, error)
	Delete(ctx context.Context, scope Scope, ref string) error
	OpenCheckIn(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	CloseCheckIn(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	Start(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	Reset(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	Complete(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	Bracket(ctx context.Context, scope Scope, ref string) (*models.Tournament, error)
	Standings(ctx context.Context, scope Scope, ref string) ([]brackets.Standing, error)
	Stats(ctx context.Context, scope Scope, ref string) (*TournamentStats, error)
	NextSwissRound(ctx context.Context, scope Scope, ref string) ([]models.Match, error)
}

type tournamentService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	stationRepo     repositories.StationRepository
	historyRepo     repositories.HistoryRepository
	bus             *events.Bus
	locks           *LockTable
	logger          *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	stationRepo repositories.StationRepository,
	historyRepo repositories.HistoryRepository,
	bus *events.Bus,
	locks *LockTable,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		stationRepo:     stationRepo,
		historyRepo:     historyRepo,
		bus:             bus,
		locks:           locks,
		logger:          logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, scope Scope, input CreateTournamentInput) (*models.Tournament, error) {
	if !scope.CanWrite() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	t := &models.Tournament{
		UserID:              scope.TenantID,
		Name:                name,
		GameName:            strings.TrimSpace(input.GameName),
		TournamentType:      input.TournamentType,
		State:               models.TournamentPending,
		Description:         input.Description,
		SignupCap:           input.SignupCap,
		HoldThirdPlaceMatch: input.HoldThirdPlaceMatch,
		GrandFinalsModifier: input.GrandFinalsModifier,
		SwissRounds:         input.SwissRounds,
		RankedBy:            input.RankedBy,
		SequentialPairings:  input.SequentialPairings,
		ByeStrategy:         input.ByeStrategy,
	}
	applyTournamentDefaults(t)
	if err := validateTournamentOptions(t); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, scope.TenantID, name)
	if err != nil {
		return nil, err
	}
	t.Slug = slug

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, mapTournamentRepoError(err)
	}

	s.logger.InfoContext(ctx, "tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("user_id", t.UserID),
		slog.String("slug", t.Slug),
		slog.String("type", string(t.TournamentType)),
	)
	s.publish(t, events.TournamentCreated, t)
	return t, nil
}

func (s *tournamentService) Resolve(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	return resolveTournament(ctx, s.tournamentRepo, scope, ref)
}

func (s *tournamentService) List(ctx context.Context, scope Scope) (*TournamentBuckets, error) {
	filter := repositories.ListTournamentsFilter{}
	if !scope.ViewAll {
		tenantID := scope.TenantID
		filter.UserID = &tenantID
	}
	all, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	buckets := &TournamentBuckets{
		Registration: []models.Tournament{},
		Active:       []models.Tournament{},
		Completed:    []models.Tournament{},
	}
	for _, t := range all {
		switch {
		case t.InRegistration():
			buckets.Registration = append(buckets.Registration, t)
		case t.Running():
			buckets.Active = append(buckets.Active, t)
		default:
			buckets.Completed = append(buckets.Completed, t)
		}
	}
	return buckets, nil
}

func (s *tournamentService) Update(ctx context.Context, scope Scope, ref string, input UpdateTournamentInput) (*models.Tournament, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	if t.State != models.TournamentPending {
		return nil, ErrTournamentNotPending
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		t.Name = name
	}
	if input.GameName != nil {
		t.GameName = strings.TrimSpace(*input.GameName)
	}
	if input.TournamentType != nil {
		t.TournamentType = *input.TournamentType
	}
	if input.Description != nil {
		if *input.Description == "" {
			t.Description = nil
		} else {
			t.Description = input.Description
		}
	}
	if input.SignupCap != nil {
		t.SignupCap = *input.SignupCap
	}
	if input.HoldThirdPlaceMatch != nil {
		t.HoldThirdPlaceMatch = *input.HoldThirdPlaceMatch
	}
	if input.GrandFinalsModifier != nil {
		t.GrandFinalsModifier = *input.GrandFinalsModifier
	}
	if input.SwissRounds != nil {
		t.SwissRounds = *input.SwissRounds
	}
	if input.RankedBy != nil {
		t.RankedBy = *input.RankedBy
	}
	if input.SequentialPairings != nil {
		t.SequentialPairings = *input.SequentialPairings
	}
	if input.ByeStrategy != nil {
		t.ByeStrategy = *input.ByeStrategy
	}
	if err := validateTournamentOptions(t); err != nil {
		return nil, err
	}

	if err := s.tournamentRepo.Update(ctx, s.db, t); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	s.publish(t, events.TournamentUpdated, t)
	return t, nil
}

func (s *tournamentService) Delete(ctx context.Context, scope Scope, ref string) error {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return err
	}
	if err := s.tournamentRepo.Delete(ctx, t.ID); err != nil {
		return mapTournamentRepoError(err)
	}
	s.logger.InfoContext(ctx, "tournament deleted",
		slog.Int("tournament_id", t.ID),
		slog.String("slug", t.Slug),
	)
	s.publish(t, events.TournamentDeleted, t)
	return nil
}

func (s *tournamentService) OpenCheckIn(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	return s.setCheckIn(ctx, scope, ref, true)
}

func (s *tournamentService) CloseCheckIn(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	return s.setCheckIn(ctx, scope, ref, false)
}

// setCheckIn toggles pending <-> checking_in. Re-applying the current state
// is a no-op so double clicks from the host UI do not error.
func (s *tournamentService) setCheckIn(ctx context.Context, scope Scope, ref string, open bool) (*models.Tournament, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	target := models.TournamentPending
	if open {
		target = models.TournamentCheckingIn
	}
	if t.State == target {
		return t, nil
	}
	if !t.InRegistration() {
		return nil, ErrTournamentNotPending
	}
	if err := s.tournamentRepo.UpdateState(ctx, s.db, t.ID, target, nil, nil); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	t.State = target
	s.publish(t, events.TournamentUpdated, t)
	return t, nil
}

func (s *tournamentService) Start(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	// Re-read under the lock: a concurrent start may have won the race.
	t, err = s.tournamentRepo.GetByID(ctx, t.ID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if !t.InRegistration() {
		return nil, ErrTournamentNotPending
	}

	participants, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	entrants := activeEntrants(participants)
	if len(entrants) < 2 {
		if len(entrants) == 1 && t.TournamentType == models.TypeSingleElim {
			return s.startSolo(ctx, t, entrants[0])
		}
		return nil, ErrNotEnoughParticipants
	}
	if t.TournamentType == models.TypeSwiss && t.SwissRounds < 1 {
		return nil, ErrInvalidSwissRounds
	}

	gen, err := brackets.ForType(t.TournamentType)
	if err != nil {
		return nil, ErrInvalidTournamentType
	}
	descriptors, err := gen.GenerateBracket(ctx, brackets.GenerateParams{Tournament: t, Entrants: entrants})
	if err != nil {
		if errors.Is(err, brackets.ErrNotEnoughEntrants) {
			return nil, ErrNotEnoughParticipants
		}
		return nil, fmt.Errorf("generate bracket: %w", err)
	}

	now := time.Now().UTC()
	var persisted []models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		persisted, txErr = s.persistBracket(ctx, tx, t, descriptors, now)
		if txErr != nil {
			return txErr
		}
		return s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentUnderway, &now, nil)
	})
	if err != nil {
		return nil, err
	}

	t.State = models.TournamentUnderway
	t.StartedAt = &now
	t.Matches = persisted

	s.logger.InfoContext(ctx, "tournament started",
		slog.Int("tournament_id", t.ID),
		slog.String("type", string(t.TournamentType)),
		slog.Int("entrants", len(entrants)),
		slog.Int("matches", len(persisted)),
	)
	s.publish(t, events.TournamentStarted, t)
	s.bus.Publish(events.FlyerRoom(t.UserID), events.Event{
		Event: events.TournamentStarted, TournamentID: t.ID, Payload: t,
	})
	s.publishMatches(t, persisted)
	return t, nil
}

// startSolo completes a one-entrant single elimination on the spot: there is
// nothing to play, the lone participant takes rank 1.
func (s *tournamentService) startSolo(ctx context.Context, t *models.Tournament, entrant brackets.Entrant) (*models.Tournament, error) {
	now := time.Now().UTC()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		rank := 1
		if err := s.participantRepo.SetFinalRank(ctx, tx, entrant.ParticipantID, &rank); err != nil {
			return err
		}
		return s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentComplete, &now, &now)
	})
	if err != nil {
		return nil, err
	}
	t.State = models.TournamentComplete
	t.StartedAt = &now
	t.CompletedAt = &now
	t.Matches = []models.Match{}

	s.logger.InfoContext(ctx, "tournament auto-completed with single entrant",
		slog.Int("tournament_id", t.ID),
	)
	s.publish(t, events.TournamentStarted, t)
	s.bus.Publish(events.FlyerRoom(t.UserID), events.Event{
		Event: events.TournamentStarted, TournamentID: t.ID, Payload: t,
	})
	s.publish(t, events.TournamentCompleted, t)
	return t, nil
}

func (s *tournamentService) Reset(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	t, err = s.tournamentRepo.GetByID(ctx, t.ID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if t.InRegistration() {
		return nil, ErrTournamentNotUnderway
	}
	// Byes complete themselves at generation time, so only played matches
	// block a reset.
	completed, err := s.matchRepo.CountCompleted(ctx, s.db, t.ID, true)
	if err != nil {
		return nil, err
	}
	if completed > 0 {
		return nil, ErrTournamentNotResettable
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.stationRepo.ClearByTournament(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := s.matchRepo.DeleteByTournament(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := s.historyRepo.DeleteByTournament(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := s.participantRepo.ClearFinalRanks(ctx, tx, t.ID); err != nil {
			return err
		}
		return s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentPending, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	t.State = models.TournamentPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Matches = []models.Match{}

	s.logger.InfoContext(ctx, "tournament reset", slog.Int("tournament_id", t.ID))
	s.publish(t, events.TournamentReset, t)
	s.publishMatches(t, []models.Match{})
	return t, nil
}

func (s *tournamentService) Complete(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	t, err = s.tournamentRepo.GetByID(ctx, t.ID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if !t.Running() {
		return nil, ErrTournamentNotUnderway
	}

	incomplete, err := s.matchRepo.CountIncomplete(ctx, s.db, t.ID, true)
	if err != nil {
		return nil, err
	}
	if incomplete > 0 {
		return nil, ErrMatchesIncomplete
	}

	participants, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, s.db, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		return nil, err
	}

	ranks, err := brackets.ComputeFinalRanks(t, activeEntrants(participants), matchResults(t, matches))
	if err != nil {
		return nil, fmt.Errorf("compute final ranks: %w", err)
	}

	now := time.Now().UTC()
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for pid, rank := range ranks {
			r := rank
			if err := s.participantRepo.SetFinalRank(ctx, tx, pid, &r); err != nil {
				return err
			}
		}
		return s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentComplete, t.StartedAt, &now)
	})
	if err != nil {
		return nil, err
	}

	t.State = models.TournamentComplete
	t.CompletedAt = &now

	s.logger.InfoContext(ctx, "tournament completed",
		slog.Int("tournament_id", t.ID),
		slog.Int("ranked", len(ranks)),
	)
	s.publish(t, events.TournamentCompleted, t)
	return t, nil
}

// Bracket returns the tournament with its full roster, match list, and
// stations loaded, which is everything a bracket view needs in one call.
func (s *tournamentService) Bracket(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	t, err := s.Resolve(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gctx, nil, t.ID)
		if err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		t.Participants = participants
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gctx, s.db, t.ID, repositories.ListMatchesFilter{})
		if err != nil {
			return fmt.Errorf("load matches: %w", err)
		}
		t.Matches = matches
		return nil
	})
	g.Go(func() error {
		stations, err := s.stationRepo.ListByTournament(gctx, s.db, t.ID)
		if err != nil {
			return fmt.Errorf("load stations: %w", err)
		}
		t.Stations = stations
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// Standings computes the live table over every registered participant, byes
// and forfeits folded in per the tournament's ranked_by.
func (s *tournamentService) Standings(ctx context.Context, scope Scope, ref string) ([]brackets.Standing, error) {
	t, err := s.Resolve(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, s.db, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		return nil, err
	}
	return brackets.ComputeStandings(allEntrants(participants), matchResults(t, matches), t.RankedBy), nil
}

func (s *tournamentService) Stats(ctx context.Context, scope Scope, ref string) (*TournamentStats, error) {
	t, err := s.Resolve(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	stats := &TournamentStats{}
	var participants []models.Participant
	var matches []models.Match

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		participants, err = s.participantRepo.ListByTournament(gctx, nil, t.ID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gctx, s.db, t.ID, repositories.ListMatchesFilter{})
		return err
	})
	g.Go(func() error {
		stations, err := s.stationRepo.ListByTournament(gctx, s.db, t.ID)
		if err != nil {
			return err
		}
		stats.StationCount = len(stations)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.ParticipantCount = len(participants)
	active := 0
	for _, p := range participants {
		if p.Active {
			active++
		}
		if p.CheckedIn {
			stats.CheckedInCount++
		}
	}
	for i := range matches {
		m := &matches[i]
		if m.IsBye {
			continue
		}
		stats.MatchCount++
		switch m.State {
		case models.MatchComplete:
			stats.CompletedCount++
		case models.MatchOpen:
			stats.OpenCount++
		}
	}
	if stats.MatchCount > 0 {
		stats.ProgressPercent = stats.CompletedCount * 100 / stats.MatchCount
	} else if t.State == models.TournamentComplete {
		stats.ProgressPercent = 100
	}

	// The same preconditions Start and Reset enforce.
	minEntrants := 2
	if t.TournamentType == models.TypeSingleElim {
		minEntrants = 1
	}
	stats.CanStart = t.InRegistration() && active >= minEntrants &&
		(t.TournamentType != models.TypeSwiss || t.SwissRounds >= 1)
	stats.CanReset = !t.InRegistration() && stats.CompletedCount == 0

	stats.NextMatch = nextPlayableMatch(matches)
	return stats, nil
}

func (s *tournamentService) NextSwissRound(ctx context.Context, scope Scope, ref string) ([]models.Match, error) {
	t, err := s.resolveForWrite(ctx, scope, ref)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	t, err = s.tournamentRepo.GetByID(ctx, t.ID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if t.TournamentType != models.TypeSwiss {
		return nil, fmt.Errorf("%w: next round only applies to swiss tournaments", ErrValidationFailed)
	}
	if t.State != models.TournamentUnderway {
		return nil, ErrTournamentNotUnderway
	}

	matches, err := s.matchRepo.ListByTournament(ctx, s.db, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		return nil, err
	}
	currentRound := 0
	for i := range matches {
		if matches[i].Round > currentRound {
			currentRound = matches[i].Round
		}
	}
	if currentRound >= t.SwissRounds {
		return nil, ErrSwissRoundsExhausted
	}
	results := matchResults(t, matches)
	if !brackets.SwissRoundComplete(results, currentRound) {
		return nil, ErrSwissRoundIncomplete
	}

	participants, err := s.participantRepo.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	descriptors, err := brackets.NextSwissRound(activeEntrants(participants), results, currentRound+1, len(matches))
	if err != nil {
		return nil, fmt.Errorf("pair swiss round %d: %w", currentRound+1, err)
	}

	now := time.Now().UTC()
	var persisted []models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		persisted, txErr = s.persistBracket(ctx, tx, t, descriptors, now)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "swiss round paired",
		slog.Int("tournament_id", t.ID),
		slog.Int("round", currentRound+1),
		slog.Int("matches", len(persisted)),
	)
	s.publishMatches(t, append(matches, persisted...))
	return persisted, nil
}

// persistBracket inserts an emitted bracket inside tx. Descriptors reference
// each other by identifier while rows reference by database id, so this runs
// two passes: insert every row, then patch the prerequisite columns.
func (s *tournamentService) persistBracket(ctx context.Context, tx *sql.Tx, t *models.Tournament, descriptors []*brackets.Descriptor, now time.Time) ([]models.Match, error) {
	idFor := make(map[string]int, len(descriptors))
	matches := make([]models.Match, 0, len(descriptors))

	for _, d := range descriptors {
		m := models.Match{
			UserID:               t.UserID,
			TournamentID:         t.ID,
			Identifier:           d.Identifier,
			Round:                d.Round,
			SuggestedPlayOrder:   d.PlayOrder,
			LosersBracket:        d.LosersBracket,
			Player1ID:            d.Player1ID,
			Player2ID:            d.Player2ID,
			Player1IsPrereqLoser: d.Prereq1Loser,
			Player2IsPrereqLoser: d.Prereq2Loser,
			State:                models.MatchPending,
			IsBye:                d.IsBye,
		}
		switch {
		case d.IsBye && d.AutoWinnerID != nil:
			// Decided at generation time: the byed player advances 1-0.
			winner := *d.AutoWinnerID
			completedAt := now
			m.State = models.MatchComplete
			m.WinnerID = &winner
			m.CompletedAt = &completedAt
			if m.Player1ID != nil && *m.Player1ID == winner {
				m.Player1Score = 1
			} else {
				m.Player2Score = 1
			}
		case d.Player1ID != nil && d.Player2ID != nil:
			m.State = models.MatchOpen
		}
		if err := s.matchRepo.Create(ctx, tx, &m); err != nil {
			return nil, err
		}
		idFor[d.Identifier] = m.ID
		matches = append(matches, m)
	}

	for i, d := range descriptors {
		if d.Prereq1 == nil && d.Prereq2 == nil {
			continue
		}
		var p1, p2 *int
		if d.Prereq1 != nil {
			id, ok := idFor[*d.Prereq1]
			if !ok {
				return nil, fmt.Errorf("bracket references unknown match %q", *d.Prereq1)
			}
			p1 = &id
			matches[i].Player1PrereqMatchID = &id
		}
		if d.Prereq2 != nil {
			id, ok := idFor[*d.Prereq2]
			if !ok {
				return nil, fmt.Errorf("bracket references unknown match %q", *d.Prereq2)
			}
			p2 = &id
			matches[i].Player2PrereqMatchID = &id
		}
		if err := s.matchRepo.UpdatePrereqs(ctx, tx, matches[i].ID, p1, p2); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (s *tournamentService) resolveForWrite(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	return resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
}

// publish fans an event out to the tenant's tournament list room and the
// per-tournament room.
func (s *tournamentService) publish(t *models.Tournament, event string, payload interface{}) {
	evt := events.Event{Event: event, TournamentID: t.ID, Payload: payload}
	s.bus.Publish(events.TournamentsRoom(t.UserID), evt)
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), evt)
}

func (s *tournamentService) publishMatches(t *models.Tournament, matches []models.Match) {
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: events.MatchesUpdate, TournamentID: t.ID, Payload: matches,
	})
}

func applyTournamentDefaults(t *models.Tournament) {
	if t.TournamentType == "" {
		t.TournamentType = models.TypeSingleElim
	}
	if t.RankedBy == "" {
		t.RankedBy = models.RankedByMatchWins
	}
	if t.GrandFinalsModifier == "" {
		t.GrandFinalsModifier = models.GrandFinalsNone
	}
	if t.ByeStrategy == "" {
		t.ByeStrategy = models.ByeTraditional
	}
}

func validateTournamentOptions(t *models.Tournament) error {
	switch t.TournamentType {
	case models.TypeSingleElim, models.TypeDoubleElim, models.TypeRoundRobin, models.TypeSwiss:
	default:
		return ErrInvalidTournamentType
	}
	switch t.RankedBy {
	case models.RankedByMatchWins, models.RankedByGameWins, models.RankedByPointsScored, models.RankedByPointsDifference:
	default:
		return ErrInvalidRankedBy
	}
	switch t.GrandFinalsModifier {
	case models.GrandFinalsNone, models.GrandFinalsSkip, models.GrandFinalsBracketReset:
	default:
		return ErrInvalidGrandFinals
	}
	switch t.ByeStrategy {
	case models.ByeTraditional, models.ByeBalanced, models.ByeCompact:
	default:
		return ErrInvalidByeStrategy
	}
	if t.SwissRounds < 0 {
		return ErrInvalidSwissRounds
	}
	if t.SignupCap < 0 {
		return fmt.Errorf("%w: signup_cap must not be negative", ErrValidationFailed)
	}
	return nil
}

// uniqueSlug derives a slug from the name and probes for a free one within
// the tenant, suffixing -2, -3, ... on collision.
func (s *tournamentService) uniqueSlug(ctx context.Context, tenantID int, name string) (string, error) {
	base := slugify(name)
	slug := base
	for n := 2; ; n++ {
		exists, err := s.tournamentRepo.SlugExists(ctx, tenantID, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

// slugify lowercases and maps the name onto [a-z0-9_], collapsing runs of
// separators to a single underscore.
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	if b.Len() == 0 {
		return "tournament"
	}
	return b.String()
}

func mapTournamentRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentSlugConflict):
		return ErrSlugConflict
	default:
		return err
	}
}
