package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/metrics"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// ReportResultInput carries one score report. WinnerID may be omitted when
// the scores decide the match on their own; a tie then requires it.
type ReportResultInput struct {
	WinnerID     *int `json:"winner_id"`
	Player1Score int  `json:"player1_score"`
	Player2Score int  `json:"player2_score"`
}

type BatchScoreItem struct {
	MatchID      int  `json:"match_id"`
	WinnerID     *int `json:"winner_id"`
	Player1Score int  `json:"player1_score"`
	Player2Score int  `json:"player2_score"`
}

type BatchScoreOutcome struct {
	MatchID int    `json:"match_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type BatchScoresResult struct {
	Applied  int                 `json:"applied"`
	Failed   int                 `json:"failed"`
	Outcomes []BatchScoreOutcome `json:"outcomes"`
}

type MatchListFilter struct {
	State *models.MatchState
	Round *int
}

// MatchList is the list payload plus the progress summary the bracket UI
// polls for between websocket pushes.
type MatchList struct {
	Matches          []models.Match `json:"matches"`
	CompletedCount   int            `json:"completed_count"`
	ProgressPercent  int            `json:"progress_percent"`
	NextMatchID      *int           `json:"next_match_id,omitempty"`
	NextMatchPlayers []string       `json:"next_match_players,omitempty"`
}

type MatchStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Open          int `json:"open"`
	Underway      int `json:"underway"`
	Completed     int `json:"completed"`
	Byes          int `json:"byes"`
	Rounds        int `json:"rounds"`
	LosersRounds  int `json:"losers_rounds"`
	WithStation   int `json:"with_station"`
	ForfeitCount  int `json:"forfeit_count"`
	CompletedPct  int `json:"completed_pct"`
	RemainingPlay int `json:"remaining_play"`
}

type MatchService interface {
	Get(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error)
	List(ctx context.Context, scope Scope, ref string, filter MatchListFilter) (*MatchList, error)
	Stats(ctx context.Context, scope Scope, ref string) (*MatchStats, error)
	NextMatch(ctx context.Context, scope Scope, ref string) (*models.Match, error)
	MarkUnderway(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error)
	UnmarkUnderway(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error)
	SetWinner(ctx context.Context, scope Scope, ref string, matchID int, input ReportResultInput) (*models.Match, error)
	SetForfeit(ctx context.Context, scope Scope, ref string, matchID, participantID int) (*models.Match, error)
	Reopen(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error)
	ClearScores(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error)
	SetStation(ctx context.Context, scope Scope, ref string, matchID int, stationID *int) (*models.Match, error)
	AutoAssignStations(ctx context.Context, scope Scope, ref string) ([]models.Match, error)
	UndoLast(ctx context.Context, scope Scope, ref string) (*models.Match, error)
	BatchScores(ctx context.Context, scope Scope, ref string, items []BatchScoreItem) (*BatchScoresResult, error)
}

type matchService struct {
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

func NewMatchService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	stationRepo repositories.StationRepository,
	historyRepo repositories.HistoryRepository,
	bus *events.Bus,
	locks *LockTable,
	logger *slog.Logger,
) MatchService {
	return &matchService{
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

func (s *matchService) Get(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	if m.TournamentID != t.ID {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

func (s *matchService) List(ctx context.Context, scope Scope, ref string, filter MatchListFilter) (*MatchList, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, t.ID, repositories.ListMatchesFilter{
		State: filter.State,
		Round: filter.Round,
	})
	if err != nil {
		return nil, err
	}

	// The summary always reflects the whole bracket, not the filtered page.
	all := matches
	if filter.State != nil || filter.Round != nil {
		all, err = s.matchRepo.ListByTournament(ctx, nil, t.ID, repositories.ListMatchesFilter{})
		if err != nil {
			return nil, err
		}
	}

	list := &MatchList{Matches: matches}
	playable := 0
	for i := range all {
		if all[i].IsBye {
			continue
		}
		playable++
		if all[i].State == models.MatchComplete {
			list.CompletedCount++
		}
	}
	if playable > 0 {
		list.ProgressPercent = list.CompletedCount * 100 / playable
	}
	if next := nextPlayableMatch(all); next != nil {
		list.NextMatchID = &next.ID
		list.NextMatchPlayers, err = s.playerNames(ctx, next)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *matchService) Stats(ctx context.Context, scope Scope, ref string) (*MatchStats, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		return nil, err
	}

	stats := &MatchStats{Total: len(matches)}
	playable, completedPlayable := 0, 0
	for i := range matches {
		m := &matches[i]
		switch m.State {
		case models.MatchPending:
			stats.Pending++
		case models.MatchOpen:
			stats.Open++
		case models.MatchUnderway:
			stats.Underway++
		case models.MatchComplete:
			stats.Completed++
		}
		if m.IsBye {
			stats.Byes++
		} else {
			playable++
			if m.State == models.MatchComplete {
				completedPlayable++
			}
		}
		if m.Forfeited {
			stats.ForfeitCount++
		}
		if m.StationID != nil {
			stats.WithStation++
		}
		if m.LosersBracket {
			if r := -m.Round; r > stats.LosersRounds {
				stats.LosersRounds = r
			}
		} else if m.Round > stats.Rounds {
			stats.Rounds = m.Round
		}
	}
	stats.RemainingPlay = playable - completedPlayable
	if playable > 0 {
		stats.CompletedPct = completedPlayable * 100 / playable
	}
	return stats, nil
}

func (s *matchService) NextMatch(ctx context.Context, scope Scope, ref string) (*models.Match, error) {
	t, err := resolveTournament(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, t.ID, repositories.ListMatchesFilter{})
	if err != nil {
		return nil, err
	}
	next := nextPlayableMatch(matches)
	if next == nil {
		return nil, ErrMatchNotFound
	}
	return next, nil
}

func (s *matchService) MarkUnderway(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error) {
	return s.setUnderway(ctx, scope, ref, matchID, true)
}

func (s *matchService) UnmarkUnderway(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error) {
	return s.setUnderway(ctx, scope, ref, matchID, false)
}

func (s *matchService) setUnderway(ctx context.Context, scope Scope, ref string, matchID int, underway bool) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var updated *models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.loadMatch(ctx, tx, t, matchID)
		if err != nil {
			return err
		}
		if underway {
			if m.State != models.MatchOpen {
				return ErrMatchNotOpen
			}
			m.State = models.MatchUnderway
			m.UnderwayAt = nowPtr()
		} else {
			if m.State != models.MatchUnderway {
				return ErrMatchNotUnderway
			}
			m.State = models.MatchOpen
			m.UnderwayAt = nil
		}
		updated = m
		return s.matchRepo.Update(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	s.publishMatch(ctx, t, events.MatchUpdated, updated)
	return updated, nil
}

func (s *matchService) SetWinner(ctx context.Context, scope Scope, ref string, matchID int, input ReportResultInput) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	updated, finished, err := s.completeWithLedger(ctx, t, matchID, input)
	if err != nil {
		return nil, err
	}

	metrics.MatchesCompleted.Inc()
	s.logger.InfoContext(ctx, "match completed",
		slog.Int("tournament_id", t.ID),
		slog.Int("match_id", updated.ID),
		slog.String("identifier", updated.Identifier),
		slog.String("score", updated.ScoreDisplay()),
	)
	s.publishCompletion(ctx, t, updated, finished)
	return updated, nil
}

func (s *matchService) SetForfeit(ctx context.Context, scope Scope, ref string, matchID, participantID int) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	// Forfeits carry no scores; the remaining player wins 0-0.
	var winnerID int
	var finished bool
	var updated *models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.loadMatch(ctx, tx, t, matchID)
		if err != nil {
			return err
		}
		if err := s.ensureScorable(m); err != nil {
			return err
		}
		if !m.HasPlayer(participantID) {
			return ErrParticipantNotInMatch
		}
		winnerID = *m.Opponent(participantID)

		if err := s.appendChange(ctx, tx, t, m, models.ActionSetForfeit); err != nil {
			return err
		}
		if err := s.completeMatch(ctx, tx, t, m, winnerID, 0, 0, true, &participantID); err != nil {
			return err
		}
		updated = m
		finished, err = s.maybeFinishPlay(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.MatchesCompleted.Inc()
	s.logger.InfoContext(ctx, "match forfeited",
		slog.Int("tournament_id", t.ID),
		slog.Int("match_id", updated.ID),
		slog.Int("forfeited_by", participantID),
	)
	s.publishCompletion(ctx, t, updated, finished)
	return updated, nil
}

// completeWithLedger validates a score report, records the before-image and
// applies the completion inside one transaction.
func (s *matchService) completeWithLedger(ctx context.Context, t *models.Tournament, matchID int, input ReportResultInput) (*models.Match, bool, error) {
	var updated *models.Match
	var finished bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.loadMatch(ctx, tx, t, matchID)
		if err != nil {
			return err
		}
		if err := s.ensureScorable(m); err != nil {
			return err
		}
		winnerID, err := resolveWinner(m, input)
		if err != nil {
			return err
		}
		if err := s.appendChange(ctx, tx, t, m, models.ActionSetWinner); err != nil {
			return err
		}
		if err := s.completeMatch(ctx, tx, t, m, winnerID, input.Player1Score, input.Player2Score, false, nil); err != nil {
			return err
		}
		updated = m
		finished, err = s.maybeFinishPlay(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return updated, finished, nil
}

func (s *matchService) Reopen(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error) {
	return s.reopenMatch(ctx, scope, ref, matchID, models.ActionReopen)
}

func (s *matchService) ClearScores(ctx context.Context, scope Scope, ref string, matchID int) (*models.Match, error) {
	return s.reopenMatch(ctx, scope, ref, matchID, models.ActionClearScores)
}

func (s *matchService) reopenMatch(ctx context.Context, scope Scope, ref string, matchID int, action models.ChangeAction) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var updated *models.Match
	var resumed bool
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.loadMatch(ctx, tx, t, matchID)
		if err != nil {
			return err
		}
		if m.IsBye {
			return ErrMatchIsBye
		}
		if m.State != models.MatchComplete {
			return ErrMatchNotComplete
		}
		if err := s.ensureDownstreamReversible(ctx, tx, m.ID); err != nil {
			return err
		}
		if err := s.appendChange(ctx, tx, t, m, action); err != nil {
			return err
		}
		if err := s.uncompleteMatch(ctx, tx, m); err != nil {
			return err
		}
		updated = m
		resumed, err = s.resumePlay(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "match reopened",
		slog.Int("tournament_id", t.ID),
		slog.Int("match_id", updated.ID),
		slog.String("action", string(action)),
	)
	s.publishMatch(ctx, t, events.MatchUpdated, updated)
	if resumed {
		s.publishTournament(t)
	}
	return updated, nil
}

func (s *matchService) SetStation(ctx context.Context, scope Scope, ref string, matchID int, stationID *int) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var updated *models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := s.loadMatch(ctx, tx, t, matchID)
		if err != nil {
			return err
		}
		if stationID == nil {
			return s.releaseStation(ctx, tx, m)
		}
		return s.claimStation(ctx, tx, t, m, *stationID)
	})
	if err != nil {
		return nil, err
	}
	updated, err = s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	s.publishMatch(ctx, t, events.MatchUpdated, updated)
	return updated, nil
}

func (s *matchService) claimStation(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match, stationID int) error {
	if m.IsBye {
		return ErrMatchIsBye
	}
	if m.State != models.MatchOpen && m.State != models.MatchUnderway {
		return ErrMatchNotOpen
	}
	st, err := s.stationRepo.GetByIDExec(ctx, tx, stationID)
	if err != nil {
		return mapStationRepoError(err)
	}
	if st.TournamentID != t.ID {
		return ErrStationNotFound
	}
	if st.CurrentMatchID != nil && *st.CurrentMatchID != m.ID {
		return ErrStationBusy
	}
	if m.StationID != nil && *m.StationID != st.ID {
		if err := s.stationRepo.SetCurrentMatch(ctx, tx, *m.StationID, nil); err != nil {
			return err
		}
	}
	if err := s.stationRepo.SetCurrentMatch(ctx, tx, st.ID, &m.ID); err != nil {
		return err
	}
	m.StationID = &st.ID
	// Putting a match on a station implies play is starting.
	if m.State == models.MatchOpen {
		m.State = models.MatchUnderway
		m.UnderwayAt = nowPtr()
	}
	return s.matchRepo.Update(ctx, tx, m)
}

func (s *matchService) releaseStation(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if m.StationID == nil {
		return nil
	}
	if err := s.stationRepo.SetCurrentMatch(ctx, tx, *m.StationID, nil); err != nil {
		return err
	}
	m.StationID = nil
	return s.matchRepo.Update(ctx, tx, m)
}

func (s *matchService) AutoAssignStations(ctx context.Context, scope Scope, ref string) ([]models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var assigned []models.Match
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		assigned = assigned[:0]
		stations, err := s.stationRepo.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		free := make([]models.Station, 0, len(stations))
		for _, st := range stations {
			if st.CurrentMatchID == nil {
				free = append(free, st)
			}
		}
		sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })
		if len(free) == 0 {
			return nil
		}

		matches, err := s.matchRepo.ListByTournament(ctx, tx, t.ID, repositories.ListMatchesFilter{})
		if err != nil {
			return err
		}
		waiting := make([]*models.Match, 0, len(matches))
		for i := range matches {
			m := &matches[i]
			if m.State == models.MatchOpen && !m.IsBye && m.StationID == nil {
				waiting = append(waiting, m)
			}
		}
		sort.Slice(waiting, func(i, j int) bool { return playsBefore(waiting[i], waiting[j]) })

		now := time.Now().UTC()
		for i := 0; i < len(free) && i < len(waiting); i++ {
			m := waiting[i]
			if err := s.stationRepo.SetCurrentMatch(ctx, tx, free[i].ID, &m.ID); err != nil {
				return err
			}
			m.StationID = &free[i].ID
			m.State = models.MatchUnderway
			underway := now
			m.UnderwayAt = &underway
			if err := s.matchRepo.Update(ctx, tx, m); err != nil {
				return err
			}
			assigned = append(assigned, *m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(assigned) > 0 {
		s.logger.InfoContext(ctx, "stations auto-assigned",
			slog.Int("tournament_id", t.ID),
			slog.Int("count", len(assigned)),
		)
		s.publishSnapshot(ctx, t)
	}
	return assigned, nil
}

func (s *matchService) UndoLast(ctx context.Context, scope Scope, ref string) (*models.Match, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	var updated *models.Match
	var action models.ChangeAction
	var stateFlipped bool
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		change, err := s.historyRepo.Latest(ctx, tx, t.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrNoChangeToUndo) {
				return ErrNothingToUndo
			}
			return err
		}
		// Single-step: once the newest entry is undone there is nothing left
		// until a new write lands.
		if change.Undone {
			return ErrNothingToUndo
		}
		m, err := s.loadMatch(ctx, tx, t, change.MatchID)
		if err != nil {
			return err
		}

		action = change.Action
		switch change.Action {
		case models.ActionSetWinner, models.ActionSetForfeit:
			stateFlipped, err = s.undoCompletion(ctx, tx, t, m, change)
		case models.ActionReopen, models.ActionClearScores:
			stateFlipped, err = s.redoCompletion(ctx, tx, t, m, change)
		default:
			err = fmt.Errorf("ledger action %q cannot be undone", change.Action)
		}
		if err != nil {
			return err
		}
		if err := s.historyRepo.MarkUndone(ctx, tx, change.ID); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "change undone",
		slog.Int("tournament_id", t.ID),
		slog.Int("match_id", updated.ID),
		slog.String("action", string(action)),
	)
	s.publishMatch(ctx, t, events.MatchUpdated, updated)
	if stateFlipped {
		s.publishTournament(t)
	}
	return updated, nil
}

// undoCompletion rolls a set_winner or forfeit back to its before-image.
func (s *matchService) undoCompletion(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match, change *models.MatchChange) (bool, error) {
	if m.State != models.MatchComplete {
		return false, ErrMatchNotComplete
	}
	if err := s.ensureDownstreamReversible(ctx, tx, m.ID); err != nil {
		return false, err
	}
	if err := s.rollbackSuccessors(ctx, tx, m); err != nil {
		return false, err
	}

	m.WinnerID = change.PriorWinnerID
	m.LoserID = change.PriorLoserID
	m.Player1Score = change.PriorPlayer1Score
	m.Player2Score = change.PriorPlayer2Score
	m.Forfeited = change.PriorForfeited
	m.ForfeitedParticipantID = nil
	if change.PriorForfeited {
		m.ForfeitedParticipantID = change.PriorLoserID
	}
	m.State = change.PriorState
	m.CompletedAt = nil
	if m.State != models.MatchUnderway {
		m.UnderwayAt = nil
	}
	if err := s.restoreStationClaim(ctx, tx, m); err != nil {
		return false, err
	}
	if err := s.matchRepo.Update(ctx, tx, m); err != nil {
		return false, err
	}
	return s.resumePlay(ctx, tx, t)
}

// redoCompletion re-applies the completed state a reopen removed.
func (s *matchService) redoCompletion(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match, change *models.MatchChange) (bool, error) {
	if m.State == models.MatchComplete {
		return false, ErrMatchNotOpen
	}
	if change.PriorWinnerID == nil || !m.SlotsFilled() {
		return false, fmt.Errorf("ledger row %d does not restore a completed match", change.ID)
	}
	var forfeitedBy *int
	if change.PriorForfeited {
		forfeitedBy = change.PriorLoserID
	}
	err := s.completeMatch(ctx, tx, t, m, *change.PriorWinnerID,
		change.PriorPlayer1Score, change.PriorPlayer2Score, change.PriorForfeited, forfeitedBy)
	if err != nil {
		return false, err
	}
	return s.maybeFinishPlay(ctx, tx, t)
}

func (s *matchService) BatchScores(ctx context.Context, scope Scope, ref string, items []BatchScoreItem) (*BatchScoresResult, error) {
	t, err := s.resolveRunning(ctx, scope, ref)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(t.ID)
	defer s.locks.Unlock(t.ID)

	result := &BatchScoresResult{Outcomes: make([]BatchScoreOutcome, 0, len(items))}
	finished := false
	for _, item := range items {
		input := ReportResultInput{
			WinnerID:     item.WinnerID,
			Player1Score: item.Player1Score,
			Player2Score: item.Player2Score,
		}
		updated, done, err := s.completeWithLedger(ctx, t, item.MatchID, input)
		if err != nil {
			result.Failed++
			result.Outcomes = append(result.Outcomes, BatchScoreOutcome{MatchID: item.MatchID, Error: err.Error()})
			continue
		}
		metrics.MatchesCompleted.Inc()
		result.Applied++
		result.Outcomes = append(result.Outcomes, BatchScoreOutcome{MatchID: updated.ID, OK: true})
		finished = finished || done
	}

	if result.Applied > 0 {
		s.logger.InfoContext(ctx, "batch scores applied",
			slog.Int("tournament_id", t.ID),
			slog.Int("applied", result.Applied),
			slog.Int("failed", result.Failed),
		)
		s.publishSnapshot(ctx, t)
		if finished {
			s.publishTournament(t)
		}
	}
	return result, nil
}

// resolveRunning resolves the tournament for writing and verifies play is in
// progress. Completed tournaments are frozen; pending ones have no bracket.
func (s *matchService) resolveRunning(ctx context.Context, scope Scope, ref string) (*models.Tournament, error) {
	t, err := resolveTournamentForWrite(ctx, s.tournamentRepo, scope, ref)
	if err != nil {
		return nil, err
	}
	if !t.Running() {
		return nil, ErrTournamentNotUnderway
	}
	return t, nil
}

func (s *matchService) loadMatch(ctx context.Context, tx *sql.Tx, t *models.Tournament, matchID int) (*models.Match, error) {
	m, err := s.matchRepo.GetByIDExec(ctx, tx, matchID)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	if m.TournamentID != t.ID {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

func (s *matchService) ensureScorable(m *models.Match) error {
	if m.IsBye {
		return ErrMatchIsBye
	}
	if m.State != models.MatchOpen && m.State != models.MatchUnderway {
		return ErrMatchNotOpen
	}
	if !m.SlotsFilled() {
		return ErrMatchNotOpen
	}
	return nil
}

func resolveWinner(m *models.Match, input ReportResultInput) (int, error) {
	if input.Player1Score < 0 || input.Player2Score < 0 {
		return 0, ErrInvalidScore
	}
	if input.WinnerID != nil {
		if !m.HasPlayer(*input.WinnerID) {
			return 0, ErrWinnerNotInMatch
		}
		return *input.WinnerID, nil
	}
	switch {
	case input.Player1Score > input.Player2Score:
		return *m.Player1ID, nil
	case input.Player2Score > input.Player1Score:
		return *m.Player2ID, nil
	default:
		return 0, ErrTiedScoreNeedsWinner
	}
}

// appendChange records the match's before-image so the write can be undone,
// then trims the ledger to its retention window.
func (s *matchService) appendChange(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match, action models.ChangeAction) error {
	change := &models.MatchChange{
		UserID:            t.UserID,
		TournamentID:      t.ID,
		MatchID:           m.ID,
		Action:            action,
		PriorState:        m.State,
		PriorWinnerID:     m.WinnerID,
		PriorLoserID:      m.LoserID,
		PriorPlayer1Score: m.Player1Score,
		PriorPlayer2Score: m.Player2Score,
		PriorForfeited:    m.Forfeited,
		Actor:             fmt.Sprintf("tenant:%d", t.UserID),
	}
	if err := s.historyRepo.Append(ctx, tx, change); err != nil {
		return err
	}
	return s.historyRepo.Prune(ctx, tx, t.ID)
}

// completeMatch writes the result, frees the match's station and advances the
// winner and loser into their next matches.
func (s *matchService) completeMatch(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match, winnerID, p1Score, p2Score int, forfeited bool, forfeitedBy *int) error {
	opponent := m.Opponent(winnerID)
	if opponent == nil {
		return ErrWinnerNotInMatch
	}
	loserID := *opponent
	now := time.Now().UTC()

	m.WinnerID = &winnerID
	m.LoserID = &loserID
	m.Player1Score = p1Score
	m.Player2Score = p2Score
	m.Forfeited = forfeited
	m.ForfeitedParticipantID = forfeitedBy
	m.State = models.MatchComplete
	m.CompletedAt = &now
	if err := s.matchRepo.Update(ctx, tx, m); err != nil {
		return err
	}
	if m.StationID != nil {
		if err := s.stationRepo.SetCurrentMatch(ctx, tx, *m.StationID, nil); err != nil {
			return err
		}
	}
	return s.advanceSuccessors(ctx, tx, t, m)
}

// advanceSuccessors copies the winner and loser into every match whose
// prerequisite is m, opening matches whose slots are now full. A bracket
// reset fed entirely by the grand final is voided outright when the
// winners-side champion already took the final.
func (s *matchService) advanceSuccessors(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match) error {
	successors, err := s.matchRepo.ListSuccessors(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	for i := range successors {
		succ := &successors[i]
		changed := false
		if succ.Player1PrereqMatchID != nil && *succ.Player1PrereqMatchID == m.ID {
			succ.Player1ID = m.WinnerID
			if succ.Player1IsPrereqLoser {
				succ.Player1ID = m.LoserID
			}
			changed = true
		}
		if succ.Player2PrereqMatchID != nil && *succ.Player2PrereqMatchID == m.ID {
			succ.Player2ID = m.WinnerID
			if succ.Player2IsPrereqLoser {
				succ.Player2ID = m.LoserID
			}
			changed = true
		}
		if !changed {
			continue
		}

		if isBracketReset(t, m, succ) && *m.WinnerID == *m.Player1ID {
			// The champion with no losses won the grand final; the reset
			// is decided without play, like a bye.
			succ.WinnerID = m.WinnerID
			succ.LoserID = m.LoserID
			succ.State = models.MatchComplete
			succ.IsBye = true
			succ.CompletedAt = nowPtr()
		} else if succ.State == models.MatchPending && succ.SlotsFilled() {
			succ.State = models.MatchOpen
		}
		if err := s.matchRepo.Update(ctx, tx, succ); err != nil {
			return err
		}
	}
	return nil
}

// isBracketReset reports whether succ is the optional rematch hanging off the
// grand final. Both of its slots are fed by the one feeder match; the same
// shape appears for the grand final of a two-entrant bracket, whose feeder is
// a seed match with no prerequisites of its own.
func isBracketReset(t *models.Tournament, feeder, succ *models.Match) bool {
	if t.TournamentType != models.TypeDoubleElim ||
		t.GrandFinalsModifier != models.GrandFinalsBracketReset {
		return false
	}
	if succ.Player1PrereqMatchID == nil || succ.Player2PrereqMatchID == nil {
		return false
	}
	if *succ.Player1PrereqMatchID != *succ.Player2PrereqMatchID {
		return false
	}
	return feeder.Player1PrereqMatchID != nil || feeder.Player2PrereqMatchID != nil
}

// ensureDownstreamReversible refuses to unwind a result that a later played
// match already depends on. Voided resets do not count: they were never
// played and are rolled back with their feeder.
func (s *matchService) ensureDownstreamReversible(ctx context.Context, tx *sql.Tx, matchID int) error {
	successors, err := s.matchRepo.ListSuccessors(ctx, tx, matchID)
	if err != nil {
		return err
	}
	for i := range successors {
		succ := &successors[i]
		if succ.State == models.MatchComplete && !succ.IsBye {
			return ErrDownstreamComplete
		}
		if err := s.ensureDownstreamReversible(ctx, tx, succ.ID); err != nil {
			return err
		}
	}
	return nil
}

// rollbackSuccessors clears the slots m fed. Successors drop back to pending;
// a voided reset is un-voided on the way down.
func (s *matchService) rollbackSuccessors(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	successors, err := s.matchRepo.ListSuccessors(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	for i := range successors {
		succ := &successors[i]
		changed := false
		if succ.Player1PrereqMatchID != nil && *succ.Player1PrereqMatchID == m.ID && succ.Player1ID != nil {
			succ.Player1ID = nil
			changed = true
		}
		if succ.Player2PrereqMatchID != nil && *succ.Player2PrereqMatchID == m.ID && succ.Player2ID != nil {
			succ.Player2ID = nil
			changed = true
		}
		if !changed {
			continue
		}
		if succ.State == models.MatchComplete {
			if err := s.rollbackSuccessors(ctx, tx, succ); err != nil {
				return err
			}
			succ.WinnerID = nil
			succ.LoserID = nil
			succ.Player1Score = 0
			succ.Player2Score = 0
			succ.IsBye = false
			succ.CompletedAt = nil
		}
		if succ.StationID != nil {
			if err := s.stationRepo.SetCurrentMatch(ctx, tx, *succ.StationID, nil); err != nil {
				return err
			}
			succ.StationID = nil
		}
		succ.State = models.MatchPending
		succ.UnderwayAt = nil
		if err := s.matchRepo.Update(ctx, tx, succ); err != nil {
			return err
		}
	}
	return nil
}

// uncompleteMatch returns a completed match to open with empty results. Slots
// keep their players.
func (s *matchService) uncompleteMatch(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if err := s.rollbackSuccessors(ctx, tx, m); err != nil {
		return err
	}
	m.WinnerID = nil
	m.LoserID = nil
	m.Player1Score = 0
	m.Player2Score = 0
	m.Forfeited = false
	m.ForfeitedParticipantID = nil
	m.State = models.MatchOpen
	m.UnderwayAt = nil
	m.CompletedAt = nil
	if err := s.restoreStationClaim(ctx, tx, m); err != nil {
		return err
	}
	return s.matchRepo.Update(ctx, tx, m)
}

// restoreStationClaim re-establishes the station link for a match returning
// to play. If the station was reassigned meanwhile, the match loses it.
func (s *matchService) restoreStationClaim(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if m.StationID == nil {
		return nil
	}
	st, err := s.stationRepo.GetByIDExec(ctx, tx, *m.StationID)
	if err != nil {
		if errors.Is(err, repositories.ErrStationNotFound) {
			m.StationID = nil
			return nil
		}
		return err
	}
	if st.CurrentMatchID == nil {
		return s.stationRepo.SetCurrentMatch(ctx, tx, st.ID, &m.ID)
	}
	if *st.CurrentMatchID != m.ID {
		m.StationID = nil
	}
	return nil
}

// maybeFinishPlay moves the tournament to awaiting_review once every playable
// match is complete. Swiss waits until the last scheduled round exists.
func (s *matchService) maybeFinishPlay(ctx context.Context, tx *sql.Tx, t *models.Tournament) (bool, error) {
	incomplete, err := s.matchRepo.CountIncomplete(ctx, tx, t.ID, true)
	if err != nil {
		return false, err
	}
	if incomplete > 0 {
		return false, nil
	}
	if t.TournamentType == models.TypeSwiss {
		maxRound, err := s.matchRepo.MaxRound(ctx, tx, t.ID)
		if err != nil {
			return false, err
		}
		if maxRound < t.SwissRounds {
			return false, nil
		}
	}
	if t.State != models.TournamentUnderway {
		return false, nil
	}
	if err := s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentAwaitingReview, t.StartedAt, nil); err != nil {
		return false, err
	}
	t.State = models.TournamentAwaitingReview
	return true, nil
}

// resumePlay drops an awaiting_review tournament back to underway after a
// result is unwound.
func (s *matchService) resumePlay(ctx context.Context, tx *sql.Tx, t *models.Tournament) (bool, error) {
	if t.State != models.TournamentAwaitingReview {
		return false, nil
	}
	if err := s.tournamentRepo.UpdateState(ctx, tx, t.ID, models.TournamentUnderway, t.StartedAt, nil); err != nil {
		return false, err
	}
	t.State = models.TournamentUnderway
	return true, nil
}

func (s *matchService) playerNames(ctx context.Context, m *models.Match) ([]string, error) {
	names := make([]string, 0, 2)
	for _, id := range []*int{m.Player1ID, m.Player2ID} {
		if id == nil {
			continue
		}
		p, err := s.participantRepo.GetByID(ctx, *id)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				continue
			}
			return nil, err
		}
		names = append(names, p.Name)
	}
	return names, nil
}

func (s *matchService) publishCompletion(ctx context.Context, t *models.Tournament, m *models.Match, finished bool) {
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: events.MatchCompleted, TournamentID: t.ID, Payload: m,
	})
	s.publishSnapshot(ctx, t)
	if finished {
		s.publishTournament(t)
	}
}

func (s *matchService) publishMatch(ctx context.Context, t *models.Tournament, event string, m *models.Match) {
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), events.Event{
		Event: event, TournamentID: t.ID, Payload: m,
	})
	s.publishSnapshot(ctx, t)
}

// publishSnapshot pushes the whole match list so bracket views never have to
// reconcile partial updates.
func (s *matchService) publishSnapshot(ctx context.Context, t *models.Tournament) {
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

func (s *matchService) publishTournament(t *models.Tournament) {
	evt := events.Event{Event: events.TournamentUpdated, TournamentID: t.ID, Payload: t}
	s.bus.Publish(events.TournamentsRoom(t.UserID), evt)
	s.bus.Publish(events.TournamentRoom(t.UserID, t.ID), evt)
}

func mapMatchRepoError(err error) error {
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return ErrMatchNotFound
	}
	return err
}

func mapStationRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrStationNotFound):
		return ErrStationNotFound
	case errors.Is(err, repositories.ErrStationConflict):
		return ErrStationNameConflict
	default:
		return err
	}
}
