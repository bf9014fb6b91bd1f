package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bracketops/tournament-core/brackets"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// resolveTournament looks a tournament up by numeric id or by slug and
// enforces the tenant boundary. Slugs are tenant-relative, so a cross-tenant
// slug simply does not exist; a cross-tenant id is a Forbidden, not a
// NotFound, because ids are guessable anyway.
func resolveTournament(ctx context.Context, repo repositories.TournamentRepository, scope Scope, ref string) (*models.Tournament, error) {
	if id, err := strconv.Atoi(ref); err == nil && id > 0 {
		t, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if !scope.Owns(t.UserID) {
			return nil, ErrForbidden
		}
		return t, nil
	}
	if scope.ViewAll {
		// No tenant to resolve a slug against.
		return nil, ErrTournamentNotFound
	}
	t, err := repo.GetBySlug(ctx, scope.TenantID, ref)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	return t, nil
}

func resolveTournamentForWrite(ctx context.Context, repo repositories.TournamentRepository, scope Scope, ref string) (*models.Tournament, error) {
	if !scope.CanWrite() {
		return nil, ErrForbidden
	}
	return resolveTournament(ctx, repo, scope, ref)
}

// withTx runs fn inside a transaction, retrying once when SQLite reports a
// transient busy/locked failure.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	err := runTx(ctx, db, fn)
	if repositories.IsBusy(err) {
		return runTx(ctx, db, fn)
	}
	return err
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// matchResult projects a stored match into the shape the bracket math
// consumes. In single elimination a winners-side match fed by two losers is
// the third-place match; nothing else qualifies.
func matchResult(t *models.Tournament, m *models.Match) brackets.Result {
	r := brackets.Result{
		Round:         m.Round,
		LosersBracket: m.LosersBracket,
		IsBye:         m.IsBye,
		Complete:      m.State == models.MatchComplete,
		Player1Score:  m.Player1Score,
		Player2Score:  m.Player2Score,
	}
	if m.Player1ID != nil {
		r.Player1ID = *m.Player1ID
	}
	if m.Player2ID != nil {
		r.Player2ID = *m.Player2ID
	}
	if m.WinnerID != nil {
		r.WinnerID = *m.WinnerID
	}
	if m.LoserID != nil {
		r.LoserID = *m.LoserID
	}
	if t.TournamentType == models.TypeSingleElim && !m.LosersBracket &&
		m.Player1IsPrereqLoser && m.Player2IsPrereqLoser {
		r.ThirdPlace = true
	}
	return r
}

func matchResults(t *models.Tournament, matches []models.Match) []brackets.Result {
	out := make([]brackets.Result, len(matches))
	for i := range matches {
		out[i] = matchResult(t, &matches[i])
	}
	return out
}

// activeEntrants projects the active roster into seeded bracket entrants.
func activeEntrants(participants []models.Participant) []brackets.Entrant {
	entrants := make([]brackets.Entrant, 0, len(participants))
	for _, p := range participants {
		if p.Active {
			entrants = append(entrants, brackets.Entrant{ParticipantID: p.ID, Seed: p.Seed})
		}
	}
	return entrants
}

func allEntrants(participants []models.Participant) []brackets.Entrant {
	entrants := make([]brackets.Entrant, len(participants))
	for i, p := range participants {
		entrants[i] = brackets.Entrant{ParticipantID: p.ID, Seed: p.Seed}
	}
	return entrants
}

// nextPlayableMatch picks the lowest-ordered open match, breaking play-order
// ties by bracket depth and then id.
func nextPlayableMatch(matches []models.Match) *models.Match {
	var best *models.Match
	for i := range matches {
		m := &matches[i]
		if m.State != models.MatchOpen || m.IsBye {
			continue
		}
		if best == nil || playsBefore(m, best) {
			best = m
		}
	}
	return best
}

func playsBefore(a, b *models.Match) bool {
	if a.SuggestedPlayOrder != b.SuggestedPlayOrder {
		return a.SuggestedPlayOrder < b.SuggestedPlayOrder
	}
	ra, rb := a.Round, b.Round
	if ra < 0 {
		ra = -ra
	}
	if rb < 0 {
		rb = -rb
	}
	if ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func nowPtr() *time.Time {
	now := time.Now().UTC()
	return &now
}
