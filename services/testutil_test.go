package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/db"
	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
	"github.com/bracketops/tournament-core/repositories"
)

// testEnv wires every service over one in-memory database, mirroring the
// graph main assembles. The single-connection pool keeps ":memory:" alive for
// the duration of the test.
type testEnv struct {
	conn *sql.DB
	bus  *events.Bus

	userRepo        repositories.UserRepository
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	stationRepo     repositories.StationRepository
	historyRepo     repositories.HistoryRepository
	waitlistRepo    repositories.WaitlistRepository
	deploymentRepo  repositories.DeploymentRepository

	auth         AuthService
	tournaments  TournamentService
	participants ParticipantService
	matches      MatchService
	stations     StationService
	signup       SignupService
	deployments  DeploymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.Connect(":memory:", 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus()
	locks := NewLockTable()

	env := &testEnv{
		conn:            conn,
		bus:             bus,
		userRepo:        repositories.NewSqliteUserRepository(conn),
		tournamentRepo:  repositories.NewSqliteTournamentRepository(conn),
		participantRepo: repositories.NewSqliteParticipantRepository(conn),
		matchRepo:       repositories.NewSqliteMatchRepository(conn),
		stationRepo:     repositories.NewSqliteStationRepository(conn),
		historyRepo:     repositories.NewSqliteHistoryRepository(conn),
		waitlistRepo:    repositories.NewSqliteWaitlistRepository(conn),
		deploymentRepo:  repositories.NewSqliteDeploymentRepository(conn),
	}

	env.auth = NewAuthService(env.userRepo, "test-secret", time.Hour)
	env.tournaments = NewTournamentService(conn, env.tournamentRepo, env.participantRepo,
		env.matchRepo, env.stationRepo, env.historyRepo, bus, locks, logger)
	env.participants = NewParticipantService(conn, env.tournamentRepo, env.participantRepo,
		env.waitlistRepo, bus, locks, logger)
	env.matches = NewMatchService(conn, env.tournamentRepo, env.participantRepo,
		env.matchRepo, env.stationRepo, env.historyRepo, bus, locks, logger)
	env.stations = NewStationService(conn, env.tournamentRepo, env.stationRepo,
		env.matchRepo, bus, locks, logger)
	env.signup = NewSignupService(conn, env.tournamentRepo, env.participantRepo,
		env.waitlistRepo, bus, locks, logger)
	env.deployments = NewDeploymentService(env.tournamentRepo, env.deploymentRepo, bus, logger)
	return env
}

// tenant inserts a user row directly and returns its write scope. Auth tests
// go through Register; everything else skips the bcrypt cost.
func (e *testEnv) tenant(t *testing.T, email string) Scope {
	t.Helper()
	u := &models.User{
		Email:        email,
		DisplayName:  "host",
		Role:         models.RoleUser,
		PasswordHash: "x",
	}
	require.NoError(t, e.userRepo.Create(context.Background(), u))
	return Scope{TenantID: u.ID}
}

func (e *testEnv) tournament(t *testing.T, scope Scope, input CreateTournamentInput) *models.Tournament {
	t.Helper()
	tour, err := e.tournaments.Create(context.Background(), scope, input)
	require.NoError(t, err)
	return tour
}

// enroll registers the given names in order, so names[i] gets seed i+1.
// Returns name -> participant id.
func (e *testEnv) enroll(t *testing.T, scope Scope, ref string, names ...string) map[string]int {
	t.Helper()
	ids := make(map[string]int, len(names))
	for _, name := range names {
		p, err := e.participants.Add(context.Background(), scope, ref, AddParticipantInput{Name: name})
		require.NoError(t, err)
		ids[name] = p.ID
	}
	return ids
}

func (e *testEnv) start(t *testing.T, scope Scope, ref string) *models.Tournament {
	t.Helper()
	tour, err := e.tournaments.Start(context.Background(), scope, ref)
	require.NoError(t, err)
	return tour
}

func (e *testEnv) listMatches(t *testing.T, scope Scope, ref string) []models.Match {
	t.Helper()
	list, err := e.matches.List(context.Background(), scope, ref, MatchListFilter{})
	require.NoError(t, err)
	return list.Matches
}

// openMatchBetween finds the playable match currently holding both
// participants. Completed matches are skipped so a grand-final rematch
// between the same pair resolves to the live one.
func (e *testEnv) openMatchBetween(t *testing.T, scope Scope, ref string, a, b int) *models.Match {
	t.Helper()
	for _, m := range e.listMatches(t, scope, ref) {
		if m.IsBye || m.State == models.MatchComplete || m.State == models.MatchPending {
			continue
		}
		if m.HasPlayer(a) && m.HasPlayer(b) {
			match := m
			return &match
		}
	}
	t.Fatalf("no open match between participants %d and %d", a, b)
	return nil
}

// score reports winnerID beating loserID. Scores are given winner-first and
// mapped onto the stored slot order.
func (e *testEnv) score(t *testing.T, scope Scope, ref string, winnerID, loserID, winPts, losePts int) *models.Match {
	t.Helper()
	m := e.openMatchBetween(t, scope, ref, winnerID, loserID)
	p1, p2 := winPts, losePts
	if m.Player2ID != nil && *m.Player2ID == winnerID {
		p1, p2 = losePts, winPts
	}
	updated, err := e.matches.SetWinner(context.Background(), scope, ref, m.ID, ReportResultInput{
		WinnerID:     &winnerID,
		Player1Score: p1,
		Player2Score: p2,
	})
	require.NoError(t, err)
	return updated
}

func (e *testEnv) complete(t *testing.T, scope Scope, ref string) *models.Tournament {
	t.Helper()
	tour, err := e.tournaments.Complete(context.Background(), scope, ref)
	require.NoError(t, err)
	return tour
}

// finalRanks maps participant name to its recorded final rank.
func (e *testEnv) finalRanks(t *testing.T, scope Scope, ref string) map[string]int {
	t.Helper()
	roster, err := e.participants.List(context.Background(), scope, ref)
	require.NoError(t, err)
	ranks := make(map[string]int, len(roster))
	for _, p := range roster {
		if p.FinalRank != nil {
			ranks[p.Name] = *p.FinalRank
		}
	}
	return ranks
}

func (e *testEnv) reload(t *testing.T, scope Scope, ref string) *models.Tournament {
	t.Helper()
	tour, err := e.tournaments.Resolve(context.Background(), scope, ref)
	require.NoError(t, err)
	return tour
}

// playThrough scores every currently open match in favor of the lower
// participant id until nothing is left to play.
func (e *testEnv) playThrough(t *testing.T, scope Scope, ref string) {
	t.Helper()
	for {
		played := false
		for _, m := range e.listMatches(t, scope, ref) {
			if m.State != models.MatchOpen || m.IsBye || !m.SlotsFilled() {
				continue
			}
			winner, p1, p2 := *m.Player1ID, 1, 0
			if *m.Player2ID < winner {
				winner, p1, p2 = *m.Player2ID, 0, 1
			}
			_, err := e.matches.SetWinner(context.Background(), scope, ref, m.ID, ReportResultInput{
				WinnerID:     &winner,
				Player1Score: p1,
				Player2Score: p2,
			})
			require.NoError(t, err)
			played = true
		}
		if !played {
			return
		}
	}
}

func itoa(id int) string { return strconv.Itoa(id) }
