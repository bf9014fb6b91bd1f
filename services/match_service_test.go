package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/models"
)

// Single elimination, four seeds, with a third-place match; Alice should take
// the bracket, Cara the consolation.
func TestMatchPlay_SingleElimWithThirdPlace(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{
		Name:                "Four Seeds",
		HoldThirdPlaceMatch: true,
	})
	ids := env.enroll(t, scope, tour.Slug, "Alice", "Bob", "Cara", "Dan")
	env.start(t, scope, tour.Slug)
	require.Len(t, env.listMatches(t, scope, tour.Slug), 4)

	env.score(t, scope, tour.Slug, ids["Alice"], ids["Dan"], 2, 0)
	env.score(t, scope, tour.Slug, ids["Bob"], ids["Cara"], 2, 1)

	// The semifinal losers meet in the third-place match.
	third := env.openMatchBetween(t, scope, tour.Slug, ids["Cara"], ids["Dan"])
	assert.True(t, third.Player1IsPrereqLoser)
	assert.True(t, third.Player2IsPrereqLoser)

	env.score(t, scope, tour.Slug, ids["Alice"], ids["Bob"], 2, 0)
	env.score(t, scope, tour.Slug, ids["Cara"], ids["Dan"], 2, 0)

	assert.Equal(t, models.TournamentAwaitingReview, env.reload(t, scope, tour.Slug).State)
	env.complete(t, scope, tour.Slug)
	assert.Equal(t, map[string]int{
		"Alice": 1, "Bob": 2, "Cara": 3, "Dan": 4,
	}, env.finalRanks(t, scope, tour.Slug))
}

// Single elimination, three seeds: the top seed byes into the final.
func TestMatchPlay_SingleElimWithBye(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Three Seeds"})
	ids := env.enroll(t, scope, tour.Slug, "Alice", "Bob", "Cara")
	env.start(t, scope, tour.Slug)

	byes := 0
	for _, m := range env.listMatches(t, scope, tour.Slug) {
		if m.IsBye {
			byes++
			require.NotNil(t, m.WinnerID)
			assert.Equal(t, ids["Alice"], *m.WinnerID, "the top seed takes the bye")
		}
	}
	assert.Equal(t, 1, byes)

	env.score(t, scope, tour.Slug, ids["Bob"], ids["Cara"], 2, 0)
	env.score(t, scope, tour.Slug, ids["Alice"], ids["Bob"], 2, 1)

	env.complete(t, scope, tour.Slug)
	assert.Equal(t, map[string]int{
		"Alice": 1, "Bob": 2, "Cara": 3,
	}, env.finalRanks(t, scope, tour.Slug))
}

// Double elimination with a bracket reset: the losers champion takes the
// grand final, forcing and then winning the rematch.
func TestMatchPlay_DoubleElimBracketReset(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{
		Name:                "Reset Run",
		TournamentType:      models.TypeDoubleElim,
		GrandFinalsModifier: models.GrandFinalsBracketReset,
	})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)
	require.Len(t, env.listMatches(t, scope, tour.Slug), 7)

	env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0) // winners semi
	env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 0) // winners semi
	env.score(t, scope, tour.Slug, ids["A"], ids["B"], 2, 1) // winners final
	env.score(t, scope, tour.Slug, ids["C"], ids["D"], 2, 1) // losers round 1
	env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 0) // losers final

	// Grand final: the losers champion wins, so the reset opens for play.
	gf := env.score(t, scope, tour.Slug, ids["B"], ids["A"], 3, 2)
	assert.False(t, gf.IsBye)
	assert.Equal(t, models.TournamentUnderway, env.reload(t, scope, tour.Slug).State)

	reset := env.openMatchBetween(t, scope, tour.Slug, ids["B"], ids["A"])
	assert.Equal(t, models.MatchOpen, reset.State)
	env.score(t, scope, tour.Slug, ids["B"], ids["A"], 3, 1)

	env.complete(t, scope, tour.Slug)
	assert.Equal(t, map[string]int{
		"B": 1, "A": 2, "C": 3, "D": 4,
	}, env.finalRanks(t, scope, tour.Slug))
}

// When the undefeated champion wins the grand final, the reset is decided
// without play and the bracket closes.
func TestMatchPlay_DoubleElimResetVoided(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{
		Name:                "No Reset",
		TournamentType:      models.TypeDoubleElim,
		GrandFinalsModifier: models.GrandFinalsBracketReset,
	})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)
	env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 0)
	env.score(t, scope, tour.Slug, ids["A"], ids["B"], 2, 1)
	env.score(t, scope, tour.Slug, ids["C"], ids["D"], 2, 1)
	env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 0)
	env.score(t, scope, tour.Slug, ids["A"], ids["B"], 3, 1)

	// The voided reset reads as a bye and play is over.
	voided := 0
	for _, m := range env.listMatches(t, scope, tour.Slug) {
		if m.Round > 0 && m.IsBye {
			voided++
			assert.Equal(t, models.MatchComplete, m.State)
			require.NotNil(t, m.WinnerID)
			assert.Equal(t, ids["A"], *m.WinnerID)
		}
	}
	assert.Equal(t, 1, voided)
	assert.Equal(t, models.TournamentAwaitingReview, env.reload(t, scope, tour.Slug).State)

	env.complete(t, scope, tour.Slug)
	assert.Equal(t, map[string]int{
		"A": 1, "B": 2, "C": 3, "D": 4,
	}, env.finalRanks(t, scope, tour.Slug))
}

// Round robin, four seeds, strict win ladder.
func TestMatchPlay_RoundRobinLadder(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{
		Name:           "Ladder",
		TournamentType: models.TypeRoundRobin,
	})
	ids := env.enroll(t, scope, tour.Slug, "P1", "P2", "P3", "P4")
	env.start(t, scope, tour.Slug)
	require.Len(t, env.listMatches(t, scope, tour.Slug), 6)

	env.score(t, scope, tour.Slug, ids["P1"], ids["P2"], 2, 0)
	env.score(t, scope, tour.Slug, ids["P1"], ids["P3"], 2, 0)
	env.score(t, scope, tour.Slug, ids["P1"], ids["P4"], 2, 0)
	env.score(t, scope, tour.Slug, ids["P2"], ids["P3"], 2, 0)
	env.score(t, scope, tour.Slug, ids["P2"], ids["P4"], 2, 0)
	env.score(t, scope, tour.Slug, ids["P3"], ids["P4"], 2, 0)

	env.complete(t, scope, tour.Slug)
	assert.Equal(t, map[string]int{
		"P1": 1, "P2": 2, "P3": 3, "P4": 4,
	}, env.finalRanks(t, scope, tour.Slug))
}

func TestMatchSetWinner_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Rules"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C")
	env.start(t, scope, tour.Slug)

	m := env.openMatchBetween(t, scope, tour.Slug, ids["B"], ids["C"])

	_, err := env.matches.SetWinner(ctx, scope, tour.Slug, m.ID, ReportResultInput{Player1Score: -1})
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = env.matches.SetWinner(ctx, scope, tour.Slug, m.ID, ReportResultInput{Player1Score: 1, Player2Score: 1})
	assert.ErrorIs(t, err, ErrTiedScoreNeedsWinner)

	outsider := ids["A"]
	_, err = env.matches.SetWinner(ctx, scope, tour.Slug, m.ID, ReportResultInput{WinnerID: &outsider, Player1Score: 2})
	assert.ErrorIs(t, err, ErrWinnerNotInMatch)

	// The final has no players yet; the bye was decided at generation.
	for _, other := range env.listMatches(t, scope, tour.Slug) {
		switch {
		case other.State == models.MatchPending:
			_, err = env.matches.SetWinner(ctx, scope, tour.Slug, other.ID, ReportResultInput{Player1Score: 2})
			assert.ErrorIs(t, err, ErrMatchNotOpen)
		case other.IsBye:
			_, err = env.matches.SetWinner(ctx, scope, tour.Slug, other.ID, ReportResultInput{Player1Score: 2})
			assert.ErrorIs(t, err, ErrMatchIsBye)
		}
	}

	// Higher score decides when no winner id is sent.
	updated, err := env.matches.SetWinner(ctx, scope, tour.Slug, m.ID, ReportResultInput{Player1Score: 1, Player2Score: 3})
	require.NoError(t, err)
	require.NotNil(t, updated.WinnerID)
	assert.Equal(t, *m.Player2ID, *updated.WinnerID)
	require.NotNil(t, updated.LoserID)
	assert.Equal(t, *m.Player1ID, *updated.LoserID)
	assert.NotEqual(t, *updated.WinnerID, *updated.LoserID)
}

func TestMatchForfeit_RemainingPlayerWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Forfeits"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	m := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])

	_, err := env.matches.SetForfeit(ctx, scope, tour.Slug, m.ID, ids["B"])
	assert.ErrorIs(t, err, ErrParticipantNotInMatch)

	updated, err := env.matches.SetForfeit(ctx, scope, tour.Slug, m.ID, ids["D"])
	require.NoError(t, err)
	assert.Equal(t, models.MatchComplete, updated.State)
	assert.True(t, updated.Forfeited)
	require.NotNil(t, updated.ForfeitedParticipantID)
	assert.Equal(t, ids["D"], *updated.ForfeitedParticipantID)
	require.NotNil(t, updated.WinnerID)
	assert.Equal(t, ids["A"], *updated.WinnerID)
	assert.Equal(t, 0, updated.Player1Score)
	assert.Equal(t, 0, updated.Player2Score)

	_, err = env.matches.SetForfeit(ctx, scope, tour.Slug, m.ID, ids["D"])
	assert.ErrorIs(t, err, ErrMatchNotOpen)
}

// Undoing a result must restore the exact prior snapshot, including slots
// already advanced downstream.
func TestMatchUndo_RestoresPriorSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Undo"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	semi := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])
	env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)

	// The winner advanced into the final.
	finalBefore := findFedMatch(t, env, scope, tour.Slug, semi.ID)
	assert.True(t, finalBefore.HasPlayer(ids["A"]))

	restored, err := env.matches.UndoLast(ctx, scope, tour.Slug)
	require.NoError(t, err)
	assert.Equal(t, semi.ID, restored.ID)
	assert.Equal(t, models.MatchOpen, restored.State)
	assert.Nil(t, restored.WinnerID)
	assert.Nil(t, restored.LoserID)
	assert.Equal(t, 0, restored.Player1Score)
	assert.Equal(t, 0, restored.Player2Score)
	assert.Nil(t, restored.CompletedAt)

	finalAfter, err := env.matches.Get(ctx, scope, tour.Slug, finalBefore.ID)
	require.NoError(t, err)
	assert.False(t, finalAfter.HasPlayer(ids["A"]), "downstream slot must be vacated")
	assert.Equal(t, models.MatchPending, finalAfter.State)
}

// A second undo with nothing new on the ledger reports so; the ledger is
// single-step, not a full history walk.
func TestMatchUndo_SingleStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{
		Name:                "Undo Once",
		HoldThirdPlaceMatch: true,
	})
	ids := env.enroll(t, scope, tour.Slug, "Alice", "Bob", "Cara", "Dan")
	env.start(t, scope, tour.Slug)

	_, err := env.matches.UndoLast(ctx, scope, tour.Slug)
	assert.ErrorIs(t, err, ErrNothingToUndo, "fresh bracket has no ledger")

	env.score(t, scope, tour.Slug, ids["Alice"], ids["Dan"], 2, 0)
	env.score(t, scope, tour.Slug, ids["Bob"], ids["Cara"], 2, 1)
	final := env.score(t, scope, tour.Slug, ids["Alice"], ids["Bob"], 2, 0)

	thirdBefore := env.openMatchBetween(t, scope, tour.Slug, ids["Cara"], ids["Dan"])

	restored, err := env.matches.UndoLast(ctx, scope, tour.Slug)
	require.NoError(t, err)
	assert.Equal(t, final.ID, restored.ID)
	assert.Equal(t, models.MatchOpen, restored.State)
	assert.Nil(t, restored.WinnerID)

	// The third-place match is fed by the semifinals, not the final, so it
	// keeps its players.
	thirdAfter, err := env.matches.Get(ctx, scope, tour.Slug, thirdBefore.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchOpen, thirdAfter.State)
	assert.True(t, thirdAfter.HasPlayer(ids["Cara"]))
	assert.True(t, thirdAfter.HasPlayer(ids["Dan"]))

	// The reopened final plays before the third-place match.
	next, err := env.matches.NextMatch(ctx, scope, tour.Slug)
	require.NoError(t, err)
	assert.Equal(t, final.ID, next.ID)

	_, err = env.matches.UndoLast(ctx, scope, tour.Slug)
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

// Scoring, reopening, and scoring again with the same inputs must land on an
// identical terminal state.
func TestMatchReopen_RescoreIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Rescore"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	first := env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 1)
	feedBefore := findFedMatch(t, env, scope, tour.Slug, first.ID)

	reopened, err := env.matches.Reopen(ctx, scope, tour.Slug, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchOpen, reopened.State)
	assert.Nil(t, reopened.WinnerID)
	assert.Equal(t, 0, reopened.Player1Score)

	second := env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.WinnerID, *second.WinnerID)
	assert.Equal(t, *first.LoserID, *second.LoserID)
	assert.Equal(t, first.Player1Score, second.Player1Score)
	assert.Equal(t, first.Player2Score, second.Player2Score)

	feedAfter, err := env.matches.Get(ctx, scope, tour.Slug, feedBefore.ID)
	require.NoError(t, err)
	assert.Equal(t, *feedBefore.Player1ID, *feedAfter.Player1ID)
}

func TestMatchReopen_BlockedByCompletedDownstream(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Pinned"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	semi := env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)
	env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 0)
	env.score(t, scope, tour.Slug, ids["A"], ids["B"], 2, 1)

	_, err := env.matches.Reopen(ctx, scope, tour.Slug, semi.ID)
	assert.ErrorIs(t, err, ErrDownstreamComplete)

	// Unwinding the final first frees the semifinal.
	_, err = env.matches.UndoLast(ctx, scope, tour.Slug)
	require.NoError(t, err)
	reopened, err := env.matches.Reopen(ctx, scope, tour.Slug, semi.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchOpen, reopened.State)
}

func TestMatchUnderway_Toggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Underway"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	m := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])

	marked, err := env.matches.MarkUnderway(ctx, scope, tour.Slug, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchUnderway, marked.State)
	assert.NotNil(t, marked.UnderwayAt)

	_, err = env.matches.MarkUnderway(ctx, scope, tour.Slug, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotOpen)

	cleared, err := env.matches.UnmarkUnderway(ctx, scope, tour.Slug, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchOpen, cleared.State)
	assert.Nil(t, cleared.UnderwayAt)

	_, err = env.matches.UnmarkUnderway(ctx, scope, tour.Slug, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotUnderway)
}

func TestMatchStations_ClaimReleaseAndConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Stations"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	tv1, err := env.stations.Create(ctx, scope, tour.Slug, "TV 1")
	require.NoError(t, err)
	tv2, err := env.stations.Create(ctx, scope, tour.Slug, "TV 2")
	require.NoError(t, err)

	_, err = env.stations.Create(ctx, scope, tour.Slug, "TV 1")
	assert.ErrorIs(t, err, ErrStationNameConflict)

	m1 := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])
	m2 := env.openMatchBetween(t, scope, tour.Slug, ids["B"], ids["C"])

	// Claiming a station puts the match underway and links both sides.
	claimed, err := env.matches.SetStation(ctx, scope, tour.Slug, m1.ID, &tv1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchUnderway, claimed.State)
	require.NotNil(t, claimed.StationID)
	assert.Equal(t, tv1.ID, *claimed.StationID)
	assertStationLink(t, env, scope, tour.Slug, tv1.ID, &m1.ID)

	_, err = env.matches.SetStation(ctx, scope, tour.Slug, m2.ID, &tv1.ID)
	assert.ErrorIs(t, err, ErrStationBusy)

	// Moving the match to another station frees the first.
	moved, err := env.matches.SetStation(ctx, scope, tour.Slug, m1.ID, &tv2.ID)
	require.NoError(t, err)
	assert.Equal(t, tv2.ID, *moved.StationID)
	assertStationLink(t, env, scope, tour.Slug, tv1.ID, nil)
	assertStationLink(t, env, scope, tour.Slug, tv2.ID, &m1.ID)

	// Completing the match hands the station back.
	env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)
	assertStationLink(t, env, scope, tour.Slug, tv2.ID, nil)

	// Explicit release also works.
	claimed, err = env.matches.SetStation(ctx, scope, tour.Slug, m2.ID, &tv1.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.StationID)
	released, err := env.matches.SetStation(ctx, scope, tour.Slug, m2.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, released.StationID)
	assertStationLink(t, env, scope, tour.Slug, tv1.ID, nil)

	// A station belonging to another tournament does not resolve.
	other := env.tournament(t, scope, CreateTournamentInput{Name: "Other"})
	env.enroll(t, scope, other.Slug, "X", "Y")
	env.start(t, scope, other.Slug)
	foreign, err := env.stations.Create(ctx, scope, other.Slug, "Afar")
	require.NoError(t, err)
	_, err = env.matches.SetStation(ctx, scope, tour.Slug, m2.ID, &foreign.ID)
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestMatchStations_AutoAssign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Auto"})
	env.enroll(t, scope, tour.Slug, "A", "B", "C", "D", "E", "F", "G", "H")
	env.start(t, scope, tour.Slug)

	tv1, err := env.stations.Create(ctx, scope, tour.Slug, "TV 1")
	require.NoError(t, err)
	tv2, err := env.stations.Create(ctx, scope, tour.Slug, "TV 2")
	require.NoError(t, err)

	assigned, err := env.matches.AutoAssignStations(ctx, scope, tour.Slug)
	require.NoError(t, err)
	require.Len(t, assigned, 2, "two free stations, four waiting matches")

	// Earliest play order fills the lowest station first.
	assert.Less(t, assigned[0].SuggestedPlayOrder, assigned[1].SuggestedPlayOrder)
	assert.Equal(t, tv1.ID, *assigned[0].StationID)
	assert.Equal(t, tv2.ID, *assigned[1].StationID)
	for _, m := range assigned {
		assert.Equal(t, models.MatchUnderway, m.State)
	}

	// Nothing free: a second pass assigns nothing.
	again, err := env.matches.AutoAssignStations(ctx, scope, tour.Slug)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMatchBatchScores_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Batch"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	m1 := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])
	m2 := env.openMatchBetween(t, scope, tour.Slug, ids["B"], ids["C"])

	winA, winB := ids["A"], ids["B"]
	result, err := env.matches.BatchScores(ctx, scope, tour.Slug, []BatchScoreItem{
		{MatchID: m1.ID, WinnerID: &winA, Player1Score: 2},
		{MatchID: 999999, WinnerID: &winB, Player1Score: 2},
		{MatchID: m2.ID, WinnerID: &winB, Player1Score: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 3)
	assert.True(t, result.Outcomes[0].OK)
	assert.False(t, result.Outcomes[1].OK)
	assert.NotEmpty(t, result.Outcomes[1].Error)
	assert.True(t, result.Outcomes[2].OK)

	// Both semifinals are in, so the final is open.
	final := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["B"])
	assert.Equal(t, models.MatchOpen, final.State)
}

func TestMatchList_FiltersAndProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Filters"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)
	env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)

	complete := models.MatchComplete
	list, err := env.matches.List(ctx, scope, tour.Slug, MatchListFilter{State: &complete})
	require.NoError(t, err)
	require.Len(t, list.Matches, 1)
	// The summary covers the whole bracket even when the page is filtered.
	assert.Equal(t, 1, list.CompletedCount)
	assert.Equal(t, 33, list.ProgressPercent)
	require.NotNil(t, list.NextMatchID)
	assert.ElementsMatch(t, []string{"B", "C"}, list.NextMatchPlayers)

	round := 1
	list, err = env.matches.List(ctx, scope, tour.Slug, MatchListFilter{Round: &round})
	require.NoError(t, err)
	assert.Len(t, list.Matches, 2)

	stats, err := env.matches.Stats(ctx, scope, tour.Slug)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 2, stats.Rounds)
	assert.Equal(t, 2, stats.RemainingPlay)
}

func TestMatchAccess_ScopedToTournamentAndTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mine := env.tenant(t, "host@one.test")
	theirs := env.tenant(t, "host@two.test")

	tour := env.tournament(t, mine, CreateTournamentInput{Name: "Mine"})
	ids := env.enroll(t, mine, tour.Slug, "A", "B")
	env.start(t, mine, tour.Slug)
	m := env.openMatchBetween(t, mine, tour.Slug, ids["A"], ids["B"])

	// A match cannot be addressed through a different tournament.
	other := env.tournament(t, mine, CreateTournamentInput{Name: "Decoy"})
	env.enroll(t, mine, other.Slug, "X", "Y")
	env.start(t, mine, other.Slug)
	_, err := env.matches.Get(ctx, mine, other.Slug, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	// Another tenant cannot touch the bracket at all.
	_, err = env.matches.List(ctx, theirs, itoa(tour.ID), MatchListFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.matches.SetWinner(ctx, theirs, itoa(tour.ID), m.ID, ReportResultInput{Player1Score: 2})
	assert.ErrorIs(t, err, ErrForbidden)
}

// Completion events must come off the bus in the order the results landed.
func TestMatchEvents_PublishOrderFollowsCommits(t *testing.T) {
	env := newTestEnv(t)
	scope := env.tenant(t, "host@one.test")

	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Ordered"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	sub := env.bus.Subscribe(events.TournamentRoom(scope.TenantID, tour.ID))
	defer sub.Cancel()

	first := env.score(t, scope, tour.Slug, ids["A"], ids["D"], 2, 0)
	second := env.score(t, scope, tour.Slug, ids["B"], ids["C"], 2, 1)

	var order []int
	for drained := false; !drained; {
		select {
		case evt := <-sub.C:
			if evt.Event == events.MatchCompleted {
				m, ok := evt.Payload.(*models.Match)
				require.True(t, ok)
				order = append(order, m.ID)
			}
		default:
			drained = true
		}
	}
	assert.Equal(t, []int{first.ID, second.ID}, order)
}

// findFedMatch locates the match whose prerequisite links point at feederID.
func findFedMatch(t *testing.T, env *testEnv, scope Scope, ref string, feederID int) *models.Match {
	t.Helper()
	for _, m := range env.listMatches(t, scope, ref) {
		if (m.Player1PrereqMatchID != nil && *m.Player1PrereqMatchID == feederID) ||
			(m.Player2PrereqMatchID != nil && *m.Player2PrereqMatchID == feederID) {
			match := m
			return &match
		}
	}
	t.Fatalf("no match fed by %d", feederID)
	return nil
}

func assertStationLink(t *testing.T, env *testEnv, scope Scope, ref string, stationID int, matchID *int) {
	t.Helper()
	stations, err := env.stations.List(context.Background(), scope, ref)
	require.NoError(t, err)
	for _, st := range stations {
		if st.ID != stationID {
			continue
		}
		if matchID == nil {
			assert.Nil(t, st.CurrentMatchID)
		} else {
			require.NotNil(t, st.CurrentMatchID)
			assert.Equal(t, *matchID, *st.CurrentMatchID)
		}
		return
	}
	t.Fatalf("station %d not found", stationID)
}
