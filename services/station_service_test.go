package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/models"
)

func TestStationCreate_TrimsAndValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Setups"})

	st, err := env.stations.Create(ctx, scope, tour.Slug, "  Setup 1  ")
	require.NoError(t, err)
	assert.Equal(t, "Setup 1", st.Name)
	assert.Nil(t, st.CurrentMatchID)

	_, err = env.stations.Create(ctx, scope, tour.Slug, "   ")
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = env.stations.Create(ctx, scope, tour.Slug, "Setup 1 ")
	assert.ErrorIs(t, err, ErrStationNameConflict, "names are unique per tournament")

	// The same name is free in another tournament.
	other := env.tournament(t, scope, CreateTournamentInput{Name: "Elsewhere"})
	_, err = env.stations.Create(ctx, scope, other.Slug, "Setup 1")
	require.NoError(t, err)

	stations, err := env.stations.List(ctx, scope, tour.Slug)
	require.NoError(t, err)
	require.Len(t, stations, 1)

	// Read access follows tournament visibility.
	_, err = env.stations.List(ctx, Scope{ViewAll: true}, itoa(tour.ID))
	require.NoError(t, err)
	_, err = env.stations.Create(ctx, Scope{ViewAll: true}, itoa(tour.ID), "Setup 2")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStationDelete_ReleasesAssignedMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Teardown"})
	ids := env.enroll(t, scope, tour.Slug, "A", "B", "C", "D")
	env.start(t, scope, tour.Slug)

	st, err := env.stations.Create(ctx, scope, tour.Slug, "Setup 1")
	require.NoError(t, err)
	m := env.openMatchBetween(t, scope, tour.Slug, ids["A"], ids["D"])
	_, err = env.matches.SetStation(ctx, scope, tour.Slug, m.ID, &st.ID)
	require.NoError(t, err)

	require.NoError(t, env.stations.Delete(ctx, scope, tour.Slug, st.ID))

	// The match keeps playing, just without a station.
	freed, err := env.matches.Get(ctx, scope, tour.Slug, m.ID)
	require.NoError(t, err)
	assert.Nil(t, freed.StationID)
	assert.Equal(t, models.MatchUnderway, freed.State)

	err = env.stations.Delete(ctx, scope, tour.Slug, st.ID)
	assert.ErrorIs(t, err, ErrStationNotFound)

	// Stations of other tournaments are invisible here.
	other := env.tournament(t, scope, CreateTournamentInput{Name: "Elsewhere"})
	foreign, err := env.stations.Create(ctx, scope, other.Slug, "Afar")
	require.NoError(t, err)
	err = env.stations.Delete(ctx, scope, tour.Slug, foreign.ID)
	assert.ErrorIs(t, err, ErrStationNotFound)
}
