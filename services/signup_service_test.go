package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/models"
)

// The public surface resolves by slug alone, and only while a single open
// tournament carries the slug.
func TestSignupLookup_ResolvesUniqueOpenSlug(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenantA := env.tenant(t, "a@host.test")
	tenantB := env.tenant(t, "b@host.test")

	weekly := env.tournament(t, tenantA, CreateTournamentInput{Name: "Weekly"})
	env.enroll(t, tenantA, weekly.Slug, "Alice", "Bob")

	result, err := env.signup.Lookup(ctx, "weekly", "")
	require.NoError(t, err)
	assert.Equal(t, "Weekly", result.Tournament.Name)
	assert.Equal(t, models.TournamentPending, result.Tournament.State)
	assert.Equal(t, 2, result.Tournament.SignupCount)
	assert.Len(t, result.Participants, 2)

	// A second open tournament with the same slug makes the name ambiguous.
	clash := env.tournament(t, tenantB, CreateTournamentInput{Name: "Weekly"})
	require.Equal(t, "weekly", clash.Slug)
	_, err = env.signup.Lookup(ctx, "weekly", "")
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	// Once the clashing bracket starts it stops being open, and the slug is
	// unique again.
	env.enroll(t, tenantB, clash.Slug, "X", "Y")
	env.start(t, tenantB, clash.Slug)
	result, err = env.signup.Lookup(ctx, "weekly", "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Tournament.SignupCount)

	env.start(t, tenantA, weekly.Slug)
	_, err = env.signup.Lookup(ctx, "weekly", "")
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestSignupLookup_NameSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Search"})
	env.enroll(t, scope, tour.Slug, "Alice", "Alicia", "Bob")

	// An exact hit beats the substring scan even when both would match.
	result, err := env.signup.Lookup(ctx, tour.Slug, "alice")
	require.NoError(t, err)
	require.Len(t, result.Participants, 1)
	assert.Equal(t, "Alice", result.Participants[0].Name)

	result, err = env.signup.Lookup(ctx, tour.Slug, "Ali")
	require.NoError(t, err)
	assert.Len(t, result.Participants, 2)

	result, err = env.signup.Lookup(ctx, tour.Slug, "zz")
	require.NoError(t, err)
	assert.Empty(t, result.Participants)
}

func TestSignup_RegistrationWindowAndCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Capped", SignupCap: 3})
	env.enroll(t, scope, tour.Slug, "Alice", "Bob")

	_, err := env.signup.Signup(ctx, tour.Slug, SignupInput{Name: "   "})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = env.signup.Signup(ctx, tour.Slug, SignupInput{Name: "alice"})
	assert.ErrorIs(t, err, ErrParticipantNameConflict)

	dana, err := env.signup.Signup(ctx, tour.Slug, SignupInput{Name: "Dana"})
	require.NoError(t, err)
	assert.Equal(t, 3, dana.Seed)

	_, err = env.signup.Signup(ctx, tour.Slug, SignupInput{Name: "Eve"})
	assert.ErrorIs(t, err, ErrSignupCapReached)

	result, err := env.signup.Lookup(ctx, tour.Slug, "")
	require.NoError(t, err)
	require.NotNil(t, result.Tournament.SpotsLeft)
	assert.Equal(t, 0, *result.Tournament.SpotsLeft)

	// Check-in time: the page still resolves but registration is closed.
	_, err = env.tournaments.OpenCheckIn(ctx, scope, tour.Slug)
	require.NoError(t, err)
	_, err = env.signup.Signup(ctx, tour.Slug, SignupInput{Name: "Frank"})
	assert.ErrorIs(t, err, ErrTournamentNotInSignup)
	_, err = env.signup.Lookup(ctx, tour.Slug, "")
	require.NoError(t, err)
}

func TestSignupWaitlist_QueueOrderAndLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Queue", SignupCap: 2})
	env.enroll(t, scope, tour.Slug, "Alice", "Bob")

	join := func(name, email string) *models.WaitlistEntry {
		entry, err := env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: name, Email: email})
		require.NoError(t, err)
		return entry
	}
	wanda := join("Wanda", "wanda@q.test")
	join("Wes", "wes@q.test")
	walt := join("Walt", "walt@q.test")
	assert.Equal(t, 1, wanda.Position)
	assert.Equal(t, 3, walt.Position)

	// Email matching ignores case.
	_, err := env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Wes", Email: "WES@Q.TEST"})
	assert.ErrorIs(t, err, ErrAlreadyOnWaitlist)

	status, err := env.signup.WaitlistStatus(ctx, tour.Slug, "wes@q.test")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Position)
	assert.Equal(t, 3, status.Waiting)

	// Leaving compacts everyone behind.
	require.NoError(t, env.signup.WaitlistLeave(ctx, tour.Slug, "wanda@q.test"))
	status, err = env.signup.WaitlistStatus(ctx, tour.Slug, "walt@q.test")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Position)
	assert.Equal(t, 2, status.Waiting)

	_, err = env.signup.WaitlistStatus(ctx, tour.Slug, "wanda@q.test")
	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
	err = env.signup.WaitlistLeave(ctx, tour.Slug, "nobody@q.test")
	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
	_, err = env.signup.WaitlistStatus(ctx, tour.Slug, "")
	assert.ErrorIs(t, err, ErrEmailRequired)

	// A departed entrant may queue up again, at the tail.
	again, err := env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Wanda", Email: "wanda@q.test"})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Position)
}

// Removing a roster member under the cap pulls the waitlist head in.
func TestSignupWaitlist_PromotionOnVacancy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Vacancy", SignupCap: 2})
	ids := env.enroll(t, scope, tour.Slug, "Alice", "Bob")

	_, err := env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Wes", Email: "wes@q.test"})
	require.NoError(t, err)
	_, err = env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Walt", Email: "walt@q.test"})
	require.NoError(t, err)

	require.NoError(t, env.participants.Remove(ctx, scope, tour.Slug, ids["Bob"]))

	roster, err := env.participants.List(ctx, scope, tour.Slug)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Wes", roster[1].Name)

	// The promoted entry is out of the queue; Walt holds the head.
	_, err = env.signup.WaitlistStatus(ctx, tour.Slug, "wes@q.test")
	assert.ErrorIs(t, err, ErrWaitlistEntryNotFound)
	status, err := env.signup.WaitlistStatus(ctx, tour.Slug, "walt@q.test")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Position)
	assert.Equal(t, 1, status.Waiting)
}

func TestSignupWaitlist_RequiresOpenRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := env.tenant(t, "host@one.test")
	tour := env.tournament(t, scope, CreateTournamentInput{Name: "Closed"})
	env.enroll(t, scope, tour.Slug, "Alice", "Bob")

	_, err := env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Wes"})
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = env.tournaments.OpenCheckIn(ctx, scope, tour.Slug)
	require.NoError(t, err)
	_, err = env.signup.WaitlistJoin(ctx, tour.Slug, WaitlistJoinInput{Name: "Wes", Email: "wes@q.test"})
	assert.ErrorIs(t, err, ErrTournamentNotInSignup)

	env.start(t, scope, tour.Slug)
	_, err = env.signup.WaitlistStatus(ctx, tour.Slug, "wes@q.test")
	assert.ErrorIs(t, err, ErrTournamentNotFound, "a started bracket leaves the public surface")
}
