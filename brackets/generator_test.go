package brackets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketops/tournament-core/models"
)

// testEntrants returns n entrants where seed s has participant id 100+s.
func testEntrants(n int) []Entrant {
	out := make([]Entrant, n)
	for i := range out {
		out[i] = Entrant{ParticipantID: 101 + i, Seed: i + 1}
	}
	return out
}

func pidOfSeed(s int) int { return 100 + s }

func byIdentifier(matches []*Descriptor) map[string]*Descriptor {
	m := make(map[string]*Descriptor, len(matches))
	for _, d := range matches {
		m[d.Identifier] = d
	}
	return m
}

// assertWellFormed checks the structural invariants every generator must
// hold: unique identifiers, contiguous play order, and prerequisite links
// that point at earlier matches only.
func assertWellFormed(t *testing.T, matches []*Descriptor) {
	t.Helper()
	seen := make(map[string]int, len(matches))
	for i, d := range matches {
		require.NotEmpty(t, d.Identifier)
		_, dup := seen[d.Identifier]
		require.False(t, dup, "duplicate identifier %s", d.Identifier)
		seen[d.Identifier] = i
		assert.Equal(t, i+1, d.PlayOrder)
	}
	for i, d := range matches {
		for _, p := range []*string{d.Prereq1, d.Prereq2} {
			if p == nil {
				continue
			}
			j, ok := seen[*p]
			require.True(t, ok, "match %s links to unknown %s", d.Identifier, *p)
			if *p != d.Identifier {
				assert.Less(t, j, i, "match %s depends on later match %s", d.Identifier, *p)
			}
		}
	}
}

func TestMatchIdentifier(t *testing.T) {
	cases := map[int]string{
		0:  "A",
		1:  "B",
		25: "Z",
		26: "AA",
		27: "AB",
		51: "AZ",
		52: "BA",
	}
	for in, want := range cases {
		assert.Equal(t, want, matchIdentifier(in), "index %d", in)
	}
}

func TestSeedPositions(t *testing.T) {
	assert.Equal(t, []int{1, 2}, seedPositions(2))
	assert.Equal(t, []int{1, 4, 2, 3}, seedPositions(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, seedPositions(8))

	// Top seeds must land in opposite halves all the way up.
	pos := seedPositions(16)
	require.Len(t, pos, 16)
	firstHalf := pos[:8]
	assert.Contains(t, firstHalf, 1)
	assert.NotContains(t, firstHalf, 2)
}

func TestBracketSize(t *testing.T) {
	assert.Equal(t, 2, bracketSize(2))
	assert.Equal(t, 4, bracketSize(3))
	assert.Equal(t, 8, bracketSize(5))
	assert.Equal(t, 8, bracketSize(8))
	assert.Equal(t, 16, bracketSize(9))
}

func TestForType(t *testing.T) {
	for _, typ := range []models.TournamentType{
		models.TypeSingleElim, models.TypeDoubleElim, models.TypeRoundRobin, models.TypeSwiss,
	} {
		g, err := ForType(typ)
		require.NoError(t, err)
		require.NotNil(t, g)
	}
	_, err := ForType("ladder")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRoundName(t *testing.T) {
	se := &models.Tournament{TournamentType: models.TypeSingleElim}
	assert.Equal(t, "Round 1", RoundName(se, 1, 4))
	assert.Equal(t, "Quarterfinals", RoundName(se, 2, 4))
	assert.Equal(t, "Semifinals", RoundName(se, 3, 4))
	assert.Equal(t, "Finals", RoundName(se, 4, 4))
	// A two-entrant bracket opens with the final.
	assert.Equal(t, "Finals", RoundName(se, 1, 1))

	rr := &models.Tournament{TournamentType: models.TypeRoundRobin}
	assert.Equal(t, "Round 3", RoundName(rr, 3, 3))

	de := &models.Tournament{
		TournamentType:      models.TypeDoubleElim,
		GrandFinalsModifier: models.GrandFinalsBracketReset,
	}
	assert.Equal(t, "Losers Round 2", RoundName(de, -2, 4))
	assert.Equal(t, "Grand Finals", RoundName(de, 3, 4))
	assert.Equal(t, "Grand Finals Reset", RoundName(de, 4, 4))

	de.GrandFinalsModifier = models.GrandFinalsNone
	assert.Equal(t, "Grand Finals", RoundName(de, 4, 4))
	de.GrandFinalsModifier = models.GrandFinalsSkip
	assert.Equal(t, "Finals", RoundName(de, 4, 4))
}

func TestRoundNames_OrderAndBounds(t *testing.T) {
	se := &models.Tournament{TournamentType: models.TypeSingleElim}
	labels := RoundNames(se, 0, 2)
	require.Len(t, labels, 2)
	assert.Equal(t, RoundLabel{Round: 1, Label: "Semifinals"}, labels[0])
	assert.Equal(t, RoundLabel{Round: 2, Label: "Finals"}, labels[1])

	de := &models.Tournament{TournamentType: models.TypeDoubleElim}
	labels = RoundNames(de, -2, 3)
	require.Len(t, labels, 5)
	assert.Equal(t, RoundLabel{Round: 3, Label: "Grand Finals"}, labels[2])
	assert.Equal(t, RoundLabel{Round: -1, Label: "Losers Round 1"}, labels[3])
	assert.Equal(t, RoundLabel{Round: -2, Label: "Losers Round 2"}, labels[4])

	assert.Nil(t, RoundNames(se, 0, 0), "nothing generated, nothing to label")
}
