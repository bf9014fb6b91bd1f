package brackets

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bracketops/tournament-core/models"
)

var (
	ErrNotEnoughEntrants = errors.New("not enough entrants to generate a bracket")
	ErrUnknownFormat     = errors.New("unknown tournament format")
)

// Entrant is one seeded bracket entrant. Entrants are ordered by Seed;
// generators treat the position in that order as the effective seed.
type Entrant struct {
	ParticipantID int
	Seed          int
}

// Descriptor is one match emitted by a generator. Prerequisite links are
// identifier strings, resolved to database ids when the bracket is
// persisted (insert all, then patch the prereq columns).
type Descriptor struct {
	Identifier    string
	Round         int // positive: winners/linear rounds, negative: losers bracket
	PlayOrder     int
	LosersBracket bool

	Player1ID *int
	Player2ID *int

	Prereq1      *string
	Prereq2      *string
	Prereq1Loser bool
	Prereq2Loser bool

	// IsBye marks a match decided without play. AutoWinnerID is set when
	// the winner is already known at generation time; losers-bracket byes
	// resolve when their single feeder delivers.
	IsBye        bool
	AutoWinnerID *int

	uid     string
	playKey int
	ord     int
}

// Stats summarizes an emitted bracket.
type Stats struct {
	TotalMatches int `json:"total_matches"`
	ByeMatches   int `json:"bye_matches"`
	Rounds       int `json:"rounds"`
	LoserRounds  int `json:"loser_rounds"`
}

type GenerateParams struct {
	Tournament *models.Tournament
	Entrants   []Entrant
}

type Generator interface {
	GenerateBracket(ctx context.Context, params GenerateParams) ([]*Descriptor, error)

	GetName() string
}

// ForType returns the generator for a tournament type.
func ForType(t models.TournamentType) (Generator, error) {
	switch t {
	case models.TypeSingleElim:
		return NewSingleEliminationGenerator(), nil
	case models.TypeDoubleElim:
		return NewDoubleEliminationGenerator(), nil
	case models.TypeRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.TypeSwiss:
		return NewSwissGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, t)
	}
}

// RoundLabel names one round for bracket rendering.
type RoundLabel struct {
	Round int    `json:"round"`
	Label string `json:"label"`
}

// RoundNames labels every round of a generated bracket, winners rounds
// ascending then losers rounds from -1 down. Empty when nothing has been
// generated yet.
func RoundNames(t *models.Tournament, minRound, maxRound int) []RoundLabel {
	if maxRound < 1 {
		return nil
	}
	labels := make([]RoundLabel, 0, maxRound-minRound)
	for r := 1; r <= maxRound; r++ {
		labels = append(labels, RoundLabel{Round: r, Label: RoundName(t, r, maxRound)})
	}
	for r := -1; r >= minRound; r-- {
		labels = append(labels, RoundLabel{Round: r, Label: RoundName(t, r, maxRound)})
	}
	return labels
}

// RoundName returns the display label for one round. Single elimination
// closes with Quarterfinals, Semifinals, Finals; double elimination names
// the grand final per its modifier; everything else is "Round N", with
// losers rounds prefixed.
func RoundName(t *models.Tournament, round, maxRound int) string {
	if round < 0 {
		return fmt.Sprintf("Losers Round %d", -round)
	}
	switch t.TournamentType {
	case models.TypeSingleElim:
		switch maxRound - round {
		case 0:
			return "Finals"
		case 1:
			return "Semifinals"
		case 2:
			return "Quarterfinals"
		}
	case models.TypeDoubleElim:
		switch t.GrandFinalsModifier {
		case models.GrandFinalsBracketReset:
			if round == maxRound {
				return "Grand Finals Reset"
			}
			if round == maxRound-1 {
				return "Grand Finals"
			}
		case models.GrandFinalsSkip:
			if round == maxRound {
				return "Finals"
			}
		default:
			if round == maxRound {
				return "Grand Finals"
			}
		}
	}
	return fmt.Sprintf("Round %d", round)
}

// ComputeStats derives bracket stats from emitted descriptors.
func ComputeStats(matches []*Descriptor) Stats {
	var s Stats
	s.TotalMatches = len(matches)
	for _, m := range matches {
		if m.IsBye {
			s.ByeMatches++
		}
		if m.Round > s.Rounds {
			s.Rounds = m.Round
		}
		if m.Round < 0 && -m.Round > s.LoserRounds {
			s.LoserRounds = -m.Round
		}
	}
	return s
}

// StatsFromMatches derives the same stats from persisted matches.
func StatsFromMatches(matches []models.Match) Stats {
	var s Stats
	s.TotalMatches = len(matches)
	for i := range matches {
		m := &matches[i]
		if m.IsBye {
			s.ByeMatches++
		}
		if m.Round > s.Rounds {
			s.Rounds = m.Round
		}
		if m.Round < 0 && -m.Round > s.LoserRounds {
			s.LoserRounds = -m.Round
		}
	}
	return s
}

// seedPositions returns the seed occupying each first-round slot of a full
// bracket of the given size (a power of two), so that the top seeds can
// only meet in the latest possible round: pairs(d) interleaves pairs(d-1)
// with its complement 2^d+1-pairs(d-1).
func seedPositions(size int) []int {
	positions := []int{1, 2}
	for len(positions) < size {
		next := make([]int, 0, len(positions)*2)
		complement := len(positions)*2 + 1
		for _, p := range positions {
			next = append(next, p, complement-p)
		}
		positions = next
	}
	return positions
}

// bracketSize returns the smallest power of two >= n.
func bracketSize(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

func totalRounds(size int) int {
	r := 0
	for size > 1 {
		size >>= 1
		r++
	}
	return r
}

// matchIdentifier maps 0-based position to "A".."Z", "AA", "AB", ...
func matchIdentifier(i int) string {
	s := ""
	for {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	return s
}

// finalize orders descriptors into play order, assigns identifiers and
// rewrites the prerequisite links from generation uids to identifiers.
func finalize(matches []*Descriptor) []*Descriptor {
	return finalizeWithOffset(matches, 0)
}

// finalizeWithOffset continues identifier and play-order numbering after
// offset already-persisted matches (swiss rounds arrive incrementally).
func finalizeWithOffset(matches []*Descriptor, offset int) []*Descriptor {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].playKey != matches[j].playKey {
			return matches[i].playKey < matches[j].playKey
		}
		return matches[i].ord < matches[j].ord
	})

	byUID := make(map[string]string, len(matches))
	for i, m := range matches {
		m.PlayOrder = offset + i + 1
		m.Identifier = matchIdentifier(offset + i)
		byUID[m.uid] = m.Identifier
	}
	for _, m := range matches {
		if m.Prereq1 != nil {
			id := byUID[*m.Prereq1]
			m.Prereq1 = &id
		}
		if m.Prereq2 != nil {
			id := byUID[*m.Prereq2]
			m.Prereq2 = &id
		}
	}
	return matches
}

func sortedEntrants(entrants []Entrant) []Entrant {
	out := make([]Entrant, len(entrants))
	copy(out, entrants)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	return out
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }
