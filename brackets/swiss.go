package brackets

import (
	"context"
	"fmt"
	"sort"
)

type SwissGenerator struct{}

func NewSwissGenerator() Generator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) GetName() string {
	return "Swiss"
}

// GenerateBracket emits only the opening round: seeds 1..n/2 against seeds
// n/2+1..n in order. Later rounds depend on results and are produced by
// NextSwissRound once the previous round finishes.
func (g *SwissGenerator) GenerateBracket(ctx context.Context, params GenerateParams) ([]*Descriptor, error) {
	entrants := sortedEntrants(params.Entrants)
	n := len(entrants)
	if n < 2 {
		return nil, fmt.Errorf("%w: swiss needs at least 2, got %d", ErrNotEnoughEntrants, n)
	}

	field := entrants
	var byeEntrant *Entrant
	if n%2 == 1 {
		byeEntrant = &entrants[n-1]
		field = entrants[:n-1]
	}

	var matches []*Descriptor
	half := len(field) / 2
	for i := 0; i < half; i++ {
		matches = append(matches, swissMatch(1, i+1, field[i].ParticipantID, field[half+i].ParticipantID))
	}
	if byeEntrant != nil {
		matches = append(matches, swissBye(1, half+1, byeEntrant.ParticipantID))
	}

	return finalize(matches), nil
}

// RecommendedSwissRounds returns ceil(log2 n), enough rounds to separate an
// undefeated winner.
func RecommendedSwissRounds(n int) int {
	if n < 2 {
		return 0
	}
	return totalRounds(bracketSize(n))
}

// SwissRoundComplete reports whether round has matches and all are done.
func SwissRoundComplete(results []Result, round int) bool {
	seen := false
	for _, r := range results {
		if r.Round != round {
			continue
		}
		seen = true
		if !r.Complete {
			return false
		}
	}
	return seen
}

// NextSwissRound pairs the given round from prior results. Entrants are
// ordered by score descending (seed breaks ties), then paired greedily top
// down, skipping opponents already played; an odd score group floats its
// last entrant down to the next group. With an odd field the lowest-placed
// entrant without a prior bye sits out and scores a free win.
// identifierOffset continues identifiers and play order after the matches
// already persisted for earlier rounds.
func NextSwissRound(entrants []Entrant, prior []Result, round int, identifierOffset int) ([]*Descriptor, error) {
	if len(entrants) < 2 {
		return nil, fmt.Errorf("%w: swiss needs at least 2, got %d", ErrNotEnoughEntrants, len(entrants))
	}

	wins := make(map[int]int)
	played := make(map[int]map[int]bool)
	hadBye := make(map[int]bool)
	for _, r := range prior {
		if r.IsBye {
			if r.Player1ID != 0 {
				hadBye[r.Player1ID] = true
			}
			if r.Complete && r.WinnerID != 0 {
				wins[r.WinnerID]++
			}
			continue
		}
		if r.Player1ID != 0 && r.Player2ID != 0 {
			if played[r.Player1ID] == nil {
				played[r.Player1ID] = make(map[int]bool)
			}
			if played[r.Player2ID] == nil {
				played[r.Player2ID] = make(map[int]bool)
			}
			played[r.Player1ID][r.Player2ID] = true
			played[r.Player2ID][r.Player1ID] = true
		}
		if r.Complete && r.WinnerID != 0 {
			wins[r.WinnerID]++
		}
	}

	pool := sortedEntrants(entrants)
	sort.SliceStable(pool, func(i, j int) bool {
		wi, wj := wins[pool[i].ParticipantID], wins[pool[j].ParticipantID]
		if wi != wj {
			return wi > wj
		}
		return pool[i].Seed < pool[j].Seed
	})

	var matches []*Descriptor
	ord := 0

	var byeID int
	if len(pool)%2 == 1 {
		idx := len(pool) - 1
		for i := len(pool) - 1; i >= 0; i-- {
			if !hadBye[pool[i].ParticipantID] {
				idx = i
				break
			}
		}
		byeID = pool[idx].ParticipantID
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	used := make([]bool, len(pool))
	for i := 0; i < len(pool); i++ {
		if used[i] {
			continue
		}
		used[i] = true
		p := pool[i].ParticipantID

		opp := -1
		for j := i + 1; j < len(pool); j++ {
			if used[j] {
				continue
			}
			if opp == -1 {
				opp = j // fallback when everyone left is a rematch
			}
			if !played[p][pool[j].ParticipantID] {
				opp = j
				break
			}
		}
		if opp == -1 {
			return nil, fmt.Errorf("swiss pairing left %d without an opponent", p)
		}
		used[opp] = true
		ord++
		matches = append(matches, swissMatch(round, ord, p, pool[opp].ParticipantID))
	}

	if byeID != 0 {
		matches = append(matches, swissBye(round, ord+1, byeID))
	}

	return finalizeWithOffset(matches, identifierOffset), nil
}

func swissMatch(round, ord, p1, p2 int) *Descriptor {
	return &Descriptor{
		uid:       fmt.Sprintf("R%dM%d", round, ord),
		Round:     round,
		playKey:   round,
		ord:       ord,
		Player1ID: intPtr(p1),
		Player2ID: intPtr(p2),
	}
}

func swissBye(round, ord, pid int) *Descriptor {
	return &Descriptor{
		uid:          fmt.Sprintf("R%dM%d", round, ord),
		Round:        round,
		playKey:      round,
		ord:          ord,
		Player1ID:    intPtr(pid),
		IsBye:        true,
		AutoWinnerID: intPtr(pid),
	}
}
