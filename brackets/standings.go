package brackets

import (
	"fmt"
	"sort"

	"github.com/bracketops/tournament-core/models"
)

// Result is a match projected down to what standings, swiss pairing and
// final-rank math need. Zero participant ids mean an empty slot.
type Result struct {
	Player1ID     int
	Player2ID     int
	WinnerID      int
	LoserID       int
	Player1Score  int
	Player2Score  int
	Round         int
	LosersBracket bool
	IsBye         bool
	ThirdPlace    bool
	Complete      bool
}

// Standing is one row of a computed group table.
type Standing struct {
	ParticipantID    int `json:"participant_id"`
	Seed             int `json:"seed"`
	Rank             int `json:"rank"`
	MatchWins        int `json:"match_wins"`
	MatchLosses      int `json:"match_losses"`
	GameWins         int `json:"game_wins"`
	GameLosses       int `json:"game_losses"`
	PointsScored     int `json:"points_scored"`
	PointsDifference int `json:"points_difference"`
}

// ComputeStandings folds completed results into a table ordered by the
// ranked_by key, then the remaining keys, then head-to-head, then seed.
func ComputeStandings(entrants []Entrant, results []Result, rankedBy models.RankedBy) []Standing {
	rows := make(map[int]*Standing, len(entrants))
	order := make([]*Standing, 0, len(entrants))
	for _, e := range sortedEntrants(entrants) {
		s := &Standing{ParticipantID: e.ParticipantID, Seed: e.Seed}
		rows[e.ParticipantID] = s
		order = append(order, s)
	}

	// headToHead[a][b] counts a's wins over b.
	headToHead := make(map[int]map[int]int)
	for _, r := range results {
		if !r.Complete || r.WinnerID == 0 {
			continue
		}
		if w := rows[r.WinnerID]; w != nil {
			w.MatchWins++
		}
		if l := rows[r.LoserID]; l != nil {
			l.MatchLosses++
		}
		if p1 := rows[r.Player1ID]; p1 != nil {
			p1.GameWins += r.Player1Score
			p1.GameLosses += r.Player2Score
			p1.PointsScored += r.Player1Score
			p1.PointsDifference += r.Player1Score - r.Player2Score
		}
		if p2 := rows[r.Player2ID]; p2 != nil {
			p2.GameWins += r.Player2Score
			p2.GameLosses += r.Player1Score
			p2.PointsScored += r.Player2Score
			p2.PointsDifference += r.Player2Score - r.Player1Score
		}
		if !r.IsBye && r.LoserID != 0 {
			if headToHead[r.WinnerID] == nil {
				headToHead[r.WinnerID] = make(map[int]int)
			}
			headToHead[r.WinnerID][r.LoserID]++
		}
	}

	keys := rankKeys(rankedBy)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		for _, k := range keys {
			av, bv := metric(a, k), metric(b, k)
			if av != bv {
				return av > bv
			}
		}
		return a.Seed < b.Seed
	})

	// Head-to-head settles exact two-way ties. Larger tied groups stay on
	// seed order: pairwise results are not transitive there.
	i := 0
	for i < len(order) {
		j := i + 1
		for j < len(order) && sameMetrics(order[i], order[j], keys) {
			j++
		}
		if j-i == 2 {
			a, b := order[i], order[i+1]
			if headToHead[b.ParticipantID][a.ParticipantID] > headToHead[a.ParticipantID][b.ParticipantID] {
				order[i], order[i+1] = b, a
			}
		}
		i = j
	}

	out := make([]Standing, len(order))
	for i, s := range order {
		s.Rank = i + 1
		out[i] = *s
	}
	return out
}

func sameMetrics(a, b *Standing, keys []models.RankedBy) bool {
	for _, k := range keys {
		if metric(a, k) != metric(b, k) {
			return false
		}
	}
	return true
}

func rankKeys(primary models.RankedBy) []models.RankedBy {
	all := []models.RankedBy{
		models.RankedByMatchWins,
		models.RankedByGameWins,
		models.RankedByPointsScored,
		models.RankedByPointsDifference,
	}
	keys := make([]models.RankedBy, 0, len(all))
	keys = append(keys, primary)
	for _, k := range all {
		if k != primary {
			keys = append(keys, k)
		}
	}
	return keys
}

func metric(s *Standing, k models.RankedBy) int {
	switch k {
	case models.RankedByGameWins:
		return s.GameWins
	case models.RankedByPointsScored:
		return s.PointsScored
	case models.RankedByPointsDifference:
		return s.PointsDifference
	default:
		return s.MatchWins
	}
}

// ComputeFinalRanks maps participant id to final placement once every
// result is in. Elimination formats place by elimination round (ties share
// a rank, the classic 1,2,3,3,5,... ladder); group formats place by the
// standings table, which breaks every tie down to seed.
func ComputeFinalRanks(t *models.Tournament, entrants []Entrant, results []Result) (map[int]int, error) {
	switch t.TournamentType {
	case models.TypeSingleElim:
		return singleElimRanks(entrants, results)
	case models.TypeDoubleElim:
		return doubleElimRanks(entrants, results, t.GrandFinalsModifier)
	case models.TypeRoundRobin, models.TypeSwiss:
		ranks := make(map[int]int, len(entrants))
		for _, s := range ComputeStandings(entrants, results, t.RankedBy) {
			ranks[s.ParticipantID] = s.Rank
		}
		return ranks, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, t.TournamentType)
	}
}

func singleElimRanks(entrants []Entrant, results []Result) (map[int]int, error) {
	maxRound := 0
	for _, r := range results {
		if !r.ThirdPlace && r.Round > maxRound {
			maxRound = r.Round
		}
	}

	ranks := make(map[int]int, len(entrants))
	var thirdPlace *Result
	for i, r := range results {
		if r.ThirdPlace {
			thirdPlace = &results[i]
			continue
		}
		if !r.Complete || r.IsBye || r.LoserID == 0 {
			continue
		}
		// Losing in round r leaves 2^(maxRound-r) entrants still alive.
		ranks[r.LoserID] = 1<<(maxRound-r.Round) + 1
		if r.Round == maxRound {
			ranks[r.WinnerID] = 1
		}
	}
	if thirdPlace != nil && thirdPlace.Complete && thirdPlace.WinnerID != 0 {
		ranks[thirdPlace.WinnerID] = 3
		ranks[thirdPlace.LoserID] = 4
	}

	for _, e := range entrants {
		if _, ok := ranks[e.ParticipantID]; !ok {
			if len(entrants) == 1 {
				ranks[e.ParticipantID] = 1
				continue
			}
			return nil, fmt.Errorf("no placement for participant %d", e.ParticipantID)
		}
	}
	return ranks, nil
}

func doubleElimRanks(entrants []Entrant, results []Result, modifier models.GrandFinalsModifier) (map[int]int, error) {
	// The decider is the latest positive-round match: the bracket reset if
	// played, else the grand final. With the skip modifier it is the
	// winners final, and the losers champion takes second.
	var decider *Result
	var lbFinal *Result
	for i, r := range results {
		if !r.Complete {
			continue
		}
		if r.Round > 0 && (decider == nil || r.Round > decider.Round) {
			decider = &results[i]
		}
		if r.Round < 0 && (lbFinal == nil || r.Round < lbFinal.Round) {
			lbFinal = &results[i]
		}
	}
	if decider == nil {
		return nil, fmt.Errorf("no decided matches")
	}

	ranks := make(map[int]int, len(entrants))
	ranks[decider.WinnerID] = 1
	switch {
	case modifier == models.GrandFinalsSkip && lbFinal != nil:
		if _, placed := ranks[lbFinal.WinnerID]; !placed {
			ranks[lbFinal.WinnerID] = 2
		}
	case decider.LoserID != 0:
		ranks[decider.LoserID] = 2
	case lbFinal != nil:
		// Voided bracket reset: the losers champion lost the grand final.
		ranks[lbFinal.WinnerID] = 2
	}

	// Everyone else placed by how deep they got in the losers bracket.
	elimRound := make(map[int]int)
	for _, r := range results {
		if !r.Complete || r.Round >= 0 || r.LoserID == 0 {
			continue
		}
		if _, placed := ranks[r.LoserID]; placed {
			continue
		}
		k := -r.Round
		if k > elimRound[r.LoserID] {
			elimRound[r.LoserID] = k
		}
	}
	type group struct {
		k   int
		ids []int
	}
	byRound := make(map[int][]int)
	for id, k := range elimRound {
		byRound[k] = append(byRound[k], id)
	}
	groups := make([]group, 0, len(byRound))
	for k, ids := range byRound {
		sort.Ints(ids)
		groups = append(groups, group{k: k, ids: ids})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].k > groups[j].k })

	next := 3
	for _, g := range groups {
		for _, id := range g.ids {
			ranks[id] = next
		}
		next += len(g.ids)
	}

	for _, e := range entrants {
		if _, ok := ranks[e.ParticipantID]; !ok {
			return nil, fmt.Errorf("no placement for participant %d", e.ParticipantID)
		}
	}
	return ranks, nil
}
