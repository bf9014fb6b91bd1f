package brackets

import (
	"context"
	"fmt"

	"github.com/bracketops/tournament-core/models"
)

// lbNode is a losers-bracket feed: the winner or loser of some match.
// A nil node is dead (its feeder was a bye, nobody will ever arrive).
type lbNode struct {
	sourceUID string
	loser     bool
}

type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() Generator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

// GenerateBracket builds a winners bracket identical to single elimination,
// a losers bracket with alternating major rounds (losers-bracket survivors
// pair off) and minor rounds (survivors meet the losers dropping from the
// next winners round), and the grand final per the tournament's modifier.
// Losers rounds are numbered -1, -2, ... Drop order alternates between a
// reversal and a half rotation so two entrants cannot rematch before the
// grand final. Dead slots left by winners-bracket byes collapse: the live
// side passes through instead of sitting in a placeholder match.
func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateParams) ([]*Descriptor, error) {
	entrants := sortedEntrants(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("%w: double elimination needs at least 2, got %d", ErrNotEnoughEntrants, len(entrants))
	}

	strategy := models.ByeTraditional
	modifier := models.GrandFinalsNone
	if params.Tournament != nil {
		if params.Tournament.ByeStrategy != "" {
			strategy = params.Tournament.ByeStrategy
		}
		if params.Tournament.GrandFinalsModifier != "" {
			modifier = params.Tournament.GrandFinalsModifier
		}
	}

	wbRounds, err := buildEliminationRounds(entrants, strategy)
	if err != nil {
		return nil, err
	}
	numWBRounds := len(wbRounds)

	// Winners rounds interleave with losers rounds in the play schedule:
	// WB1, LB1, WB2, LB-minor, LB-major, WB3, ...
	for r, rm := range wbRounds {
		for _, m := range rm {
			if m != nil {
				m.playKey = 3*(r+1) - 2
			}
		}
	}
	matches := flattenRounds(wbRounds)

	var lbMatches []*Descriptor
	var survivors []*lbNode
	if numWBRounds == 1 {
		// Two entrants: nobody to pair against, the single dropped player is
		// the losers champion and goes straight to the grand final.
		survivors = []*lbNode{{sourceUID: wbRounds[0][0].uid, loser: true}}
	} else {
		// Losers round 1: winners round 1 losers pair off adjacently.
		entries := make([]*lbNode, len(wbRounds[0]))
		for i, m := range wbRounds[0] {
			if m != nil && !m.IsBye {
				entries[i] = &lbNode{sourceUID: m.uid, loser: true}
			}
		}
		survivors = pairAdjacent(entries, 1, &lbMatches)

		for m := 2; m <= numWBRounds; m++ {
			drops := make([]*lbNode, len(wbRounds[m-1]))
			for i, wm := range wbRounds[m-1] {
				drops[i] = &lbNode{sourceUID: wm.uid, loser: true}
			}
			drops = reorderDrops(drops, m)

			survivors = pairLists(survivors, drops, 2*(m-1), &lbMatches)
			if m < numWBRounds {
				survivors = pairAdjacent(survivors, 2*m-1, &lbMatches)
			}
		}
	}
	matches = append(matches, lbMatches...)

	wbFinal := wbRounds[numWBRounds-1][0]
	lbChampion := survivors[0]
	if lbChampion == nil {
		return nil, fmt.Errorf("losers bracket produced no champion feed")
	}

	if modifier != models.GrandFinalsSkip {
		gf := &Descriptor{
			uid:          "GF",
			Round:        numWBRounds + 1,
			playKey:      3*(numWBRounds+1) - 2,
			ord:          1,
			Prereq1:      strPtr(wbFinal.uid),
			Prereq2:      strPtr(lbChampion.sourceUID),
			Prereq2Loser: lbChampion.loser,
		}
		matches = append(matches, gf)

		if modifier == models.GrandFinalsBracketReset {
			reset := &Descriptor{
				uid:          "GFR",
				Round:        numWBRounds + 2,
				playKey:      gf.playKey + 1,
				ord:          1,
				Prereq1:      strPtr(gf.uid),
				Prereq2:      strPtr(gf.uid),
				Prereq2Loser: true,
			}
			matches = append(matches, reset)
		}
	}

	return finalize(matches), nil
}

// pairAdjacent folds a node list two at a time into losers round k.
// A pair with one dead side collapses: the live node passes through.
func pairAdjacent(nodes []*lbNode, k int, out *[]*Descriptor) []*lbNode {
	count := len(nodes) / 2
	survivors := make([]*lbNode, count)
	for i := 0; i < count; i++ {
		a, b := nodes[2*i], nodes[2*i+1]
		switch {
		case a == nil && b == nil:
			survivors[i] = nil
		case a == nil:
			survivors[i] = b
		case b == nil:
			survivors[i] = a
		default:
			survivors[i] = emitLBMatch(a, b, k, i, out)
		}
	}
	return survivors
}

// pairLists zips losers-bracket survivors with the losers dropping from a
// winners round. Drops are always live; a dead survivor slot collapses.
func pairLists(survivors, drops []*lbNode, k int, out *[]*Descriptor) []*lbNode {
	next := make([]*lbNode, len(drops))
	for i := range drops {
		var s *lbNode
		if i < len(survivors) {
			s = survivors[i]
		}
		if s == nil {
			next[i] = drops[i]
			continue
		}
		next[i] = emitLBMatch(s, drops[i], k, i, out)
	}
	return next
}

func emitLBMatch(a, b *lbNode, k, i int, out *[]*Descriptor) *lbNode {
	uid := fmt.Sprintf("L%dM%d", k, i+1)
	d := &Descriptor{
		uid:           uid,
		Round:         -k,
		playKey:       lbPlayKey(k),
		ord:           i + 1,
		LosersBracket: true,
		Prereq1:       strPtr(a.sourceUID),
		Prereq2:       strPtr(b.sourceUID),
		Prereq1Loser:  a.loser,
		Prereq2Loser:  b.loser,
	}
	*out = append(*out, d)
	return &lbNode{sourceUID: uid}
}

func lbPlayKey(k int) int {
	if k == 1 {
		return 2
	}
	if k%2 == 0 {
		return 3*(k/2+1) - 1
	}
	return 3 * (k + 1) / 2
}

// reorderDrops shuffles the order losers drop into the bracket so that
// winners-bracket opponents cannot meet again in the next losers round.
func reorderDrops(drops []*lbNode, round int) []*lbNode {
	out := make([]*lbNode, len(drops))
	if round%2 == 0 {
		for i, d := range drops {
			out[len(drops)-1-i] = d
		}
		return out
	}
	half := len(drops) / 2
	if half == 0 {
		copy(out, drops)
		return out
	}
	for i, d := range drops {
		out[(i+half)%len(drops)] = d
	}
	return out
}
