package brackets

import (
	"context"
	"fmt"

	"github.com/bracketops/tournament-core/models"
)

type seNode struct {
	participantID *int
	sourceUID     *string
}

func (n *seNode) empty() bool {
	return n.participantID == nil && n.sourceUID == nil
}

// buildEliminationRounds folds a seeded lineup into elimination rounds.
// The result is positional: rounds[r-1][i] is the i-th match of round r,
// nil where a compact-strategy bye leaves no persisted match. Byes can
// only occur in round one, because a full bracket never pairs two empty
// slots (size < 2n).
func buildEliminationRounds(entrants []Entrant, strategy models.ByeStrategy) ([][]*Descriptor, error) {
	n := len(entrants)
	size := bracketSize(n)
	numRounds := totalRounds(size)

	nodes := make([]*seNode, size)
	for slot, seedNum := range seedPositions(size) {
		nd := &seNode{}
		if seedNum <= n {
			nd.participantID = intPtr(entrants[seedNum-1].ParticipantID)
		}
		nodes[slot] = nd
	}

	rounds := make([][]*Descriptor, numRounds)
	for r := 1; r <= numRounds; r++ {
		count := len(nodes) / 2
		rounds[r-1] = make([]*Descriptor, count)
		next := make([]*seNode, count)

		for i := 0; i < count; i++ {
			n1, n2 := nodes[2*i], nodes[2*i+1]
			uid := fmt.Sprintf("R%dM%d", r, i+1)

			switch {
			case n1.empty() && n2.empty():
				return nil, fmt.Errorf("two empty slots met in round %d match %d", r, i+1)

			case n1.empty() || n2.empty():
				present := n1
				if n1.empty() {
					present = n2
				}
				if strategy == models.ByeCompact {
					// No persisted bye: the seed walks into the next round.
					next[i] = &seNode{participantID: present.participantID}
					continue
				}
				bye := &Descriptor{
					uid:          uid,
					Round:        r,
					playKey:      r,
					ord:          i + 1,
					Player1ID:    present.participantID,
					IsBye:        true,
					AutoWinnerID: present.participantID,
				}
				rounds[r-1][i] = bye
				next[i] = &seNode{participantID: present.participantID, sourceUID: strPtr(uid)}

			default:
				d := &Descriptor{
					uid:       uid,
					Round:     r,
					playKey:   r,
					ord:       i + 1,
					Player1ID: n1.participantID,
					Player2ID: n2.participantID,
					Prereq1:   n1.sourceUID,
					Prereq2:   n2.sourceUID,
				}
				rounds[r-1][i] = d
				next[i] = &seNode{sourceUID: strPtr(uid)}
			}
		}
		nodes = next
	}

	return rounds, nil
}

func flattenRounds(rounds [][]*Descriptor) []*Descriptor {
	var out []*Descriptor
	for _, rm := range rounds {
		for _, m := range rm {
			if m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateParams) ([]*Descriptor, error) {
	entrants := sortedEntrants(params.Entrants)
	if len(entrants) < 2 {
		return nil, fmt.Errorf("%w: single elimination needs at least 2, got %d", ErrNotEnoughEntrants, len(entrants))
	}

	strategy := models.ByeTraditional
	holdThird := false
	if params.Tournament != nil {
		if params.Tournament.ByeStrategy != "" {
			strategy = params.Tournament.ByeStrategy
		}
		holdThird = params.Tournament.HoldThirdPlaceMatch
	}

	rounds, err := buildEliminationRounds(entrants, strategy)
	if err != nil {
		return nil, err
	}
	matches := flattenRounds(rounds)

	if holdThird && len(rounds) >= 2 {
		semis := rounds[len(rounds)-2]
		// Only meaningful when both semifinals are actually played.
		if len(semis) == 2 && semis[0] != nil && semis[1] != nil && !semis[0].IsBye && !semis[1].IsBye {
			numRounds := len(rounds)
			third := &Descriptor{
				uid:          "3P",
				Round:        numRounds,
				playKey:      numRounds + 1,
				ord:          1,
				Prereq1:      strPtr(semis[0].uid),
				Prereq2:      strPtr(semis[1].uid),
				Prereq1Loser: true,
				Prereq2Loser: true,
			}
			matches = append(matches, third)
		}
	}

	return finalize(matches), nil
}
