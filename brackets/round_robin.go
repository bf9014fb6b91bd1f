package brackets

import (
	"context"
	"fmt"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket schedules a single round robin with the circle method:
// one entrant stays fixed while the rest rotate, giving n-1 rounds for even
// fields and n rounds (everyone sits out once) for odd fields. Odd fields
// get a phantom opponent; pairings against it are simply not emitted, so no
// bye matches are persisted. Every match starts with both slots filled.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateParams) ([]*Descriptor, error) {
	entrants := sortedEntrants(params.Entrants)
	n := len(entrants)
	if n < 2 {
		return nil, fmt.Errorf("%w: round robin needs at least 2, got %d", ErrNotEnoughEntrants, n)
	}

	sequential := params.Tournament != nil && params.Tournament.SequentialPairings

	// Circle slots hold entrant indexes; -1 is the phantom for odd fields.
	size := n
	if n%2 == 1 {
		size = n + 1
	}
	circle := make([]int, size)
	for i := 0; i < size; i++ {
		if i < n {
			circle[i] = i
		} else {
			circle[i] = -1
		}
	}
	if sequential {
		// Arrange so the opening round pairs 1v2, 3v4, ... instead of the
		// seeded 1vN, 2vN-1, ... layout.
		k := 0
		for i := 0; i < size; i += 2 {
			circle[k] = i
			k++
		}
		for i := size - 1; i >= 1; i -= 2 {
			circle[k] = i
			k++
		}
		for i := range circle {
			if circle[i] >= n {
				circle[i] = -1
			}
		}
	}

	rounds := size - 1
	var matches []*Descriptor
	for r := 1; r <= rounds; r++ {
		ord := 0
		for i := 0; i < size/2; i++ {
			a, b := circle[i], circle[size-1-i]
			if a == -1 || b == -1 {
				continue
			}
			ord++
			matches = append(matches, &Descriptor{
				uid:       fmt.Sprintf("R%dM%d", r, ord),
				Round:     r,
				playKey:   r,
				ord:       ord,
				Player1ID: intPtr(entrants[a].ParticipantID),
				Player2ID: intPtr(entrants[b].ParticipantID),
			})
		}
		// Rotate all but the first slot clockwise.
		last := circle[size-1]
		copy(circle[2:], circle[1:size-1])
		circle[1] = last
	}

	return finalize(matches), nil
}
