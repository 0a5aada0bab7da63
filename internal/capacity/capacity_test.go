package capacity

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSpots(t *testing.T) {
	tests := []struct {
		name         string
		max, current int
		want         int
	}{
		{"empty class", 30, 0, 30},
		{"partially full", 30, 25, 5},
		{"full", 30, 30, 0},
		{"drifted over max", 30, 33, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableSpots(tt.max, tt.current))
		})
	}
}

func TestCanAdmit(t *testing.T) {
	assert.True(t, CanAdmit(30, 25, 5))
	assert.False(t, CanAdmit(30, 25, 6))
	assert.True(t, CanAdmit(30, 30, 0))
	assert.False(t, CanAdmit(30, 31, 1))
}

func TestChecker_LogsDrift(t *testing.T) {
	var buf bytes.Buffer
	c := NewChecker(zerolog.New(&buf), nil)
	id := uuid.New()

	assert.Equal(t, 0, c.Available(id, 20, 22))
	assert.Contains(t, buf.String(), id.String())

	buf.Reset()
	assert.True(t, c.CanAdmit(id, 20, 10, 10))
	assert.Empty(t, buf.String())
}

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestDistribute_EvenSplitWithRemainder(t *testing.T) {
	students := ids(7)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	plan := Distribute(students, []Slot{{a, 10}, {b, 10}, {c, 10}})

	assert.Len(t, plan.Assignments[a], 3)
	assert.Len(t, plan.Assignments[b], 2)
	assert.Len(t, plan.Assignments[c], 2)
	assert.Empty(t, plan.Leftover)
	assert.Equal(t, 7, plan.Assigned())
}

func TestDistribute_RespectsAvailability(t *testing.T) {
	students := ids(9)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	plan := Distribute(students, []Slot{{a, 1}, {b, 10}, {c, 2}})

	assert.Len(t, plan.Assignments[a], 1)
	assert.Len(t, plan.Assignments[c], 2)
	assert.Len(t, plan.Assignments[b], 6)
	assert.Empty(t, plan.Leftover)
}

func TestDistribute_Leftover(t *testing.T) {
	students := ids(5)
	a := uuid.New()

	plan := Distribute(students, []Slot{{a, 3}})

	assert.Len(t, plan.Assignments[a], 3)
	assert.Len(t, plan.Leftover, 2)

	plan = Distribute(students, nil)
	assert.Len(t, plan.Leftover, 5)
}

func TestAssign_MostSeatsFirst(t *testing.T) {
	students := ids(6)
	small, big, full := uuid.New(), uuid.New(), uuid.New()

	plan := Assign(students, []Slot{{small, 2}, {big, 5}, {full, 0}})

	require.Len(t, plan.Assignments[big], 5)
	assert.Equal(t, students[:5], plan.Assignments[big])
	assert.Equal(t, students[5:], plan.Assignments[small])
	assert.Empty(t, plan.Assignments[full])
	assert.Empty(t, plan.Leftover)
}

func TestAssign_Leftover(t *testing.T) {
	students := ids(4)
	a := uuid.New()
	plan := Assign(students, []Slot{{a, 1}})
	assert.Equal(t, 1, plan.Assigned())
	assert.Equal(t, students[1:], plan.Leftover)
}
