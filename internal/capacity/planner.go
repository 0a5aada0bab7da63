package capacity

import (
	"sort"

	"github.com/google/uuid"
)

// Slot is a class with its remaining seats.
type Slot struct {
	ClassID   uuid.UUID
	Available int
}

// Plan maps class ids to the students assigned to them. Leftover holds
// students that did not fit anywhere.
type Plan struct {
	Assignments map[uuid.UUID][]uuid.UUID
	Leftover    []uuid.UUID
}

// Assigned returns the number of students placed by the plan.
func (p *Plan) Assigned() int {
	n := 0
	for _, ids := range p.Assignments {
		n += len(ids)
	}
	return n
}

// Distribute splits students evenly over slots in the given order: each
// class gets len/k students, the first len%k classes one more. A class
// never receives more than its available seats; overflow is carried to the
// next class with room and finally to Leftover.
func Distribute(students []uuid.UUID, slots []Slot) *Plan {
	plan := &Plan{Assignments: make(map[uuid.UUID][]uuid.UUID, len(slots))}
	if len(slots) == 0 {
		plan.Leftover = append(plan.Leftover, students...)
		return plan
	}

	per := len(students) / len(slots)
	extra := len(students) % len(slots)
	room := make([]int, len(slots))
	for i, s := range slots {
		room[i] = s.Available
	}

	next := 0
	var overflow []uuid.UUID
	for i, s := range slots {
		quota := per
		if i < extra {
			quota++
		}
		take := quota
		if take > room[i] {
			take = room[i]
		}
		if take > 0 {
			plan.Assignments[s.ClassID] = append(plan.Assignments[s.ClassID], students[next:next+take]...)
			room[i] -= take
		}
		overflow = append(overflow, students[next+take:next+quota]...)
		next += quota
	}

	for _, id := range overflow {
		placed := false
		for i, s := range slots {
			if room[i] > 0 {
				plan.Assignments[s.ClassID] = append(plan.Assignments[s.ClassID], id)
				room[i]--
				placed = true
				break
			}
		}
		if !placed {
			plan.Leftover = append(plan.Leftover, id)
		}
	}
	return plan
}

// Assign fills the slots with the most free seats first, in student order.
func Assign(students []uuid.UUID, slots []Slot) *Plan {
	plan := &Plan{Assignments: make(map[uuid.UUID][]uuid.UUID, len(slots))}

	ordered := make([]Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Available > ordered[j].Available
	})

	next := 0
	for _, s := range ordered {
		if next >= len(students) {
			break
		}
		if s.Available <= 0 {
			continue
		}
		end := next + s.Available
		if end > len(students) {
			end = len(students)
		}
		plan.Assignments[s.ClassID] = append(plan.Assignments[s.ClassID], students[next:end]...)
		next = end
	}
	plan.Leftover = append(plan.Leftover, students[next:]...)
	return plan
}
