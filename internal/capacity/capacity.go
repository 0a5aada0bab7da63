// Package capacity answers seat-availability questions for classes and plans
// how students are spread over classes.
package capacity

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/metrics"
)

// AvailableSpots returns maximum-current, clamped at zero.
func AvailableSpots(maximum, current int) int {
	if current >= maximum {
		return 0
	}
	return maximum - current
}

// CanAdmit reports whether n more students fit.
func CanAdmit(maximum, current, n int) bool {
	return n <= AvailableSpots(maximum, current)
}

// Checker wraps the pure helpers and reports counter drift, which happens
// when current_students was written outside the bulk pipeline.
type Checker struct {
	log     zerolog.Logger
	metrics *metrics.Collector
}

// NewChecker creates a new Checker.
func NewChecker(log zerolog.Logger, m *metrics.Collector) *Checker {
	return &Checker{
		log:     log.With().Str("component", "capacity").Logger(),
		metrics: m,
	}
}

// Available returns the free seats of a class, logging drift.
func (c *Checker) Available(classID uuid.UUID, maximum, current int) int {
	if current > maximum {
		c.log.Warn().
			Str("class_id", classID.String()).
			Int("maximum_students", maximum).
			Int("current_students", current).
			Msg("Class counter exceeds capacity, treating as full")
		c.metrics.CapacityDrift()
	}
	return AvailableSpots(maximum, current)
}

// CanAdmit reports whether n more students fit into the class.
func (c *Checker) CanAdmit(classID uuid.UUID, maximum, current, n int) bool {
	return n <= c.Available(classID, maximum, current)
}
