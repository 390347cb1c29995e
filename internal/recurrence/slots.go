// Package recurrence holds the pure lesson-scheduling math: projecting a
// recurrence profile's weekday/time slots onto the calendar and building
// occurrence plans for bundles. Nothing in this package touches storage.
package recurrence

import (
	"errors"
	"time"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

// ErrNoSlots signals a profile with an empty slot list. Callers should have
// validated the profile before asking for occurrences.
var ErrNoSlots = errors.New("recurrence: no slots configured")

// ErrDegradedSlots is returned together with a usable fallback time when no
// slot produced a valid candidate. The fallback keeps the at-least-one-
// occurrence guarantee; callers should log it as a configuration warning.
var ErrDegradedSlots = errors.New("recurrence: no slot matched, fell back to +7d")

const daysPerWeek = 7

// NextOccurrence returns the earliest time at or after base that lands on one
// of the profile's slots. A slot in base's week whose time has already passed
// is projected forward by intervalWeeks.
func NextOccurrence(base time.Time, slots []models.Slot, intervalWeeks int) (time.Time, error) {
	if len(slots) == 0 {
		return time.Time{}, ErrNoSlots
	}
	if intervalWeeks < 1 {
		intervalWeeks = 1
	}

	var best time.Time
	for _, slot := range slots {
		if slot.Weekday < 0 || slot.Weekday > 6 {
			continue
		}
		hour, minute, err := slot.StartClock()
		if err != nil {
			continue
		}

		offset := (slot.Weekday - int(base.Weekday()) + daysPerWeek) % daysPerWeek
		candidate := time.Date(base.Year(), base.Month(), base.Day()+offset, hour, minute, 0, 0, base.Location())
		if !candidate.After(base) {
			// Same-day slot already passed; push to the next interval.
			candidate = candidate.AddDate(0, 0, intervalWeeks*daysPerWeek)
		}

		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}

	if best.IsZero() {
		return base.AddDate(0, 0, daysPerWeek), ErrDegradedSlots
	}
	return best, nil
}
