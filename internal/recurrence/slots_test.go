package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

// 2024-05-02 is a Thursday.
var thursday = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

func TestNextOccurrencePicksEarliestSlot(t *testing.T) {
	slots := []models.Slot{
		{Weekday: 1, Start: "16:00"}, // Monday
		{Weekday: 3, Start: "16:00"}, // Wednesday
	}

	next, err := NextOccurrence(thursday, slots, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceSameDayLaterSlot(t *testing.T) {
	monday := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(monday, []models.Slot{{Weekday: 1, Start: "16:00"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceSameDayPassedSlot(t *testing.T) {
	monday := time.Date(2024, 5, 6, 17, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(monday, []models.Slot{{Weekday: 1, Start: "16:00"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 16, 0, 0, 0, time.UTC), next)

	next, err = NextOccurrence(monday, []models.Slot{{Weekday: 1, Start: "16:00"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 20, 16, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceExactMatchAdvances(t *testing.T) {
	// Base sitting exactly on the slot means that occurrence already exists;
	// the next one is an interval away.
	monday := time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(monday, []models.Slot{{Weekday: 1, Start: "16:00"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 16, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceResultNeverBeforeBase(t *testing.T) {
	slots := []models.Slot{
		{Weekday: 0, Start: "09:00"},
		{Weekday: 2, Start: "12:30"},
		{Weekday: 5, Start: "19:00"},
	}
	base := thursday
	for i := 0; i < 30; i++ {
		next, err := NextOccurrence(base, slots, 1)
		require.NoError(t, err)
		assert.True(t, next.After(base), "occurrence %d not after base", i)
		base = next
	}
}

func TestNextOccurrenceEmptySlots(t *testing.T) {
	_, err := NextOccurrence(thursday, nil, 1)
	assert.ErrorIs(t, err, ErrNoSlots)
}

func TestNextOccurrenceMalformedSlotsFallsBack(t *testing.T) {
	slots := []models.Slot{
		{Weekday: 9, Start: "16:00"},
		{Weekday: 1, Start: "not-a-time"},
	}
	next, err := NextOccurrence(thursday, slots, 1)
	assert.ErrorIs(t, err, ErrDegradedSlots)
	assert.Equal(t, thursday.AddDate(0, 0, 7), next)
}

func TestNextOccurrenceZeroIntervalTreatedAsWeekly(t *testing.T) {
	monday := time.Date(2024, 5, 6, 17, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(monday, []models.Slot{{Weekday: 1, Start: "16:00"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 16, 0, 0, 0, time.UTC), next)
}
