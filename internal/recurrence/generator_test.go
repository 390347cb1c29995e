package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

func weeklyStudent() *models.Student {
	return &models.Student{
		ID:              "student-1",
		Name:            "Jessie",
		Frequency:       models.FrequencyWeekly,
		Slots:           models.SlotList{{Weekday: 1, Start: "16:00"}, {Weekday: 3, Start: "16:00"}},
		IntervalWeeks:   1,
		DurationMinutes: 60,
		BundleSize:      4,
	}
}

func TestPlanInterleavesSlotsChronologically(t *testing.T) {
	student := weeklyStudent()

	lessons, degraded, err := Plan(student, 1, false, 4, thursday)
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, lessons, 4)

	expected := []time.Time{
		time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC),  // Mon +4d
		time.Date(2024, 5, 8, 16, 0, 0, 0, time.UTC),  // Wed +6d
		time.Date(2024, 5, 13, 16, 0, 0, 0, time.UTC), // Mon +11d
		time.Date(2024, 5, 15, 16, 0, 0, 0, time.UTC), // Wed +13d
	}
	titles := []string{"Jessie 1", "Jessie 2", "Jessie 3", "Jessie 4"}

	for i, lesson := range lessons {
		assert.Equal(t, expected[i], lesson.StartTime, "lesson %d start", i)
		assert.Equal(t, expected[i].Add(time.Hour), lesson.EndTime, "lesson %d end", i)
		assert.Equal(t, i+1, lesson.SequenceNumber)
		assert.Equal(t, titles[i], lesson.Title)
		assert.Equal(t, 1, lesson.BundleTag)
		assert.False(t, lesson.Pending)
		assert.True(t, lesson.Paid)
		assert.Equal(t, models.LessonScheduled, lesson.Status)
	}
}

func TestPlanPendingBundleFlags(t *testing.T) {
	lessons, _, err := Plan(weeklyStudent(), 2, true, 4, thursday)
	require.NoError(t, err)
	for _, lesson := range lessons {
		assert.True(t, lesson.Pending)
		assert.False(t, lesson.Paid)
		assert.Equal(t, 2, lesson.BundleTag)
	}
}

func TestPlanZeroCount(t *testing.T) {
	lessons, degraded, err := Plan(weeklyStudent(), 1, false, 0, thursday)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Nil(t, lessons)
}

func TestPlanNoSlots(t *testing.T) {
	student := weeklyStudent()
	student.Slots = nil
	_, _, err := Plan(student, 1, false, 4, thursday)
	assert.ErrorIs(t, err, ErrNoSlots)
}

func TestPlanMalformedSlotsDegrades(t *testing.T) {
	student := weeklyStudent()
	student.Slots = models.SlotList{{Weekday: 8, Start: "16:00"}}

	lessons, degraded, err := Plan(student, 1, false, 3, thursday)
	require.NoError(t, err)
	assert.True(t, degraded)
	require.Len(t, lessons, 3)
	for i, lesson := range lessons {
		assert.Equal(t, thursday.AddDate(0, 0, 7*(i+1)), lesson.StartTime)
	}
}

func TestRenumber(t *testing.T) {
	lessons := []models.Lesson{
		{Title: "Jessie 3", SequenceNumber: 3},
		{Title: "Jessie 1", SequenceNumber: 1},
		{Title: "Jessie 9", SequenceNumber: 9},
	}
	Renumber("Jessie", lessons)
	for i, lesson := range lessons {
		assert.Equal(t, i+1, lesson.SequenceNumber)
	}
	assert.Equal(t, "Jessie 1", lessons[0].Title)
	assert.Equal(t, "Jessie 2", lessons[1].Title)
	assert.Equal(t, "Jessie 3", lessons[2].Title)
}
