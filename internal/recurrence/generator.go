package recurrence

import (
	"fmt"
	"time"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

// Plan builds count occurrences for a student's bundle, walking forward one
// slot at a time from after so multiple weekly slots interleave in
// chronological order. The plan is pure: IDs and persistence are left to the
// caller. The degraded flag reports that at least one occurrence came from
// the +7d fallback and the profile deserves a warning.
func Plan(student *models.Student, bundleTag int, pending bool, count int, after time.Time) ([]models.Lesson, bool, error) {
	if count <= 0 {
		return nil, false, nil
	}
	if len(student.Slots) == 0 {
		return nil, false, ErrNoSlots
	}

	duration := time.Duration(student.DurationMinutes) * time.Minute
	lessons := make([]models.Lesson, 0, count)
	degraded := false

	cursor := after
	for seq := 1; seq <= count; seq++ {
		next, err := NextOccurrence(cursor, student.Slots, student.IntervalWeeks)
		switch err {
		case nil:
		case ErrDegradedSlots:
			degraded = true
		default:
			return nil, degraded, err
		}

		lessons = append(lessons, models.Lesson{
			StudentID:      student.ID,
			Title:          fmt.Sprintf("%s %d", student.Name, seq),
			StartTime:      next,
			EndTime:        next.Add(duration),
			SequenceNumber: seq,
			BundleTag:      bundleTag,
			Pending:        pending,
			Paid:           !pending,
			Status:         models.LessonScheduled,
		})
		cursor = next
	}

	return lessons, degraded, nil
}

// Renumber reassigns dense sequence numbers and title suffixes in
// chronological order. Lessons must already be sorted by start time.
func Renumber(studentName string, lessons []models.Lesson) {
	for i := range lessons {
		lessons[i].SequenceNumber = i + 1
		lessons[i].Title = fmt.Sprintf("%s %d", studentName, i+1)
	}
}
