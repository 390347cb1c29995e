package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
)

func newLessonFixture(t *testing.T, student *models.Student, lessons ...*models.Lesson) (*LessonService, *fakeStudentStore, *fakeLessonStore) {
	t.Helper()
	students := newFakeStudentStore(student)
	store := newFakeLessonStore(lessons...)
	svc := NewLessonService(students, store, &fakeTxRunner{}, nil, nil, zap.NewNop(), 0)
	return svc, students, store
}

func flexibleStudent(credits int) *models.Student {
	return &models.Student{
		ID:               "22222222-2222-4222-8222-222222222222",
		Name:             "Minji",
		LessonType:       models.LessonTypeGuitar,
		Frequency:        models.FrequencyFlexible,
		DurationMinutes:  60,
		RemainingCredits: credits,
		Active:           true,
	}
}

func TestBookAdHocDecrementsCredits(t *testing.T) {
	student := flexibleStudent(2)
	svc, students, store := newLessonFixture(t, student)

	start := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	lesson, err := svc.BookAdHoc(context.Background(), BookAdHocRequest{
		StudentID: student.ID,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AdHocBundleTag, lesson.BundleTag)
	assert.Equal(t, "Minji lesson", lesson.Title)
	assert.True(t, lesson.Paid)
	assert.False(t, lesson.Pending)

	refreshed, err := students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.RemainingCredits)

	stored, err := store.FindByID(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, start, stored.StartTime)
}

func TestBookAdHocRejectsExhaustedCredits(t *testing.T) {
	student := flexibleStudent(0)
	svc, students, store := newLessonFixture(t, student)

	start := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	_, err := svc.BookAdHoc(context.Background(), BookAdHocRequest{
		StudentID: student.ID,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCreditsRemaining.Code, appErrors.FromError(err).Code)

	// Balance untouched and nothing booked.
	refreshed, err := students.FindByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.RemainingCredits)
	lessons, err := store.ListByStudent(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Empty(t, lessons)
}

func TestBookAdHocRejectsInvertedWindow(t *testing.T) {
	student := flexibleStudent(5)
	svc, _, _ := newLessonFixture(t, student)

	start := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	_, err := svc.BookAdHoc(context.Background(), BookAdHocRequest{
		StudentID: student.ID,
		StartTime: start,
		EndTime:   start.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateDetailsRejectsCancellingBundleOccurrence(t *testing.T) {
	student := mondayWednesdayStudent(2)
	lesson := bundleLesson(student.ID, student.Name, 1, 1, time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC), false)
	svc, _, _ := newLessonFixture(t, student, lesson)

	status := models.LessonCancelled
	_, err := svc.UpdateDetails(context.Background(), lesson.ID, UpdateLessonRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateDetailsMarksNoShow(t *testing.T) {
	student := mondayWednesdayStudent(2)
	lesson := bundleLesson(student.ID, student.Name, 1, 1, time.Date(2024, 5, 6, 16, 0, 0, 0, time.UTC), false)
	svc, _, store := newLessonFixture(t, student, lesson)

	status := models.LessonNoShow
	notes := "called in sick an hour before"
	updated, err := svc.UpdateDetails(context.Background(), lesson.ID, UpdateLessonRequest{Status: &status, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.LessonNoShow, updated.Status)
	assert.Equal(t, notes, updated.Notes)

	stored, err := store.FindByID(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonNoShow, stored.Status)
}

func TestCalendarFiltersByWindow(t *testing.T) {
	student := mondayWednesdayStudent(2)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 16, 0, 0, 0, time.UTC) }
	svc, _, _ := newLessonFixture(t, student,
		bundleLesson(student.ID, student.Name, 1, 1, day(6), false),
		bundleLesson(student.ID, student.Name, 1, 2, day(8), false),
		bundleLesson(student.ID, student.Name, 2, 1, day(13), true),
	)

	from := day(7)
	to := day(14)
	lessons, err := svc.Calendar(context.Background(), models.LessonFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, day(8), lessons[0].StartTime)
	assert.Equal(t, day(13), lessons[1].StartTime)
}

func TestGetMissingLessonReturnsNotFound(t *testing.T) {
	svc, _, _ := newLessonFixture(t, flexibleStudent(1))

	_, err := svc.Get(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
