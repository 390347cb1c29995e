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

func newPaymentFixture(t *testing.T, student *models.Student, lessons ...*models.Lesson) (*PaymentService, *fakeLessonStore) {
	t.Helper()
	students := newFakeStudentStore(student)
	store := newFakeLessonStore(lessons...)
	svc := NewPaymentService(students, store, &fakeTxRunner{}, nil, nil, zap.NewNop(), 0)
	return svc, store
}

func TestConfirmPaymentPromotesWholeBundle(t *testing.T) {
	student := mondayWednesdayStudent(4)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 16, 0, 0, 0, time.UTC) }

	svc, store := newPaymentFixture(t, student,
		bundleLesson(student.ID, student.Name, 2, 1, day(20), true),
		bundleLesson(student.ID, student.Name, 2, 2, day(22), true),
		bundleLesson(student.ID, student.Name, 2, 3, day(27), true),
		bundleLesson(student.ID, student.Name, 2, 4, day(29), true),
	)

	result, err := svc.ConfirmPayment(context.Background(), "lesson-2-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.BundleTag)
	require.Len(t, result.Promoted, 4)
	for _, lesson := range result.Promoted {
		assert.False(t, lesson.Pending)
		assert.True(t, lesson.Paid)
	}

	promoted, err := store.ListByBundle(context.Background(), student.ID, 2)
	require.NoError(t, err)
	for _, lesson := range promoted {
		assert.False(t, lesson.Pending)
		assert.True(t, lesson.Paid)
	}

	// A fresh pending bundle follows the promoted one.
	require.Len(t, result.NextBatch, 4)
	next, err := store.ListByBundle(context.Background(), student.ID, 3)
	require.NoError(t, err)
	require.Len(t, next, 4)
	wantStarts := []time.Time{
		time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 5, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 10, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 12, 16, 0, 0, 0, time.UTC),
	}
	for i, lesson := range next {
		assert.Equal(t, wantStarts[i], lesson.StartTime, "next batch start %d", i)
		assert.Equal(t, i+1, lesson.SequenceNumber)
		assert.True(t, lesson.Pending)
		assert.False(t, lesson.Paid)
	}
}

func TestConfirmPaymentRequiresFirstOccurrence(t *testing.T) {
	student := mondayWednesdayStudent(2)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 16, 0, 0, 0, time.UTC) }

	svc, _ := newPaymentFixture(t, student,
		bundleLesson(student.ID, student.Name, 2, 1, day(20), true),
		bundleLesson(student.ID, student.Name, 2, 2, day(22), true),
	)

	_, err := svc.ConfirmPayment(context.Background(), "lesson-2-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConfirmPaymentRejectsIncompleteBundle(t *testing.T) {
	student := mondayWednesdayStudent(4)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 16, 0, 0, 0, time.UTC) }

	svc, _ := newPaymentFixture(t, student,
		bundleLesson(student.ID, student.Name, 2, 1, day(20), true),
		bundleLesson(student.ID, student.Name, 2, 2, day(22), true),
	)

	_, err := svc.ConfirmPayment(context.Background(), "lesson-2-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteBundle.Code, appErrors.FromError(err).Code)
}

func TestConfirmPaymentRejectsAlreadyPaidLesson(t *testing.T) {
	student := mondayWednesdayStudent(2)
	day := func(d int) time.Time { return time.Date(2024, 5, d, 16, 0, 0, 0, time.UTC) }

	svc, _ := newPaymentFixture(t, student,
		bundleLesson(student.ID, student.Name, 1, 1, day(6), false),
		bundleLesson(student.ID, student.Name, 1, 2, day(8), false),
	)

	_, err := svc.ConfirmPayment(context.Background(), "lesson-1-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConfirmPaymentMissingLessonReturnsStaleReference(t *testing.T) {
	svc, _ := newPaymentFixture(t, mondayWednesdayStudent(4))

	_, err := svc.ConfirmPayment(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStaleReference.Code, appErrors.FromError(err).Code)
}
