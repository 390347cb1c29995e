package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

// fakeTxRunner executes the callback directly; repository fakes ignore the
// nil transaction handle.
type fakeTxRunner struct {
	beginErr error
	calls    int
}

func (f *fakeTxRunner) RunInTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	f.calls++
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(nil)
}

type fakeStudentStore struct {
	students map[string]*models.Student
}

func newFakeStudentStore(students ...*models.Student) *fakeStudentStore {
	store := &fakeStudentStore{students: make(map[string]*models.Student)}
	for _, s := range students {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		copied := *s
		store.students[s.ID] = &copied
	}
	return store
}

func (f *fakeStudentStore) get(id string) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *student
	return &copied, nil
}

func (f *fakeStudentStore) List(_ context.Context, _ models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(f.students))
	for _, s := range f.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (f *fakeStudentStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	return f.get(id)
}

func (f *fakeStudentStore) FindForUpdateTx(_ context.Context, _ *sqlx.Tx, id string) (*models.Student, error) {
	return f.get(id)
}

func (f *fakeStudentStore) CreateTx(_ context.Context, _ *sqlx.Tx, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) UpdateTx(_ context.Context, _ *sqlx.Tx, student *models.Student) error {
	if _, ok := f.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *student
	f.students[student.ID] = &copied
	return nil
}

func (f *fakeStudentStore) DeleteTx(_ context.Context, _ *sqlx.Tx, id string) error {
	delete(f.students, id)
	return nil
}

func (f *fakeStudentStore) SetCreditsTx(_ context.Context, _ *sqlx.Tx, id string, credits int) error {
	student, ok := f.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	student.RemainingCredits = credits
	return nil
}

func (f *fakeStudentStore) ListLowCredit(_ context.Context, threshold int) ([]models.Student, error) {
	var out []models.Student
	for _, s := range f.students {
		if s.Active && s.RemainingCredits <= threshold {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RemainingCredits != out[j].RemainingCredits {
			return out[i].RemainingCredits < out[j].RemainingCredits
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type fakeLessonStore struct {
	lessons map[string]*models.Lesson
}

func newFakeLessonStore(lessons ...*models.Lesson) *fakeLessonStore {
	store := &fakeLessonStore{lessons: make(map[string]*models.Lesson)}
	for _, l := range lessons {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		copied := *l
		store.lessons[l.ID] = &copied
	}
	return store
}

func (f *fakeLessonStore) sorted(match func(*models.Lesson) bool) []models.Lesson {
	var out []models.Lesson
	for _, l := range f.lessons {
		if match(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (f *fakeLessonStore) List(_ context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	return f.sorted(func(l *models.Lesson) bool {
		if filter.StudentID != "" && l.StudentID != filter.StudentID {
			return false
		}
		if filter.From != nil && l.StartTime.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !l.StartTime.Before(*filter.To) {
			return false
		}
		if filter.Pending != nil && l.Pending != *filter.Pending {
			return false
		}
		if filter.Status != "" && l.Status != filter.Status {
			return false
		}
		return true
	}), nil
}

func (f *fakeLessonStore) get(id string) (*models.Lesson, error) {
	lesson, ok := f.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *lesson
	return &copied, nil
}

func (f *fakeLessonStore) FindByID(_ context.Context, id string) (*models.Lesson, error) {
	return f.get(id)
}

func (f *fakeLessonStore) FindByIDTx(_ context.Context, _ *sqlx.Tx, id string) (*models.Lesson, error) {
	return f.get(id)
}

func (f *fakeLessonStore) ListBundleTx(_ context.Context, _ *sqlx.Tx, studentID string, bundleTag int, pending bool) ([]models.Lesson, error) {
	return f.sorted(func(l *models.Lesson) bool {
		return l.StudentID == studentID && l.BundleTag == bundleTag && l.Pending == pending
	}), nil
}

func (f *fakeLessonStore) PendingBundleTagTx(_ context.Context, _ *sqlx.Tx, studentID string) (int, error) {
	tag := 0
	for _, l := range f.lessons {
		if l.StudentID == studentID && l.Pending && l.BundleTag > tag {
			tag = l.BundleTag
		}
	}
	if tag == 0 {
		return 0, sql.ErrNoRows
	}
	return tag, nil
}

func (f *fakeLessonStore) MaxBundleTagTx(_ context.Context, _ *sqlx.Tx, studentID string) (int, error) {
	tag := 0
	for _, l := range f.lessons {
		if l.StudentID == studentID && l.BundleTag > tag {
			tag = l.BundleTag
		}
	}
	return tag, nil
}

func (f *fakeLessonStore) CreateTx(_ context.Context, _ *sqlx.Tx, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	copied := *lesson
	f.lessons[lesson.ID] = &copied
	return nil
}

func (f *fakeLessonStore) BulkCreateTx(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error {
	for i := range lessons {
		if err := f.CreateTx(ctx, tx, &lessons[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLessonStore) Update(_ context.Context, lesson *models.Lesson) error {
	if _, ok := f.lessons[lesson.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *lesson
	f.lessons[lesson.ID] = &copied
	return nil
}

func (f *fakeLessonStore) UpdateTx(ctx context.Context, _ *sqlx.Tx, lesson *models.Lesson) error {
	return f.Update(ctx, lesson)
}

func (f *fakeLessonStore) DeleteTx(_ context.Context, _ *sqlx.Tx, id string) error {
	if _, ok := f.lessons[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.lessons, id)
	return nil
}

func (f *fakeLessonStore) DeleteByStudentTx(_ context.Context, _ *sqlx.Tx, studentID string) error {
	for id, l := range f.lessons {
		if l.StudentID == studentID {
			delete(f.lessons, id)
		}
	}
	return nil
}

func (f *fakeLessonStore) DeleteFutureByStudentTx(_ context.Context, _ *sqlx.Tx, studentID string, after time.Time) error {
	for id, l := range f.lessons {
		if l.StudentID == studentID && l.BundleTag != models.AdHocBundleTag &&
			!l.StartTime.Before(after) && l.Status == models.LessonScheduled {
			delete(f.lessons, id)
		}
	}
	return nil
}

func (f *fakeLessonStore) ListByBundle(_ context.Context, studentID string, bundleTag int) ([]models.Lesson, error) {
	return f.sorted(func(l *models.Lesson) bool {
		return l.StudentID == studentID && l.BundleTag == bundleTag
	}), nil
}

func (f *fakeLessonStore) ListByStudent(_ context.Context, studentID string) ([]models.Lesson, error) {
	return f.sorted(func(l *models.Lesson) bool { return l.StudentID == studentID }), nil
}
