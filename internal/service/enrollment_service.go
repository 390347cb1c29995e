package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	"github.com/jessiekimhj/scheduler-api/internal/recurrence"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
)

type enrollmentStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error
	UpdateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error
	DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error
}

type enrollmentLessonRepository interface {
	BulkCreateTx(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error
	MaxBundleTagTx(ctx context.Context, tx *sqlx.Tx, studentID string) (int, error)
	DeleteFutureByStudentTx(ctx context.Context, tx *sqlx.Tx, studentID string, after time.Time) error
	DeleteByStudentTx(ctx context.Context, tx *sqlx.Tx, studentID string) error
}

// EnrollmentService owns the student lifecycle: enrolling a profile spawns the
// first lesson bundles, editing it regenerates the future schedule wholesale,
// deleting it cascades to every lesson.
type EnrollmentService struct {
	students   enrollmentStudentRepository
	lessons    enrollmentLessonRepository
	tx         txRunner
	cache      *CacheService
	metrics    *MetricsService
	validate   *validator.Validate
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(students enrollmentStudentRepository, lessons enrollmentLessonRepository, tx txRunner, cache *CacheService, metrics *MetricsService, logger *zap.Logger, maxRetries int) *EnrollmentService {
	return &EnrollmentService{
		students:   students,
		lessons:    lessons,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		validate:   validator.New(),
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// SlotRequest is one recurring weekday/time pair in an enrollment payload.
type SlotRequest struct {
	Weekday int    `json:"weekday" validate:"min=0,max=6"`
	Start   string `json:"start" validate:"required"`
}

// EnrollStudentRequest is the payload for enrolling or re-enrolling a student.
// The profile is replaced wholesale; there is no partial profile edit.
type EnrollStudentRequest struct {
	Name            string        `json:"name" validate:"required,max=100"`
	LessonType      string        `json:"lesson_type" validate:"required,oneof=vocal guitar guitar+vocal"`
	Frequency       string        `json:"frequency" validate:"required,oneof=weekly biweekly flexible"`
	Slots           []SlotRequest `json:"slots" validate:"dive"`
	DurationMinutes int           `json:"duration_minutes" validate:"required,min=15,max=240"`
	BundleSize      int           `json:"bundle_size" validate:"min=0,max=52"`
	Credits         int           `json:"credits" validate:"min=0"`
	PackagePrice    *int          `json:"package_price" validate:"omitempty,min=0"`
	Memo            string        `json:"memo" validate:"max=500"`
	Active          *bool         `json:"active"`
}

// EnrollmentResult carries the persisted student plus the occurrences the
// engine generated for them.
type EnrollmentResult struct {
	Student  *models.Student `json:"student"`
	Lessons  []models.Lesson `json:"lessons"`
	Degraded bool            `json:"degraded"`
}

func intervalForFrequency(frequency string) int {
	switch frequency {
	case models.FrequencyWeekly:
		return 1
	case models.FrequencyBiweekly:
		return 2
	default:
		return 0
	}
}

func (s *EnrollmentService) applyRequest(student *models.Student, req EnrollStudentRequest) {
	student.Name = req.Name
	student.LessonType = req.LessonType
	student.Frequency = req.Frequency
	student.IntervalWeeks = intervalForFrequency(req.Frequency)
	student.DurationMinutes = req.DurationMinutes
	student.BundleSize = req.BundleSize
	student.RemainingCredits = req.Credits
	student.PackagePrice = req.PackagePrice
	student.Memo = req.Memo
	student.Active = true
	if req.Active != nil {
		student.Active = *req.Active
	}

	student.Slots = student.Slots[:0]
	for _, slot := range req.Slots {
		student.Slots = append(student.Slots, models.Slot{Weekday: slot.Weekday, Start: slot.Start})
	}
}

// validateProfile rejects profiles the generator cannot work with. Malformed
// slots are tolerated on read (the +7d fallback handles them) but never
// accepted on write.
func (s *EnrollmentService) validateProfile(student *models.Student) error {
	if student.Frequency == models.FrequencyFlexible {
		if len(student.Slots) > 0 {
			return appErrors.Clone(appErrors.ErrInvalidConfiguration, "flexible students cannot carry recurring slots")
		}
		return nil
	}
	if len(student.Slots) == 0 {
		return appErrors.Clone(appErrors.ErrInvalidConfiguration, "recurring students need at least one slot")
	}
	if student.BundleSize < 1 {
		return appErrors.Clone(appErrors.ErrInvalidConfiguration, "recurring students need a bundle size of at least 1")
	}
	for _, slot := range student.Slots {
		if slot.Weekday < 0 || slot.Weekday > 6 {
			return appErrors.Clone(appErrors.ErrInvalidConfiguration, "slot weekday must be between 0 and 6")
		}
		if _, _, err := slot.StartClock(); err != nil {
			return appErrors.Clone(appErrors.ErrInvalidConfiguration, "slot start must be in HH:MM form")
		}
	}
	return nil
}

// generateBundles plans the active bundle and, when the profile warrants one,
// the shadow pending bundle anchored after the active bundle's last start.
func (s *EnrollmentService) generateBundles(student *models.Student, firstTag int, after time.Time) ([]models.Lesson, bool, error) {
	if !student.Recurring() {
		return nil, false, nil
	}

	active, degraded, err := recurrence.Plan(student, firstTag, false, student.BundleSize, after)
	if err != nil {
		return nil, false, err
	}
	lessons := active

	if student.SpawnsShadowBundle() && len(active) > 0 {
		anchor := active[len(active)-1].StartTime
		pending, pendingDegraded, err := recurrence.Plan(student, firstTag+1, true, student.BundleSize, anchor)
		if err != nil {
			return nil, degraded, err
		}
		degraded = degraded || pendingDegraded
		lessons = append(lessons, pending...)
	}

	return lessons, degraded, nil
}

// Enroll creates the student and the initial bundles atomically. The first
// active bundle is treated as paid up front; the shadow bundle stays pending
// until payment is confirmed on its first occurrence.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*EnrollmentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student := &models.Student{}
	s.applyRequest(student, req)
	if err := s.validateProfile(student); err != nil {
		return nil, err
	}

	result := &EnrollmentResult{Student: student}
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		if err := s.students.CreateTx(ctx, tx, student); err != nil {
			return err
		}
		lessons, degraded, err := s.generateBundles(student, 1, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.lessons.BulkCreateTx(ctx, tx, lessons); err != nil {
			return err
		}
		result.Lessons = lessons
		result.Degraded = degraded
		return nil
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enroll student")
	}

	s.afterWrite(ctx, result.Degraded, student.ID)
	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("frequency", student.Frequency),
		zap.Int("lessons", len(result.Lessons)))
	return result, nil
}

// UpdateProfile replaces the recurrence profile and regenerates every future
// scheduled bundle occurrence under fresh bundle tags. Past and completed
// lessons are left untouched.
func (s *EnrollmentService) UpdateProfile(ctx context.Context, id string, req EnrollStudentRequest) (*EnrollmentResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	result := &EnrollmentResult{}
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		student, err := s.students.FindForUpdateTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return err
		}

		s.applyRequest(student, req)
		if err := s.validateProfile(student); err != nil {
			return err
		}
		if err := s.students.UpdateTx(ctx, tx, student); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.lessons.DeleteFutureByStudentTx(ctx, tx, id, now); err != nil {
			return err
		}

		maxTag, err := s.lessons.MaxBundleTagTx(ctx, tx, id)
		if err != nil {
			return err
		}
		lessons, degraded, err := s.generateBundles(student, maxTag+1, now)
		if err != nil {
			return err
		}
		if err := s.lessons.BulkCreateTx(ctx, tx, lessons); err != nil {
			return err
		}

		result.Student = student
		result.Lessons = lessons
		result.Degraded = degraded
		return nil
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update student profile")
	}

	s.afterWrite(ctx, result.Degraded, id)
	s.logger.Info("student profile replaced",
		zap.String("student_id", id),
		zap.Int("regenerated", len(result.Lessons)))
	return result, nil
}

// Delete removes the student and every lesson they own in one transaction.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		if _, err := s.students.FindForUpdateTx(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return err
		}
		if err := s.lessons.DeleteByStudentTx(ctx, tx, id); err != nil {
			return err
		}
		return s.students.DeleteTx(ctx, tx, id)
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return typed
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete student")
	}

	s.afterWrite(ctx, false, id)
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

// List returns students matching the filter along with the total count.
func (s *EnrollmentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list students")
	}
	return students, total, nil
}

// Get loads a single student by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get student")
	}
	return student, nil
}

func (s *EnrollmentService) afterWrite(ctx context.Context, degraded bool, studentID string) {
	if degraded {
		if s.metrics != nil {
			s.metrics.CountSlotFallback()
		}
		s.logger.Warn("slot plan degraded to weekly fallback", zap.String("student_id", studentID))
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheKeyCalendar+"*")
	}
}
