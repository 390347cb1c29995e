package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
)

type lessonStudentRepository interface {
	FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	SetCreditsTx(ctx context.Context, tx *sqlx.Tx, id string, credits int) error
}

type lessonRepository interface {
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	Update(ctx context.Context, lesson *models.Lesson) error
	CreateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	ListByStudent(ctx context.Context, studentID string) ([]models.Lesson, error)
}

// LessonService serves the calendar feed and single-lesson operations,
// including the credit-guarded ad-hoc booking path for flexible students.
type LessonService struct {
	students   lessonStudentRepository
	lessons    lessonRepository
	tx         txRunner
	cache      *CacheService
	metrics    *MetricsService
	validate   *validator.Validate
	logger     *zap.Logger
	maxRetries int
}

// NewLessonService constructs a LessonService.
func NewLessonService(students lessonStudentRepository, lessons lessonRepository, tx txRunner, cache *CacheService, metrics *MetricsService, logger *zap.Logger, maxRetries int) *LessonService {
	return &LessonService{
		students:   students,
		lessons:    lessons,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		validate:   validator.New(),
		logger:     logger,
		maxRetries: maxRetries,
	}
}

func calendarCacheKey(filter models.LessonFilter) string {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	pending := ""
	if filter.Pending != nil {
		pending = fmt.Sprintf("%t", *filter.Pending)
	}
	return fmt.Sprintf("%s%s:%s:%s:%s:%s", CacheKeyCalendar, filter.StudentID, from, to, pending, filter.Status)
}

// Calendar returns the lesson feed for the filter, served from cache when the
// same window was fetched recently.
func (s *LessonService) Calendar(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	key := calendarCacheKey(filter)
	var cached []models.Lesson
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	lessons, err := s.lessons.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list lessons")
	}
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	_ = s.cache.Set(ctx, key, lessons, 0)
	return lessons, nil
}

// Get loads a single lesson.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get lesson")
	}
	return lesson, nil
}

// History returns every lesson a student has, ordered chronologically.
func (s *LessonService) History(ctx context.Context, studentID string) ([]models.Lesson, error) {
	lessons, err := s.lessons.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list lesson history")
	}
	return lessons, nil
}

// UpdateLessonRequest is the payload for editing a single occurrence.
type UpdateLessonRequest struct {
	Title  *string              `json:"title" validate:"omitempty,max=200"`
	Notes  *string              `json:"notes" validate:"omitempty,max=1000"`
	Status *models.LessonStatus `json:"status"`
}

// UpdateDetails edits a lesson's title, notes or lifecycle status. Cancelling
// a bundle occurrence must go through the rebalancer instead, so that path is
// rejected here.
func (s *LessonService) UpdateDetails(ctx context.Context, id string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Notes != nil {
		lesson.Notes = *req.Notes
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lesson status")
		}
		if *req.Status == models.LessonCancelled && lesson.InBundle() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cancel bundle occurrences via the cancellation endpoint")
		}
		lesson.Status = *req.Status
	}

	if err := s.lessons.Update(ctx, lesson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleReference, "lesson no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update lesson")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheKeyCalendar+"*")
	}
	return lesson, nil
}

// BookAdHocRequest is the payload for a one-off credit-backed booking.
type BookAdHocRequest struct {
	StudentID string    `json:"student_id" validate:"required,uuid4"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Title     string    `json:"title" validate:"omitempty,max=200"`
	Notes     string    `json:"notes" validate:"omitempty,max=1000"`
}

// BookAdHoc books a one-off lesson against the student's credit balance. The
// read-check-decrement runs under the student's row lock so the balance can
// never go negative, no matter how many bookings race.
func (s *LessonService) BookAdHoc(ctx context.Context, req BookAdHocRequest) (*models.Lesson, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	var lesson *models.Lesson
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		student, err := s.students.FindForUpdateTx(ctx, tx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return err
		}
		if student.RemainingCredits <= 0 {
			return appErrors.ErrNoCreditsRemaining
		}
		if err := s.students.SetCreditsTx(ctx, tx, student.ID, student.RemainingCredits-1); err != nil {
			return err
		}

		title := req.Title
		if title == "" {
			title = fmt.Sprintf("%s lesson", student.Name)
		}
		lesson = &models.Lesson{
			StudentID: student.ID,
			Title:     title,
			StartTime: req.StartTime.UTC(),
			EndTime:   req.EndTime.UTC(),
			BundleTag: models.AdHocBundleTag,
			Pending:   false,
			Paid:      true,
			Status:    models.LessonScheduled,
			Notes:     req.Notes,
		}
		return s.lessons.CreateTx(ctx, tx, lesson)
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "book ad-hoc lesson")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheKeyCalendar+"*")
	}
	s.logger.Info("ad-hoc lesson booked",
		zap.String("student_id", req.StudentID),
		zap.String("lesson_id", lesson.ID),
		zap.Time("start", lesson.StartTime))
	return lesson, nil
}
