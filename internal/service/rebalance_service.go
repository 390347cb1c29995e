package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	"github.com/jessiekimhj/scheduler-api/internal/recurrence"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
)

type rebalanceStudentRepository interface {
	FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	SetCreditsTx(ctx context.Context, tx *sqlx.Tx, id string, credits int) error
}

type rebalanceLessonRepository interface {
	FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error)
	ListBundleTx(ctx context.Context, tx *sqlx.Tx, studentID string, bundleTag int, pending bool) ([]models.Lesson, error)
	PendingBundleTagTx(ctx context.Context, tx *sqlx.Tx, studentID string) (int, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	UpdateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error
}

// RebalanceService restores bundle shape after a cancellation: the cancelled
// occurrence is removed, the active bundle is refilled pending-first, and both
// bundles are renumbered densely in chronological order.
type RebalanceService struct {
	students   rebalanceStudentRepository
	lessons    rebalanceLessonRepository
	tx         txRunner
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewRebalanceService constructs a RebalanceService.
func NewRebalanceService(students rebalanceStudentRepository, lessons rebalanceLessonRepository, tx txRunner, cache *CacheService, metrics *MetricsService, logger *zap.Logger, maxRetries int) *RebalanceService {
	return &RebalanceService{
		students:   students,
		lessons:    lessons,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// RebalanceResult describes the effects of one cancellation.
type RebalanceResult struct {
	CancelledID string          `json:"cancelled_id"`
	Active      []models.Lesson `json:"active,omitempty"`
	Pending     []models.Lesson `json:"pending,omitempty"`
	Promoted    int             `json:"promoted"`
	Generated   int             `json:"generated"`
	Refunded    bool            `json:"refunded"`
	Degraded    bool            `json:"degraded"`
}

// CancelOccurrence removes a lesson and rebalances the student's bundles in a
// single transaction. Ad-hoc lessons are deleted with a credit refund;
// pending occurrences are simply replaced at the tail of their bundle.
func (s *RebalanceService) CancelOccurrence(ctx context.Context, lessonID string) (*RebalanceResult, error) {
	result := &RebalanceResult{CancelledID: lessonID}
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		*result = RebalanceResult{CancelledID: lessonID}

		lesson, err := s.lessons.FindByIDTx(ctx, tx, lessonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStaleReference, "lesson no longer exists")
			}
			return err
		}
		if lesson.Status != models.LessonScheduled {
			return appErrors.Clone(appErrors.ErrValidation, "only scheduled lessons can be cancelled")
		}

		student, err := s.students.FindForUpdateTx(ctx, tx, lesson.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStaleReference, "student no longer exists")
			}
			return err
		}

		if err := s.lessons.DeleteTx(ctx, tx, lesson.ID); err != nil {
			return err
		}

		if !lesson.InBundle() {
			// Ad-hoc bookings give the credit back when cancelled ahead of time.
			if err := s.students.SetCreditsTx(ctx, tx, student.ID, student.RemainingCredits+1); err != nil {
				return err
			}
			result.Refunded = true
			return nil
		}

		if lesson.Pending {
			return s.rebalancePending(ctx, tx, student, lesson, result)
		}
		return s.rebalanceActive(ctx, tx, student, lesson, result)
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrRebalanceFailed.Code, appErrors.ErrRebalanceFailed.Status, "cancel occurrence")
	}

	if s.metrics != nil {
		s.metrics.CountRebalance()
		if result.Degraded {
			s.metrics.CountSlotFallback()
		}
	}
	if result.Degraded {
		s.logger.Warn("rebalance used weekly fallback", zap.String("lesson_id", lessonID))
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheKeyCalendar+"*")
	}
	s.logger.Info("occurrence cancelled",
		zap.String("lesson_id", lessonID),
		zap.Int("promoted", result.Promoted),
		zap.Int("generated", result.Generated))
	return result, nil
}

// rebalanceActive refills the active bundle after one of its occurrences was
// removed. The earliest pending occurrence is promoted into the hole when a
// shadow bundle exists; otherwise a fresh occurrence is generated at the tail.
func (s *RebalanceService) rebalanceActive(ctx context.Context, tx *sqlx.Tx, student *models.Student, cancelled *models.Lesson, result *RebalanceResult) error {
	active, err := s.lessons.ListBundleTx(ctx, tx, student.ID, cancelled.BundleTag, false)
	if err != nil {
		return err
	}

	var pending []models.Lesson
	pendingTag, err := s.lessons.PendingBundleTagTx(ctx, tx, student.ID)
	switch {
	case err == nil:
		pending, err = s.lessons.ListBundleTx(ctx, tx, student.ID, pendingTag, true)
		if err != nil {
			return err
		}
	case errors.Is(err, sql.ErrNoRows):
		pendingTag = 0
	default:
		return err
	}

	for len(active) < student.BundleSize && len(pending) > 0 {
		moved := pending[0]
		pending = pending[1:]
		moved.Pending = false
		moved.Paid = true
		moved.BundleTag = cancelled.BundleTag
		active = append(active, moved)
		result.Promoted++
	}

	if need := student.BundleSize - len(active); need > 0 && student.Recurring() {
		anchor := tailAnchor(cancelled.StartTime, active)
		planned, degraded, err := recurrence.Plan(student, cancelled.BundleTag, false, need, anchor)
		if err != nil {
			return err
		}
		result.Degraded = result.Degraded || degraded
		result.Generated += len(planned)
		active = append(active, planned...)
	}

	sortByStart(active)
	recurrence.Renumber(student.Name, active)
	if err := s.persist(ctx, tx, active); err != nil {
		return err
	}
	result.Active = active

	// Each promotion leaves a hole at the tail of the pending bundle; keep it
	// at full size so the next payment confirmation promotes a whole bundle.
	if result.Promoted > 0 && pendingTag != 0 && student.SpawnsShadowBundle() {
		if need := student.BundleSize - len(pending); need > 0 {
			anchor := tailAnchor(lastStart(active), pending)
			planned, degraded, err := recurrence.Plan(student, pendingTag, true, need, anchor)
			if err != nil {
				return err
			}
			result.Degraded = result.Degraded || degraded
			result.Generated += len(planned)
			pending = append(pending, planned...)
		}
		sortByStart(pending)
		recurrence.Renumber(student.Name, pending)
		if err := s.persist(ctx, tx, pending); err != nil {
			return err
		}
		result.Pending = pending
	} else if len(pending) > 0 {
		result.Pending = pending
	}

	return nil
}

// rebalancePending replaces a cancelled pending occurrence at the tail of its
// own bundle. The active bundle is untouched.
func (s *RebalanceService) rebalancePending(ctx context.Context, tx *sqlx.Tx, student *models.Student, cancelled *models.Lesson, result *RebalanceResult) error {
	pending, err := s.lessons.ListBundleTx(ctx, tx, student.ID, cancelled.BundleTag, true)
	if err != nil {
		return err
	}

	if need := student.BundleSize - len(pending); need > 0 && student.Recurring() {
		anchor := tailAnchor(cancelled.StartTime, pending)
		planned, degraded, err := recurrence.Plan(student, cancelled.BundleTag, true, need, anchor)
		if err != nil {
			return err
		}
		result.Degraded = result.Degraded || degraded
		result.Generated += len(planned)
		pending = append(pending, planned...)
	}

	sortByStart(pending)
	recurrence.Renumber(student.Name, pending)
	if err := s.persist(ctx, tx, pending); err != nil {
		return err
	}
	result.Pending = pending
	return nil
}

func (s *RebalanceService) persist(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error {
	for i := range lessons {
		if lessons[i].ID == "" {
			if err := s.lessons.CreateTx(ctx, tx, &lessons[i]); err != nil {
				return err
			}
			continue
		}
		if err := s.lessons.UpdateTx(ctx, tx, &lessons[i]); err != nil {
			return err
		}
	}
	return nil
}

func sortByStart(lessons []models.Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		return lessons[i].StartTime.Before(lessons[j].StartTime)
	})
}

func lastStart(lessons []models.Lesson) time.Time {
	var last time.Time
	for _, lesson := range lessons {
		if lesson.StartTime.After(last) {
			last = lesson.StartTime
		}
	}
	return last
}

// tailAnchor picks the later of the fallback time and the bundle's last start,
// so regenerated occurrences always land after everything that survives.
func tailAnchor(fallback time.Time, lessons []models.Lesson) time.Time {
	anchor := fallback
	if last := lastStart(lessons); last.After(anchor) {
		anchor = last
	}
	return anchor
}
