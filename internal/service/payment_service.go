package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	"github.com/jessiekimhj/scheduler-api/internal/recurrence"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
	"github.com/jessiekimhj/scheduler-api/pkg/export"
)

type paymentStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
}

type paymentLessonRepository interface {
	FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error)
	ListBundleTx(ctx context.Context, tx *sqlx.Tx, studentID string, bundleTag int, pending bool) ([]models.Lesson, error)
	MaxBundleTagTx(ctx context.Context, tx *sqlx.Tx, studentID string) (int, error)
	UpdateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error
	BulkCreateTx(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error
	ListByBundle(ctx context.Context, studentID string, bundleTag int) ([]models.Lesson, error)
}

// PaymentService promotes pending bundles once payment is confirmed and
// renders receipts for paid ones.
type PaymentService struct {
	students   paymentStudentRepository
	lessons    paymentLessonRepository
	tx         txRunner
	cache      *CacheService
	metrics    *MetricsService
	pdf        *export.PDFExporter
	logger     *zap.Logger
	maxRetries int
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(students paymentStudentRepository, lessons paymentLessonRepository, tx txRunner, cache *CacheService, metrics *MetricsService, logger *zap.Logger, maxRetries int) *PaymentService {
	return &PaymentService{
		students:   students,
		lessons:    lessons,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// PromotionResult reports what a payment confirmation changed.
type PromotionResult struct {
	Promoted  []models.Lesson `json:"promoted"`
	NextBatch []models.Lesson `json:"next_batch,omitempty"`
	BundleTag int             `json:"bundle_tag"`
	Degraded  bool            `json:"degraded"`
}

// ConfirmPayment flips an entire pending bundle to paid and spawns the next
// pending bundle behind it, in one transaction. The confirmation is anchored
// on the bundle's first occurrence so double submissions are rejected cheaply.
func (s *PaymentService) ConfirmPayment(ctx context.Context, lessonID string) (*PromotionResult, error) {
	result := &PromotionResult{}
	err := runEngineTx(ctx, s.tx, s.metrics, s.maxRetries, func(tx *sqlx.Tx) error {
		*result = PromotionResult{}

		lesson, err := s.lessons.FindByIDTx(ctx, tx, lessonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStaleReference, "lesson no longer exists")
			}
			return err
		}
		if !lesson.Pending {
			return appErrors.Clone(appErrors.ErrValidation, "lesson is not part of a pending bundle")
		}
		if lesson.SequenceNumber != 1 {
			return appErrors.Clone(appErrors.ErrValidation, "confirm payment on the bundle's first occurrence")
		}

		student, err := s.students.FindForUpdateTx(ctx, tx, lesson.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStaleReference, "student no longer exists")
			}
			return err
		}

		bundle, err := s.lessons.ListBundleTx(ctx, tx, student.ID, lesson.BundleTag, true)
		if err != nil {
			return err
		}
		if len(bundle) != student.BundleSize {
			return appErrors.Clone(appErrors.ErrIncompleteBundle,
				fmt.Sprintf("pending bundle has %d of %d occurrences", len(bundle), student.BundleSize))
		}

		for i := range bundle {
			bundle[i].Pending = false
			bundle[i].Paid = true
			if err := s.lessons.UpdateTx(ctx, tx, &bundle[i]); err != nil {
				return err
			}
		}
		result.Promoted = bundle
		result.BundleTag = lesson.BundleTag

		if student.SpawnsShadowBundle() {
			maxTag, err := s.lessons.MaxBundleTagTx(ctx, tx, student.ID)
			if err != nil {
				return err
			}
			anchor := bundle[len(bundle)-1].StartTime
			next, degraded, err := recurrence.Plan(student, maxTag+1, true, student.BundleSize, anchor)
			if err != nil {
				return err
			}
			if err := s.lessons.BulkCreateTx(ctx, tx, next); err != nil {
				return err
			}
			result.NextBatch = next
			result.Degraded = degraded
		}
		return nil
	})
	if err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPromotionFailed.Code, appErrors.ErrPromotionFailed.Status, "confirm payment")
	}

	if s.metrics != nil {
		s.metrics.CountPromotion()
		if result.Degraded {
			s.metrics.CountSlotFallback()
		}
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, CacheKeyCalendar+"*")
	}
	s.logger.Info("pending bundle promoted",
		zap.String("lesson_id", lessonID),
		zap.Int("bundle_tag", result.BundleTag),
		zap.Int("promoted", len(result.Promoted)),
		zap.Int("next_batch", len(result.NextBatch)))
	return result, nil
}

// Receipt renders a PDF receipt for a fully paid bundle.
func (s *PaymentService) Receipt(ctx context.Context, studentID string, bundleTag int) ([]byte, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student for receipt")
	}

	lessons, err := s.lessons.ListByBundle(ctx, studentID, bundleTag)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load bundle for receipt")
	}
	if len(lessons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "bundle not found")
	}
	for _, lesson := range lessons {
		if !lesson.Paid {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bundle is not fully paid")
		}
	}

	price := "-"
	if student.PackagePrice != nil {
		price = strconv.Itoa(*student.PackagePrice)
	}
	rows := make([][]string, 0, len(lessons))
	for _, lesson := range lessons {
		rows = append(rows, []string{
			strconv.Itoa(lesson.SequenceNumber),
			lesson.Title,
			lesson.StartTime.Format(time.RFC3339),
			string(lesson.Status),
		})
	}

	receipt := export.Receipt{
		Title: "Lesson Package Receipt",
		Summary: [][2]string{
			{"Student", student.Name},
			{"Lesson type", student.LessonType},
			{"Lessons", strconv.Itoa(len(lessons))},
			{"Package price", price},
			{"Issued", time.Now().UTC().Format("2006-01-02")},
		},
		Lessons: export.Table{
			Columns: []string{"#", "Title", "Start", "Status"},
			Rows:    rows,
		},
		FooterNo: fmt.Sprintf("%s-%d", studentID, bundleTag),
	}

	payload, err := s.pdf.RenderReceipt(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render receipt")
	}
	return payload, nil
}
