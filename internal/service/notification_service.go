package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jessiekimhj/scheduler-api/internal/models"
	appErrors "github.com/jessiekimhj/scheduler-api/pkg/errors"
	"github.com/jessiekimhj/scheduler-api/pkg/jobs"
)

const cacheKeyNotifications = "scheduler:notifications:low-credit"

type notificationStudentRepository interface {
	ListLowCredit(ctx context.Context, threshold int) ([]models.Student, error)
}

// NotificationService derives low-credit alerts for the teacher. Alerts are
// recomputed on a background sweep and kept in cache plus an in-memory
// snapshot so reads never block on the database.
type NotificationService struct {
	students notificationStudentRepository
	cache    *CacheService
	logger   *zap.Logger

	warnAt   int
	interval time.Duration
	queue    *jobs.Queue
	ticker   *time.Ticker
	done     chan struct{}

	mu       sync.RWMutex
	snapshot []models.Notification
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(students notificationStudentRepository, cache *CacheService, logger *zap.Logger, warnAt int, interval time.Duration, workers int) *NotificationService {
	if warnAt < 1 {
		warnAt = 1
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s := &NotificationService{
		students: students,
		cache:    cache,
		logger:   logger,
		warnAt:   warnAt,
		interval: interval,
		done:     make(chan struct{}),
	}
	s.queue = jobs.NewQueue("notifications", s.handleRefreshJob, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the background refresh sweep.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	s.enqueueRefresh()

	s.ticker = time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.ticker.C:
				s.enqueueRefresh()
			}
		}
	}()
}

// Stop halts the sweep and its workers.
func (s *NotificationService) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	s.queue.Stop()
}

func (s *NotificationService) enqueueRefresh() {
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: "refresh-low-credit",
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification refresh", zap.Error(err))
	}
}

func (s *NotificationService) handleRefreshJob(ctx context.Context, _ jobs.Job) error {
	_, err := s.Refresh(ctx)
	return err
}

// Refresh recomputes the alert snapshot from storage.
func (s *NotificationService) Refresh(ctx context.Context) ([]models.Notification, error) {
	students, err := s.students.ListLowCredit(ctx, s.warnAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "refresh notifications")
	}

	now := time.Now().UTC()
	notifications := make([]models.Notification, 0, len(students))
	for _, student := range students {
		notifications = append(notifications, buildCreditNotification(student, now))
	}

	s.mu.Lock()
	s.snapshot = notifications
	s.mu.Unlock()

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKeyNotifications, notifications, s.interval*2)
	}

	s.logger.Debug("notification snapshot refreshed", zap.Int("alerts", len(notifications)))
	return notifications, nil
}

// List returns the current alerts, preferring the cached snapshot and falling
// back to a live recompute on a cold start.
func (s *NotificationService) List(ctx context.Context) ([]models.Notification, error) {
	var cached []models.Notification
	if hit, err := s.cache.Get(ctx, cacheKeyNotifications, &cached); err == nil && hit {
		return cached, nil
	}

	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	return s.Refresh(ctx)
}

func buildCreditNotification(student models.Student, now time.Time) models.Notification {
	kind := models.NotificationPackageExpiring
	title := "Package running low"
	message := fmt.Sprintf("%s has %d lesson credits left", student.Name, student.RemainingCredits)
	if student.RemainingCredits <= 0 {
		kind = models.NotificationPackageEmpty
		title = "Package used up"
		message = fmt.Sprintf("%s has no lesson credits left", student.Name)
	}
	return models.Notification{
		ID:          fmt.Sprintf("%s-%s", kind, student.ID),
		Type:        kind,
		Title:       title,
		Message:     message,
		StudentID:   student.ID,
		StudentName: student.Name,
		GeneratedAt: now,
	}
}
