package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jessiekimhj/scheduler-api/internal/models"
)

const lessonColumns = "id, student_id, title, start_time, end_time, sequence_number, bundle_tag, pending, paid, status, notes, created_at, updated_at"

// LessonRepository provides persistence for lesson occurrences.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// List returns lessons matching the filter ordered by start time, feeding the
// calendar view.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	base := "FROM lessons WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Pending != nil {
		conditions = append(conditions, fmt.Sprintf("pending = $%d", len(args)+1))
		args = append(args, *filter.Pending)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC", lessonColumns, base)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// FindByID loads a lesson by id.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE id = $1", lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindByIDTx loads a lesson inside a transaction with a row lock.
func (r *LessonRepository) FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE id = $1 FOR UPDATE", lessonColumns)
	var lesson models.Lesson
	if err := tx.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListBundleTx returns one bundle's occurrences ordered chronologically,
// locked for the remainder of the transaction.
func (r *LessonRepository) ListBundleTx(ctx context.Context, tx *sqlx.Tx, studentID string, bundleTag int, pending bool) ([]models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE student_id = $1 AND bundle_tag = $2 AND pending = $3 ORDER BY start_time ASC FOR UPDATE", lessonColumns)
	var lessons []models.Lesson
	if err := tx.SelectContext(ctx, &lessons, query, studentID, bundleTag, pending); err != nil {
		return nil, fmt.Errorf("list bundle lessons: %w", err)
	}
	return lessons, nil
}

// PendingBundleTagTx returns the tag of the student's pending bundle, or
// sql.ErrNoRows when no shadow bundle exists.
func (r *LessonRepository) PendingBundleTagTx(ctx context.Context, tx *sqlx.Tx, studentID string) (int, error) {
	const query = `SELECT bundle_tag FROM lessons WHERE student_id = $1 AND pending = true ORDER BY bundle_tag DESC LIMIT 1`
	var tag int
	if err := tx.GetContext(ctx, &tag, query, studentID); err != nil {
		return 0, err
	}
	return tag, nil
}

// MaxBundleTagTx returns the highest bundle tag ever issued for the student.
func (r *LessonRepository) MaxBundleTagTx(ctx context.Context, tx *sqlx.Tx, studentID string) (int, error) {
	const query = `SELECT COALESCE(MAX(bundle_tag), 0) FROM lessons WHERE student_id = $1`
	var tag int
	if err := tx.GetContext(ctx, &tag, query, studentID); err != nil {
		return 0, fmt.Errorf("max bundle tag: %w", err)
	}
	return tag, nil
}

// Create stores a new lesson record.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	return r.insert(ctx, r.db, lesson)
}

// CreateTx stores a lesson using an existing transaction.
func (r *LessonRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	return r.insert(ctx, tx, lesson)
}

// BulkCreateTx inserts many lessons within the caller's transaction.
func (r *LessonRepository) BulkCreateTx(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	for i := range lessons {
		if err := r.insert(ctx, tx, &lessons[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *LessonRepository) insert(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, student_id, title, start_time, end_time, sequence_number, bundle_tag, pending, paid, status, notes, created_at, updated_at)
        VALUES (:id, :student_id, :title, :start_time, :end_time, :sequence_number, :bundle_tag, :pending, :paid, :status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update modifies a lesson record.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	return r.modify(ctx, r.db, lesson)
}

// UpdateTx modifies a lesson using an existing transaction.
func (r *LessonRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, lesson *models.Lesson) error {
	return r.modify(ctx, tx, lesson)
}

func (r *LessonRepository) modify(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = :title, start_time = :start_time, end_time = :end_time, sequence_number = :sequence_number, bundle_tag = :bundle_tag, pending = :pending, paid = :paid, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exec, query, lesson)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTx removes a lesson by id within a transaction.
func (r *LessonRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByStudentTx removes all of a student's lessons within a transaction.
func (r *LessonRepository) DeleteByStudentTx(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("delete lessons by student: %w", err)
	}
	return nil
}

// DeleteFutureByStudentTx removes a student's not-yet-started bundle lessons,
// used when re-enrollment regenerates the schedule wholesale.
func (r *LessonRepository) DeleteFutureByStudentTx(ctx context.Context, tx *sqlx.Tx, studentID string, after time.Time) error {
	const query = `DELETE FROM lessons WHERE student_id = $1 AND bundle_tag <> 0 AND start_time >= $2 AND status = $3`
	if _, err := tx.ExecContext(ctx, query, studentID, after, models.LessonScheduled); err != nil {
		return fmt.Errorf("delete future lessons: %w", err)
	}
	return nil
}

// ListByBundle returns a bundle's occurrences outside a transaction, used by
// read-only surfaces such as receipts.
func (r *LessonRepository) ListByBundle(ctx context.Context, studentID string, bundleTag int) ([]models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE student_id = $1 AND bundle_tag = $2 ORDER BY start_time ASC", lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, studentID, bundleTag); err != nil {
		return nil, fmt.Errorf("list lessons by bundle: %w", err)
	}
	return lessons, nil
}

// ListByStudent returns every lesson for a student ordered by start time.
func (r *LessonRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE student_id = $1 ORDER BY start_time ASC", lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, studentID); err != nil {
		return nil, fmt.Errorf("list lessons by student: %w", err)
	}
	return lessons, nil
}
