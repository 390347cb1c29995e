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

const studentColumns = "id, name, lesson_type, frequency, slots, interval_weeks, duration_minutes, bundle_size, remaining_credits, package_price, memo, active, created_at, updated_at"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Frequency != "" {
		conditions = append(conditions, fmt.Sprintf("frequency = $%d", len(args)+1))
		args = append(args, filter.Frequency)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"frequency":  true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, sortBy, order, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindForUpdateTx loads a student inside tx with a row lock, serializing all
// engine mutations for that student's occurrence set.
func (r *StudentRepository) FindForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 FOR UPDATE", studentColumns)
	var student models.Student
	if err := tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.create(ctx, r.db, student)
}

// CreateTx inserts a student using an existing transaction.
func (r *StudentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	return r.create(ctx, tx, student)
}

func (r *StudentRepository) create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, lesson_type, frequency, slots, interval_weeks, duration_minutes, bundle_size, remaining_credits, package_price, memo, active, created_at, updated_at)
        VALUES (:id, :name, :lesson_type, :frequency, :slots, :interval_weeks, :duration_minutes, :bundle_size, :remaining_credits, :package_price, :memo, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	return r.update(ctx, r.db, student)
}

// UpdateTx modifies a student using an existing transaction.
func (r *StudentRepository) UpdateTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	return r.update(ctx, tx, student)
}

func (r *StudentRepository) update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, lesson_type = :lesson_type, frequency = :frequency, slots = :slots, interval_weeks = :interval_weeks, duration_minutes = :duration_minutes, bundle_size = :bundle_size, remaining_credits = :remaining_credits, package_price = :package_price, memo = :memo, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SetCreditsTx writes the remaining credit balance inside a transaction. The
// caller must hold the student's row lock via FindForUpdateTx.
func (r *StudentRepository) SetCreditsTx(ctx context.Context, tx *sqlx.Tx, id string, credits int) error {
	const query = `UPDATE students SET remaining_credits = $2, updated_at = $3 WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, id, credits, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set credits: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTx removes a student inside a transaction. Lessons are removed by the
// caller in the same transaction.
func (r *StudentRepository) DeleteTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// ListLowCredit returns active students whose credit balance is at or below
// the threshold, ordered by balance then name.
func (r *StudentRepository) ListLowCredit(ctx context.Context, threshold int) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE active = true AND remaining_credits <= $1 ORDER BY remaining_credits ASC, name ASC", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, threshold); err != nil {
		return nil, fmt.Errorf("list low credit students: %w", err)
	}
	return students, nil
}
