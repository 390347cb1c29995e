package models

import "time"

// LessonStatus tracks the lifecycle of a single occurrence. Cancelled bundle
// occurrences are hard-deleted by the rebalancer; the cancelled states below
// only apply to ad-hoc lessons kept for the ledger.
type LessonStatus string

const (
	LessonScheduled LessonStatus = "scheduled"
	LessonCompleted LessonStatus = "completed"
	LessonCancelled LessonStatus = "cancelled"
	LessonNoShow    LessonStatus = "no_show"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonScheduled, LessonCompleted, LessonCancelled, LessonNoShow:
		return true
	}
	return false
}

// AdHocBundleTag marks lessons booked outside the recurrence engine.
const AdHocBundleTag = 0

// Lesson is one scheduled occurrence. Bundle membership is explicit via
// BundleTag + Pending rather than inferred from ordering, so overlapping
// bundle generations stay unambiguous.
type Lesson struct {
	ID             string       `db:"id" json:"id"`
	StudentID      string       `db:"student_id" json:"student_id"`
	Title          string       `db:"title" json:"title"`
	StartTime      time.Time    `db:"start_time" json:"start_time"`
	EndTime        time.Time    `db:"end_time" json:"end_time"`
	SequenceNumber int          `db:"sequence_number" json:"sequence_number"`
	BundleTag      int          `db:"bundle_tag" json:"bundle_tag"`
	Pending        bool         `db:"pending" json:"pending"`
	Paid           bool         `db:"paid" json:"paid"`
	Status         LessonStatus `db:"status" json:"status"`
	Notes          string       `db:"notes" json:"notes"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// InBundle reports whether the lesson belongs to a recurrence bundle.
func (l *Lesson) InBundle() bool {
	return l.BundleTag != AdHocBundleTag
}

// LessonFilter narrows calendar feed queries.
type LessonFilter struct {
	StudentID string
	From      *time.Time
	To        *time.Time
	Pending   *bool
	Status    LessonStatus
}
