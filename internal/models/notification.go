package models

import "time"

// Notification kinds surfaced to the teacher.
const (
	NotificationPackageExpiring = "package-expiring"
	NotificationPackageEmpty    = "package-empty"
)

// Notification is a derived alert about a student's credit balance. These are
// computed from storage, not persisted.
type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	GeneratedAt time.Time `json:"generated_at"`
}
