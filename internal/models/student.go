package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Lesson frequency profiles. Flexible students have no recurring slots and
// book ad-hoc against their credit balance.
const (
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyFlexible = "flexible"
)

// Lesson types offered by the studio.
const (
	LessonTypeVocal       = "vocal"
	LessonTypeGuitar      = "guitar"
	LessonTypeGuitarVocal = "guitar+vocal"
)

// Slot is a recurring meeting time: weekday 0 (Sunday) through 6 (Saturday)
// plus a start time in "15:04" form.
type Slot struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
}

// StartClock parses the slot start time into hour and minute.
func (s Slot) StartClock() (int, int, error) {
	t, err := time.Parse("15:04", s.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("parse slot start %q: %w", s.Start, err)
	}
	return t.Hour(), t.Minute(), nil
}

// SlotList stores the ordered weekday/time slots as a JSONB column.
type SlotList []Slot

// Value implements driver.Valuer for JSONB persistence.
func (l SlotList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (l *SlotList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported slot list type %T", src)
	}
	return json.Unmarshal(raw, l)
}

// Student represents a learner enrolled with a recurrence profile. The
// profile is only ever replaced wholesale (re-enrollment); bundle state lives
// on the lessons themselves.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	LessonType       string    `db:"lesson_type" json:"lesson_type"`
	Frequency        string    `db:"frequency" json:"frequency"`
	Slots            SlotList  `db:"slots" json:"slots"`
	IntervalWeeks    int       `db:"interval_weeks" json:"interval_weeks"`
	DurationMinutes  int       `db:"duration_minutes" json:"duration_minutes"`
	BundleSize       int       `db:"bundle_size" json:"bundle_size"`
	RemainingCredits int       `db:"remaining_credits" json:"remaining_credits"`
	PackagePrice     *int      `db:"package_price" json:"package_price,omitempty"`
	Memo             string    `db:"memo" json:"memo"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Recurring reports whether the profile generates lesson bundles at all.
func (s *Student) Recurring() bool {
	return s.Frequency != FrequencyFlexible && s.IntervalWeeks > 0 && len(s.Slots) > 0
}

// SpawnsShadowBundle reports whether a pending bundle should be kept ahead of
// the active one. Single-session and flexible profiles never do.
func (s *Student) SpawnsShadowBundle() bool {
	return s.Recurring() && s.BundleSize >= 2
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Frequency string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
