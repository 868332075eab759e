package attendance

import (
	"time"

	"github.com/trezcool/darasa/core"
)

// Status is a daily attendance status.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Record is one attendance row, unique per (student, subject, date). The
// subject is part of the key so a student can have independent attendance per
// subject on the same calendar day.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SubjectID  string    `json:"subject_id"`
	Date       time.Time `json:"date"` // date only, UTC midnight
	Status     Status    `json:"status"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// NewRecord contains information needed to record attendance.
type NewRecord struct {
	StudentID string    `json:"student_id" validate:"required"`
	SubjectID string    `json:"subject_id" validate:"required"`
	Date      time.Time `json:"date" validate:"required"`
	Status    Status    `json:"status" validate:"required,attstatus"`
}

func (nr *NewRecord) Validate() error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.SubjectID = core.CleanString(nr.SubjectID)
	nr.Status = Status(core.CleanString(string(nr.Status), true /* lower */))
	nr.Date = DateOnly(nr.Date)
	return core.Validate.Struct(nr)
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is an optional inclusive date filter; zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Contains reports whether the day `t` falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := DateOnly(t)
	if !r.From.IsZero() && d.Before(DateOnly(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(DateOnly(r.To)) {
		return false
	}
	return true
}

// StudentSummary is one student's status counts over the recorded days.
type StudentSummary struct {
	StudentID string `json:"student_id"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Late      int    `json:"late"`
	Excused   int    `json:"excused"`
	Total     int    `json:"total"`
}

// DaySummary is the per-date breakdown of statuses for a subject.
type DaySummary struct {
	Date    time.Time `json:"date"`
	Present int       `json:"present"`
	Absent  int       `json:"absent"`
	Late    int       `json:"late"`
	Excused int       `json:"excused"`
}
