package grade

import (
	"fmt"
	"time"

	"github.com/trezcool/darasa/core"
)

// Grade is a flat final grade per (student, subject, period, school year),
// recorded directly rather than computed from weighted components. It
// predates the weighted grading system and works without one.
type Grade struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SubjectID  string    `json:"subject_id"`
	Period     string    `json:"period"`      // e.g. "1st Semester"
	SchoolYear string    `json:"school_year"` // e.g. "2024-2025"
	Value      float64   `json:"value"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// NewGrade contains information needed to record a final grade.
type NewGrade struct {
	StudentID  string  `json:"student_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	Period     string  `json:"period" validate:"required"`
	SchoolYear string  `json:"school_year" validate:"required,schoolyear"`
	Value      float64 `json:"value" validate:"gte=0,lte=100"`
}

func (ng *NewGrade) Validate() error {
	ng.StudentID = core.CleanString(ng.StudentID)
	ng.SubjectID = core.CleanString(ng.SubjectID)
	ng.Period = core.CleanString(ng.Period)
	ng.SchoolYear = core.CleanString(ng.SchoolYear)
	return core.Validate.Struct(ng)
}

// Average is the unweighted mean over a set of grades; Valid is false when
// the set is empty.
type Average struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
	Valid bool    `json:"valid"`
}

func (a Average) String() string {
	if !a.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", a.Value)
}
