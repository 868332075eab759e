package grade

import (
	"context"
	"errors"
	"fmt"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound = errors.New("grade not found")
)

type (
	// Repository abstracts storage for final grade rows, unique per
	// (student, subject, period, school year).
	Repository interface {
		// UpsertGrade creates or silently replaces the row for the grade's
		// 4-tuple key; last write wins.
		UpsertGrade(ctx context.Context, g Grade) (Grade, error)
		// GetGrade returns the row for the exact key. Returns ErrNotFound
		// when none exists.
		GetGrade(ctx context.Context, studentID, subjectID, period, schoolYear string) (Grade, error)
		// StudentGrades returns all rows for the student, optionally
		// filtered by period and school year (empty filters match all).
		StudentGrades(ctx context.Context, studentID, period, schoolYear string) ([]Grade, error)
	}

	service struct {
		repo     Repository
		log      core.Logger
		auditSvc core.AuditLogger
	}

	// Service manages final grade snapshots independently of the weighted
	// grading engine.
	Service interface {
		Upsert(ctx context.Context, actor core.Actor, ng NewGrade) (Grade, error)
		Get(ctx context.Context, studentID, subjectID, period, schoolYear string) (Grade, error)
		ListForStudent(ctx context.Context, studentID string) ([]Grade, error)
		AverageAcrossSubjects(ctx context.Context, studentID, period, schoolYear string) (Average, error)
	}
)

func NewService(repo Repository, log core.Logger, auditSvc core.AuditLogger) Service {
	return &service{
		repo:     repo,
		log:      log,
		auditSvc: auditSvc,
	}
}

func (svc *service) Upsert(ctx context.Context, actor core.Actor, ng NewGrade) (Grade, error) {
	if err := ng.Validate(); err != nil {
		return Grade{}, err
	}
	g, err := svc.repo.UpsertGrade(ctx, Grade{
		StudentID:  ng.StudentID,
		SubjectID:  ng.SubjectID,
		Period:     ng.Period,
		SchoolYear: ng.SchoolYear,
		Value:      ng.Value,
	})
	if err != nil {
		return Grade{}, err
	}

	entry := core.NewAuditEntry(actor, core.AuditActionUpdate, core.AuditTargetGrade, g.ID, fmt.Sprintf("%s %s", g.Period, g.SchoolYear))
	entry.SubjectID = g.SubjectID
	entry.Details = fmt.Sprintf("recorded final grade %.2f for student %s", g.Value, g.StudentID)
	svc.auditSvc.Record(entry)

	return g, nil
}

func (svc *service) Get(ctx context.Context, studentID, subjectID, period, schoolYear string) (Grade, error) {
	return svc.repo.GetGrade(ctx, studentID, subjectID, period, schoolYear)
}

func (svc *service) ListForStudent(ctx context.Context, studentID string) ([]Grade, error) {
	return svc.repo.StudentGrades(ctx, studentID, "", "")
}

// AverageAcrossSubjects is the plain arithmetic mean over the student's
// grades for the period: every subject counts equally, unlike the weighted
// engine's component model.
func (svc *service) AverageAcrossSubjects(ctx context.Context, studentID, period, schoolYear string) (Average, error) {
	grades, err := svc.repo.StudentGrades(ctx, studentID, period, schoolYear)
	if err != nil {
		return Average{}, err
	}
	if len(grades) == 0 {
		return Average{}, nil
	}
	var sum float64
	for _, g := range grades {
		sum += g.Value
	}
	return Average{
		Value: core.Round2(sum / float64(len(grades))),
		Count: len(grades),
		Valid: true,
	}, nil
}
