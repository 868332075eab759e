package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound = errors.New("attendance record not found")
)

type (
	// Repository abstracts storage for attendance rows. Uniqueness is keyed
	// on (student, subject, date); upserts never duplicate a row.
	Repository interface {
		// UpsertRecord creates or replaces the row for the record's
		// (student, subject, date) key.
		UpsertRecord(ctx context.Context, rec Record) (Record, error)
		// GetRecord returns the row for the exact key. Returns ErrNotFound
		// when none exists.
		GetRecord(ctx context.Context, studentID, subjectID string, date time.Time) (Record, error)
		// SummarizeStudents aggregates status counts per student for the
		// subject, constrained to the range when one is given.
		SummarizeStudents(ctx context.Context, subjectID string, r DateRange) ([]StudentSummary, error)
		// SummarizeDates aggregates status counts per recorded date for the
		// subject, most recent first.
		SummarizeDates(ctx context.Context, subjectID string) ([]DaySummary, error)
		// Dates returns the distinct dates with at least one record for the
		// subject, most recent first.
		Dates(ctx context.Context, subjectID string) ([]time.Time, error)
	}

	service struct {
		repo     Repository
		log      core.Logger
		auditSvc core.AuditLogger
	}

	// Service records and summarizes per-subject attendance.
	Service interface {
		Record(ctx context.Context, actor core.Actor, nr NewRecord) (Record, error)
		Get(ctx context.Context, studentID, subjectID string, date time.Time) (Record, error)
		Summarize(ctx context.Context, subjectID string, r DateRange) ([]StudentSummary, error)
		DaySummary(ctx context.Context, subjectID string) ([]DaySummary, error)
		ListDates(ctx context.Context, subjectID string) *DateCursor
	}
)

func NewService(repo Repository, log core.Logger, auditSvc core.AuditLogger) Service {
	return &service{
		repo:     repo,
		log:      log,
		auditSvc: auditSvc,
	}
}

// Record upserts attendance by (student, subject, date). Recording the same
// key twice updates the status in place; recording the same student on the
// same day for another subject is an independent row.
func (svc *service) Record(ctx context.Context, actor core.Actor, nr NewRecord) (Record, error) {
	if err := nr.Validate(); err != nil {
		return Record{}, err
	}
	rec, err := svc.repo.UpsertRecord(ctx, Record{
		StudentID:  nr.StudentID,
		SubjectID:  nr.SubjectID,
		Date:       nr.Date,
		Status:     nr.Status,
		RecordedBy: actor.ID,
	})
	if err != nil {
		return Record{}, err
	}

	entry := core.NewAuditEntry(actor, core.AuditActionUpdate, core.AuditTargetAttendance, rec.ID, "attendance")
	entry.SubjectID = rec.SubjectID
	entry.Details = fmt.Sprintf("marked student %s %s on %s", rec.StudentID, rec.Status, rec.Date.Format("2006-01-02"))
	svc.auditSvc.Record(entry)

	return rec, nil
}

func (svc *service) Get(ctx context.Context, studentID, subjectID string, date time.Time) (Record, error) {
	return svc.repo.GetRecord(ctx, studentID, subjectID, DateOnly(date))
}

func (svc *service) Summarize(ctx context.Context, subjectID string, r DateRange) ([]StudentSummary, error) {
	return svc.repo.SummarizeStudents(ctx, subjectID, r)
}

func (svc *service) DaySummary(ctx context.Context, subjectID string) ([]DaySummary, error) {
	return svc.repo.SummarizeDates(ctx, subjectID)
}

// ListDates returns a lazy, restartable cursor over the distinct recorded
// dates for the subject, most recent first. Nothing is fetched until the
// first Next call; Restart re-reads from storage.
func (svc *service) ListDates(ctx context.Context, subjectID string) *DateCursor {
	return &DateCursor{svc: svc, subjectID: subjectID}
}

// DateCursor iterates over a subject's recorded dates in descending order.
type DateCursor struct {
	svc       *service
	subjectID string

	dates  []time.Time
	pos    int
	loaded bool
}

// Next returns the next date. ok is false when the sequence is exhausted.
func (c *DateCursor) Next(ctx context.Context) (date time.Time, ok bool, err error) {
	if !c.loaded {
		c.dates, err = c.svc.repo.Dates(ctx, c.subjectID)
		if err != nil {
			return time.Time{}, false, err
		}
		c.loaded = true
		c.pos = 0
	}
	if c.pos >= len(c.dates) {
		return time.Time{}, false, nil
	}
	date = c.dates[c.pos]
	c.pos++
	return date, true, nil
}

// Restart rewinds the cursor; the next Next call re-reads from storage.
func (c *DateCursor) Restart() {
	c.dates = nil
	c.pos = 0
	c.loaded = false
}
