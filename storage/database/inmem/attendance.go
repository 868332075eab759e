package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	key := attKey{studentID: rec.StudentID, subjectID: rec.SubjectID, date: rec.Date}
	if orig, ok := repo.db.records[key]; ok {
		rec.ID = orig.ID
		rec.CreatedAt = orig.CreatedAt
	} else {
		rec.ID = uuid.New().String()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	repo.db.records[key] = &rec
	return rec, nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, studentID, subjectID string, date time.Time) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rec, ok := repo.db.records[attKey{studentID: studentID, subjectID: subjectID, date: date}]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return *rec, nil
}

func (repo *attendanceRepository) SummarizeStudents(ctx context.Context, subjectID string, r attendance.DateRange) ([]attendance.StudentSummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byStudent := make(map[string]*attendance.StudentSummary)
	for key, rec := range repo.db.records {
		if key.subjectID != subjectID || !r.Contains(key.date) {
			continue
		}
		sum, ok := byStudent[key.studentID]
		if !ok {
			sum = &attendance.StudentSummary{StudentID: key.studentID}
			byStudent[key.studentID] = sum
		}
		switch rec.Status {
		case attendance.StatusPresent:
			sum.Present++
		case attendance.StatusAbsent:
			sum.Absent++
		case attendance.StatusLate:
			sum.Late++
		case attendance.StatusExcused:
			sum.Excused++
		}
		sum.Total++
	}

	summaries := make([]attendance.StudentSummary, 0, len(byStudent))
	for _, sum := range byStudent {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StudentID < summaries[j].StudentID })
	return summaries, nil
}

func (repo *attendanceRepository) SummarizeDates(ctx context.Context, subjectID string) ([]attendance.DaySummary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byDate := make(map[time.Time]*attendance.DaySummary)
	for key, rec := range repo.db.records {
		if key.subjectID != subjectID {
			continue
		}
		sum, ok := byDate[key.date]
		if !ok {
			sum = &attendance.DaySummary{Date: key.date}
			byDate[key.date] = sum
		}
		switch rec.Status {
		case attendance.StatusPresent:
			sum.Present++
		case attendance.StatusAbsent:
			sum.Absent++
		case attendance.StatusLate:
			sum.Late++
		case attendance.StatusExcused:
			sum.Excused++
		}
	}

	summaries := make([]attendance.DaySummary, 0, len(byDate))
	for _, sum := range byDate {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date.After(summaries[j].Date) })
	return summaries, nil
}

func (repo *attendanceRepository) Dates(ctx context.Context, subjectID string) ([]time.Time, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[time.Time]struct{})
	for key := range repo.db.records {
		if key.subjectID == subjectID {
			seen[key.date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}
