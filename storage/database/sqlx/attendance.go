package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

type attendanceRow struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	SubjectID  string    `db:"subject_id"`
	Date       time.Time `db:"date"`
	Status     string    `db:"status"`
	RecordedBy string    `db:"recorded_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:         row.ID,
		StudentID:  row.StudentID,
		SubjectID:  row.SubjectID,
		Date:       row.Date.UTC(),
		Status:     attendance.Status(row.Status),
		RecordedBy: row.RecordedBy,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	now := time.Now().UTC()
	var row attendanceRow
	err := repo.db.GetContext(ctx, &row,
		`INSERT INTO attendance_records (id, student_id, subject_id, date, status, recorded_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (student_id, subject_id, date) DO UPDATE
		   SET status = EXCLUDED.status, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
		 RETURNING id, student_id, subject_id, date, status, recorded_by, created_at, updated_at`,
		uuid.New().String(), rec.StudentID, rec.SubjectID, rec.Date, string(rec.Status), rec.RecordedBy, now)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, studentID, subjectID string, date time.Time) (attendance.Record, error) {
	var row attendanceRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, student_id, subject_id, date, status, recorded_by, created_at, updated_at
		   FROM attendance_records WHERE student_id = $1 AND subject_id = $2 AND date = $3`,
		studentID, subjectID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "querying attendance record")
	}
	return row.record(), nil
}

type studentSummaryRow struct {
	StudentID string `db:"student_id"`
	Present   int    `db:"present"`
	Absent    int    `db:"absent"`
	Late      int    `db:"late"`
	Excused   int    `db:"excused"`
	Total     int    `db:"total"`
}

func (repo *attendanceRepository) SummarizeStudents(ctx context.Context, subjectID string, r attendance.DateRange) ([]attendance.StudentSummary, error) {
	query := `SELECT student_id,
	                 COUNT(*) FILTER (WHERE status = 'present') AS present,
	                 COUNT(*) FILTER (WHERE status = 'absent') AS absent,
	                 COUNT(*) FILTER (WHERE status = 'late') AS late,
	                 COUNT(*) FILTER (WHERE status = 'excused') AS excused,
	                 COUNT(*) AS total
	            FROM attendance_records WHERE subject_id = $1`
	args := []interface{}{subjectID}
	if !r.From.IsZero() {
		args = append(args, attendance.DateOnly(r.From))
		query += ` AND date >= $` + strconv.Itoa(len(args))
	}
	if !r.To.IsZero() {
		args = append(args, attendance.DateOnly(r.To))
		query += ` AND date <= $` + strconv.Itoa(len(args))
	}
	query += ` GROUP BY student_id ORDER BY student_id`

	var rows []studentSummaryRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "summarizing attendance by student")
	}
	summaries := make([]attendance.StudentSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, attendance.StudentSummary(row))
	}
	return summaries, nil
}

type daySummaryRow struct {
	Date    time.Time `db:"date"`
	Present int       `db:"present"`
	Absent  int       `db:"absent"`
	Late    int       `db:"late"`
	Excused int       `db:"excused"`
}

func (repo *attendanceRepository) SummarizeDates(ctx context.Context, subjectID string) ([]attendance.DaySummary, error) {
	mostRecentFirst := core.DBOrdering{Field: "date"}

	var rows []daySummaryRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT date,
		        COUNT(*) FILTER (WHERE status = 'present') AS present,
		        COUNT(*) FILTER (WHERE status = 'absent') AS absent,
		        COUNT(*) FILTER (WHERE status = 'late') AS late,
		        COUNT(*) FILTER (WHERE status = 'excused') AS excused
		   FROM attendance_records WHERE subject_id = $1
		  GROUP BY date ORDER BY `+mostRecentFirst.String(), subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing attendance by date")
	}
	summaries := make([]attendance.DaySummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, attendance.DaySummary{
			Date:    row.Date.UTC(),
			Present: row.Present,
			Absent:  row.Absent,
			Late:    row.Late,
			Excused: row.Excused,
		})
	}
	return summaries, nil
}

func (repo *attendanceRepository) Dates(ctx context.Context, subjectID string) ([]time.Time, error) {
	mostRecentFirst := core.DBOrdering{Field: "date"}

	var dates []time.Time
	err := repo.db.SelectContext(ctx, &dates,
		`SELECT DISTINCT date FROM attendance_records WHERE subject_id = $1 ORDER BY `+mostRecentFirst.String(),
		subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance dates")
	}
	for i := range dates {
		dates[i] = dates[i].UTC()
	}
	return dates, nil
}
