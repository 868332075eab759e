package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/grade"
)

type gradeRepository struct {
	db *sqlx.DB
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(db *sqlx.DB) *gradeRepository {
	return &gradeRepository{db: db}
}

type gradeRow struct {
	ID         string    `db:"id"`
	StudentID  string    `db:"student_id"`
	SubjectID  string    `db:"subject_id"`
	Period     string    `db:"period"`
	SchoolYear string    `db:"school_year"`
	Value      float64   `db:"value"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (repo *gradeRepository) UpsertGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	now := time.Now().UTC()
	var row gradeRow
	err := repo.db.GetContext(ctx, &row,
		`INSERT INTO grades (id, student_id, subject_id, period, school_year, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (student_id, subject_id, period, school_year) DO UPDATE
		   SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		 RETURNING id, student_id, subject_id, period, school_year, value, created_at, updated_at`,
		uuid.New().String(), g.StudentID, g.SubjectID, g.Period, g.SchoolYear, g.Value, now)
	if err != nil {
		return grade.Grade{}, errors.Wrap(err, "upserting grade")
	}
	return grade.Grade(row), nil
}

func (repo *gradeRepository) GetGrade(ctx context.Context, studentID, subjectID, period, schoolYear string) (grade.Grade, error) {
	var row gradeRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, student_id, subject_id, period, school_year, value, created_at, updated_at
		   FROM grades WHERE student_id = $1 AND subject_id = $2 AND period = $3 AND school_year = $4`,
		studentID, subjectID, period, schoolYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grade.Grade{}, grade.ErrNotFound
		}
		return grade.Grade{}, errors.Wrap(err, "querying grade")
	}
	return grade.Grade(row), nil
}

func (repo *gradeRepository) StudentGrades(ctx context.Context, studentID, period, schoolYear string) ([]grade.Grade, error) {
	query := `SELECT id, student_id, subject_id, period, school_year, value, created_at, updated_at
	            FROM grades WHERE student_id = $1`
	args := []interface{}{studentID}
	if period != "" {
		args = append(args, period)
		query += ` AND period = $` + strconv.Itoa(len(args))
	}
	if schoolYear != "" {
		args = append(args, schoolYear)
		query += ` AND school_year = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY school_year, period, subject_id`

	var rows []gradeRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying student grades")
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, grade.Grade(row))
	}
	return grades, nil
}
