package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/grade"
)

type gradeRepository struct {
	db *gradeTable
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db.grade}
}

func (repo *gradeRepository) UpsertGrade(ctx context.Context, g grade.Grade) (grade.Grade, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	key := gradeKey{
		studentID:  g.StudentID,
		subjectID:  g.SubjectID,
		period:     g.Period,
		schoolYear: g.SchoolYear,
	}
	if orig, ok := repo.db.grades[key]; ok {
		g.ID = orig.ID
		g.CreatedAt = orig.CreatedAt
	} else {
		g.ID = uuid.New().String()
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	repo.db.grades[key] = &g
	return g, nil
}

func (repo *gradeRepository) GetGrade(ctx context.Context, studentID, subjectID, period, schoolYear string) (grade.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	key := gradeKey{studentID: studentID, subjectID: subjectID, period: period, schoolYear: schoolYear}
	g, ok := repo.db.grades[key]
	if !ok {
		return grade.Grade{}, grade.ErrNotFound
	}
	return *g, nil
}

func (repo *gradeRepository) StudentGrades(ctx context.Context, studentID, period, schoolYear string) ([]grade.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	grades := make([]grade.Grade, 0)
	for key, g := range repo.db.grades {
		if key.studentID != studentID {
			continue
		}
		if period != "" && key.period != period {
			continue
		}
		if schoolYear != "" && key.schoolYear != schoolYear {
			continue
		}
		grades = append(grades, *g)
	}
	sort.Slice(grades, func(i, j int) bool {
		gi, gj := grades[i], grades[j]
		if gi.SchoolYear != gj.SchoolYear {
			return gi.SchoolYear < gj.SchoolYear
		}
		if gi.Period != gj.Period {
			return gi.Period < gj.Period
		}
		return gi.SubjectID < gj.SubjectID
	})
	return grades, nil
}
