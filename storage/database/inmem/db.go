package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/grade"
	"github.com/trezcool/darasa/core/grading"
)

type (
	DB struct {
		grading    *gradingTables
		attendance *attendanceTable
		grade      *gradeTable
	}

	gradingTables struct {
		sync.RWMutex
		schemas    map[string]*grading.Schema    // by subject ID
		components map[string]*grading.Component // by component ID
		items      map[string]*grading.Item      // by item ID
		scores     map[scoreKey]*grading.Score
	}

	attendanceTable struct {
		sync.RWMutex
		records map[attKey]*attendance.Record
	}

	gradeTable struct {
		sync.RWMutex
		grades map[gradeKey]*grade.Grade
	}

	scoreKey struct {
		itemID    string
		studentID string
	}

	attKey struct {
		studentID string
		subjectID string
		date      time.Time
	}

	gradeKey struct {
		studentID  string
		subjectID  string
		period     string
		schoolYear string
	}
)

func Open() (*DB, error) {
	db := &DB{
		grading: &gradingTables{
			schemas:    make(map[string]*grading.Schema),
			components: make(map[string]*grading.Component),
			items:      make(map[string]*grading.Item),
			scores:     make(map[scoreKey]*grading.Score),
		},
		attendance: &attendanceTable{records: make(map[attKey]*attendance.Record)},
		grade:      &gradeTable{grades: make(map[gradeKey]*grade.Grade)},
	}
	return db, nil
}
