package grading_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/grading"
	dummyaudit "github.com/trezcool/darasa/services/audit/dummy"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

var teacher = core.Actor{ID: "tch-001", Name: "Mr. Banza", Role: core.RoleTeacher}

func setup(t *testing.T) (grading.Service, *dummyaudit.Service) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	auditSvc := dummyaudit.NewService()
	return grading.NewService(inmemdb.NewGradingRepository(db), core.NopLogger{}, auditSvc), auditSvc
}

func defineSchema(t *testing.T, svc grading.Service, subjectID string, defs ...grading.ComponentDef) grading.Schema {
	t.Helper()
	sch, err := svc.DefineSchema(context.Background(), teacher, grading.NewSchema{
		SubjectID:  subjectID,
		Components: defs,
	})
	if err != nil {
		t.Fatalf("defining schema: %v", err)
	}
	return sch
}

func addItem(t *testing.T, svc grading.Service, componentID, title string, maxScore float64) grading.Item {
	t.Helper()
	it, err := svc.AddItem(context.Background(), teacher, grading.NewItem{
		ComponentID: componentID,
		Title:       title,
		MaxScore:    maxScore,
	})
	if err != nil {
		t.Fatalf("adding item %q: %v", title, err)
	}
	return it
}

func TestService_DefineSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		svc, auditSvc := setup(t)
		sch := defineSchema(t, svc, "subj-math",
			grading.ComponentDef{Name: "Quizzes", Weight: 20},
			grading.ComponentDef{Name: "Exams", Weight: 80},
		)

		if sch.SubjectID != "subj-math" {
			t.Errorf("SubjectID = %s, want subj-math", sch.SubjectID)
		}
		if sch.TeacherID != teacher.ID {
			t.Errorf("TeacherID = %s, want %s", sch.TeacherID, teacher.ID)
		}
		if len(sch.Components) != 2 {
			t.Fatalf("got %d components, want 2", len(sch.Components))
		}
		if sch.Components[0].Name != "Quizzes" || sch.Components[1].Name != "Exams" {
			t.Errorf("components out of creation order: %s, %s", sch.Components[0].Name, sch.Components[1].Name)
		}
		if sum := sch.WeightSum(); sum != 100 {
			t.Errorf("WeightSum() = %d, want 100", sum)
		}
		if entries := auditSvc.Entries(); len(entries) != 1 || entries[0].TargetType != core.AuditTargetGradingSystem {
			t.Errorf("unexpected audit entries: %+v", entries)
		}
	})

	t.Run("weights must sum to 100", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.DefineSchema(ctx, teacher, grading.NewSchema{
			SubjectID: "subj-math",
			Components: []grading.ComponentDef{
				{Name: "Quizzes", Weight: 20},
				{Name: "Homework", Weight: 30},
				{Name: "Exams", Weight: 40},
			},
		})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected a validation error, got %v", err)
		}
		if !strings.Contains(vErr.Error(), "90%") {
			t.Errorf("error should name the off sum, got %q", vErr.Error())
		}

		// the failed definition must leave no schema behind
		if _, err = svc.GetSchema(ctx, "subj-math"); !errors.Is(err, grading.ErrNoSchema) {
			t.Errorf("GetSchema() error = %v, want ErrNoSchema", err)
		}
	})

	t.Run("rejected redefinition keeps the previous schema", func(t *testing.T) {
		svc, _ := setup(t)
		defineSchema(t, svc, "subj-math",
			grading.ComponentDef{Name: "Quizzes", Weight: 50},
			grading.ComponentDef{Name: "Exams", Weight: 50},
		)

		_, err := svc.DefineSchema(ctx, teacher, grading.NewSchema{
			SubjectID: "subj-math",
			Components: []grading.ComponentDef{
				{Name: "Quizzes", Weight: 99},
			},
		})
		if err == nil {
			t.Fatal("expected the redefinition to be rejected")
		}

		sch, err := svc.GetSchema(ctx, "subj-math")
		if err != nil {
			t.Fatalf("GetSchema(): %v", err)
		}
		if len(sch.Components) != 2 || sch.Components[0].Weight != 50 {
			t.Errorf("previous schema not preserved: %+v", sch.Components)
		}
	})

	t.Run("duplicate component names", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.DefineSchema(ctx, teacher, grading.NewSchema{
			SubjectID: "subj-math",
			Components: []grading.ComponentDef{
				{Name: "Quizzes", Weight: 50},
				{Name: "Quizzes", Weight: 50},
			},
		})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected a validation error, got %v", err)
		}
	})

	t.Run("no components", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.DefineSchema(ctx, teacher, grading.NewSchema{SubjectID: "subj-math"})
		if err == nil {
			t.Fatal("expected an empty definition to be rejected")
		}
	})
}

func TestService_DefineSchema_replaceSemantics(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 40},
		grading.ComponentDef{Name: "Exams", Weight: 60},
	)
	quizzes, _ := sch.Component(sch.Components[0].ID)
	it := addItem(t, svc, quizzes.ID, "Quiz 1", 50)
	if _, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: it.ID, StudentID: "std-001", Value: 40}); err != nil {
		t.Fatalf("setting score: %v", err)
	}

	// "Quizzes" survives by name with a new weight; "Exams" is dropped and
	// "Homework" is created empty
	sch2 := defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 70},
		grading.ComponentDef{Name: "Homework", Weight: 30},
	)

	if sch2.ID != sch.ID {
		t.Errorf("redefinition changed the schema identity: %s -> %s", sch.ID, sch2.ID)
	}
	q2, ok := sch2.Component(quizzes.ID)
	if !ok {
		t.Fatal("retained component lost its identity")
	}
	if q2.Weight != 70 {
		t.Errorf("retained component weight = %d, want 70", q2.Weight)
	}
	if len(q2.Items) != 1 || q2.Items[0].ID != it.ID {
		t.Errorf("retained component lost its items: %+v", q2.Items)
	}

	// the retained item's score survived too
	scores, err := svc.ScoresForStudent(ctx, "subj-math", "std-001")
	if err != nil {
		t.Fatalf("ScoresForStudent(): %v", err)
	}
	if val, ok := scores[it.ID]; !ok || val != 40 {
		t.Errorf("score did not survive the redefinition: %v", scores)
	}

	// dropped component is gone along with its identity
	if _, ok = sch2.Component(sch.Components[1].ID); ok {
		t.Error("dropped component still present")
	}
}

func TestService_DefineSchema_replaceCascades(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 40},
		grading.ComponentDef{Name: "Exams", Weight: 60},
	)
	exams := sch.Components[1]
	it := addItem(t, svc, exams.ID, "Final", 100)
	if _, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: it.ID, StudentID: "std-001", Value: 90}); err != nil {
		t.Fatalf("setting score: %v", err)
	}

	defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 100},
	)

	// the dropped component's item and score are gone
	if _, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: it.ID, StudentID: "std-001", Value: 80}); !errors.Is(err, grading.ErrItemNotFound) {
		t.Errorf("SetScore() on removed item error = %v, want ErrItemNotFound", err)
	}
	scores, err := svc.ScoresForStudent(ctx, "subj-math", "std-001")
	if err != nil {
		t.Fatalf("ScoresForStudent(): %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("orphan scores survived the cascade: %v", scores)
	}
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	sch := defineSchema(t, svc, "subj-math", grading.ComponentDef{Name: "Quizzes", Weight: 100})

	t.Run("ok", func(t *testing.T) {
		it := addItem(t, svc, sch.Components[0].ID, "Quiz 1", 50)
		if it.MaxScore != 50 {
			t.Errorf("MaxScore = %g, want 50", it.MaxScore)
		}
	})

	t.Run("default max score", func(t *testing.T) {
		it := addItem(t, svc, sch.Components[0].ID, "Quiz 2", 0)
		if it.MaxScore != grading.DefaultMaxScore {
			t.Errorf("MaxScore = %g, want %g", it.MaxScore, grading.DefaultMaxScore)
		}
	})

	t.Run("unknown component", func(t *testing.T) {
		_, err := svc.AddItem(ctx, teacher, grading.NewItem{ComponentID: "nope", Title: "Quiz 3"})
		if !errors.Is(err, grading.ErrComponentNotFound) {
			t.Errorf("AddItem() error = %v, want ErrComponentNotFound", err)
		}
	})

	t.Run("negative max score", func(t *testing.T) {
		_, err := svc.AddItem(ctx, teacher, grading.NewItem{ComponentID: sch.Components[0].ID, Title: "Quiz 4", MaxScore: -10})
		if err == nil {
			t.Error("expected a negative max score to be rejected")
		}
	})
}

func TestService_SetScore(t *testing.T) {
	ctx := context.Background()
	svc, auditSvc := setup(t)

	sch := defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 20},
		grading.ComponentDef{Name: "Exams", Weight: 80},
	)
	quizzes, exams := sch.Components[0], sch.Components[1]
	q1 := addItem(t, svc, quizzes.ID, "Quiz 1", 50)
	q2 := addItem(t, svc, quizzes.ID, "Quiz 2", 50)
	final := addItem(t, svc, exams.ID, "Final", 100)

	t.Run("recomputes component and overall", func(t *testing.T) {
		for _, entry := range []grading.ScoreEntry{
			{ItemID: q1.ID, StudentID: "std-001", Value: 40},
			{ItemID: q2.ID, StudentID: "std-001", Value: 45},
		} {
			if _, err := svc.SetScore(ctx, teacher, entry); err != nil {
				t.Fatalf("SetScore(%s): %v", entry.ItemID, err)
			}
		}
		upd, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: final.ID, StudentID: "std-001", Value: 90})
		if err != nil {
			t.Fatalf("SetScore(): %v", err)
		}

		if upd.Score.Value != 90 {
			t.Errorf("Score.Value = %g, want 90", upd.Score.Value)
		}
		if upd.Component.ComponentID != exams.ID || !upd.Component.Valid || upd.Component.Percent != 90 {
			t.Errorf("Component = %+v, want 90.00%% for %s", upd.Component, exams.ID)
		}
		// 85*0.20 + 90*0.80
		if !upd.Overall.Valid || upd.Overall.Grade != 89 {
			t.Errorf("Overall = %+v, want 89.00", upd.Overall)
		}
	})

	t.Run("overwrite is idempotent on identity", func(t *testing.T) {
		upd1, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: q1.ID, StudentID: "std-002", Value: 30})
		if err != nil {
			t.Fatalf("SetScore(): %v", err)
		}
		upd2, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: q1.ID, StudentID: "std-002", Value: 35})
		if err != nil {
			t.Fatalf("SetScore(): %v", err)
		}
		if upd1.Score.ID != upd2.Score.ID {
			t.Errorf("overwrite created a new row: %s -> %s", upd1.Score.ID, upd2.Score.ID)
		}
		if upd2.Score.Value != 35 {
			t.Errorf("Score.Value = %g, want 35", upd2.Score.Value)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		tests := []struct {
			name    string
			value   float64
			wantErr bool
		}{
			{name: "below zero", value: -1, wantErr: true},
			{name: "zero", value: 0},
			{name: "max", value: 50},
			{name: "above max", value: 50.5, wantErr: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: q1.ID, StudentID: "std-003", Value: tt.value})
				if tt.wantErr {
					var vErr *core.ValidationError
					if !errors.As(err, &vErr) {
						t.Errorf("SetScore(%g) error = %v, want a validation error", tt.value, err)
					}
				} else if err != nil {
					t.Errorf("SetScore(%g): %v", tt.value, err)
				}
			})
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: "nope", StudentID: "std-001", Value: 10})
		if !errors.Is(err, grading.ErrItemNotFound) {
			t.Errorf("SetScore() error = %v, want ErrItemNotFound", err)
		}
	})

	t.Run("audited", func(t *testing.T) {
		var n int
		for _, entry := range auditSvc.Entries() {
			if entry.TargetType == core.AuditTargetScore {
				n++
			}
		}
		if n == 0 {
			t.Error("expected score writes to be audited")
		}
	})
}

func TestService_ClearScore(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math", grading.ComponentDef{Name: "Quizzes", Weight: 100})
	it := addItem(t, svc, sch.Components[0].ID, "Quiz 1", 50)
	if _, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: it.ID, StudentID: "std-001", Value: 40}); err != nil {
		t.Fatalf("SetScore(): %v", err)
	}

	if err := svc.ClearScore(ctx, teacher, it.ID, "std-001"); err != nil {
		t.Fatalf("ClearScore(): %v", err)
	}
	scores, err := svc.ScoresForStudent(ctx, "subj-math", "std-001")
	if err != nil {
		t.Fatalf("ScoresForStudent(): %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("score not cleared: %v", scores)
	}

	// a cleared cell is missing, not zero
	res, err := svc.StudentSummary(ctx, "subj-math", "std-001")
	if err != nil {
		t.Fatalf("StudentSummary(): %v", err)
	}
	if res.Overall.Valid {
		t.Errorf("Overall = %+v, want N/A after clearing the only score", res.Overall)
	}

	if err = svc.ClearScore(ctx, teacher, it.ID, "std-001"); !errors.Is(err, grading.ErrScoreNotFound) {
		t.Errorf("ClearScore() again error = %v, want ErrScoreNotFound", err)
	}
}

func TestService_Gradebook(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math",
		grading.ComponentDef{Name: "Quizzes", Weight: 20},
		grading.ComponentDef{Name: "Exams", Weight: 80},
	)
	q1 := addItem(t, svc, sch.Components[0].ID, "Quiz 1", 50)
	q2 := addItem(t, svc, sch.Components[0].ID, "Quiz 2", 50)
	final := addItem(t, svc, sch.Components[1].ID, "Final", 100)

	cells := []grading.ScoreEntry{
		{ItemID: q1.ID, StudentID: "std-001", Value: 40},
		{ItemID: q2.ID, StudentID: "std-001", Value: 45},
		{ItemID: final.ID, StudentID: "std-001", Value: 90},
		{ItemID: q1.ID, StudentID: "std-002", Value: 25},
	}
	var lastUpdates []grading.ScoreUpdate
	for _, entry := range cells {
		upd, err := svc.SetScore(ctx, teacher, entry)
		if err != nil {
			t.Fatalf("SetScore(%s): %v", entry.ItemID, err)
		}
		lastUpdates = append(lastUpdates, upd)
	}

	gb, err := svc.Gradebook(ctx, "subj-math")
	if err != nil {
		t.Fatalf("Gradebook(): %v", err)
	}

	if gb.WeightSum != 100 {
		t.Errorf("WeightSum = %d, want 100", gb.WeightSum)
	}
	if len(gb.Scores) != 2 {
		t.Fatalf("got %d students, want 2", len(gb.Scores))
	}
	if gb.Scores["std-001"][final.ID] != 90 {
		t.Errorf("Scores[std-001][final] = %g, want 90", gb.Scores["std-001"][final.ID])
	}

	// the full render must agree with the last per-write recompute
	res001 := gb.Results["std-001"]
	lastFor001 := lastUpdates[2]
	if res001.Overall != lastFor001.Overall {
		t.Errorf("gradebook overall %+v diverges from per-write recompute %+v", res001.Overall, lastFor001.Overall)
	}
	if res001.Overall.Grade != 89 {
		t.Errorf("Overall.Grade = %g, want 89", res001.Overall.Grade)
	}

	// std-002 scored one quiz only: 25/50, exams N/A
	res002 := gb.Results["std-002"]
	if cr, _ := res002.Component(sch.Components[0].ID); cr.Percent != 50 || !cr.Valid {
		t.Errorf("std-002 quizzes = %+v, want 50.00%%", cr)
	}
	if cr, _ := res002.Component(sch.Components[1].ID); cr.Valid {
		t.Errorf("std-002 exams = %+v, want N/A", cr)
	}
	// 50*0.20 with no exam contribution
	if res002.Overall.Grade != 10 {
		t.Errorf("std-002 overall = %g, want 10", res002.Overall.Grade)
	}
}

func TestService_DeleteSchema(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math", grading.ComponentDef{Name: "Quizzes", Weight: 100})
	it := addItem(t, svc, sch.Components[0].ID, "Quiz 1", 50)
	if _, err := svc.SetScore(ctx, teacher, grading.ScoreEntry{ItemID: it.ID, StudentID: "std-001", Value: 40}); err != nil {
		t.Fatalf("SetScore(): %v", err)
	}

	if err := svc.DeleteSchema(ctx, teacher, "subj-math"); err != nil {
		t.Fatalf("DeleteSchema(): %v", err)
	}
	if _, err := svc.GetSchema(ctx, "subj-math"); !errors.Is(err, grading.ErrNoSchema) {
		t.Errorf("GetSchema() error = %v, want ErrNoSchema", err)
	}
	if err := svc.DeleteSchema(ctx, teacher, "subj-math"); !errors.Is(err, grading.ErrNoSchema) {
		t.Errorf("DeleteSchema() again error = %v, want ErrNoSchema", err)
	}

	// schemas are isolated per subject
	defineSchema(t, svc, "subj-science", grading.ComponentDef{Name: "Labs", Weight: 100})
	if err := svc.DeleteSchema(ctx, teacher, "subj-math"); !errors.Is(err, grading.ErrNoSchema) {
		t.Errorf("DeleteSchema(subj-math) error = %v, want ErrNoSchema", err)
	}
	if _, err := svc.GetSchema(ctx, "subj-science"); err != nil {
		t.Errorf("GetSchema(subj-science): %v", err)
	}
}

func TestRepository_UpsertScore_schemaChangedConcurrently(t *testing.T) {
	// a score write whose item was removed by an interleaved schema
	// redefinition must fail cleanly, not resurrect the row
	ctx := context.Background()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	repo := inmemdb.NewGradingRepository(db)

	sch, err := repo.ReplaceComponents(ctx, "subj-math", teacher.ID, []grading.ComponentDef{
		{Name: "Quizzes", Weight: 40},
		{Name: "Exams", Weight: 60},
	})
	if err != nil {
		t.Fatalf("replacing components: %v", err)
	}
	it, err := repo.CreateItem(ctx, grading.Item{ComponentID: sch.Components[1].ID, Title: "Final", MaxScore: 100})
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}

	// the redefinition drops "Exams" between the caller's item lookup and
	// its score write
	if _, err = repo.ReplaceComponents(ctx, "subj-math", teacher.ID, []grading.ComponentDef{
		{Name: "Quizzes", Weight: 100},
	}); err != nil {
		t.Fatalf("replacing components: %v", err)
	}

	_, err = repo.UpsertScore(ctx, grading.Score{ItemID: it.ID, StudentID: "std-001", Value: 90})
	if !errors.Is(err, grading.ErrConflict) {
		t.Errorf("UpsertScore() error = %v, want ErrConflict", err)
	}

	// the losing write left nothing behind
	scores, err := repo.SubjectScores(ctx, "subj-math")
	if err != nil {
		t.Fatalf("SubjectScores(): %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("conflicting write left rows behind: %v", scores)
	}
}

func TestService_RemoveItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	sch := defineSchema(t, svc, "subj-math", grading.ComponentDef{Name: "Quizzes", Weight: 100})
	it := addItem(t, svc, sch.Components[0].ID, "Quiz 1", 50)
	keep := addItem(t, svc, sch.Components[0].ID, "Quiz 2", 50)
	for _, entry := range []grading.ScoreEntry{
		{ItemID: it.ID, StudentID: "std-001", Value: 10},
		{ItemID: keep.ID, StudentID: "std-001", Value: 50},
	} {
		if _, err := svc.SetScore(ctx, teacher, entry); err != nil {
			t.Fatalf("SetScore(): %v", err)
		}
	}

	if err := svc.RemoveItem(ctx, teacher, it.ID); err != nil {
		t.Fatalf("RemoveItem(): %v", err)
	}
	if err := svc.RemoveItem(ctx, teacher, it.ID); !errors.Is(err, grading.ErrItemNotFound) {
		t.Errorf("RemoveItem() again error = %v, want ErrItemNotFound", err)
	}

	// the removed item's score is gone; the sibling survives
	scores, err := svc.ScoresForStudent(ctx, "subj-math", "std-001")
	if err != nil {
		t.Fatalf("ScoresForStudent(): %v", err)
	}
	if _, ok := scores[it.ID]; ok {
		t.Error("removed item's score survived")
	}
	if scores[keep.ID] != 50 {
		t.Errorf("sibling score = %g, want 50", scores[keep.ID])
	}
}
