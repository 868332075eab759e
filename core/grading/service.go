package grading

import (
	"context"
	"errors"
	"fmt"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNoSchema          = errors.New("no grading schema defined for this subject")
	ErrItemNotFound      = errors.New("gradable item not found")
	ErrComponentNotFound = errors.New("grading component not found")
	ErrScoreNotFound     = errors.New("student score not found")
	// ErrConflict is returned when a score write races a schema redefinition
	// that removed the target item. The caller may retry the whole operation.
	ErrConflict = errors.New("grading schema changed concurrently")
)

type (
	// Repository abstracts storage for schemas, items and scores. Every
	// mutating method is atomic: multi-row changes happen in one transaction
	// (or one critical section) inside the implementation.
	Repository interface {
		// GetSchema returns the subject's schema with components ordered by
		// creation and items ordered by creation within each component.
		// Returns ErrNoSchema when none exists.
		GetSchema(ctx context.Context, subjectID string) (Schema, error)
		// SchemaForItem resolves the schema owning the given item.
		// Returns ErrItemNotFound when the item does not exist.
		SchemaForItem(ctx context.Context, itemID string) (Schema, error)
		// ReplaceComponents transactionally replaces the subject's component
		// set, creating the schema on first use. Components retained by name
		// are updated in place and keep their items and scores; removed ones
		// cascade-delete items and scores; new names create empty components.
		// The whole delete+recreate sequence runs under a single-subject
		// exclusivity window.
		ReplaceComponents(ctx context.Context, subjectID, teacherID string, defs []ComponentDef) (Schema, error)
		// DeleteSchema cascade-deletes the schema, its components, items and
		// scores. Returns ErrNoSchema when none exists.
		DeleteSchema(ctx context.Context, subjectID string) error

		// CreateItem adds an item to an existing component.
		// Returns ErrComponentNotFound when the component does not exist.
		CreateItem(ctx context.Context, it Item) (Item, error)
		// DeleteItem removes the item and cascades to its scores.
		// Returns ErrItemNotFound when the item does not exist.
		DeleteItem(ctx context.Context, itemID string) error

		// UpsertScore creates or replaces the (item, student) score row.
		// Returns ErrConflict when the item was removed concurrently.
		UpsertScore(ctx context.Context, sc Score) (Score, error)
		// DeleteScore removes the (item, student) score row.
		// Returns ErrScoreNotFound when there is nothing to delete.
		DeleteScore(ctx context.Context, itemID, studentID string) error
		// StudentScores returns item ID -> value for one student across the
		// subject's schema. Unscored items are absent keys, never zeroes.
		StudentScores(ctx context.Context, subjectID, studentID string) (map[string]float64, error)
		// SubjectScores returns student ID -> item ID -> value for every
		// student with at least one recorded score in the subject.
		SubjectScores(ctx context.Context, subjectID string) (map[string]map[string]float64, error)
	}

	service struct {
		repo     Repository
		log      core.Logger
		auditSvc core.AuditLogger
	}

	// Service manages weighted grading schemas, the score ledger and the
	// aggregates computed from them.
	Service interface {
		DefineSchema(ctx context.Context, actor core.Actor, ns NewSchema) (Schema, error)
		GetSchema(ctx context.Context, subjectID string) (Schema, error)
		DeleteSchema(ctx context.Context, actor core.Actor, subjectID string) error

		AddItem(ctx context.Context, actor core.Actor, ni NewItem) (Item, error)
		RemoveItem(ctx context.Context, actor core.Actor, itemID string) error

		SetScore(ctx context.Context, actor core.Actor, se ScoreEntry) (ScoreUpdate, error)
		ClearScore(ctx context.Context, actor core.Actor, itemID, studentID string) error
		ScoresForStudent(ctx context.Context, subjectID, studentID string) (map[string]float64, error)

		Gradebook(ctx context.Context, subjectID string) (Gradebook, error)
		StudentSummary(ctx context.Context, subjectID, studentID string) (StudentResult, error)
	}
)

// ScoreUpdate is returned after a score write: the stored row plus the
// targeted recompute for that student, pushed to the UI without a full
// gradebook render.
type ScoreUpdate struct {
	Score     Score           `json:"score"`
	Component ComponentResult `json:"component"`
	Overall   OverallResult   `json:"overall"`
}

// Gradebook is the full read model for a subject: the schema, every recorded
// cell and the aggregates per student.
type Gradebook struct {
	Schema    Schema                        `json:"schema"`
	WeightSum int                           `json:"weight_sum"`
	Scores    map[string]map[string]float64 `json:"scores"`  // student ID -> item ID -> value
	Results   map[string]StudentResult      `json:"results"` // student ID -> aggregates
}

func NewService(repo Repository, log core.Logger, auditSvc core.AuditLogger) Service {
	return &service{
		repo:     repo,
		log:      log,
		auditSvc: auditSvc,
	}
}

func (svc *service) DefineSchema(ctx context.Context, actor core.Actor, ns NewSchema) (Schema, error) {
	if err := ns.Validate(); err != nil {
		return Schema{}, err
	}
	sch, err := svc.repo.ReplaceComponents(ctx, ns.SubjectID, actor.ID, ns.Components)
	if err != nil {
		return Schema{}, err
	}

	entry := core.NewAuditEntry(actor, core.AuditActionUpdate, core.AuditTargetGradingSystem, sch.ID, "grading system")
	entry.SubjectID = sch.SubjectID
	entry.Details = fmt.Sprintf("defined %d components", len(sch.Components))
	svc.auditSvc.Record(entry)

	return sch, nil
}

func (svc *service) GetSchema(ctx context.Context, subjectID string) (Schema, error) {
	sch, err := svc.repo.GetSchema(ctx, subjectID)
	if err != nil {
		return Schema{}, err
	}
	svc.warnDegenerateWeights(sch)
	return sch, nil
}

func (svc *service) DeleteSchema(ctx context.Context, actor core.Actor, subjectID string) error {
	if err := svc.repo.DeleteSchema(ctx, subjectID); err != nil {
		return err
	}
	entry := core.NewAuditEntry(actor, core.AuditActionDelete, core.AuditTargetGradingSystem, subjectID, "grading system")
	entry.SubjectID = subjectID
	svc.auditSvc.Record(entry)
	return nil
}

func (svc *service) AddItem(ctx context.Context, actor core.Actor, ni NewItem) (Item, error) {
	if err := ni.Validate(); err != nil {
		return Item{}, err
	}
	it, err := svc.repo.CreateItem(ctx, Item{
		ComponentID: ni.ComponentID,
		Title:       ni.Title,
		MaxScore:    ni.MaxScore,
	})
	if err != nil {
		return Item{}, err
	}

	svc.auditSvc.Record(core.NewAuditEntry(actor, core.AuditActionCreate, core.AuditTargetGradableItem, it.ID, it.Title))
	return it, nil
}

func (svc *service) RemoveItem(ctx context.Context, actor core.Actor, itemID string) error {
	if err := svc.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	svc.auditSvc.Record(core.NewAuditEntry(actor, core.AuditActionDelete, core.AuditTargetGradableItem, itemID, "gradable item"))
	return nil
}

// SetScore validates and upserts one gradebook cell, then recomputes that
// student's subtotal for the item's component and their overall grade. The
// recompute reads post-write state and uses the same aggregation as the full
// gradebook render.
func (svc *service) SetScore(ctx context.Context, actor core.Actor, se ScoreEntry) (ScoreUpdate, error) {
	if err := se.Validate(); err != nil {
		return ScoreUpdate{}, err
	}

	sch, err := svc.repo.SchemaForItem(ctx, se.ItemID)
	if err != nil {
		return ScoreUpdate{}, err
	}
	it, comp, ok := sch.Item(se.ItemID)
	if !ok {
		return ScoreUpdate{}, ErrItemNotFound
	}
	if se.Value < 0 || se.Value > it.MaxScore {
		err := fmt.Errorf("score must be between 0 and %g", it.MaxScore)
		return ScoreUpdate{}, core.NewValidationError(err, core.FieldError{Field: "value", Error: err.Error()})
	}

	sc, err := svc.repo.UpsertScore(ctx, Score{
		ItemID:    se.ItemID,
		StudentID: se.StudentID,
		Value:     se.Value,
	})
	if err != nil {
		return ScoreUpdate{}, err
	}

	scores, err := svc.repo.StudentScores(ctx, sch.SubjectID, se.StudentID)
	if err != nil {
		return ScoreUpdate{}, err
	}
	svc.warnDegenerateWeights(sch)
	res := Aggregate(se.StudentID, sch.Components, scores)
	compRes, _ := res.Component(comp.ID)

	entry := core.NewAuditEntry(actor, core.AuditActionUpdate, core.AuditTargetScore, sc.ID, it.Title)
	entry.SubjectID = sch.SubjectID
	entry.Details = fmt.Sprintf("set score %g/%g for student %s", sc.Value, it.MaxScore, se.StudentID)
	svc.auditSvc.Record(entry)

	return ScoreUpdate{Score: sc, Component: compRes, Overall: res.Overall}, nil
}

// ClearScore removes a cell entirely, as when a teacher empties the input.
func (svc *service) ClearScore(ctx context.Context, actor core.Actor, itemID, studentID string) error {
	if err := svc.repo.DeleteScore(ctx, itemID, studentID); err != nil {
		return err
	}
	entry := core.NewAuditEntry(actor, core.AuditActionDelete, core.AuditTargetScore, itemID, "student score")
	entry.Details = fmt.Sprintf("cleared score for student %s", studentID)
	svc.auditSvc.Record(entry)
	return nil
}

func (svc *service) ScoresForStudent(ctx context.Context, subjectID, studentID string) (map[string]float64, error) {
	return svc.repo.StudentScores(ctx, subjectID, studentID)
}

func (svc *service) Gradebook(ctx context.Context, subjectID string) (Gradebook, error) {
	sch, err := svc.repo.GetSchema(ctx, subjectID)
	if err != nil {
		return Gradebook{}, err
	}
	scores, err := svc.repo.SubjectScores(ctx, subjectID)
	if err != nil {
		return Gradebook{}, err
	}
	svc.warnDegenerateWeights(sch)

	gb := Gradebook{
		Schema:    sch,
		WeightSum: sch.WeightSum(),
		Scores:    scores,
		Results:   make(map[string]StudentResult, len(scores)),
	}
	for studentID, studentScores := range scores {
		gb.Results[studentID] = Aggregate(studentID, sch.Components, studentScores)
	}
	return gb, nil
}

func (svc *service) StudentSummary(ctx context.Context, subjectID, studentID string) (StudentResult, error) {
	sch, err := svc.repo.GetSchema(ctx, subjectID)
	if err != nil {
		return StudentResult{}, err
	}
	scores, err := svc.repo.StudentScores(ctx, subjectID, studentID)
	if err != nil {
		return StudentResult{}, err
	}
	svc.warnDegenerateWeights(sch)
	return Aggregate(studentID, sch.Components, scores), nil
}

// warnDegenerateWeights flags schemas whose weights do not sum to 100. The
// schema store enforces the sum at write time, so this only fires for data
// imported out-of-band; grades computed on top of it are off-scale, which is
// an anomaly to surface, not a failure.
func (svc *service) warnDegenerateWeights(sch Schema) {
	if len(sch.Components) == 0 {
		return
	}
	if sum := sch.WeightSum(); sum != 100 {
		svc.log.Warn(
			fmt.Sprintf("grading: component weights for subject %s sum to %d%%, not 100%%", sch.SubjectID, sum),
			map[string]interface{}{"subject_id": sch.SubjectID, "weight_sum": sum},
		)
	}
}
