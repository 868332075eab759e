package grading

import (
	"fmt"
	"time"

	"github.com/trezcool/darasa/core"
)

// Schema is a subject's weighted grading system: at most one per subject,
// owning a set of weighted components.
type Schema struct {
	ID         string      `json:"id"`
	SubjectID  string      `json:"subject_id"`
	TeacherID  string      `json:"teacher_id"`
	Components []Component `json:"components"` // ordered by creation
	CreatedAt  time.Time   `json:"created_at"` // UTC
}

// Component returns the schema component with the given ID, if any.
func (s Schema) Component(id string) (Component, bool) {
	for _, c := range s.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// Item returns the gradable item with the given ID, if any.
func (s Schema) Item(id string) (Item, Component, bool) {
	for _, c := range s.Components {
		for _, it := range c.Items {
			if it.ID == id {
				return it, c, true
			}
		}
	}
	return Item{}, Component{}, false
}

// WeightSum sums all component weights. A well-formed schema sums to 100;
// out-of-band imports may not, which downstream computation tolerates.
func (s Schema) WeightSum() int {
	var sum int
	for _, c := range s.Components {
		sum += c.Weight
	}
	return sum
}

// Component is a named weighted category within a schema (e.g. "Quizzes", 20%).
type Component struct {
	ID        string    `json:"id"`
	SchemaID  string    `json:"schema_id"`
	Name      string    `json:"name"`
	Weight    int       `json:"weight"` // percentage, e.g. 20 for 20%
	Items     []Item    `json:"items"`  // ordered by creation
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Item is one concrete assessment inside a component.
type Item struct {
	ID          string    `json:"id"`
	ComponentID string    `json:"component_id"`
	Title       string    `json:"title"`
	MaxScore    float64   `json:"max_score"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Score is the value a student earned on one item; unique per (item, student).
type Score struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	StudentID string    `json:"student_id"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// ComponentDef is one component of a schema definition.
type ComponentDef struct {
	Name   string `json:"name" validate:"required"`
	Weight int    `json:"weight" validate:"required,gt=0,lte=100"`
}

// NewSchema contains information needed to define (or redefine) a subject's
// grading schema. The whole component set is replaced in one operation.
type NewSchema struct {
	SubjectID  string         `json:"subject_id" validate:"required"`
	Components []ComponentDef `json:"components" validate:"required,min=1,dive"`
}

func (ns *NewSchema) Validate() error {
	ns.SubjectID = core.CleanString(ns.SubjectID)
	for i := range ns.Components {
		ns.Components[i].Name = core.CleanString(ns.Components[i].Name)
	}

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ns.Components))
	var sum int
	for _, def := range ns.Components {
		if _, dup := seen[def.Name]; dup {
			err := fmt.Errorf("duplicate component name %q", def.Name)
			return core.NewValidationError(err, core.FieldError{Field: "components", Error: err.Error()})
		}
		seen[def.Name] = struct{}{}
		sum += def.Weight
	}
	if sum != 100 {
		err := fmt.Errorf("the total weight of all components must be exactly 100%%, but it is currently %d%%", sum)
		return core.NewValidationError(err, core.FieldError{Field: "components", Error: err.Error()})
	}
	return nil
}

// NewItem contains information needed to add a gradable item to a component.
// Items may be added at any time after the schema exists.
type NewItem struct {
	ComponentID string  `json:"component_id" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	MaxScore    float64 `json:"max_score" validate:"gt=0"`
}

func (ni *NewItem) Validate() error {
	ni.ComponentID = core.CleanString(ni.ComponentID)
	ni.Title = core.CleanString(ni.Title)
	if ni.MaxScore == 0 {
		ni.MaxScore = DefaultMaxScore
	}
	return core.Validate.Struct(ni)
}

// ScoreEntry is one gradebook cell edit.
type ScoreEntry struct {
	ItemID    string  `json:"item_id" validate:"required"`
	StudentID string  `json:"student_id" validate:"required"`
	Value     float64 `json:"value"`
}

func (se *ScoreEntry) Validate() error {
	se.ItemID = core.CleanString(se.ItemID)
	se.StudentID = core.CleanString(se.StudentID)
	return core.Validate.Struct(se)
}

// DefaultMaxScore is used when an item is created without a maximum score.
const DefaultMaxScore float64 = 100
