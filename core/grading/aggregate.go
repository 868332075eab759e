package grading

import (
	"fmt"

	"github.com/trezcool/darasa/core"
)

// ComponentResult is a student's percentage subtotal for one component.
// Valid is false when the component has no items or the student has no
// recorded score on any of them; such components are excluded from the
// overall grade and their weight is not redistributed.
type ComponentResult struct {
	ComponentID string  `json:"component_id"`
	Percent     float64 `json:"percent"`
	Valid       bool    `json:"valid"`
}

func (r ComponentResult) String() string {
	if !r.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", r.Percent)
}

// OverallResult is a student's final weighted grade for a subject.
type OverallResult struct {
	Grade float64 `json:"grade"`
	Valid bool    `json:"valid"`
}

func (r OverallResult) String() string {
	if !r.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", r.Grade)
}

// StudentResult holds all aggregates for one student in one subject.
type StudentResult struct {
	StudentID  string            `json:"student_id"`
	Components []ComponentResult `json:"components"` // same order as the schema
	Overall    OverallResult     `json:"overall"`
}

// Component returns the result for the given component ID.
func (r StudentResult) Component(id string) (ComponentResult, bool) {
	for _, cr := range r.Components {
		if cr.ComponentID == id {
			return cr, true
		}
	}
	return ComponentResult{}, false
}

// componentPercent computes one component's percentage subtotal from the
// student's scores (item ID -> value). Items the student has no recorded
// score for are excluded from both the achieved and achievable totals: a
// missing score is not a zero.
func componentPercent(comp Component, scores map[string]float64) (float64, bool) {
	var achieved, achievable float64
	for _, it := range comp.Items {
		val, ok := scores[it.ID]
		if !ok {
			continue
		}
		achieved += val
		achievable += it.MaxScore
	}
	if achievable <= 0 {
		return 0, false
	}
	return core.Round2(achieved / achievable * 100), true
}

// Aggregate computes a student's component subtotals and overall weighted
// grade. It is a pure function of the schema and the student's scores and is
// the single formula for both the incremental per-write path and the full
// gradebook render. Weights are used as stored, even when they do not sum to
// 100: the result is then simply not a 0-100 percentage.
func Aggregate(studentID string, comps []Component, scores map[string]float64) StudentResult {
	res := StudentResult{
		StudentID:  studentID,
		Components: make([]ComponentResult, 0, len(comps)),
	}

	var total float64
	var any bool
	for _, comp := range comps {
		pct, ok := componentPercent(comp, scores)
		res.Components = append(res.Components, ComponentResult{
			ComponentID: comp.ID,
			Percent:     pct,
			Valid:       ok,
		})
		if ok {
			total += pct * float64(comp.Weight) / 100
			any = true
		}
	}
	if any {
		res.Overall = OverallResult{Grade: core.Round2(total), Valid: true}
	}
	return res
}
