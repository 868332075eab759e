package core

import "time"

// Audit action types
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// Audit target types
const (
	AuditTargetGradingSystem = "grading_system"
	AuditTargetGradableItem  = "gradable_item"
	AuditTargetScore         = "student_score"
	AuditTargetAttendance    = "attendance"
	AuditTargetGrade         = "grade"
)

// AuditEntry describes one recorded user action.
type AuditEntry struct {
	ActorID    string
	ActorName  string
	ActionType string
	TargetType string
	TargetID   string
	TargetName string
	SubjectID  string
	Details    string
	Timestamp  time.Time
}

// AuditLogger is any sink that can record user actions.
// Recording is fire-and-forget: implementations never fail the caller and a
// broken sink must not affect the mutation it logs.
type AuditLogger interface {
	Record(entries ...AuditEntry)
}

// NewAuditEntry stamps an entry with the acting user and the current time.
func NewAuditEntry(actor Actor, action, targetType, targetID, targetName string) AuditEntry {
	return AuditEntry{
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActionType: action,
		TargetType: targetType,
		TargetID:   targetID,
		TargetName: targetName,
		Timestamp:  time.Now().UTC(),
	}
}
