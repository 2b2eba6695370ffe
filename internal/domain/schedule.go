package domain

import "time"

type EntryKind string

const (
	EntryPlan              EntryKind = "plan"
	EntryInterval          EntryKind = "interval"
	EntryIntervalImmediate EntryKind = "interval_immediate"
)

type Mode string

const (
	ModePlan     Mode = "plan"
	ModeInterval Mode = "interval"
)

// PlanItem is one configured line of a symptom plan. Exactly one of AtHour
// and Cron is set.
type PlanItem struct {
	AtHour  *float64
	Cron    string
	Payload SymptomPayload
}

// ScheduleEntry is a single pending dispatch. Entries are values: the
// scheduler consumes them at fire time and never mutates them.
type ScheduleEntry struct {
	Kind        EntryKind
	FireAt      time.Time
	OffsetHours *float64 // plan entries only
	Index       *int     // interval entries only
	Payload     *SymptomPayload
}

// Attrs flattens the entry for event payloads.
func (e ScheduleEntry) Attrs() map[string]any {
	m := map[string]any{
		"type":   string(e.Kind),
		"run_at": e.FireAt.Format(time.RFC3339),
	}
	if e.OffsetHours != nil {
		m["at_hour"] = *e.OffsetHours
	}
	if e.Index != nil {
		m["index"] = *e.Index
	}
	return m
}
