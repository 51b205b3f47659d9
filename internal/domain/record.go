package domain

import (
	"encoding/json"
	"fmt"
)

// Column names shared by the store and the remote backends.
const (
	ColID        = "id"
	ColUserID    = "user_id"
	ColAuthorID  = "author_id"
	ColCreatedAt = "created_at"
	ColIsPrivate = "is_private"
	ColClientRef = "client_ref"
)

// TimeLayout is the fixed-width UTC layout used for created_at columns so that
// lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func toRecord(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func fromRecord(rec map[string]any, v any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// dropUnset removes identity and timestamp columns the remote store assigns.
func dropUnset(rec map[string]any, id string, createdAtZero bool) {
	if id == "" {
		delete(rec, ColID)
	}
	if createdAtZero {
		delete(rec, ColCreatedAt)
	}
}

// TaskRecord encodes the persisted columns of t. Client-only flags are never
// included.
func TaskRecord(t Task) (map[string]any, error) {
	rec, err := toRecord(t)
	if err != nil {
		return nil, err
	}
	dropUnset(rec, t.ID, t.CreatedAt.IsZero())
	return rec, nil
}

// TaskFromRecord decodes a tasks row.
func TaskFromRecord(rec map[string]any) (Task, error) {
	var t Task
	if err := fromRecord(rec, &t); err != nil {
		return Task{}, err
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	return t, nil
}

// ProfileFromRecord decodes a profiles row, counters included.
func ProfileFromRecord(rec map[string]any) (*UserProfile, error) {
	var p UserProfile
	if err := fromRecord(rec, &p); err != nil {
		return nil, err
	}
	if err := fromRecord(rec, &p.Stats); err != nil {
		return nil, err
	}
	return &p, nil
}

// StatsRecord is the patch that persists the counters of s.
func StatsRecord(s Stats) map[string]any {
	return map[string]any{
		"tasks_completed": s.TasksCompleted,
		"tasks_forfeited": s.TasksForfeited,
	}
}

// IntelDropRecord encodes the persisted columns of d.
func IntelDropRecord(d IntelDrop) (map[string]any, error) {
	if d.SummaryBullets == nil {
		d.SummaryBullets = []string{}
	}
	if d.Sources == nil {
		d.Sources = []Source{}
	}
	if d.RelatedConcepts == nil {
		d.RelatedConcepts = []string{}
	}
	rec, err := toRecord(d)
	if err != nil {
		return nil, err
	}
	dropUnset(rec, d.ID, d.CreatedAt.IsZero())
	return rec, nil
}

// IntelDropFromRecord decodes an intel_drops row. Author display fields are
// filled in separately.
func IntelDropFromRecord(rec map[string]any) (IntelDrop, error) {
	var d IntelDrop
	if err := fromRecord(rec, &d); err != nil {
		return IntelDrop{}, err
	}
	return d, nil
}

// RecordID extracts the id column of a record.
func RecordID(rec map[string]any) string {
	if rec == nil {
		return ""
	}
	id, _ := rec[ColID].(string)
	return id
}
