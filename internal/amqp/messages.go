package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies what changed. Consumers use it to decide which
// caches to drop.
type EventKind string

const (
	EventImportCompleted EventKind = "import_completed"
	EventPlanChanged     EventKind = "plan_changed"
)

// ChangeEvent announces that the stored history or plan set of a workspace
// changed. It carries identifiers only; consumers re-read from storage.
type ChangeEvent struct {
	Kind       EventKind `json:"kind"`
	Workspace  string    `json:"workspace"`
	SourceFile string    `json:"source_file,omitempty"`
	PlanID     string    `json:"plan_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewImportCompletedEvent announces a finished file import.
func NewImportCompletedEvent(workspace, sourceFile string, count int) *ChangeEvent {
	return &ChangeEvent{
		Kind:       EventImportCompleted,
		Workspace:  workspace,
		SourceFile: sourceFile,
		Count:      count,
		Timestamp:  time.Now(),
	}
}

// NewPlanChangedEvent announces a created or edited budget plan.
func NewPlanChangedEvent(workspace, planID string) *ChangeEvent {
	return &ChangeEvent{
		Kind:      EventPlanChanged,
		Workspace: workspace,
		PlanID:    planID,
		Timestamp: time.Now(),
	}
}

func (e *ChangeEvent) Validate() error {
	switch e.Kind {
	case EventImportCompleted, EventPlanChanged:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Workspace == "" {
		return fmt.Errorf("event has no workspace")
	}
	return nil
}

func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
