package domain

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskScheduled TaskStatus = "scheduled"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Task is a scheduled or manual fleet action (record, snapshot, notify)
// targeting one or more cameras.
type Task struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Status        TaskStatus   `json:"status"`
	Priority      TaskPriority `json:"priority"`
	TriggerType   string       `json:"triggerType"`
	Action        string       `json:"action"`
	TargetCameras []string     `json:"targetCameras,omitempty"`
	LastRunAt     *time.Time   `json:"lastRunAt,omitempty"`
	NextRunAt     *time.Time   `json:"nextRunAt,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// TaskPatch carries a partial task update.
type TaskPatch struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *TaskStatus   `json:"status,omitempty"`
	Priority    *TaskPriority `json:"priority,omitempty"`
}

// Apply merges the patch into a task snapshot, for optimistic local
// application ahead of server confirmation.
func (p TaskPatch) Apply(t Task) Task {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	return t
}
