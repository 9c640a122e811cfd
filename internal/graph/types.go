package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxTasks caps a milestone's task count when it declares no
// explicit bound.
const DefaultMaxTasks = 5

// TaskStatus is the closed set of task lifecycle states
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// UnmarshalJSON rejects unknown status values instead of ignoring them
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch TaskStatus(raw) {
	case TaskPending, TaskInProgress, TaskCompleted:
		*s = TaskStatus(raw)
		return nil
	default:
		return fmt.Errorf("unknown task status %q", raw)
	}
}

// TaskType distinguishes ordinary work tasks from milestone validation tasks
type TaskType string

const (
	TypeWork       TaskType = "work"
	TypeValidation TaskType = "validation"
)

// UnmarshalJSON rejects unknown task types
func (t *TaskType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch TaskType(raw) {
	case TypeWork, TypeValidation:
		*t = TaskType(raw)
		return nil
	case "":
		// Absent type defaults to work.
		*t = TypeWork
		return nil
	default:
		return fmt.Errorf("unknown task type %q", raw)
	}
}

// MilestoneStatus is the closed set of milestone lifecycle states
type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneComplete   MilestoneStatus = "complete"
	MilestoneValidated  MilestoneStatus = "validated"
)

// UnmarshalJSON rejects unknown milestone statuses
func (s *MilestoneStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch MilestoneStatus(raw) {
	case MilestoneNotStarted, MilestoneInProgress, MilestoneComplete, MilestoneValidated:
		*s = MilestoneStatus(raw)
		return nil
	default:
		return fmt.Errorf("unknown milestone status %q", raw)
	}
}

// ValidationStatus is the outcome reported by the external validator
type ValidationStatus string

const (
	ValidationPassed ValidationStatus = "passed"
	ValidationFailed ValidationStatus = "failed"
)

// UnmarshalJSON rejects unknown validation outcomes
func (s *ValidationStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch ValidationStatus(raw) {
	case ValidationPassed, ValidationFailed:
		*s = ValidationStatus(raw)
		return nil
	default:
		return fmt.Errorf("unknown validation status %q", raw)
	}
}

// TechRef names a technology and the exact version a task intends to use
type TechRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (t TechRef) String() string {
	return t.Name + "@" + t.Version
}

// Boundary is a task's declared scope: what it must and must not touch,
// how many files it may change, and which technologies it references.
type Boundary struct {
	MustImplement    []string  `json:"must_implement,omitempty"`
	MustNotImplement []string  `json:"must_not_implement,omitempty"`
	MaxFileChanges   int       `json:"max_file_changes,omitempty"`
	Technologies     []TechRef `json:"technologies,omitempty"`
}

// EnhancementMeta records how a task entered the graph after initial planning
type EnhancementMeta struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	InsertedAt  time.Time `json:"inserted_at"`
}

// Task is a single unit of work in the sprint graph
type Task struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Type        TaskType         `json:"type"`
	DependsOn   []string         `json:"depends_on,omitempty"`
	Status      TaskStatus       `json:"status"`
	MilestoneID string           `json:"milestone_id"`
	Scope       Boundary         `json:"scope,omitempty"`
	Enhancement *EnhancementMeta `json:"enhancement,omitempty"`
}

// IsValidation reports whether the task is a milestone validation task
func (t *Task) IsValidation() bool {
	return t.Type == TypeValidation
}

// Milestone is an ordered, capacity-bounded slice of tasks ending in one
// validation task.
type Milestone struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	TaskIDs  []string        `json:"task_ids"`
	Status   MilestoneStatus `json:"status"`
	MinTasks int             `json:"min_tasks,omitempty"`
	MaxTasks int             `json:"max_tasks,omitempty"`
}

// EffectiveMax returns the configured maximum task count or the default
func (m *Milestone) EffectiveMax() int {
	if m.MaxTasks > 0 {
		return m.MaxTasks
	}
	return DefaultMaxTasks
}

// TaskGraph is the persisted sprint plan: all tasks plus the milestone
// ordering. Milestone order is the declared array order.
type TaskGraph struct {
	SprintID   string      `json:"sprint_id"`
	Strategy   string      `json:"strategy,omitempty"`
	Tasks      []Task      `json:"tasks"`
	Milestones []Milestone `json:"milestones"`
}

// Task returns the task with the given id
func (g *TaskGraph) Task(id string) (*Task, bool) {
	for i := range g.Tasks {
		if g.Tasks[i].ID == id {
			return &g.Tasks[i], true
		}
	}
	return nil, false
}

// Milestone returns the milestone with the given id
func (g *TaskGraph) Milestone(id string) (*Milestone, bool) {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return &g.Milestones[i], true
		}
	}
	return nil, false
}

// MilestoneIndex returns the declared position of a milestone, or -1
func (g *TaskGraph) MilestoneIndex(id string) int {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return i
		}
	}
	return -1
}

// TaskSequence returns the declared position of a task in the graph's task
// array, or -1. This is the stable tie-break order for scheduling.
func (g *TaskGraph) TaskSequence(id string) int {
	for i := range g.Tasks {
		if g.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Adjacency returns the dependency adjacency map of task ids
func (g *TaskGraph) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Tasks))
	for i := range g.Tasks {
		adj[g.Tasks[i].ID] = g.Tasks[i].DependsOn
	}
	return adj
}

// WorkTasksDone reports whether every non-validation task of the milestone
// has been completed.
func (g *TaskGraph) WorkTasksDone(m *Milestone) bool {
	for _, id := range m.TaskIDs {
		t, ok := g.Task(id)
		if !ok {
			return false
		}
		if t.IsValidation() {
			continue
		}
		if t.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// HistoryEntry is one append-only progress log record
type HistoryEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Event       string    `json:"event"`
	TaskID      string    `json:"task_id,omitempty"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// ValidationRecord is the external validator's verdict for one milestone.
// Records are appended and never mutated afterward.
type ValidationRecord struct {
	MilestoneID string           `json:"milestone_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      ValidationStatus `json:"status"`
	Issues      []string         `json:"issues,omitempty"`
}

// Progress is the disk-persisted sprint tracker, reloaded fresh on every
// invocation. There is no long-lived in-memory copy.
type Progress struct {
	SprintID           string             `json:"sprint_id"`
	Status             string             `json:"status"`
	CurrentMilestoneID string             `json:"current_milestone_id"`
	ValidationPending  bool               `json:"validation_pending"`
	Completed          int                `json:"completed"`
	Total              int                `json:"total"`
	History            []HistoryEntry     `json:"history"`
	Validations        []ValidationRecord `json:"validations,omitempty"`
}

// DeferredFeature is a feature recorded for a later sprint instead of being
// inserted into the current graph.
type DeferredFeature struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Reason      string    `json:"reason,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
