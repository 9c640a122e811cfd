// Package resolver computes task eligibility and selects the next runnable
// task, enforcing the milestone validation gate.
package resolver

import (
	"fmt"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// Resolver answers scheduling questions over one loaded state. It holds no
// state of its own and is rebuilt per invocation.
type Resolver struct {
	g *graph.TaskGraph
	p *graph.Progress
}

// New builds a resolver over a validated graph and tracker
func New(g *graph.TaskGraph, p *graph.Progress) *Resolver {
	return &Resolver{g: g, p: p}
}

// Selection is the outcome of next-task resolution. Blocked is a normal,
// distinguishable outcome, not an error: nothing is runnable right now and
// the caller must wait or validate.
type Selection struct {
	Task    *graph.Task `json:"task,omitempty"`
	Blocked bool        `json:"blocked,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// IsEligible reports whether the task is pending with every dependency
// completed.
func (r *Resolver) IsEligible(t *graph.Task) bool {
	if t.Status != graph.TaskPending {
		return false
	}
	return len(r.unmetDependencies(t)) == 0
}

// unmetDependencies lists dependency ids that are not yet completed
func (r *Resolver) unmetDependencies(t *graph.Task) []string {
	var unmet []string
	for _, dep := range t.DependsOn {
		d, ok := r.g.Task(dep)
		if !ok || d.Status != graph.TaskCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// gateIndex returns the declared index of the first milestone that is
// COMPLETE but unvalidated, or -1. No task belonging to a later milestone
// may be selected until that milestone is validated, regardless of
// dependency satisfaction.
func (r *Resolver) gateIndex() int {
	for i := range r.g.Milestones {
		if r.g.Milestones[i].Status == graph.MilestoneComplete {
			return i
		}
	}
	return -1
}

// gated reports whether the task sits behind the validation gate
func (r *Resolver) gated(t *graph.Task) bool {
	gate := r.gateIndex()
	if gate < 0 {
		return false
	}
	return r.g.MilestoneIndex(t.MilestoneID) > gate
}

// NextTask selects the next runnable task.
//
// With a requested id, the task must exist, be pending, sit before the
// validation gate, and have all dependencies completed; otherwise the error
// names the specific unmet condition. Without one, eligible tasks of the
// tracker's current milestone are preferred, ties broken by declared
// sequence (position in the graph's task array). When nothing in an
// incomplete current milestone is runnable, the result is Blocked.
func (r *Resolver) NextTask(requestedID string) (*Selection, error) {
	if requestedID != "" {
		return r.resolveRequested(requestedID)
	}

	// Validation tasks are never scheduled here; they complete through the
	// external validator's 'milestone validate' report.
	var candidates []*graph.Task
	for i := range r.g.Tasks {
		t := &r.g.Tasks[i]
		if t.IsValidation() {
			continue
		}
		if r.IsEligible(t) && !r.gated(t) {
			candidates = append(candidates, t)
		}
	}

	// Prefer the tracker's current milestone. Candidates keep the task
	// array's declared order, so the first match is the tie-break winner.
	for _, t := range candidates {
		if t.MilestoneID == r.p.CurrentMilestoneID {
			return &Selection{Task: t}, nil
		}
	}

	if r.p.ValidationPending {
		return &Selection{
			Blocked: true,
			Reason:  fmt.Sprintf("milestone %s is complete and awaits validation", r.currentOrGatedMilestone()),
		}, nil
	}

	if current, ok := r.g.Milestone(r.p.CurrentMilestoneID); ok && r.milestoneHasOpenTasks(current) {
		return &Selection{
			Blocked: true,
			Reason:  fmt.Sprintf("no eligible task in milestone %s; its remaining tasks have unfinished dependencies or are in progress", current.ID),
		}, nil
	}

	if len(candidates) > 0 {
		return &Selection{Task: candidates[0]}, nil
	}

	return &Selection{Blocked: true, Reason: "no eligible tasks remain"}, nil
}

// resolveRequested diagnoses a concretely requested task id
func (r *Resolver) resolveRequested(id string) (*Selection, error) {
	t, ok := r.g.Task(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeTaskNotFound, fmt.Sprintf("task %q does not exist", id))
	}

	if t.IsValidation() {
		return nil, errors.New(errors.ErrCodeTaskNotPending,
			fmt.Sprintf("task %q is a validation task", id)).
			WithSuggestions(fmt.Sprintf("record the validator's outcome with 'sprintctl milestone validate %s --result passed|failed'", t.MilestoneID))
	}

	if r.gated(t) {
		gate := &r.g.Milestones[r.gateIndex()]
		return nil, errors.New(errors.ErrCodeValidationPending,
			fmt.Sprintf("task %q belongs to a milestone behind the validation gate", id)).
			WithDetails(fmt.Sprintf("milestone %s is complete and awaits validation", gate.ID)).
			WithSuggestions(fmt.Sprintf("run 'sprintctl milestone validate %s --result passed' after external validation", gate.ID))
	}

	switch t.Status {
	case graph.TaskCompleted:
		return nil, errors.New(errors.ErrCodeTaskNotPending, fmt.Sprintf("task %q is already completed", id))
	case graph.TaskInProgress:
		return nil, errors.New(errors.ErrCodeTaskNotPending, fmt.Sprintf("task %q is already in progress", id))
	}

	if unmet := r.unmetDependencies(t); len(unmet) > 0 {
		details := make([]string, 0, len(unmet))
		for _, dep := range unmet {
			if d, ok := r.g.Task(dep); ok {
				details = append(details, fmt.Sprintf("dependency %s has status %s", dep, d.Status))
			} else {
				details = append(details, fmt.Sprintf("dependency %s does not exist", dep))
			}
		}
		return nil, errors.New(errors.ErrCodeDependencyUnsatisfied,
			fmt.Sprintf("task %q has %d unmet dependencies", id, len(unmet))).
			WithDetails(details...)
	}

	return &Selection{Task: t}, nil
}

// milestoneHasOpenTasks reports whether any task of the milestone is not
// yet completed.
func (r *Resolver) milestoneHasOpenTasks(m *graph.Milestone) bool {
	for _, id := range m.TaskIDs {
		if t, ok := r.g.Task(id); ok && t.Status != graph.TaskCompleted {
			return true
		}
	}
	return false
}

// currentOrGatedMilestone names the milestone holding up progress
func (r *Resolver) currentOrGatedMilestone() string {
	if gate := r.gateIndex(); gate >= 0 {
		return r.g.Milestones[gate].ID
	}
	return r.p.CurrentMilestoneID
}

// DependencyReport is the structured answer to validate-dependencies
type DependencyReport struct {
	TaskID    string   `json:"task_id"`
	Satisfied []string `json:"satisfied,omitempty"`
	Unmet     []string `json:"unmet,omitempty"`
	Eligible  bool     `json:"eligible"`
}

// ValidateDependencies reports each dependency's satisfaction for a task
func (r *Resolver) ValidateDependencies(id string) (*DependencyReport, error) {
	t, ok := r.g.Task(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeTaskNotFound, fmt.Sprintf("task %q does not exist", id))
	}

	report := &DependencyReport{TaskID: id}
	for _, dep := range t.DependsOn {
		if d, ok := r.g.Task(dep); ok && d.Status == graph.TaskCompleted {
			report.Satisfied = append(report.Satisfied, dep)
		} else {
			report.Unmet = append(report.Unmet, dep)
		}
	}
	report.Eligible = t.Status == graph.TaskPending && len(report.Unmet) == 0

	return report, nil
}
