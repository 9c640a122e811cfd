package resolver

import (
	"strings"
	"testing"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// chainGraph builds tasks A -> B -> C (B depends on A, C depends on B) split
// over two milestones plus their validation tasks.
func chainGraph() (*graph.TaskGraph, *graph.Progress) {
	g := &graph.TaskGraph{
		SprintID: "sprint-1",
		Tasks: []graph.Task{
			{ID: "task-a", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-b", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1", DependsOn: []string{"task-a"}},
			{ID: "task-v1", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m1", DependsOn: []string{"task-a", "task-b"}},
			{ID: "task-c", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m2", DependsOn: []string{"task-b"}},
			{ID: "task-v2", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m2", DependsOn: []string{"task-c"}},
		},
		Milestones: []graph.Milestone{
			{ID: "m1", TaskIDs: []string{"task-a", "task-b", "task-v1"}, Status: graph.MilestoneInProgress},
			{ID: "m2", TaskIDs: []string{"task-c", "task-v2"}, Status: graph.MilestoneNotStarted},
		},
	}
	p := &graph.Progress{SprintID: "sprint-1", Status: "active", CurrentMilestoneID: "m1", Total: 5}
	return g, p
}

func complete(g *graph.TaskGraph, ids ...string) {
	for _, id := range ids {
		t, _ := g.Task(id)
		t.Status = graph.TaskCompleted
	}
}

func TestIsEligible(t *testing.T) {
	g, p := chainGraph()
	r := New(g, p)

	taskA, _ := g.Task("task-a")
	taskB, _ := g.Task("task-b")

	if !r.IsEligible(taskA) {
		t.Error("task-a has no dependencies, want eligible")
	}
	if r.IsEligible(taskB) {
		t.Error("task-b depends on pending task-a, want ineligible")
	}

	complete(g, "task-a")
	if !r.IsEligible(taskB) {
		t.Error("task-b's dependency completed, want eligible")
	}

	taskB.Status = graph.TaskInProgress
	if r.IsEligible(taskB) {
		t.Error("in_progress task must not be eligible")
	}
}

func TestNextTask_ChainProgression(t *testing.T) {
	g, p := chainGraph()
	r := New(g, p)

	sel, err := r.NextTask("")
	if err != nil || sel.Task == nil || sel.Task.ID != "task-a" {
		t.Fatalf("NextTask() = %+v, %v; want task-a", sel, err)
	}

	complete(g, "task-a")
	sel, err = r.NextTask("")
	if err != nil || sel.Task == nil || sel.Task.ID != "task-b" {
		t.Fatalf("NextTask() after completing task-a = %+v, %v; want task-b", sel, err)
	}
}

func TestNextTask_RequestedTaskNamesUnmetDependencies(t *testing.T) {
	g, p := chainGraph()
	r := New(g, p)

	// Requesting C while B is incomplete must fail naming B.
	_, err := r.NextTask("task-c")
	if err == nil {
		t.Fatal("NextTask(task-c) = nil error, want DependencyUnsatisfied")
	}
	if !errors.Is(err, errors.ErrCodeDependencyUnsatisfied) {
		t.Fatalf("error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeDependencyUnsatisfied)
	}
	if !strings.Contains(err.Error(), "task-b") {
		t.Errorf("error %q does not name the unmet dependency task-b", err.Error())
	}
}

func TestNextTask_RequestedUnknownAndNonPending(t *testing.T) {
	g, p := chainGraph()
	r := New(g, p)

	if _, err := r.NextTask("task-ghost"); !errors.Is(err, errors.ErrCodeTaskNotFound) {
		t.Errorf("unknown task error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeTaskNotFound)
	}

	complete(g, "task-a")
	if _, err := r.NextTask("task-a"); !errors.Is(err, errors.ErrCodeTaskNotPending) {
		t.Errorf("completed task error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeTaskNotPending)
	}
}

func TestNextTask_ValidationGateBlocksLaterMilestone(t *testing.T) {
	g, p := chainGraph()

	// All of m1 done, milestone complete but unvalidated.
	complete(g, "task-a", "task-b", "task-v1")
	g.Milestones[0].Status = graph.MilestoneComplete
	p.ValidationPending = true

	r := New(g, p)

	// task-c's dependency (task-b) is satisfied, yet the gate holds.
	sel, err := r.NextTask("")
	if err != nil {
		t.Fatalf("NextTask() error = %v, want blocked result", err)
	}
	if !sel.Blocked {
		t.Fatalf("NextTask() = %+v, want blocked", sel)
	}
	if !strings.Contains(sel.Reason, "m1") {
		t.Errorf("blocked reason %q does not name milestone m1", sel.Reason)
	}

	// Requesting the gated task explicitly is an error, not a block.
	_, err = r.NextTask("task-c")
	if !errors.Is(err, errors.ErrCodeValidationPending) {
		t.Fatalf("requested gated task error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeValidationPending)
	}
}

func TestNextTask_GateLiftsAfterValidation(t *testing.T) {
	g, p := chainGraph()

	complete(g, "task-a", "task-b", "task-v1")
	g.Milestones[0].Status = graph.MilestoneValidated
	g.Milestones[1].Status = graph.MilestoneInProgress
	p.CurrentMilestoneID = "m2"

	r := New(g, p)
	sel, err := r.NextTask("")
	if err != nil || sel.Task == nil || sel.Task.ID != "task-c" {
		t.Fatalf("NextTask() = %+v, %v; want task-c after validation", sel, err)
	}
}

func TestNextTask_DeclaredSequenceTieBreak(t *testing.T) {
	g := &graph.TaskGraph{
		SprintID: "sprint-1",
		Tasks: []graph.Task{
			{ID: "task-z", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-a", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-v1", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m1", DependsOn: []string{"task-z", "task-a"}},
		},
		Milestones: []graph.Milestone{
			{ID: "m1", TaskIDs: []string{"task-z", "task-a", "task-v1"}, Status: graph.MilestoneInProgress},
		},
	}
	p := &graph.Progress{SprintID: "sprint-1", CurrentMilestoneID: "m1", Total: 3}

	// Both task-z and task-a are eligible; declared sequence wins, not
	// lexical order.
	sel, err := New(g, p).NextTask("")
	if err != nil || sel.Task == nil || sel.Task.ID != "task-z" {
		t.Fatalf("NextTask() = %+v, %v; want task-z by declared sequence", sel, err)
	}
}

func TestNextTask_BlockedWhenCurrentMilestoneStalled(t *testing.T) {
	g, p := chainGraph()

	// task-a in progress: nothing eligible in m1, but m1 is not complete.
	taskA, _ := g.Task("task-a")
	taskA.Status = graph.TaskInProgress

	sel, err := New(g, p).NextTask("")
	if err != nil {
		t.Fatalf("NextTask() error = %v, want blocked result", err)
	}
	if !sel.Blocked {
		t.Fatalf("NextTask() = %+v, want blocked rather than a later-milestone task", sel)
	}
}

func TestValidateDependencies(t *testing.T) {
	g, p := chainGraph()
	complete(g, "task-a")

	r := New(g, p)
	report, err := r.ValidateDependencies("task-v1")
	if err != nil {
		t.Fatalf("ValidateDependencies() error = %v", err)
	}

	if len(report.Satisfied) != 1 || report.Satisfied[0] != "task-a" {
		t.Errorf("Satisfied = %v, want [task-a]", report.Satisfied)
	}
	if len(report.Unmet) != 1 || report.Unmet[0] != "task-b" {
		t.Errorf("Unmet = %v, want [task-b]", report.Unmet)
	}
	if report.Eligible {
		t.Error("Eligible = true, want false with unmet dependency")
	}

	if _, err := r.ValidateDependencies("task-ghost"); !errors.Is(err, errors.ErrCodeTaskNotFound) {
		t.Errorf("unknown task error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeTaskNotFound)
	}
}
