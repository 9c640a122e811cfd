package milestone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// fixture: milestone m1 with 4 work tasks + 1 validation task, then m2.
func fixture() (*graph.TaskGraph, *graph.Progress) {
	g := &graph.TaskGraph{
		SprintID: "sprint-1",
		Tasks: []graph.Task{
			{ID: "task-1", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-2", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-3", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-4", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-v1", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m1"},
			{ID: "task-5", Type: graph.TypeWork, Status: graph.TaskPending, MilestoneID: "m2"},
			{ID: "task-v2", Type: graph.TypeValidation, Status: graph.TaskPending, MilestoneID: "m2"},
		},
		Milestones: []graph.Milestone{
			{ID: "m1", TaskIDs: []string{"task-1", "task-2", "task-3", "task-4", "task-v1"}, Status: graph.MilestoneNotStarted},
			{ID: "m2", TaskIDs: []string{"task-5", "task-v2"}, Status: graph.MilestoneNotStarted},
		},
	}
	p := &graph.Progress{SprintID: "sprint-1", Status: "active", CurrentMilestoneID: "m1", Total: 7}
	return g, p
}

func completeWorkTask(t *testing.T, m *Machine, g *graph.TaskGraph, id string) {
	t.Helper()
	task, ok := g.Task(id)
	require.True(t, ok)
	task.Status = graph.TaskCompleted
	require.NoError(t, m.OnTaskCompleted(task))
}

func TestFirstTaskStartsMilestone(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	task, _ := g.Task("task-1")
	require.NoError(t, m.OnTaskStarted(task))

	ms, _ := g.Milestone("m1")
	assert.Equal(t, graph.MilestoneInProgress, ms.Status)
	require.Len(t, p.History, 1)
	assert.Equal(t, graph.EventMilestoneStarted, p.History[0].Event)

	// A second start in the same milestone is a no-op.
	task2, _ := g.Task("task-2")
	require.NoError(t, m.OnTaskStarted(task2))
	assert.Len(t, p.History, 1)
}

func TestCompletingAllWorkTasksClosesGate(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	task, _ := g.Task("task-1")
	require.NoError(t, m.OnTaskStarted(task))

	for _, id := range []string{"task-1", "task-2", "task-3"} {
		completeWorkTask(t, m, g, id)
		assert.False(t, p.ValidationPending, "gate closed early after %s", id)
	}

	completeWorkTask(t, m, g, "task-4")

	ms, _ := g.Milestone("m1")
	assert.Equal(t, graph.MilestoneComplete, ms.Status)
	assert.True(t, p.ValidationPending)
	assert.Equal(t, "m1", p.CurrentMilestoneID, "current milestone must not advance before validation")
}

func TestRecordValidation_Passed(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	task, _ := g.Task("task-1")
	require.NoError(t, m.OnTaskStarted(task))
	for _, id := range []string{"task-1", "task-2", "task-3", "task-4"} {
		completeWorkTask(t, m, g, id)
	}

	require.NoError(t, m.RecordValidation("m1", graph.ValidationPassed, nil))

	ms, _ := g.Milestone("m1")
	assert.Equal(t, graph.MilestoneValidated, ms.Status)
	assert.False(t, p.ValidationPending)
	assert.Equal(t, "m2", p.CurrentMilestoneID)

	vt, _ := g.Task("task-v1")
	assert.Equal(t, graph.TaskCompleted, vt.Status)

	require.Len(t, p.Validations, 1)
	assert.Equal(t, graph.ValidationPassed, p.Validations[0].Status)
}

func TestRecordValidation_FailedReopensMilestone(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	task, _ := g.Task("task-1")
	require.NoError(t, m.OnTaskStarted(task))
	for _, id := range []string{"task-1", "task-2", "task-3", "task-4"} {
		completeWorkTask(t, m, g, id)
	}

	issues := []string{"login flow broken on retry"}
	require.NoError(t, m.RecordValidation("m1", graph.ValidationFailed, issues))

	ms, _ := g.Milestone("m1")
	assert.Equal(t, graph.MilestoneInProgress, ms.Status)
	assert.False(t, p.ValidationPending)
	assert.Equal(t, "m1", p.CurrentMilestoneID)

	require.Len(t, p.Validations, 1)
	assert.Equal(t, issues, p.Validations[0].Issues)
}

func TestRecordValidation_RequiresCompleteMilestone(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	err := m.RecordValidation("m1", graph.ValidationPassed, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMilestoneNotComplete, errors.CodeOf(err))

	err = m.RecordValidation("m-ghost", graph.ValidationPassed, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMilestoneNotFound, errors.CodeOf(err))
}

func TestRecordValidation_ValidatedIsTerminal(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	ms, _ := g.Milestone("m1")
	ms.Status = graph.MilestoneComplete
	require.NoError(t, m.RecordValidation("m1", graph.ValidationPassed, nil))

	err := m.RecordValidation("m1", graph.ValidationFailed, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
	assert.Len(t, p.Validations, 1, "failed re-validation must not append a record")
}

func TestLastMilestoneValidatedCompletesSprint(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	for _, id := range []string{"m1", "m2"} {
		ms, _ := g.Milestone(id)
		ms.Status = graph.MilestoneComplete
		require.NoError(t, m.RecordValidation(id, graph.ValidationPassed, nil))
	}

	assert.Equal(t, "complete", p.Status)
}

func TestOnTaskStarted_RejectsCompleteMilestone(t *testing.T) {
	g, p := fixture()
	m := New(g, p)

	ms, _ := g.Milestone("m1")
	ms.Status = graph.MilestoneComplete

	task, _ := g.Task("task-1")
	err := m.OnTaskStarted(task)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
}
