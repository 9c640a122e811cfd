// Package enhance inserts post-planning feature tasks into an existing
// sprint graph: it computes a dependency- and capacity-respecting insertion
// point and applies it as one atomic mutation.
package enhance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
	"github.com/felixgeelhaar/sprintctl/internal/store"
)

// Plan is a computed insertion point for a set of feature tasks
type Plan struct {
	MilestoneID  string   `json:"milestone_id"`
	NewMilestone bool     `json:"new_milestone"`
	Position     int      `json:"position"`
	TaskIDs      []string `json:"task_ids"`
}

// Placement finds the earliest milestone that can absorb the feature tasks:
// every declared dependency must be satisfiable by tasks scheduled at or
// before it, and its task count plus the new tasks must stay within its
// maximum. Milestones already complete or validated are never reopened.
// When no milestone qualifies, a new one is synthesized after the last
// dependency-satisfying milestone.
func Placement(g *graph.TaskGraph, feature []graph.Task) (*Plan, error) {
	if len(feature) == 0 {
		return nil, errors.New(errors.ErrCodeSchemaInvalid, "enhancement contains no tasks")
	}

	newIDs := make(map[string]bool, len(feature))
	var issues []string
	for i := range feature {
		t := &feature[i]
		if t.ID == "" {
			issues = append(issues, fmt.Sprintf("feature task at index %d has an empty id", i))
			continue
		}
		if newIDs[t.ID] {
			issues = append(issues, fmt.Sprintf("duplicate feature task id %q", t.ID))
		}
		if _, exists := g.Task(t.ID); exists {
			issues = append(issues, fmt.Sprintf("feature task id %q already exists in the graph", t.ID))
		}
		newIDs[t.ID] = true
	}

	// External dependencies must resolve to existing tasks.
	lastDepIdx := -1
	for i := range feature {
		for _, dep := range feature[i].DependsOn {
			if newIDs[dep] {
				continue
			}
			depTask, ok := g.Task(dep)
			if !ok {
				issues = append(issues, fmt.Sprintf("feature task %q depends on %q which does not exist", feature[i].ID, dep))
				continue
			}
			if idx := g.MilestoneIndex(depTask.MilestoneID); idx > lastDepIdx {
				lastDepIdx = idx
			}
		}
	}
	if len(issues) > 0 {
		return nil, errors.New(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("enhancement failed validation with %d issue(s)", len(issues))).
			WithDetails(issues...)
	}

	for i := range g.Milestones {
		m := &g.Milestones[i]
		if i < lastDepIdx {
			continue
		}
		if m.Status == graph.MilestoneComplete || m.Status == graph.MilestoneValidated {
			continue
		}
		if len(m.TaskIDs)+len(feature) > m.EffectiveMax() {
			continue
		}
		return &Plan{MilestoneID: m.ID, Position: i, TaskIDs: taskIDs(feature)}, nil
	}

	// No milestone qualifies; synthesize one. It carries the feature tasks
	// plus its own trailing validation task.
	if len(feature)+1 > graph.DefaultMaxTasks {
		return nil, errors.New(errors.ErrCodeCapacityExceeded,
			fmt.Sprintf("enhancement holds %d tasks; a milestone fits at most %d plus its validation task",
				len(feature), graph.DefaultMaxTasks-1)).
			WithSuggestions("split the enhancement into smaller feature sets and apply them separately")
	}

	// No existing milestone may depend on tasks it has never seen, so the
	// end of the list is always after the last dependency-satisfying
	// milestone and before any dependent one.
	position := len(g.Milestones)

	return &Plan{
		MilestoneID:  newMilestoneID(g),
		NewMilestone: true,
		Position:     position,
		TaskIDs:      taskIDs(feature),
	}, nil
}

// Planner applies enhancements through the store's atomic path
type Planner struct {
	store *store.Store
}

// NewPlanner builds a planner over a store
func NewPlanner(s *store.Store) *Planner {
	return &Planner{store: s}
}

// Apply computes the placement and inserts the feature tasks in one atomic
// update. Any post-insertion invariant failure (schema, cycle, capacity)
// rejects the whole change with zero file modification.
func (p *Planner) Apply(ctx context.Context, feature []graph.Task, description string) (*Plan, error) {
	var plan *Plan

	err := p.store.AtomicUpdate(ctx, func(st *store.State) error {
		var err error
		plan, err = Placement(st.Graph, feature)
		if err != nil {
			return err
		}

		meta := &graph.EnhancementMeta{
			ID:          uuid.NewString(),
			Description: description,
			InsertedAt:  time.Now().UTC(),
		}

		if plan.NewMilestone {
			insertMilestone(st.Graph, plan, feature, meta)
		} else {
			insertIntoMilestone(st.Graph, plan, feature, meta)
		}

		st.Progress.AppendHistory(graph.EventEnhancementApplied, "", plan.MilestoneID,
			fmt.Sprintf("%s (%d tasks)", description, len(feature)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Defer records a feature for a later sprint instead of inserting it
func (p *Planner) Defer(ctx context.Context, description, reason string) (*graph.DeferredFeature, error) {
	feature := &graph.DeferredFeature{
		ID:          uuid.NewString(),
		Description: description,
		Reason:      reason,
		RecordedAt:  time.Now().UTC(),
	}

	err := p.store.AtomicUpdate(ctx, func(st *store.State) error {
		st.Deferred = append(st.Deferred, *feature)
		st.Progress.AppendHistory(graph.EventEnhancementDeferred, "", "", description)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return feature, nil
}

// insertIntoMilestone places the feature tasks before the milestone's
// trailing validation task, preserving the one-validation-task-at-the-end
// invariant.
func insertIntoMilestone(g *graph.TaskGraph, plan *Plan, feature []graph.Task, meta *graph.EnhancementMeta) {
	m, _ := g.Milestone(plan.MilestoneID)

	appendFeatureTasks(g, m.ID, feature, meta)

	validation := m.TaskIDs[len(m.TaskIDs)-1]
	ids := append([]string{}, m.TaskIDs[:len(m.TaskIDs)-1]...)
	ids = append(ids, plan.TaskIDs...)
	m.TaskIDs = append(ids, validation)
}

// insertMilestone synthesizes a milestone at the computed position with its
// own generated validation task.
func insertMilestone(g *graph.TaskGraph, plan *Plan, feature []graph.Task, meta *graph.EnhancementMeta) {
	appendFeatureTasks(g, plan.MilestoneID, feature, meta)

	validationID := "task-validate-" + plan.MilestoneID
	g.Tasks = append(g.Tasks, graph.Task{
		ID:          validationID,
		Title:       fmt.Sprintf("Validate milestone %s", plan.MilestoneID),
		Type:        graph.TypeValidation,
		DependsOn:   append([]string{}, plan.TaskIDs...),
		Status:      graph.TaskPending,
		MilestoneID: plan.MilestoneID,
		Enhancement: meta,
	})

	m := graph.Milestone{
		ID:      plan.MilestoneID,
		Title:   meta.Description,
		TaskIDs: append(append([]string{}, plan.TaskIDs...), validationID),
		Status:  graph.MilestoneNotStarted,
	}

	pos := plan.Position
	if pos > len(g.Milestones) {
		pos = len(g.Milestones)
	}
	g.Milestones = append(g.Milestones[:pos], append([]graph.Milestone{m}, g.Milestones[pos:]...)...)
}

// appendFeatureTasks adds the feature tasks to the graph's task array in
// declared order, normalized as pending work owned by the milestone.
func appendFeatureTasks(g *graph.TaskGraph, milestoneID string, feature []graph.Task, meta *graph.EnhancementMeta) {
	for i := range feature {
		t := feature[i]
		t.Type = graph.TypeWork
		t.Status = graph.TaskPending
		t.MilestoneID = milestoneID
		t.Enhancement = meta
		g.Tasks = append(g.Tasks, t)
	}
}

// newMilestoneID picks the first free m<N> identifier
func newMilestoneID(g *graph.TaskGraph) string {
	for n := len(g.Milestones) + 1; ; n++ {
		id := fmt.Sprintf("m%d", n)
		if _, exists := g.Milestone(id); !exists {
			return id
		}
	}
}

// taskIDs extracts the feature task ids in declared order
func taskIDs(feature []graph.Task) []string {
	ids := make([]string, len(feature))
	for i := range feature {
		ids[i] = feature[i].ID
	}
	return ids
}
