package graph

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
)

// Validate checks the graph's structural invariants. All violations are
// collected and reported together in a single schema error, not just the
// first found. Acyclicity is checked separately afterward so that a cycle is
// reported with its members even when other violations exist.
func (g *TaskGraph) Validate() error {
	if issues := g.schemaIssues(); len(issues) > 0 {
		return errors.New(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("task graph failed validation with %d issue(s)", len(issues))).
			WithDetails(issues...)
	}
	return g.CheckCycles()
}

// schemaIssues collects every referential-integrity and capacity violation
func (g *TaskGraph) schemaIssues() []string {
	var issues []string

	taskIDs := make(map[string]bool, len(g.Tasks))
	for i := range g.Tasks {
		t := &g.Tasks[i]
		if t.ID == "" {
			issues = append(issues, fmt.Sprintf("task at index %d has an empty id", i))
			continue
		}
		if taskIDs[t.ID] {
			issues = append(issues, fmt.Sprintf("duplicate task id %q", t.ID))
		}
		taskIDs[t.ID] = true
	}

	for i := range g.Tasks {
		t := &g.Tasks[i]
		for _, dep := range t.DependsOn {
			if !taskIDs[dep] {
				issues = append(issues, fmt.Sprintf("task %q depends on %q which does not exist", t.ID, dep))
			}
			if dep == t.ID {
				issues = append(issues, fmt.Sprintf("task %q depends on itself", t.ID))
			}
		}
		if t.MilestoneID == "" {
			issues = append(issues, fmt.Sprintf("task %q has no milestone", t.ID))
		} else if _, ok := g.Milestone(t.MilestoneID); !ok {
			issues = append(issues, fmt.Sprintf("task %q references milestone %q which does not exist", t.ID, t.MilestoneID))
		}
	}

	milestoneIDs := make(map[string]bool, len(g.Milestones))
	owner := make(map[string]string)
	for i := range g.Milestones {
		m := &g.Milestones[i]
		if m.ID == "" {
			issues = append(issues, fmt.Sprintf("milestone at index %d has an empty id", i))
			continue
		}
		if milestoneIDs[m.ID] {
			issues = append(issues, fmt.Sprintf("duplicate milestone id %q", m.ID))
		}
		milestoneIDs[m.ID] = true

		issues = append(issues, g.milestoneIssues(m, owner)...)
	}

	return issues
}

// milestoneIssues checks one milestone's task list: existing references,
// single ownership, one trailing validation task, and the capacity bound.
func (g *TaskGraph) milestoneIssues(m *Milestone, owner map[string]string) []string {
	var issues []string

	if len(m.TaskIDs) == 0 {
		issues = append(issues, fmt.Sprintf("milestone %q has no tasks", m.ID))
		return issues
	}

	validationCount := 0
	for i, id := range m.TaskIDs {
		t, ok := g.Task(id)
		if !ok {
			issues = append(issues, fmt.Sprintf("milestone %q references task %q which does not exist", m.ID, id))
			continue
		}
		if prev, claimed := owner[id]; claimed {
			issues = append(issues, fmt.Sprintf("task %q belongs to both milestone %q and milestone %q", id, prev, m.ID))
		}
		owner[id] = m.ID
		if t.MilestoneID != "" && t.MilestoneID != m.ID {
			issues = append(issues, fmt.Sprintf("task %q is listed in milestone %q but declares milestone %q", id, m.ID, t.MilestoneID))
		}
		if t.IsValidation() {
			validationCount++
			if i != len(m.TaskIDs)-1 {
				issues = append(issues, fmt.Sprintf("milestone %q has validation task %q before the end of its task list", m.ID, id))
			}
		}
	}

	if validationCount != 1 {
		issues = append(issues, fmt.Sprintf("milestone %q must end with exactly one validation task, found %d", m.ID, validationCount))
	}

	if max := m.EffectiveMax(); len(m.TaskIDs) > max {
		issues = append(issues, fmt.Sprintf("milestone %q holds %d tasks, exceeding its maximum of %d", m.ID, len(m.TaskIDs), max))
	}

	return issues
}

// CheckCycles runs a depth-first search over the dependency adjacency map.
// On detecting a cycle it fails with the cycle members named in order; the
// scheduler never runs against an unchecked or cyclic graph.
func (g *TaskGraph) CheckCycles() error {
	adj := g.Adjacency()

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var walk func(id string, path []string) error
	walk = func(id string, path []string) error {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, dep := range adj[id] {
			if !visited[dep] {
				if err := walk(dep, path); err != nil {
					return err
				}
			} else if onStack[dep] {
				cycle := append(path, dep)
				return errors.New(errors.ErrCodeCycleDetected,
					fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> "))).
					WithDetails(cycle...)
			}
		}

		onStack[id] = false
		return nil
	}

	for i := range g.Tasks {
		if !visited[g.Tasks[i].ID] {
			if err := walk(g.Tasks[i].ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateProgress cross-checks the tracker against the graph
func (g *TaskGraph) ValidateProgress(p *Progress) error {
	var issues []string

	if p.SprintID != g.SprintID {
		issues = append(issues, fmt.Sprintf("progress tracks sprint %q but the graph is sprint %q", p.SprintID, g.SprintID))
	}
	if p.CurrentMilestoneID != "" {
		if _, ok := g.Milestone(p.CurrentMilestoneID); !ok {
			issues = append(issues, fmt.Sprintf("current milestone %q does not exist", p.CurrentMilestoneID))
		}
	}
	if p.Total != len(g.Tasks) {
		issues = append(issues, fmt.Sprintf("progress counts %d total tasks but the graph holds %d", p.Total, len(g.Tasks)))
	}
	completed := 0
	for i := range g.Tasks {
		if g.Tasks[i].Status == TaskCompleted {
			completed++
		}
	}
	if p.Completed != completed {
		issues = append(issues, fmt.Sprintf("progress counts %d completed tasks but the graph holds %d", p.Completed, completed))
	}

	if len(issues) > 0 {
		return errors.New(errors.ErrCodeSchemaInvalid,
			fmt.Sprintf("progress tracker failed validation with %d issue(s)", len(issues))).
			WithDetails(issues...)
	}
	return nil
}

// Recount refreshes the tracker's counters from the graph
func (p *Progress) Recount(g *TaskGraph) {
	completed := 0
	for i := range g.Tasks {
		if g.Tasks[i].Status == TaskCompleted {
			completed++
		}
	}
	p.Completed = completed
	p.Total = len(g.Tasks)
}
