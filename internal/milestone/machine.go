// Package milestone drives the per-milestone lifecycle and the human
// validation gate between milestones.
//
// NOT_STARTED -> IN_PROGRESS -> COMPLETE -> VALIDATED (terminal), with
// COMPLETE -> IN_PROGRESS on failed validation. Every transition handles the
// full status set exhaustively; unknown states are rejected, never ignored.
package milestone

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/sprintctl/internal/errors"
	"github.com/felixgeelhaar/sprintctl/internal/graph"
)

// Machine applies milestone transitions to one loaded state
type Machine struct {
	g *graph.TaskGraph
	p *graph.Progress
}

// New builds a machine over a validated graph and tracker
func New(g *graph.TaskGraph, p *graph.Progress) *Machine {
	return &Machine{g: g, p: p}
}

// OnTaskStarted records that the first work on a milestone began,
// transitioning NOT_STARTED to IN_PROGRESS.
func (m *Machine) OnTaskStarted(t *graph.Task) error {
	ms, ok := m.g.Milestone(t.MilestoneID)
	if !ok {
		return errors.New(errors.ErrCodeMilestoneNotFound, fmt.Sprintf("milestone %q does not exist", t.MilestoneID))
	}

	switch ms.Status {
	case graph.MilestoneNotStarted:
		ms.Status = graph.MilestoneInProgress
		if m.p.CurrentMilestoneID == "" {
			m.p.CurrentMilestoneID = ms.ID
		}
		m.p.AppendHistory(graph.EventMilestoneStarted, t.ID, ms.ID, "")
		return nil
	case graph.MilestoneInProgress:
		return nil
	case graph.MilestoneComplete, graph.MilestoneValidated:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("cannot start task %q: milestone %s is %s", t.ID, ms.ID, ms.Status))
	default:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("milestone %s has unknown status %q", ms.ID, ms.Status))
	}
}

// OnTaskCompleted records a finished task. When every non-validation task
// of the milestone is completed, the milestone transitions to COMPLETE and
// the validation gate closes behind it.
func (m *Machine) OnTaskCompleted(t *graph.Task) error {
	ms, ok := m.g.Milestone(t.MilestoneID)
	if !ok {
		return errors.New(errors.ErrCodeMilestoneNotFound, fmt.Sprintf("milestone %q does not exist", t.MilestoneID))
	}

	switch ms.Status {
	case graph.MilestoneInProgress:
		if m.g.WorkTasksDone(ms) {
			ms.Status = graph.MilestoneComplete
			m.p.ValidationPending = true
			m.p.AppendHistory(graph.EventMilestoneComplete, t.ID, ms.ID, "awaiting external validation")
		}
		return nil
	case graph.MilestoneNotStarted, graph.MilestoneComplete, graph.MilestoneValidated:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("cannot complete task %q: milestone %s is %s", t.ID, ms.ID, ms.Status))
	default:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("milestone %s has unknown status %q", ms.ID, ms.Status))
	}
}

// RecordValidation applies the external validator's verdict to a COMPLETE
// milestone. The validation record is appended to the tracker and never
// mutated afterward.
//
// passed: COMPLETE -> VALIDATED, the trailing validation task completes, and
// current_milestone_id advances. failed: COMPLETE -> IN_PROGRESS, reopening
// the milestone for remediation; either way the gate clears.
func (m *Machine) RecordValidation(milestoneID string, status graph.ValidationStatus, issues []string) error {
	ms, ok := m.g.Milestone(milestoneID)
	if !ok {
		return errors.New(errors.ErrCodeMilestoneNotFound, fmt.Sprintf("milestone %q does not exist", milestoneID))
	}

	switch ms.Status {
	case graph.MilestoneComplete:
		// Fall through to apply the verdict.
	case graph.MilestoneNotStarted, graph.MilestoneInProgress:
		return errors.New(errors.ErrCodeMilestoneNotComplete,
			fmt.Sprintf("milestone %s is %s; only complete milestones can be validated", ms.ID, ms.Status))
	case graph.MilestoneValidated:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("milestone %s is already validated", ms.ID))
	default:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("milestone %s has unknown status %q", ms.ID, ms.Status))
	}

	m.p.Validations = append(m.p.Validations, graph.ValidationRecord{
		MilestoneID: ms.ID,
		Timestamp:   time.Now().UTC(),
		Status:      status,
		Issues:      issues,
	})
	m.p.ValidationPending = false

	switch status {
	case graph.ValidationPassed:
		ms.Status = graph.MilestoneValidated
		m.completeValidationTask(ms)
		m.advanceCurrentMilestone(ms)
		m.p.AppendHistory(graph.EventMilestoneValidated, "", ms.ID, "")
		return nil
	case graph.ValidationFailed:
		ms.Status = graph.MilestoneInProgress
		m.p.AppendHistory(graph.EventMilestoneReopened, "", ms.ID, strings.Join(issues, "; "))
		return nil
	default:
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("unknown validation status %q", status))
	}
}

// completeValidationTask marks the milestone's trailing validation task done
func (m *Machine) completeValidationTask(ms *graph.Milestone) {
	for _, id := range ms.TaskIDs {
		if t, ok := m.g.Task(id); ok && t.IsValidation() {
			t.Status = graph.TaskCompleted
		}
	}
}

// advanceCurrentMilestone moves the tracker to the next declared milestone.
// After the last milestone the sprint itself is complete.
func (m *Machine) advanceCurrentMilestone(validated *graph.Milestone) {
	idx := m.g.MilestoneIndex(validated.ID)
	if idx >= 0 && idx+1 < len(m.g.Milestones) {
		m.p.CurrentMilestoneID = m.g.Milestones[idx+1].ID
		return
	}
	m.p.Status = "complete"
}
