package graph

import (
	"time"

	"github.com/google/uuid"
)

// History event names
const (
	EventTaskStarted         = "task_started"
	EventTaskCompleted       = "task_completed"
	EventMilestoneStarted    = "milestone_started"
	EventMilestoneComplete   = "milestone_complete"
	EventMilestoneValidated  = "milestone_validated"
	EventMilestoneReopened   = "milestone_reopened"
	EventEnhancementApplied  = "enhancement_applied"
	EventEnhancementDeferred = "enhancement_deferred"
)

// AppendHistory appends one record to the append-only log. Existing entries
// are never rewritten.
func (p *Progress) AppendHistory(event, taskID, milestoneID, detail string) {
	p.History = append(p.History, HistoryEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Event:       event,
		TaskID:      taskID,
		MilestoneID: milestoneID,
		Detail:      detail,
	})
}
