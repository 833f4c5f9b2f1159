package matching

import (
	"github.com/turtacn/BOMMesh/pkg/types/common"
)

var _ common.DomainEvent = (*MatchingCompletedEvent)(nil)

// EventTypeMatchingCompleted is published once per finished run.
const EventTypeMatchingCompleted = "matching.completed"

// MatchingCompletedEvent announces a finished run to downstream consumers.
type MatchingCompletedEvent struct {
	common.BaseEvent
	RunID     string   `json:"run_id"`
	Summary   Summary  `json:"summary"`
	ReportURI string   `json:"report_uri,omitempty"`
	ScopeIDs  []string `json:"scope_ids"`
}

func NewMatchingCompletedEvent(r *Report, reportURI string) *MatchingCompletedEvent {
	ids := make([]string, 0, len(r.Components)+1)
	for _, sc := range r.Scopes() {
		ids = append(ids, sc.Scope.String())
	}
	return &MatchingCompletedEvent{
		BaseEvent: common.NewBaseEvent(r.RunID.String()),
		RunID:     r.RunID.String(),
		Summary:   r.Summary,
		ReportURI: reportURI,
		ScopeIDs:  ids,
	}
}

// EventType names the event for transport headers.
func (e *MatchingCompletedEvent) EventType() string { return EventTypeMatchingCompleted }
