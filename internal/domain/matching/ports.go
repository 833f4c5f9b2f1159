package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProposalRequest is the residual of one scope handed to the fallback
// matcher.
type ProposalRequest struct {
	Scope Scope
	Parts []ResidualPart
	BOM   []BOMRecord
}

// FallbackMatcher proposes pairings for parts the deterministic pass left
// unmatched. Implementations degrade to an empty result rather than failing
// on malformed replies.
type FallbackMatcher interface {
	Propose(ctx context.Context, req ProposalRequest) ([]AIMatch, error)
}

// MeshSource loads the mesh parts of an assembly file. A missing file is
// reported with errors.ErrCodeModelFileNotFound.
type MeshSource interface {
	Load(ctx context.Context, modelFile string) ([]MeshPart, error)
}

// MappingRepository persists run reports.
type MappingRepository interface {
	Save(ctx context.Context, report *Report) error
	FindByRunID(ctx context.Context, runID uuid.UUID) (*Report, error)
	ListRecent(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is a list row of a stored run.
type RunSummary struct {
	RunID      uuid.UUID `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    Summary   `json:"summary"`
}

// ReportStore archives serialized reports and returns their location.
type ReportStore interface {
	Put(ctx context.Context, report *Report) (string, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event *MatchingCompletedEvent) error
}
