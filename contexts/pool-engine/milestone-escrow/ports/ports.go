package ports

import (
	"context"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
)

// MilestoneRepository persists milestone schedules and approvals. Composite
// writes are atomic: a schedule is stored whole or not at all, and
// SaveApproval inserts the approval and bumps the milestone counter together.
type MilestoneRepository interface {
	SaveSchedule(ctx context.Context, milestones []entities.Milestone) error
	GetMilestone(ctx context.Context, milestoneID string) (entities.Milestone, bool, error)
	ListMilestonesByCandidate(ctx context.Context, poolID string, candidateID string) ([]entities.Milestone, error)
	ListMilestonesByPool(ctx context.Context, poolID string) ([]entities.Milestone, error)
	SaveMilestone(ctx context.Context, milestone entities.Milestone) error
	// SaveApproval reports false without error when the approver already
	// approved the milestone.
	SaveApproval(ctx context.Context, approval entities.Approval) (bool, error)
	ListApprovalsByMilestone(ctx context.Context, milestoneID string) ([]entities.Approval, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
