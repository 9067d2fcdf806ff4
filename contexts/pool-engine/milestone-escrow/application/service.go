package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/ports"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// Service tracks milestone schedules and approvals for winning candidates.
// It computes tranche amounts but never moves money itself; the lifecycle
// controller executes the actual transfer after a release is granted.
type Service struct {
	Milestones ports.MilestoneRepository
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

// MilestoneSpec is one tranche of a candidate's schedule as submitted by the
// winning recipient.
type MilestoneSpec struct {
	Description       string
	FundingPercentBps int64
	Deadline          *time.Time
	ApprovalsNeeded   int
}

// ConfigureInput defines a winner's full milestone schedule in one call.
type ConfigureInput struct {
	PoolID      string
	CandidateID string
	Milestones  []MilestoneSpec
}

// Configure stores the candidate's schedule atomically. Percentages are basis
// points of the candidate's allocation; their sum must not exceed 10000. A
// candidate configures a schedule exactly once.
func (s Service) Configure(ctx context.Context, in ConfigureInput) ([]entities.Milestone, error) {
	logger := resolveLogger(s.Logger)
	if strings.TrimSpace(in.PoolID) == "" || strings.TrimSpace(in.CandidateID) == "" || len(in.Milestones) == 0 {
		return nil, domainerrors.ErrInvalidMilestoneInput
	}

	existing, err := s.Milestones.ListMilestonesByCandidate(ctx, in.PoolID, in.CandidateID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, domainerrors.ErrAlreadyConfigured
	}

	var totalBps int64
	for _, spec := range in.Milestones {
		if strings.TrimSpace(spec.Description) == "" || spec.FundingPercentBps <= 0 || spec.ApprovalsNeeded < 1 {
			return nil, domainerrors.ErrInvalidMilestoneInput
		}
		totalBps, err = money.Add(totalBps, spec.FundingPercentBps)
		if err != nil {
			return nil, err
		}
	}
	if totalBps > money.BpsDenominator {
		return nil, domainerrors.ErrPercentBudgetExceeded
	}

	now := s.now()
	milestones := make([]entities.Milestone, 0, len(in.Milestones))
	for index, spec := range in.Milestones {
		milestoneID, err := s.IDGen.NewID(ctx)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, entities.Milestone{
			MilestoneID:       milestoneID,
			PoolID:            strings.TrimSpace(in.PoolID),
			CandidateID:       strings.TrimSpace(in.CandidateID),
			Index:             index,
			Description:       strings.TrimSpace(spec.Description),
			FundingPercentBps: spec.FundingPercentBps,
			Deadline:          spec.Deadline,
			ApprovalsNeeded:   spec.ApprovalsNeeded,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	if err := s.Milestones.SaveSchedule(ctx, milestones); err != nil {
		return nil, err
	}

	logger.Info("milestone schedule configured",
		"event", "escrow_schedule_configured",
		"module", "pool-engine/milestone-escrow",
		"layer", "application",
		"pool_id", strings.TrimSpace(in.PoolID),
		"candidate_id", strings.TrimSpace(in.CandidateID),
		"milestone_count", len(milestones),
		"total_percent_bps", totalBps,
	)
	return milestones, nil
}

// SubmitEvidence attaches or replaces the evidence URI on an open milestone.
func (s Service) SubmitEvidence(ctx context.Context, milestoneID string, evidenceURI string) (entities.Milestone, error) {
	if strings.TrimSpace(evidenceURI) == "" {
		return entities.Milestone{}, domainerrors.ErrInvalidMilestoneInput
	}
	milestone, err := s.openMilestone(ctx, milestoneID)
	if err != nil {
		return entities.Milestone{}, err
	}
	milestone.EvidenceURI = strings.TrimSpace(evidenceURI)
	milestone.UpdatedAt = s.now()
	if err := s.Milestones.SaveMilestone(ctx, milestone); err != nil {
		return entities.Milestone{}, err
	}
	return milestone, nil
}

// Approve records one approver's sign-off. A repeated approval by the same
// approver is a no-op and does not move the counter.
func (s Service) Approve(ctx context.Context, milestoneID string, approver string) (entities.Milestone, bool, error) {
	logger := resolveLogger(s.Logger)
	if strings.TrimSpace(approver) == "" {
		return entities.Milestone{}, false, domainerrors.ErrInvalidMilestoneInput
	}
	milestone, err := s.openMilestone(ctx, milestoneID)
	if err != nil {
		return entities.Milestone{}, false, err
	}

	approvalID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Milestone{}, false, err
	}
	inserted, err := s.Milestones.SaveApproval(ctx, entities.Approval{
		ApprovalID:  approvalID,
		MilestoneID: milestone.MilestoneID,
		PoolID:      milestone.PoolID,
		Approver:    strings.TrimSpace(approver),
		ApprovedAt:  s.now(),
	})
	if err != nil {
		return entities.Milestone{}, false, err
	}
	if !inserted {
		return milestone, false, nil
	}

	milestone, found, err := s.Milestones.GetMilestone(ctx, milestone.MilestoneID)
	if err != nil {
		return entities.Milestone{}, false, err
	}
	if !found {
		return entities.Milestone{}, false, domainerrors.ErrMilestoneNotFound
	}

	logger.Info("milestone approved",
		"event", "escrow_milestone_approved",
		"module", "pool-engine/milestone-escrow",
		"layer", "application",
		"pool_id", milestone.PoolID,
		"milestone_id", milestone.MilestoneID,
		"approver", strings.TrimSpace(approver),
		"approval_count", milestone.ApprovalCount,
		"approvals_needed", milestone.ApprovalsNeeded,
	)
	return milestone, true, nil
}

// ReleaseInput carries the candidate's total allocation so the tranche can be
// computed and capped against what the candidate already received.
type ReleaseInput struct {
	MilestoneID      string
	AllocationAmount int64
}

// Release grants the milestone's tranche once the approval quorum is met. The
// amount is the floor of fundingPercentBps applied to the allocation, capped
// so the candidate's lifetime releases never exceed the allocation. It
// reports whether the candidate's whole schedule is now resolved.
func (s Service) Release(ctx context.Context, in ReleaseInput) (entities.ReleaseOutcome, error) {
	logger := resolveLogger(s.Logger)
	if in.AllocationAmount < 0 {
		return entities.ReleaseOutcome{}, domainerrors.ErrInvalidMilestoneInput
	}
	milestone, err := s.openMilestone(ctx, in.MilestoneID)
	if err != nil {
		return entities.ReleaseOutcome{}, err
	}
	if milestone.ApprovalCount < milestone.ApprovalsNeeded {
		return entities.ReleaseOutcome{}, domainerrors.ErrInsufficientApprovals
	}

	siblings, err := s.Milestones.ListMilestonesByCandidate(ctx, milestone.PoolID, milestone.CandidateID)
	if err != nil {
		return entities.ReleaseOutcome{}, err
	}
	var released int64
	for _, sibling := range siblings {
		released, err = money.Add(released, sibling.ReleasedAmount)
		if err != nil {
			return entities.ReleaseOutcome{}, err
		}
	}
	remaining, err := money.Sub(in.AllocationAmount, released)
	if err != nil {
		return entities.ReleaseOutcome{}, err
	}

	amount, err := money.Bps(in.AllocationAmount, milestone.FundingPercentBps)
	if err != nil {
		return entities.ReleaseOutcome{}, err
	}
	if amount > remaining {
		amount = remaining
	}

	now := s.now()
	milestone.Completed = true
	milestone.ReleasedAmount = amount
	milestone.CompletedAt = &now
	milestone.UpdatedAt = now
	if err := s.Milestones.SaveMilestone(ctx, milestone); err != nil {
		return entities.ReleaseOutcome{}, err
	}

	candidateDone := true
	for _, sibling := range siblings {
		if sibling.MilestoneID == milestone.MilestoneID {
			continue
		}
		if !sibling.Resolved() {
			candidateDone = false
			break
		}
	}

	logger.Info("milestone released",
		"event", "escrow_milestone_released",
		"module", "pool-engine/milestone-escrow",
		"layer", "application",
		"pool_id", milestone.PoolID,
		"candidate_id", milestone.CandidateID,
		"milestone_id", milestone.MilestoneID,
		"released_amount", amount,
		"candidate_done", candidateDone,
	)
	return entities.ReleaseOutcome{
		Milestone:     milestone,
		Amount:        amount,
		CandidateDone: candidateDone,
	}, nil
}

// Dispute freezes an open milestone; a disputed milestone cannot be approved
// or released until it is abandoned or the dispute flag is lifted upstream.
func (s Service) Dispute(ctx context.Context, milestoneID string) (entities.Milestone, error) {
	logger := resolveLogger(s.Logger)
	milestone, found, err := s.Milestones.GetMilestone(ctx, strings.TrimSpace(milestoneID))
	if err != nil {
		return entities.Milestone{}, err
	}
	if !found {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	if milestone.Completed {
		return entities.Milestone{}, domainerrors.ErrAlreadyCompleted
	}
	if milestone.Abandoned {
		return entities.Milestone{}, domainerrors.ErrMilestoneAbandoned
	}
	milestone.Disputed = true
	milestone.UpdatedAt = s.now()
	if err := s.Milestones.SaveMilestone(ctx, milestone); err != nil {
		return entities.Milestone{}, err
	}

	logger.Info("milestone disputed",
		"event", "escrow_milestone_disputed",
		"module", "pool-engine/milestone-escrow",
		"layer", "application",
		"pool_id", milestone.PoolID,
		"milestone_id", milestone.MilestoneID,
	)
	return milestone, nil
}

// Abandon retires an uncompleted milestone. Its tranche stays in escrow and
// counts toward pool closure like a completed milestone with no payout.
func (s Service) Abandon(ctx context.Context, milestoneID string) (entities.Milestone, error) {
	logger := resolveLogger(s.Logger)
	milestone, found, err := s.Milestones.GetMilestone(ctx, strings.TrimSpace(milestoneID))
	if err != nil {
		return entities.Milestone{}, err
	}
	if !found {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	if milestone.Completed {
		return entities.Milestone{}, domainerrors.ErrAlreadyCompleted
	}
	milestone.Abandoned = true
	milestone.Disputed = false
	milestone.UpdatedAt = s.now()
	if err := s.Milestones.SaveMilestone(ctx, milestone); err != nil {
		return entities.Milestone{}, err
	}

	logger.Info("milestone abandoned",
		"event", "escrow_milestone_abandoned",
		"module", "pool-engine/milestone-escrow",
		"layer", "application",
		"pool_id", milestone.PoolID,
		"milestone_id", milestone.MilestoneID,
	)
	return milestone, nil
}

// AllResolved reports whether every candidate in the winner set has a
// schedule and every milestone in it paid out or was abandoned.
func (s Service) AllResolved(ctx context.Context, poolID string, candidateIDs []string) (bool, error) {
	for _, candidateID := range candidateIDs {
		milestones, err := s.Milestones.ListMilestonesByCandidate(ctx, poolID, candidateID)
		if err != nil {
			return false, err
		}
		if len(milestones) == 0 {
			return false, nil
		}
		for _, milestone := range milestones {
			if !milestone.Resolved() {
				return false, nil
			}
		}
	}
	return true, nil
}

// Milestone fetches one milestone by ID.
func (s Service) Milestone(ctx context.Context, milestoneID string) (entities.Milestone, error) {
	milestone, found, err := s.Milestones.GetMilestone(ctx, strings.TrimSpace(milestoneID))
	if err != nil {
		return entities.Milestone{}, err
	}
	if !found {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	return milestone, nil
}

// CandidateSchedule lists a candidate's milestones in schedule order.
func (s Service) CandidateSchedule(ctx context.Context, poolID string, candidateID string) ([]entities.Milestone, error) {
	return s.Milestones.ListMilestonesByCandidate(ctx, poolID, candidateID)
}

// PoolMilestones lists every milestone configured in the pool.
func (s Service) PoolMilestones(ctx context.Context, poolID string) ([]entities.Milestone, error) {
	return s.Milestones.ListMilestonesByPool(ctx, poolID)
}

func (s Service) openMilestone(ctx context.Context, milestoneID string) (entities.Milestone, error) {
	milestone, found, err := s.Milestones.GetMilestone(ctx, strings.TrimSpace(milestoneID))
	if err != nil {
		return entities.Milestone{}, err
	}
	if !found {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	if milestone.Completed {
		return entities.Milestone{}, domainerrors.ErrAlreadyCompleted
	}
	if milestone.Abandoned {
		return entities.Milestone{}, domainerrors.ErrMilestoneAbandoned
	}
	if milestone.Disputed {
		return entities.Milestone{}, domainerrors.ErrMilestoneDisputed
	}
	return milestone, nil
}

func (s Service) now() time.Time {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	return now
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
