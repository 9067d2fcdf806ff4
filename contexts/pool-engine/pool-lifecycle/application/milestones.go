package application

import (
	"context"
	"strings"

	escrowapp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/application"
	escrowentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	votingentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
)

// ConfigureMilestonesInput is a winner's payout schedule submission. Caller
// must be the candidate's settlement recipient.
type ConfigureMilestonesInput struct {
	PoolID      string
	CandidateID string
	Caller      string
	Milestones  []escrowapp.MilestoneSpec
}

// ConfigureMilestones stores a winning candidate's schedule. The pool must be
// funded and the candidate must hold an allocation.
func (s *Service) ConfigureMilestones(ctx context.Context, in ConfigureMilestonesInput) ([]escrowentities.Milestone, error) {
	lock := s.poolLock(strings.TrimSpace(in.PoolID))
	lock.Lock()
	defer lock.Unlock()

	pool, candidate, _, err := s.winnerContext(ctx, in.PoolID, in.CandidateID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Caller) != candidate.Recipient {
		return nil, domainerrors.ErrRecipientMismatch
	}

	return s.Escrow.Configure(ctx, escrowapp.ConfigureInput{
		PoolID:      pool.PoolID,
		CandidateID: candidate.CandidateID,
		Milestones:  in.Milestones,
	})
}

// SubmitEvidence attaches evidence to a milestone on behalf of the winning
// recipient.
func (s *Service) SubmitEvidence(ctx context.Context, poolID string, milestoneID string, caller string, evidenceURI string) (escrowentities.Milestone, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	milestone, candidate, err := s.milestoneContext(ctx, poolID, milestoneID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}
	if strings.TrimSpace(caller) != candidate.Recipient {
		return escrowentities.Milestone{}, domainerrors.ErrRecipientMismatch
	}
	return s.Escrow.SubmitEvidence(ctx, milestone.MilestoneID, evidenceURI)
}

// ApproveMilestone records a contributor's sign-off. Only accounts holding a
// live contribution in the pool may approve.
func (s *Service) ApproveMilestone(ctx context.Context, poolID string, milestoneID string, approver string) (escrowentities.Milestone, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	milestone, candidate, err := s.milestoneContext(ctx, poolID, milestoneID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}
	balance, err := s.Ledger.Balance(ctx, milestone.PoolID, approver)
	if err != nil {
		return escrowentities.Milestone{}, err
	}
	if balance <= 0 {
		return escrowentities.Milestone{}, domainerrors.ErrNotAContributor
	}

	var updated escrowentities.Milestone
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var inserted bool
		var err error
		updated, inserted, err = s.Escrow.Approve(ctx, milestone.MilestoneID, approver)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return s.appendEvent(ctx, EventMilestoneApproved, milestone.PoolID, MilestoneApprovedEvent{
			PoolID:          milestone.PoolID,
			CandidateID:     candidate.CandidateID,
			MilestoneID:     updated.MilestoneID,
			Approver:        strings.TrimSpace(approver),
			ApprovalCount:   updated.ApprovalCount,
			ApprovalsNeeded: updated.ApprovalsNeeded,
		})
	}); err != nil {
		return escrowentities.Milestone{}, err
	}
	return updated, nil
}

// ReleaseOutcome reports one milestone payout and whether it closed the pool.
type ReleaseOutcome struct {
	Milestone  escrowentities.Milestone
	Amount     int64
	PoolClosed bool
}

// ReleaseMilestone pays the milestone tranche once its quorum is met, books
// the release on the ledger, and closes the pool when every winner's schedule
// is resolved. The settlement transfer runs after the state committed.
func (s *Service) ReleaseMilestone(ctx context.Context, poolID string, milestoneID string) (ReleaseOutcome, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()

	var outcome ReleaseOutcome
	var transfer payout
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		outcome, transfer, err = s.releaseLocked(ctx, poolID, milestoneID)
		return err
	})
	lock.Unlock()
	if err != nil {
		return ReleaseOutcome{}, err
	}
	if err := s.payOut(ctx, []payout{transfer}); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *Service) releaseLocked(ctx context.Context, poolID string, milestoneID string) (ReleaseOutcome, payout, error) {
	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return ReleaseOutcome{}, payout{}, err
	}
	if pool.Status != entities.PoolStatusFunded {
		return ReleaseOutcome{}, payout{}, domainerrors.ErrInvalidState
	}

	milestone, candidate, err := s.milestoneContext(ctx, poolID, milestoneID)
	if err != nil {
		return ReleaseOutcome{}, payout{}, err
	}
	result, err := s.Tallies.AllocationResult(ctx, pool.PoolID)
	if err != nil {
		return ReleaseOutcome{}, payout{}, err
	}
	allocation, won := result.WinnerAllocation(candidate.CandidateID)
	if !won {
		return ReleaseOutcome{}, payout{}, domainerrors.ErrNotAWinner
	}

	released, err := s.Escrow.Release(ctx, escrowapp.ReleaseInput{
		MilestoneID:      milestone.MilestoneID,
		AllocationAmount: allocation.Amount,
	})
	if err != nil {
		return ReleaseOutcome{}, payout{}, err
	}
	if err := s.Ledger.RecordRelease(ctx, pool.PoolID, candidate.Recipient, released.Amount, milestone.MilestoneID); err != nil {
		return ReleaseOutcome{}, payout{}, err
	}

	if err := s.appendEvent(ctx, EventMilestoneCompleted, pool.PoolID, MilestoneCompletedEvent{
		PoolID:         pool.PoolID,
		CandidateID:    candidate.CandidateID,
		MilestoneID:    released.Milestone.MilestoneID,
		ReleasedAmount: released.Amount,
	}); err != nil {
		return ReleaseOutcome{}, payout{}, err
	}
	if err := s.appendEvent(ctx, EventFundsDistributed, pool.PoolID, FundsDistributedEvent{
		PoolID:      pool.PoolID,
		CandidateID: candidate.CandidateID,
		Recipient:   candidate.Recipient,
		Amount:      released.Amount,
		ReferenceID: released.Milestone.MilestoneID,
	}); err != nil {
		return ReleaseOutcome{}, payout{}, err
	}

	closed := false
	if released.CandidateDone {
		closed, err = s.maybeClosePool(ctx, pool, result.Winners)
		if err != nil {
			return ReleaseOutcome{}, payout{}, err
		}
	}

	return ReleaseOutcome{
			Milestone:  released.Milestone,
			Amount:     released.Amount,
			PoolClosed: closed,
		}, payout{
			poolID:      pool.PoolID,
			to:          candidate.Recipient,
			assetID:     pool.FundingAssetID,
			amount:      released.Amount,
			referenceID: "release:" + released.Milestone.MilestoneID,
		}, nil
}

// DisputeMilestone freezes a milestone. Controller only.
func (s *Service) DisputeMilestone(ctx context.Context, token string, poolID string, milestoneID string) (escrowentities.Milestone, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}
	if err := s.verifyController(ctx, token, pool.Controller); err != nil {
		return escrowentities.Milestone{}, err
	}
	milestone, candidate, err := s.milestoneContext(ctx, poolID, milestoneID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}

	var disputed escrowentities.Milestone
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		disputed, err = s.Escrow.Dispute(ctx, milestone.MilestoneID)
		if err != nil {
			return err
		}
		return s.appendEvent(ctx, EventMilestoneDisputed, pool.PoolID, MilestoneFlaggedEvent{
			PoolID:      pool.PoolID,
			CandidateID: candidate.CandidateID,
			MilestoneID: disputed.MilestoneID,
		})
	}); err != nil {
		return escrowentities.Milestone{}, err
	}
	return disputed, nil
}

// AbandonMilestone retires a milestone without payout. Controller only. If it
// was the last unresolved milestone the pool closes.
func (s *Service) AbandonMilestone(ctx context.Context, token string, poolID string, milestoneID string) (escrowentities.Milestone, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}
	if err := s.verifyController(ctx, token, pool.Controller); err != nil {
		return escrowentities.Milestone{}, err
	}
	milestone, candidate, err := s.milestoneContext(ctx, poolID, milestoneID)
	if err != nil {
		return escrowentities.Milestone{}, err
	}

	var abandoned escrowentities.Milestone
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		abandoned, err = s.Escrow.Abandon(ctx, milestone.MilestoneID)
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, EventMilestoneAbandoned, pool.PoolID, MilestoneFlaggedEvent{
			PoolID:      pool.PoolID,
			CandidateID: candidate.CandidateID,
			MilestoneID: abandoned.MilestoneID,
		}); err != nil {
			return err
		}

		if pool.Status == entities.PoolStatusFunded {
			result, err := s.Tallies.AllocationResult(ctx, pool.PoolID)
			if err != nil {
				return err
			}
			if _, err := s.maybeClosePool(ctx, pool, result.Winners); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return escrowentities.Milestone{}, err
	}
	return abandoned, nil
}

// maybeClosePool moves a funded pool to closed when every winner's schedule
// is fully resolved.
func (s *Service) maybeClosePool(ctx context.Context, pool entities.Pool, winners []votingentities.Allocation) (bool, error) {
	winnerIDs := make([]string, 0, len(winners))
	for _, winner := range winners {
		winnerIDs = append(winnerIDs, winner.CandidateID)
	}
	done, err := s.Escrow.AllResolved(ctx, pool.PoolID, winnerIDs)
	if err != nil || !done {
		return false, err
	}

	now := s.now()
	pool.Status = entities.PoolStatusClosed
	pool.ClosedAt = &now
	pool.UpdatedAt = now
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return false, err
	}
	if err := s.appendEvent(ctx, EventPoolClosed, pool.PoolID, PoolClosedEvent{
		PoolID:   pool.PoolID,
		ClosedAt: now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) winnerContext(ctx context.Context, poolID string, candidateID string) (entities.Pool, entities.Candidate, int64, error) {
	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return entities.Pool{}, entities.Candidate{}, 0, err
	}
	if pool.Status != entities.PoolStatusFunded {
		return entities.Pool{}, entities.Candidate{}, 0, domainerrors.ErrInvalidState
	}
	candidate, found, err := s.Pools.GetCandidate(ctx, pool.PoolID, candidateID)
	if err != nil {
		return entities.Pool{}, entities.Candidate{}, 0, err
	}
	if !found {
		return entities.Pool{}, entities.Candidate{}, 0, domainerrors.ErrCandidateNotFound
	}
	result, err := s.Tallies.AllocationResult(ctx, pool.PoolID)
	if err != nil {
		return entities.Pool{}, entities.Candidate{}, 0, err
	}
	allocation, won := result.WinnerAllocation(candidate.CandidateID)
	if !won {
		return entities.Pool{}, entities.Candidate{}, 0, domainerrors.ErrNotAWinner
	}
	return pool, candidate, allocation.Amount, nil
}

// milestoneContext resolves a milestone and its candidate, rejecting IDs from
// other pools.
func (s *Service) milestoneContext(ctx context.Context, poolID string, milestoneID string) (escrowentities.Milestone, entities.Candidate, error) {
	milestone, err := s.Escrow.Milestone(ctx, milestoneID)
	if err != nil {
		return escrowentities.Milestone{}, entities.Candidate{}, err
	}
	if milestone.PoolID != strings.TrimSpace(poolID) {
		return escrowentities.Milestone{}, entities.Candidate{}, domainerrors.ErrInvalidPoolInput
	}
	candidate, found, err := s.Pools.GetCandidate(ctx, milestone.PoolID, milestone.CandidateID)
	if err != nil {
		return escrowentities.Milestone{}, entities.Candidate{}, err
	}
	if !found {
		return escrowentities.Milestone{}, entities.Candidate{}, domainerrors.ErrCandidateNotFound
	}
	return milestone, candidate, nil
}
