package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	votingcommands "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/commands"
	votingentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	votingerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// Vote casts the voter's full live contribution weight for a registered
// candidate. Re-voting the same candidate is a no-op; a second candidate is
// rejected unless the deployment allows split voting.
func (s *Service) Vote(ctx context.Context, poolID string, voter string, candidateID string) (votingentities.Vote, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.votablePool(ctx, poolID)
	if err != nil {
		return votingentities.Vote{}, err
	}
	if _, found, err := s.Pools.GetCandidate(ctx, pool.PoolID, candidateID); err != nil {
		return votingentities.Vote{}, err
	} else if !found {
		return votingentities.Vote{}, domainerrors.ErrCandidateNotFound
	}

	weight, err := s.Ledger.Balance(ctx, pool.PoolID, voter)
	if err != nil {
		return votingentities.Vote{}, err
	}

	var result votingcommands.CastVoteResult
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.Votes.CastVote(ctx, votingcommands.CastVoteCommand{
			PoolID:      pool.PoolID,
			Voter:       voter,
			CandidateID: candidateID,
			Weight:      weight,
			AllowSplit:  s.Policies.Voting.AllowSplit,
		})
		if err != nil {
			return err
		}
		if result.NoOp {
			return nil
		}
		return s.appendEvent(ctx, EventVoteCast, pool.PoolID, VoteCastEvent{
			PoolID:      pool.PoolID,
			Voter:       result.Vote.Voter,
			CandidateID: result.Vote.CandidateID,
			Weight:      result.Vote.Weight,
		})
	}); err != nil {
		return votingentities.Vote{}, err
	}
	return result.Vote, nil
}

// ChangeVote moves the voter's existing vote to a different registered
// candidate, keeping the weight captured at the original cast.
func (s *Service) ChangeVote(ctx context.Context, poolID string, voter string, oldCandidateID string, newCandidateID string) (votingentities.Vote, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.votablePool(ctx, poolID)
	if err != nil {
		return votingentities.Vote{}, err
	}
	if _, found, err := s.Pools.GetCandidate(ctx, pool.PoolID, newCandidateID); err != nil {
		return votingentities.Vote{}, err
	} else if !found {
		return votingentities.Vote{}, domainerrors.ErrCandidateNotFound
	}

	var vote votingentities.Vote
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		vote, err = s.Votes.ChangeVote(ctx, votingcommands.ChangeVoteCommand{
			PoolID:         pool.PoolID,
			Voter:          voter,
			OldCandidateID: oldCandidateID,
			NewCandidateID: newCandidateID,
		})
		if err != nil {
			return err
		}
		return s.appendEvent(ctx, EventVoteChanged, pool.PoolID, VoteChangedEvent{
			PoolID:         pool.PoolID,
			Voter:          vote.Voter,
			OldCandidateID: strings.TrimSpace(oldCandidateID),
			NewCandidateID: vote.CandidateID,
			Weight:         vote.Weight,
		})
	}); err != nil {
		return votingentities.Vote{}, err
	}
	return vote, nil
}

// CloseResult is the outcome of closing a pool's voting window.
type CloseResult struct {
	Pool   entities.Pool
	Result *votingentities.AllocationResult
}

// CloseVoting ends the voting window once the deadline passed. A pool that
// met its goal gets its one-shot allocation computed and moves to funded; a
// pool that missed the goal, or had no votes under the fail fallback, moves
// to failed and its contributors become refund-eligible. Closing is
// permissionless: anyone (including the deadline worker) may crank it.
func (s *Service) CloseVoting(ctx context.Context, poolID string) (CloseResult, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()
	defer lock.Unlock()

	var out CloseResult
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.closeVotingLocked(ctx, poolID)
		return err
	}); err != nil {
		return CloseResult{}, err
	}
	return out, nil
}

func (s *Service) closeVotingLocked(ctx context.Context, poolID string) (CloseResult, error) {
	logger := resolveLogger(s.Logger)

	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return CloseResult{}, err
	}
	if pool.Status != entities.PoolStatusActive {
		return CloseResult{}, domainerrors.ErrInvalidState
	}
	now := s.now()
	if now.Before(pool.VotingDeadline) {
		return CloseResult{}, domainerrors.ErrDeadlineNotReached
	}

	// The window is over either way; record the pass-through state before the
	// outcome is decided.
	pool.Status = entities.PoolStatusVotingEnded
	pool.UpdatedAt = now
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return CloseResult{}, err
	}

	total, err := s.Ledger.Total(ctx, pool.PoolID)
	if err != nil {
		return CloseResult{}, err
	}
	if total < pool.FundingGoal {
		pool, err = s.failPool(ctx, pool, total, "funding goal not met", now)
		if err != nil {
			return CloseResult{}, err
		}
		return CloseResult{Pool: pool}, nil
	}

	base := total
	if s.Policies.Penalty.Destination == domainservices.PenaltyToPool {
		base, err = money.Add(base, pool.RetainedPenalties)
		if err != nil {
			return CloseResult{}, err
		}
	}

	candidates, err := s.Pools.ListCandidates(ctx, pool.PoolID)
	if err != nil {
		return CloseResult{}, err
	}
	candidateIDs := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidateIDs = append(candidateIDs, candidate.CandidateID)
	}

	fallback := votingcommands.ZeroVoteEqualSplit
	if s.Policies.Voting.ZeroVoteFallback == domainservices.ZeroVoteFail {
		fallback = votingcommands.ZeroVoteFail
	}
	result, err := s.Close.ComputeAllocations(ctx, votingcommands.CloseVotingCommand{
		PoolID:         pool.PoolID,
		Candidates:     candidateIDs,
		AllocationBase: base,
		MaxWinners:     pool.MaxWinners,
		ZeroVotes:      fallback,
		ClosedAt:       now,
	})
	if err != nil {
		if errors.Is(err, votingerrors.ErrNothingToAllocate) {
			pool, err = s.failPool(ctx, pool, total, "no votes cast", now)
			if err != nil {
				return CloseResult{}, err
			}
			return CloseResult{Pool: pool}, nil
		}
		return CloseResult{}, err
	}

	pool.Status = entities.PoolStatusFunded
	pool.UpdatedAt = now
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return CloseResult{}, err
	}

	winners := make([]WinnerShare, 0, len(result.Winners))
	for _, winner := range result.Winners {
		winners = append(winners, WinnerShare{
			CandidateID: winner.CandidateID,
			Rank:        winner.Rank,
			VoteWeight:  winner.VoteWeight,
			PercentBps:  winner.PercentBps,
			Amount:      winner.Amount,
		})
	}
	if err := s.appendEvent(ctx, EventVotingEnded, pool.PoolID, VotingEndedEvent{
		PoolID:           pool.PoolID,
		TotalVotedWeight: result.TotalVotedWeight,
		AllocationBase:   result.AllocationBase,
		Residual:         result.Residual,
		Winners:          winners,
		ClosedAt:         result.ClosedAt,
	}); err != nil {
		return CloseResult{}, err
	}

	logger.Info("voting closed",
		"event", "lifecycle_voting_closed",
		"module", "pool-engine/pool-lifecycle",
		"layer", "application",
		"pool_id", pool.PoolID,
		"allocation_base", result.AllocationBase,
		"winner_count", len(result.Winners),
		"residual", result.Residual,
	)
	return CloseResult{Pool: pool, Result: &result}, nil
}

func (s *Service) failPool(ctx context.Context, pool entities.Pool, totalRaised int64, reason string, now time.Time) (entities.Pool, error) {
	logger := resolveLogger(s.Logger)
	pool.Status = entities.PoolStatusFailed
	pool.ClosedAt = &now
	pool.UpdatedAt = now
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return entities.Pool{}, err
	}
	if err := s.appendEvent(ctx, EventPoolFailed, pool.PoolID, PoolFailedEvent{
		PoolID:      pool.PoolID,
		FundingGoal: pool.FundingGoal,
		TotalRaised: totalRaised,
		Reason:      reason,
	}); err != nil {
		return entities.Pool{}, err
	}

	logger.Info("pool failed",
		"event", "lifecycle_pool_failed",
		"module", "pool-engine/pool-lifecycle",
		"layer", "application",
		"pool_id", pool.PoolID,
		"funding_goal", pool.FundingGoal,
		"total_raised", totalRaised,
		"reason", reason,
	)
	return pool, nil
}

func (s *Service) votablePool(ctx context.Context, poolID string) (entities.Pool, error) {
	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return entities.Pool{}, err
	}
	if pool.Status != entities.PoolStatusActive || !s.now().Before(pool.VotingDeadline) {
		return entities.Pool{}, domainerrors.ErrInvalidState
	}
	return pool, nil
}
