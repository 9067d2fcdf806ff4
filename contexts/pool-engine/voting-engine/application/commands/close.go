package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	application "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/ports"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// ZeroVoteFallback selects the close behavior when a pool meets its funding
// goal but no votes were cast.
type ZeroVoteFallback string

const (
	// ZeroVoteEqualSplit treats every registered candidate as a winner with
	// equal weight.
	ZeroVoteEqualSplit ZeroVoteFallback = "equal_split"
	// ZeroVoteFail refuses to allocate; the controller fails the pool.
	ZeroVoteFail ZeroVoteFallback = "fail"
)

// CloseVotingCommand carries everything the allocation algorithm needs; the
// lifecycle controller resolves the base amount and candidate set.
type CloseVotingCommand struct {
	PoolID         string
	Candidates     []string
	AllocationBase int64
	MaxWinners     int
	ZeroVotes      ZeroVoteFallback
	ClosedAt       time.Time
}

// CloseUseCase computes the one-shot allocation result at voting close.
type CloseUseCase struct {
	Votes  ports.VoteRepository
	Logger *slog.Logger
}

// ComputeAllocations aggregates live vote weight per candidate, ranks
// deterministically (weight desc, earliest first vote, candidate ID), picks
// up to MaxWinners winners, and assigns floor-rounded amounts renormalized
// over the winners' weight. The rounding residual is recorded on the result.
// It fails with ErrAlreadyClosed on a second call and ErrNothingToAllocate
// when zero votes were cast under the fail fallback.
func (uc CloseUseCase) ComputeAllocations(ctx context.Context, cmd CloseVotingCommand) (entities.AllocationResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.PoolID) == "" || cmd.AllocationBase < 0 {
		return entities.AllocationResult{}, domainerrors.ErrInvalidVoteInput
	}
	if _, exists, err := uc.Votes.GetAllocationResult(ctx, cmd.PoolID); err != nil {
		return entities.AllocationResult{}, err
	} else if exists {
		return entities.AllocationResult{}, domainerrors.ErrAlreadyClosed
	}

	votes, err := uc.Votes.ListVotesByPool(ctx, cmd.PoolID)
	if err != nil {
		return entities.AllocationResult{}, err
	}

	tallies := TallyVotes(votes)
	if len(tallies) == 0 {
		switch cmd.ZeroVotes {
		case ZeroVoteEqualSplit:
			tallies = equalSplitTallies(cmd.Candidates, cmd.ClosedAt)
		default:
			return entities.AllocationResult{}, domainerrors.ErrNothingToAllocate
		}
	}
	if len(tallies) == 0 {
		return entities.AllocationResult{}, domainerrors.ErrNothingToAllocate
	}

	winners := tallies
	if cmd.MaxWinners > 0 && len(winners) > cmd.MaxWinners {
		winners = winners[:cmd.MaxWinners]
	}

	var totalVoted, winnersWeight int64
	for _, tally := range tallies {
		totalVoted, err = money.Add(totalVoted, tally.Weight)
		if err != nil {
			return entities.AllocationResult{}, err
		}
	}
	for _, tally := range winners {
		winnersWeight, err = money.Add(winnersWeight, tally.Weight)
		if err != nil {
			return entities.AllocationResult{}, err
		}
	}

	allocations := make([]entities.Allocation, 0, len(winners))
	var allocated int64
	for rank, tally := range winners {
		amount, err := money.MulDiv(tally.Weight, cmd.AllocationBase, winnersWeight)
		if err != nil {
			return entities.AllocationResult{}, err
		}
		percentBps, err := money.MulDiv(tally.Weight, money.BpsDenominator, winnersWeight)
		if err != nil {
			return entities.AllocationResult{}, err
		}
		allocated, err = money.Add(allocated, amount)
		if err != nil {
			return entities.AllocationResult{}, err
		}
		allocations = append(allocations, entities.Allocation{
			CandidateID: tally.CandidateID,
			VoteWeight:  tally.Weight,
			PercentBps:  percentBps,
			Amount:      amount,
			Rank:        rank + 1,
		})
	}

	residual, err := money.Sub(cmd.AllocationBase, allocated)
	if err != nil {
		return entities.AllocationResult{}, err
	}
	result := entities.AllocationResult{
		PoolID:           strings.TrimSpace(cmd.PoolID),
		TotalVotedWeight: totalVoted,
		AllocationBase:   cmd.AllocationBase,
		Residual:         residual,
		Winners:          allocations,
		ClosedAt:         cmd.ClosedAt.UTC(),
	}
	if err := uc.Votes.SaveAllocationResult(ctx, result); err != nil {
		return entities.AllocationResult{}, err
	}

	logger.Info("allocations computed",
		"event", "voting_allocations_computed",
		"module", "pool-engine/voting-engine",
		"layer", "application",
		"pool_id", result.PoolID,
		"winner_count", len(result.Winners),
		"allocation_base", result.AllocationBase,
		"residual", result.Residual,
	)
	return result, nil
}

// TallyVotes aggregates weight per candidate and orders candidates by
// aggregate weight descending, ties broken by earliest first-vote timestamp
// and then candidate ID, so the ranking never depends on map iteration
// order.
func TallyVotes(votes []entities.Vote) []entities.CandidateTally {
	byCandidate := make(map[string]entities.CandidateTally)
	for _, vote := range votes {
		tally := byCandidate[vote.CandidateID]
		tally.CandidateID = vote.CandidateID
		tally.VoteCount++
		tally.Weight += vote.Weight
		if tally.FirstVoteAt.IsZero() || vote.CastAt.Before(tally.FirstVoteAt) {
			tally.FirstVoteAt = vote.CastAt
		}
		byCandidate[vote.CandidateID] = tally
	}

	tallies := make([]entities.CandidateTally, 0, len(byCandidate))
	for _, tally := range byCandidate {
		tallies = append(tallies, tally)
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Weight != tallies[j].Weight {
			return tallies[i].Weight > tallies[j].Weight
		}
		if !tallies[i].FirstVoteAt.Equal(tallies[j].FirstVoteAt) {
			return tallies[i].FirstVoteAt.Before(tallies[j].FirstVoteAt)
		}
		return tallies[i].CandidateID < tallies[j].CandidateID
	})
	return tallies
}

func equalSplitTallies(candidates []string, at time.Time) []entities.CandidateTally {
	ordered := make([]string, 0, len(candidates))
	for _, candidateID := range candidates {
		if strings.TrimSpace(candidateID) != "" {
			ordered = append(ordered, strings.TrimSpace(candidateID))
		}
	}
	sort.Strings(ordered)
	tallies := make([]entities.CandidateTally, 0, len(ordered))
	for _, candidateID := range ordered {
		tallies = append(tallies, entities.CandidateTally{
			CandidateID: candidateID,
			Weight:      1,
			FirstVoteAt: at.UTC(),
		})
	}
	return tallies
}
