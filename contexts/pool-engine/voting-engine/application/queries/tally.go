package queries

import (
	"context"
	"strings"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/commands"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/ports"
)

type TallyUseCase struct {
	Votes ports.VoteRepository
}

// Tallies returns the live ranked standings for a pool.
func (uc TallyUseCase) Tallies(ctx context.Context, poolID string) ([]entities.CandidateTally, error) {
	votes, err := uc.Votes.ListVotesByPool(ctx, strings.TrimSpace(poolID))
	if err != nil {
		return nil, err
	}
	return commands.TallyVotes(votes), nil
}

// VoterVotes lists the votes a voter currently holds in a pool.
func (uc TallyUseCase) VoterVotes(ctx context.Context, poolID string, voter string) ([]entities.Vote, error) {
	return uc.Votes.ListVotesByVoter(ctx, strings.TrimSpace(poolID), strings.TrimSpace(voter))
}

// AllocationResult returns the immutable close result for a pool.
func (uc TallyUseCase) AllocationResult(ctx context.Context, poolID string) (entities.AllocationResult, error) {
	result, found, err := uc.Votes.GetAllocationResult(ctx, strings.TrimSpace(poolID))
	if err != nil {
		return entities.AllocationResult{}, err
	}
	if !found {
		return entities.AllocationResult{}, domainerrors.ErrVoteNotFound
	}
	return result, nil
}
