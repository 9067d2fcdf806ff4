package ports

import (
	"context"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
)

type VoteRepository interface {
	SaveVote(ctx context.Context, vote entities.Vote) error
	GetVoteByVoterCandidate(ctx context.Context, poolID string, voter string, candidateID string) (entities.Vote, bool, error)
	ListVotesByVoter(ctx context.Context, poolID string, voter string) ([]entities.Vote, error)
	ListVotesByPool(ctx context.Context, poolID string) ([]entities.Vote, error)
	// ReplaceVote atomically removes the old vote and inserts the new one,
	// preserving changeVote's all-or-nothing contract.
	ReplaceVote(ctx context.Context, oldVoteID string, replacement entities.Vote) error
	// ClearVotesByVoter removes every vote the voter holds in the pool and
	// returns the removed votes (early-withdraw cascade).
	ClearVotesByVoter(ctx context.Context, poolID string, voter string) ([]entities.Vote, error)

	SaveAllocationResult(ctx context.Context, result entities.AllocationResult) error
	GetAllocationResult(ctx context.Context, poolID string) (entities.AllocationResult, bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
