package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/ports"
)

// CastVoteCommand is the write-model input for casting a vote. Weight and
// the split-voting flag are resolved by the lifecycle controller.
type CastVoteCommand struct {
	PoolID      string
	Voter       string
	CandidateID string
	Weight      int64
	AllowSplit  bool
}

// CastVoteResult marks a repeated vote for the same candidate as a no-op so
// the controller can skip event emission.
type CastVoteResult struct {
	Vote entities.Vote
	NoOp bool
}

// ChangeVoteCommand atomically moves a voter's vote between candidates,
// keeping the originally captured weight.
type ChangeVoteCommand struct {
	PoolID         string
	Voter          string
	OldCandidateID string
	NewCandidateID string
}

// VoteUseCase enforces the one-vote-per-candidate rule and the explicit
// change-vote contract: voting for a second candidate while holding a vote
// is rejected unless split voting is enabled for the deployment.
type VoteUseCase struct {
	Votes  ports.VoteRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.PoolID) == "" ||
		strings.TrimSpace(cmd.Voter) == "" ||
		strings.TrimSpace(cmd.CandidateID) == "" {
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}
	if cmd.Weight <= 0 {
		return CastVoteResult{}, domainerrors.ErrNoVoteWeight
	}

	existing, err := uc.Votes.ListVotesByVoter(ctx, cmd.PoolID, cmd.Voter)
	if err != nil {
		return CastVoteResult{}, err
	}
	for _, vote := range existing {
		if vote.CandidateID == strings.TrimSpace(cmd.CandidateID) {
			// Re-voting for the same candidate is a no-op.
			return CastVoteResult{Vote: vote, NoOp: true}, nil
		}
	}
	if len(existing) > 0 && !cmd.AllowSplit {
		return CastVoteResult{}, domainerrors.ErrVoteConflict
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	vote := entities.Vote{
		VoteID:      voteID,
		PoolID:      strings.TrimSpace(cmd.PoolID),
		Voter:       strings.TrimSpace(cmd.Voter),
		CandidateID: strings.TrimSpace(cmd.CandidateID),
		Weight:      cmd.Weight,
		CastAt:      uc.now(),
	}
	if err := uc.Votes.SaveVote(ctx, vote); err != nil {
		return CastVoteResult{}, err
	}

	logger.Info("vote cast",
		"event", "voting_vote_cast",
		"module", "pool-engine/voting-engine",
		"layer", "application",
		"pool_id", vote.PoolID,
		"voter", vote.Voter,
		"candidate_id", vote.CandidateID,
		"weight", vote.Weight,
	)
	return CastVoteResult{Vote: vote}, nil
}

func (uc VoteUseCase) ChangeVote(ctx context.Context, cmd ChangeVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	if strings.TrimSpace(cmd.PoolID) == "" ||
		strings.TrimSpace(cmd.Voter) == "" ||
		strings.TrimSpace(cmd.OldCandidateID) == "" ||
		strings.TrimSpace(cmd.NewCandidateID) == "" ||
		strings.TrimSpace(cmd.OldCandidateID) == strings.TrimSpace(cmd.NewCandidateID) {
		return entities.Vote{}, domainerrors.ErrInvalidVoteInput
	}

	old, found, err := uc.Votes.GetVoteByVoterCandidate(ctx, cmd.PoolID, cmd.Voter, cmd.OldCandidateID)
	if err != nil {
		return entities.Vote{}, err
	}
	if !found {
		return entities.Vote{}, domainerrors.ErrVoteNotFound
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Vote{}, err
	}
	replacement := entities.Vote{
		VoteID:      voteID,
		PoolID:      old.PoolID,
		Voter:       old.Voter,
		CandidateID: strings.TrimSpace(cmd.NewCandidateID),
		Weight:      old.Weight,
		CastAt:      uc.now(),
	}
	if err := uc.Votes.ReplaceVote(ctx, old.VoteID, replacement); err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote changed",
		"event", "voting_vote_changed",
		"module", "pool-engine/voting-engine",
		"layer", "application",
		"pool_id", replacement.PoolID,
		"voter", replacement.Voter,
		"old_candidate_id", strings.TrimSpace(cmd.OldCandidateID),
		"new_candidate_id", replacement.CandidateID,
		"weight", replacement.Weight,
	)
	return replacement, nil
}

// ClearVotes removes every vote the voter holds in the pool. Called by the
// lifecycle controller inside the same pool critical section as the early
// withdrawal it cascades from.
func (uc VoteUseCase) ClearVotes(ctx context.Context, poolID string, voter string) ([]entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	cleared, err := uc.Votes.ClearVotesByVoter(ctx, poolID, voter)
	if err != nil {
		return nil, err
	}
	if len(cleared) > 0 {
		logger.Info("votes cleared",
			"event", "voting_votes_cleared",
			"module", "pool-engine/voting-engine",
			"layer", "application",
			"pool_id", strings.TrimSpace(poolID),
			"voter", strings.TrimSpace(voter),
			"cleared_count", len(cleared),
		)
	}
	return cleared, nil
}

func (uc VoteUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
