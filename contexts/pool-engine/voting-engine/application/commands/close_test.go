package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/adapters/memory"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
)

func castVote(t *testing.T, uc VoteUseCase, voter, candidate string, weight int64) {
	t.Helper()
	if _, err := uc.CastVote(context.Background(), CastVoteCommand{
		PoolID:      "pool-1",
		Voter:       voter,
		CandidateID: candidate,
		Weight:      weight,
	}); err != nil {
		t.Fatalf("cast vote %s -> %s failed: %v", voter, candidate, err)
	}
}

func TestCastVoteRules(t *testing.T) {
	store := memory.NewStore(nil)
	uc := VoteUseCase{Votes: store, Clock: store, IDGen: store}

	castVote(t, uc, "alice", "cand-a", 1_000)

	// Re-vote for the same candidate is a no-op.
	result, err := uc.CastVote(context.Background(), CastVoteCommand{
		PoolID: "pool-1", Voter: "alice", CandidateID: "cand-a", Weight: 1_000,
	})
	if err != nil || !result.NoOp {
		t.Fatalf("expected no-op re-vote, got %+v (%v)", result, err)
	}

	// Voting a second candidate without changeVote is rejected.
	if _, err := uc.CastVote(context.Background(), CastVoteCommand{
		PoolID: "pool-1", Voter: "alice", CandidateID: "cand-b", Weight: 1_000,
	}); !errors.Is(err, domainerrors.ErrVoteConflict) {
		t.Fatalf("expected vote conflict, got %v", err)
	}

	// Split voting lifts the restriction when the deployment allows it.
	if _, err := uc.CastVote(context.Background(), CastVoteCommand{
		PoolID: "pool-1", Voter: "alice", CandidateID: "cand-b", Weight: 1_000, AllowSplit: true,
	}); err != nil {
		t.Fatalf("split vote failed: %v", err)
	}

	if _, err := uc.CastVote(context.Background(), CastVoteCommand{
		PoolID: "pool-1", Voter: "bob", CandidateID: "cand-a", Weight: 0,
	}); !errors.Is(err, domainerrors.ErrNoVoteWeight) {
		t.Fatalf("expected no weight error, got %v", err)
	}
}

func TestChangeVoteKeepsWeight(t *testing.T) {
	store := memory.NewStore(nil)
	uc := VoteUseCase{Votes: store, Clock: store, IDGen: store}
	castVote(t, uc, "alice", "cand-a", 5_000)

	replacement, err := uc.ChangeVote(context.Background(), ChangeVoteCommand{
		PoolID: "pool-1", Voter: "alice", OldCandidateID: "cand-a", NewCandidateID: "cand-b",
	})
	if err != nil {
		t.Fatalf("change vote failed: %v", err)
	}
	if replacement.Weight != 5_000 || replacement.CandidateID != "cand-b" {
		t.Fatalf("unexpected replacement: %+v", replacement)
	}

	if _, err := uc.ChangeVote(context.Background(), ChangeVoteCommand{
		PoolID: "pool-1", Voter: "alice", OldCandidateID: "cand-a", NewCandidateID: "cand-c",
	}); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected not found for stale old candidate, got %v", err)
	}

	// Padding must not disguise a same-candidate change as a real one.
	if _, err := uc.ChangeVote(context.Background(), ChangeVoteCommand{
		PoolID: "pool-1", Voter: "alice", OldCandidateID: "cand-b", NewCandidateID: " cand-b ",
	}); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
		t.Fatalf("expected invalid input for padded same candidate, got %v", err)
	}
}

func TestComputeAllocationsRenormalizesOverWinners(t *testing.T) {
	store := memory.NewStore(nil)
	votes := VoteUseCase{Votes: store, Clock: store, IDGen: store}
	closeUC := CloseUseCase{Votes: store}

	castVote(t, votes, "alice", "cand-a", 57_000)
	castVote(t, votes, "bob", "cand-b", 38_000)

	result, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-1",
		Candidates:     []string{"cand-a", "cand-b"},
		AllocationBase: 95_000,
		MaxWinners:     10,
		ZeroVotes:      ZeroVoteFail,
		ClosedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(result.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(result.Winners))
	}
	a, b := result.Winners[0], result.Winners[1]
	if a.CandidateID != "cand-a" || a.PercentBps != 6_000 || a.Amount != 57_000 {
		t.Fatalf("unexpected first allocation: %+v", a)
	}
	if b.CandidateID != "cand-b" || b.PercentBps != 4_000 || b.Amount != 38_000 {
		t.Fatalf("unexpected second allocation: %+v", b)
	}
	if result.Residual != 0 {
		t.Fatalf("expected zero residual, got %d", result.Residual)
	}

	// The result is computed exactly once.
	if _, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-1",
		AllocationBase: 95_000,
		ZeroVotes:      ZeroVoteFail,
		ClosedAt:       time.Now().UTC(),
	}); !errors.Is(err, domainerrors.ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
}

func TestComputeAllocationsTracksResidual(t *testing.T) {
	store := memory.NewStore(nil)
	votes := VoteUseCase{Votes: store, Clock: store, IDGen: store}
	closeUC := CloseUseCase{Votes: store}

	castVote(t, votes, "a", "cand-a", 1)
	castVote(t, votes, "b", "cand-b", 1)
	castVote(t, votes, "c", "cand-c", 1)

	result, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-1",
		AllocationBase: 100,
		ZeroVotes:      ZeroVoteFail,
		ClosedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	var allocated int64
	for _, winner := range result.Winners {
		if winner.Amount != 33 {
			t.Fatalf("expected floored 33, got %d", winner.Amount)
		}
		allocated += winner.Amount
	}
	if result.Residual != 100-allocated || result.Residual != 1 {
		t.Fatalf("expected residual 1, got %d", result.Residual)
	}
}

func TestComputeAllocationsTieBreaksByFirstVote(t *testing.T) {
	store := memory.NewStore(nil)
	votes := VoteUseCase{Votes: store, Clock: store, IDGen: store}
	closeUC := CloseUseCase{Votes: store}

	store.SetNow(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	castVote(t, votes, "alice", "cand-late", 1_000)
	store.SetNow(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	castVote(t, votes, "bob", "cand-early", 1_000)

	result, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-1",
		AllocationBase: 2_000,
		MaxWinners:     1,
		ZeroVotes:      ZeroVoteFail,
		ClosedAt:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(result.Winners) != 1 || result.Winners[0].CandidateID != "cand-early" {
		t.Fatalf("expected earliest-vote tie-break winner, got %+v", result.Winners)
	}
}

func TestComputeAllocationsZeroVoteFallbacks(t *testing.T) {
	store := memory.NewStore(nil)
	closeUC := CloseUseCase{Votes: store}

	if _, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-fail",
		Candidates:     []string{"cand-a", "cand-b"},
		AllocationBase: 10_000,
		ZeroVotes:      ZeroVoteFail,
		ClosedAt:       time.Now().UTC(),
	}); !errors.Is(err, domainerrors.ErrNothingToAllocate) {
		t.Fatalf("expected nothing to allocate, got %v", err)
	}

	result, err := closeUC.ComputeAllocations(context.Background(), CloseVotingCommand{
		PoolID:         "pool-split",
		Candidates:     []string{"cand-b", "cand-a"},
		AllocationBase: 10_000,
		ZeroVotes:      ZeroVoteEqualSplit,
		ClosedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("equal split close failed: %v", err)
	}
	if len(result.Winners) != 2 {
		t.Fatalf("expected 2 equal winners, got %d", len(result.Winners))
	}
	for _, winner := range result.Winners {
		if winner.Amount != 5_000 || winner.PercentBps != 5_000 {
			t.Fatalf("expected equal split, got %+v", winner)
		}
	}
}
