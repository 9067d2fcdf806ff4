package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	ledgerservice "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service"
	ledgermemory "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/adapters/memory"
	milestoneescrow "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow"
	escrowmemory "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/adapters/memory"
	poollifecycle "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle"
	lifecyclememory "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	votingengine "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine"
	votingmemory "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/adapters/memory"
	votingentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
)

var errStorageDown = errors.New("storage unavailable")

// faultyVoteRepo lets a test knock out vote clearing mid-sequence.
type faultyVoteRepo struct {
	*votingmemory.Store
	clearErr error
}

func (r *faultyVoteRepo) ClearVotesByVoter(ctx context.Context, poolID string, voter string) ([]votingentities.Vote, error) {
	if r.clearErr != nil {
		return nil, r.clearErr
	}
	return r.Store.ClearVotesByVoter(ctx, poolID, voter)
}

// faultyPoolRepo fails SavePool after allowing a number of saves through,
// so a test can hit a specific write inside a multi-step sequence.
type faultyPoolRepo struct {
	*lifecyclememory.Store
	saveErr    error
	allowSaves int
	statuses   []entities.PoolStatus
}

func (r *faultyPoolRepo) SavePool(ctx context.Context, pool entities.Pool) error {
	if r.saveErr != nil {
		if r.allowSaves <= 0 {
			return r.saveErr
		}
		r.allowSaves--
	}
	r.statuses = append(r.statuses, pool.Status)
	return r.Store.SavePool(ctx, pool)
}

// newFaultyEngine wires an in-memory engine whose pool and vote repositories
// can be made to fail on demand. The unit of work snapshots the underlying
// stores, so every injected failure must leave no partial state behind.
func newFaultyEngine(t *testing.T, fundingGoal int64) (poollifecycle.Module, entities.Pool, *faultyPoolRepo, *faultyVoteRepo) {
	t.Helper()
	ctx := context.Background()

	poolStore := lifecyclememory.NewStore(nil)
	ledgerStore := ledgermemory.NewStore(nil)
	voteStore := votingmemory.NewStore(nil)
	escrowStore := escrowmemory.NewStore(nil)
	pools := &faultyPoolRepo{Store: poolStore}
	votes := &faultyVoteRepo{Store: voteStore}

	module := poollifecycle.NewModule(poollifecycle.Dependencies{
		Pools:  pools,
		Outbox: poolStore,
		Ledger: ledgerservice.NewModule(ledgerservice.Dependencies{
			Ledger: ledgerStore,
			Clock:  poolStore,
			IDGen:  poolStore,
		}),
		Voting: votingengine.NewModule(votingengine.Dependencies{
			Votes: votes,
			Clock: poolStore,
			IDGen: poolStore,
		}),
		Escrow: milestoneescrow.NewModule(milestoneescrow.Dependencies{
			Milestones: escrowStore,
			Clock:      poolStore,
			IDGen:      poolStore,
		}),
		Policies: domainservices.DefaultPolicySet(),
		UoW:      lifecyclememory.NewUnitOfWork(poolStore, ledgerStore, voteStore, escrowStore),
		Clock:    poolStore,
		IDGen:    poolStore,
	})
	module.Store = poolStore
	module.Store.SetNow(baseTime)

	pool, err := module.Service.CreatePool(ctx, application.CreatePoolInput{
		Name:            "Open Hardware Fund",
		Controller:      "controller-1",
		FundingAssetID:  "usdc",
		FundingGoal:     fundingGoal,
		MinContribution: 100,
		FeeBasisPoints:  500,
		FeeRecipient:    "platform-treasury",
		VotingDeadline:  baseTime.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create pool failed: %v", err)
	}
	if _, err := module.Service.RegisterCandidate(ctx, application.RegisterCandidateInput{
		PoolID:      pool.PoolID,
		CandidateID: "cand-1",
		Name:        "Mesh Router",
		Recipient:   "recipient-1",
	}); err != nil {
		t.Fatalf("register candidate failed: %v", err)
	}
	pool, err = module.Service.ActivatePool(ctx, "", pool.PoolID)
	if err != nil {
		t.Fatalf("activate pool failed: %v", err)
	}

	if _, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      pool.PoolID,
		Contributor: "contributor-1",
		AssetID:     "usdc",
		Amount:      60000,
	}); err != nil {
		t.Fatalf("contribution failed: %v", err)
	}
	if _, err := module.Service.Vote(ctx, pool.PoolID, "contributor-1", "cand-1"); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	return module, pool, pools, votes
}

func TestEarlyWithdrawRollsBackWhenVoteClearFails(t *testing.T) {
	ctx := context.Background()
	module, pool, _, votes := newFaultyEngine(t, 90000)

	votes.clearErr = errStorageDown
	if _, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1"); !errors.Is(err, errStorageDown) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	// The ledger withdrawal that preceded the failed vote clear must be gone.
	balance, err := module.Service.ContributorBalance(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 57000 {
		t.Fatalf("expected balance 57000 after rollback, got %d", balance)
	}
	current, err := module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if current.TotalContributions != 57000 {
		t.Fatalf("expected pool total 57000, got %d", current.TotalContributions)
	}
	standings, err := module.Service.Standings(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	if len(standings) != 1 || standings[0].Weight != 57000 {
		t.Fatalf("expected intact vote weight 57000, got %+v", standings)
	}
	for _, message := range module.Store.Messages() {
		if message.EventType == application.EventEarlyWithdrawal {
			t.Fatalf("withdrawal event must not survive the rollback")
		}
	}

	// The same withdrawal succeeds once the repository recovers.
	votes.clearErr = nil
	receipt, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("early withdraw failed after recovery: %v", err)
	}
	if receipt.PenaltyAmount != 5700 || receipt.RefundAmount != 51300 {
		t.Fatalf("unexpected receipt after recovery: %+v", receipt)
	}
	balance, err = module.Service.ContributorBalance(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance after withdrawal, got %d", balance)
	}
}

func TestCloseVotingRollsBackWhenPoolSaveFails(t *testing.T) {
	ctx := context.Background()
	module, pool, pools, votes := newFaultyEngine(t, 50000)
	module.Store.SetNow(baseTime.Add(25 * time.Hour))

	// Let the voting-ended save through and fail the funded save, after the
	// allocation result has been written.
	pools.saveErr = errStorageDown
	pools.allowSaves = 1
	if _, err := module.Service.CloseVoting(ctx, pool.PoolID); !errors.Is(err, errStorageDown) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	current, err := module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if current.Status != entities.PoolStatusActive {
		t.Fatalf("expected pool back in active after rollback, got %s", current.Status)
	}
	// The allocation write must roll back too, or the retry would be
	// rejected as already closed.
	if _, found, err := votes.GetAllocationResult(ctx, pool.PoolID); err != nil {
		t.Fatalf("allocation lookup failed: %v", err)
	} else if found {
		t.Fatalf("allocation result must not survive the rollback")
	}

	pools.saveErr = nil
	pools.statuses = nil
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed after recovery: %v", err)
	}
	if closed.Pool.Status != entities.PoolStatusFunded {
		t.Fatalf("expected funded pool, got %s", closed.Pool.Status)
	}
	if len(pools.statuses) != 2 ||
		pools.statuses[0] != entities.PoolStatusVotingEnded ||
		pools.statuses[1] != entities.PoolStatusFunded {
		t.Fatalf("expected voting-ended then funded saves, got %v", pools.statuses)
	}
	if closed.Result == nil || len(closed.Result.Winners) != 1 {
		t.Fatalf("expected single winner allocation, got %+v", closed.Result)
	}
	if closed.Result.Winners[0].Amount != 57000 {
		t.Fatalf("expected full 57000 allocation, got %d", closed.Result.Winners[0].Amount)
	}
}
