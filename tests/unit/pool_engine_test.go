package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	ledgererrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/errors"
	milestoneescrow "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/application"
	escrowerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"
	poollifecycle "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
)

var baseTime = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// newActivePool builds an in-memory engine with one active pool holding two
// candidates. The store clock is pinned to baseTime and the voting deadline
// sits 24 hours out.
func newActivePool(t *testing.T, policies domainservices.PolicySet) (poollifecycle.Module, entities.Pool) {
	t.Helper()
	ctx := context.Background()
	module := poollifecycle.NewInMemoryModule(policies, nil)
	module.Store.SetNow(baseTime)

	pool, err := module.Service.CreatePool(ctx, application.CreatePoolInput{
		Name:            "Open Hardware Fund",
		Controller:      "controller-1",
		FundingAssetID:  "usdc",
		FundingGoal:     90000,
		MinContribution: 100,
		FeeBasisPoints:  500,
		FeeRecipient:    "platform-treasury",
		VotingDeadline:  baseTime.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create pool failed: %v", err)
	}

	for _, candidate := range []struct{ id, name, recipient string }{
		{"cand-1", "Mesh Router", "recipient-1"},
		{"cand-2", "Solar Logger", "recipient-2"},
	} {
		if _, err := module.Service.RegisterCandidate(ctx, application.RegisterCandidateInput{
			PoolID:      pool.PoolID,
			CandidateID: candidate.id,
			Name:        candidate.name,
			Recipient:   candidate.recipient,
		}); err != nil {
			t.Fatalf("register candidate %s failed: %v", candidate.id, err)
		}
	}

	pool, err = module.Service.ActivatePool(ctx, "", pool.PoolID)
	if err != nil {
		t.Fatalf("activate pool failed: %v", err)
	}
	return module, pool
}

// fundPool pushes the pool past its goal with two fee-split contributions
// and casts one vote per contributor.
func fundPool(t *testing.T, module poollifecycle.Module, poolID string) {
	t.Helper()
	ctx := context.Background()

	first, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      poolID,
		Contributor: "contributor-1",
		AssetID:     "usdc",
		Amount:      60000,
	})
	if err != nil {
		t.Fatalf("first contribution failed: %v", err)
	}
	if first.PlatformFee != 3000 || first.NetAmount != 57000 {
		t.Fatalf("unexpected fee split: fee=%d net=%d", first.PlatformFee, first.NetAmount)
	}

	second, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      poolID,
		Contributor: "contributor-2",
		AssetID:     "usdc",
		Amount:      40000,
	})
	if err != nil {
		t.Fatalf("second contribution failed: %v", err)
	}
	if second.PlatformFee != 2000 || second.NetAmount != 38000 {
		t.Fatalf("unexpected fee split: fee=%d net=%d", second.PlatformFee, second.NetAmount)
	}

	if _, err := module.Service.Vote(ctx, poolID, "contributor-1", "cand-1"); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if _, err := module.Service.Vote(ctx, poolID, "contributor-2", "cand-2"); err != nil {
		t.Fatalf("second vote failed: %v", err)
	}
}

func TestPoolLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)

	standings, err := module.Service.Standings(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	if len(standings) != 2 {
		t.Fatalf("expected 2 tallies, got %d", len(standings))
	}
	if standings[0].CandidateID != "cand-1" || standings[0].Weight != 57000 {
		t.Fatalf("unexpected leader: %+v", standings[0])
	}

	if _, err := module.Service.CloseVoting(ctx, pool.PoolID); !errors.Is(err, domainerrors.ErrDeadlineNotReached) {
		t.Fatalf("expected deadline guard, got %v", err)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if closed.Pool.Status != entities.PoolStatusFunded {
		t.Fatalf("expected funded pool, got %s", closed.Pool.Status)
	}
	if closed.Result == nil {
		t.Fatalf("expected allocation result")
	}
	if closed.Result.AllocationBase != 95000 || closed.Result.Residual != 0 {
		t.Fatalf("unexpected base/residual: %d/%d", closed.Result.AllocationBase, closed.Result.Residual)
	}
	if len(closed.Result.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %d", len(closed.Result.Winners))
	}
	lead := closed.Result.Winners[0]
	if lead.CandidateID != "cand-1" || lead.Amount != 57000 || lead.PercentBps != 6000 {
		t.Fatalf("unexpected lead allocation: %+v", lead)
	}
	runner := closed.Result.Winners[1]
	if runner.CandidateID != "cand-2" || runner.Amount != 38000 || runner.PercentBps != 4000 {
		t.Fatalf("unexpected runner allocation: %+v", runner)
	}

	if _, err := module.Service.CloseVoting(ctx, pool.PoolID); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("expected invalid state on second close, got %v", err)
	}
	if _, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      pool.PoolID,
		Contributor: "contributor-3",
		AssetID:     "usdc",
		Amount:      1000,
	}); !errors.Is(err, domainerrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for late contribution, got %v", err)
	}
}

func TestCloseFailsPoolWhenGoalNotMet(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())

	contribution, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      pool.PoolID,
		Contributor: "contributor-1",
		AssetID:     "usdc",
		Amount:      10000,
	})
	if err != nil {
		t.Fatalf("contribution failed: %v", err)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if closed.Pool.Status != entities.PoolStatusFailed {
		t.Fatalf("expected failed pool, got %s", closed.Pool.Status)
	}
	if closed.Result != nil {
		t.Fatalf("failed pool must not allocate")
	}

	receipt, err := module.Service.Refund(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if receipt.RefundAmount != contribution.NetAmount || receipt.PenaltyAmount != 0 {
		t.Fatalf("unexpected refund receipt: %+v", receipt)
	}

	if _, err := module.Service.Refund(ctx, pool.PoolID, "contributor-1"); !errors.Is(err, ledgererrors.ErrContributionNotFound) {
		t.Fatalf("expected no second refund, got %v", err)
	}
	if _, err := module.Service.Refund(ctx, pool.PoolID, "stranger"); !errors.Is(err, ledgererrors.ErrContributionNotFound) {
		t.Fatalf("expected no refund for non-contributor, got %v", err)
	}
}

func TestEarlyWithdrawAppliesPenaltyAndClearsVotes(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)

	receipt, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("early withdraw failed: %v", err)
	}
	if receipt.PenaltyAmount != 5700 {
		t.Fatalf("expected flat 10%% penalty of 5700, got %d", receipt.PenaltyAmount)
	}
	if receipt.RefundAmount != 51300 {
		t.Fatalf("expected refund 51300, got %d", receipt.RefundAmount)
	}

	balance, err := module.Service.ContributorBalance(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance after withdrawal, got %d", balance)
	}

	standings, err := module.Service.Standings(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	for _, tally := range standings {
		if tally.CandidateID == "cand-1" && tally.Weight != 0 {
			t.Fatalf("expected cleared vote weight, got %d", tally.Weight)
		}
	}

	if _, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1"); !errors.Is(err, ledgererrors.ErrContributionNotFound) {
		t.Fatalf("expected no second withdrawal, got %v", err)
	}

	// Only contributor-2's 38000 remains, so the goal fails at close.
	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if closed.Pool.Status != entities.PoolStatusFailed {
		t.Fatalf("expected failed pool after withdrawal, got %s", closed.Pool.Status)
	}
}

func TestTimeDecayPenaltyGrowsTowardDeadline(t *testing.T) {
	ctx := context.Background()
	policies := domainservices.DefaultPolicySet()
	policies.Penalty.Kind = domainservices.PenaltyTimeDecay
	module, pool := newActivePool(t, policies)
	fundPool(t, module, pool.PoolID)

	// Halfway through the voting window the decayed rate is half of 10%.
	module.Store.SetNow(baseTime.Add(12 * time.Hour))
	receipt, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1")
	if err != nil {
		t.Fatalf("early withdraw failed: %v", err)
	}
	if receipt.PenaltyAmount != 2850 {
		t.Fatalf("expected penalty 2850 at half window, got %d", receipt.PenaltyAmount)
	}
	if receipt.RefundAmount != 54150 {
		t.Fatalf("expected refund 54150, got %d", receipt.RefundAmount)
	}
}

func TestRetainedPenaltiesJoinAllocationBase(t *testing.T) {
	ctx := context.Background()
	policies := domainservices.DefaultPolicySet()
	policies.Penalty.Destination = domainservices.PenaltyToPool
	module, pool := newActivePool(t, policies)
	fundPool(t, module, pool.PoolID)

	if _, err := module.Service.EarlyWithdraw(ctx, pool.PoolID, "contributor-1"); err != nil {
		t.Fatalf("early withdraw failed: %v", err)
	}

	// contributor-2's 38000 plus the retained 5700 penalty misses the 90000
	// goal, so top the pool back up before closing.
	if _, err := module.Service.Contribute(ctx, application.ContributeInput{
		PoolID:      pool.PoolID,
		Contributor: "contributor-3",
		AssetID:     "usdc",
		Amount:      60000,
	}); err != nil {
		t.Fatalf("third contribution failed: %v", err)
	}
	if _, err := module.Service.Vote(ctx, pool.PoolID, "contributor-3", "cand-2"); err != nil {
		t.Fatalf("third vote failed: %v", err)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if closed.Pool.Status != entities.PoolStatusFunded {
		t.Fatalf("expected funded pool, got %s", closed.Pool.Status)
	}
	// Base is 38000 + 57000 live contributions plus the 5700 penalty.
	if closed.Result.AllocationBase != 100700 {
		t.Fatalf("expected allocation base 100700, got %d", closed.Result.AllocationBase)
	}
}

func TestChangeVoteMovesWeight(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)

	if _, err := module.Service.ChangeVote(ctx, pool.PoolID, "contributor-2", "cand-2", "cand-1"); err != nil {
		t.Fatalf("change vote failed: %v", err)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Service.CloseVoting(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if len(closed.Result.Winners) != 1 {
		t.Fatalf("expected single winner, got %d", len(closed.Result.Winners))
	}
	winner := closed.Result.Winners[0]
	if winner.CandidateID != "cand-1" || winner.Amount != 95000 || winner.PercentBps != 10000 {
		t.Fatalf("unexpected winner allocation: %+v", winner)
	}
}

func TestMilestoneFlowReleasesAndClosesPool(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)
	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	if _, err := module.Service.CloseVoting(ctx, pool.PoolID); err != nil {
		t.Fatalf("close voting failed: %v", err)
	}

	if _, err := module.Service.ConfigureMilestones(ctx, application.ConfigureMilestonesInput{
		PoolID:      pool.PoolID,
		CandidateID: "cand-1",
		Caller:      "someone-else",
		Milestones: []milestoneescrow.MilestoneSpec{
			{Description: "Prototype", FundingPercentBps: 10000, ApprovalsNeeded: 1},
		},
	}); !errors.Is(err, domainerrors.ErrRecipientMismatch) {
		t.Fatalf("expected recipient mismatch, got %v", err)
	}

	first, err := module.Service.ConfigureMilestones(ctx, application.ConfigureMilestonesInput{
		PoolID:      pool.PoolID,
		CandidateID: "cand-1",
		Caller:      "recipient-1",
		Milestones: []milestoneescrow.MilestoneSpec{
			{Description: "Prototype", FundingPercentBps: 6000, ApprovalsNeeded: 1},
			{Description: "Production run", FundingPercentBps: 4000, ApprovalsNeeded: 1},
		},
	})
	if err != nil {
		t.Fatalf("configure cand-1 milestones failed: %v", err)
	}
	second, err := module.Service.ConfigureMilestones(ctx, application.ConfigureMilestonesInput{
		PoolID:      pool.PoolID,
		CandidateID: "cand-2",
		Caller:      "recipient-2",
		Milestones: []milestoneescrow.MilestoneSpec{
			{Description: "Field deployment", FundingPercentBps: 10000, ApprovalsNeeded: 1},
		},
	})
	if err != nil {
		t.Fatalf("configure cand-2 milestones failed: %v", err)
	}

	if _, err := module.Service.ReleaseMilestone(ctx, pool.PoolID, first[0].MilestoneID); !errors.Is(err, escrowerrors.ErrInsufficientApprovals) {
		t.Fatalf("expected release blocked before quorum, got %v", err)
	}

	if _, err := module.Service.SubmitEvidence(ctx, pool.PoolID, first[0].MilestoneID, "recipient-1", "ipfs://prototype"); err != nil {
		t.Fatalf("submit evidence failed: %v", err)
	}

	if _, err := module.Service.ApproveMilestone(ctx, pool.PoolID, first[0].MilestoneID, "stranger"); !errors.Is(err, domainerrors.ErrNotAContributor) {
		t.Fatalf("expected contributor gate, got %v", err)
	}
	if _, err := module.Service.ApproveMilestone(ctx, pool.PoolID, first[0].MilestoneID, "contributor-1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	released, err := module.Service.ReleaseMilestone(ctx, pool.PoolID, first[0].MilestoneID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.Amount != 34200 {
		t.Fatalf("expected 60%% of 57000 = 34200, got %d", released.Amount)
	}
	if released.PoolClosed {
		t.Fatalf("pool must stay funded while milestones remain")
	}

	// Remaining milestones in order; the last release closes the pool.
	for _, step := range []struct {
		milestoneID string
		want        int64
	}{
		{first[1].MilestoneID, 22800},
		{second[0].MilestoneID, 38000},
	} {
		if _, err := module.Service.ApproveMilestone(ctx, pool.PoolID, step.milestoneID, "contributor-2"); err != nil {
			t.Fatalf("approve %s failed: %v", step.milestoneID, err)
		}
		released, err = module.Service.ReleaseMilestone(ctx, pool.PoolID, step.milestoneID)
		if err != nil {
			t.Fatalf("release %s failed: %v", step.milestoneID, err)
		}
		if released.Amount != step.want {
			t.Fatalf("expected release %d, got %d", step.want, released.Amount)
		}
	}
	if !released.PoolClosed {
		t.Fatalf("expected final release to close the pool")
	}

	final, err := module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if final.Status != entities.PoolStatusClosed {
		t.Fatalf("expected closed pool, got %s", final.Status)
	}
}

func TestDisputeAndAbandonMilestone(t *testing.T) {
	ctx := context.Background()
	module, pool := newActivePool(t, domainservices.DefaultPolicySet())
	fundPool(t, module, pool.PoolID)
	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	if _, err := module.Service.CloseVoting(ctx, pool.PoolID); err != nil {
		t.Fatalf("close voting failed: %v", err)
	}

	schedule, err := module.Service.ConfigureMilestones(ctx, application.ConfigureMilestonesInput{
		PoolID:      pool.PoolID,
		CandidateID: "cand-1",
		Caller:      "recipient-1",
		Milestones: []milestoneescrow.MilestoneSpec{
			{Description: "Prototype", FundingPercentBps: 10000, ApprovalsNeeded: 1},
		},
	})
	if err != nil {
		t.Fatalf("configure milestones failed: %v", err)
	}
	milestoneID := schedule[0].MilestoneID

	if _, err := module.Service.DisputeMilestone(ctx, "", pool.PoolID, milestoneID); err != nil {
		t.Fatalf("dispute failed: %v", err)
	}
	if _, err := module.Service.ApproveMilestone(ctx, pool.PoolID, milestoneID, "contributor-1"); !errors.Is(err, escrowerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed milestone to block approval, got %v", err)
	}
	if _, err := module.Service.ReleaseMilestone(ctx, pool.PoolID, milestoneID); !errors.Is(err, escrowerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed milestone to block release, got %v", err)
	}

	abandoned, err := module.Service.AbandonMilestone(ctx, "", pool.PoolID, milestoneID)
	if err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if !abandoned.Abandoned {
		t.Fatalf("expected abandoned milestone")
	}

	// cand-2 never configured a schedule, so the pool stays funded.
	final, err := module.Service.Pool(ctx, pool.PoolID)
	if err != nil {
		t.Fatalf("load pool failed: %v", err)
	}
	if final.Status != entities.PoolStatusFunded {
		t.Fatalf("expected funded pool, got %s", final.Status)
	}
}
