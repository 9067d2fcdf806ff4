package application

import (
	"context"
	"errors"
	"testing"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"
)

func newService() Service {
	store := memory.NewStore(nil)
	return Service{Milestones: store, Clock: store, IDGen: store}
}

func configureSchedule(t *testing.T, service Service, specs []MilestoneSpec) []entities.Milestone {
	t.Helper()
	milestones, err := service.Configure(context.Background(), ConfigureInput{
		PoolID:      "pool-1",
		CandidateID: "cand-a",
		Milestones:  specs,
	})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	return milestones
}

func TestConfigureValidatesSchedule(t *testing.T) {
	service := newService()

	if _, err := service.Configure(context.Background(), ConfigureInput{
		PoolID:      "pool-1",
		CandidateID: "cand-a",
		Milestones: []MilestoneSpec{
			{Description: "mvp", FundingPercentBps: 6_000, ApprovalsNeeded: 1},
			{Description: "launch", FundingPercentBps: 5_000, ApprovalsNeeded: 1},
		},
	}); !errors.Is(err, domainerrors.ErrPercentBudgetExceeded) {
		t.Fatalf("expected percent budget error, got %v", err)
	}

	if _, err := service.Configure(context.Background(), ConfigureInput{
		PoolID:      "pool-1",
		CandidateID: "cand-a",
		Milestones: []MilestoneSpec{
			{Description: "mvp", FundingPercentBps: 5_000, ApprovalsNeeded: 0},
		},
	}); !errors.Is(err, domainerrors.ErrInvalidMilestoneInput) {
		t.Fatalf("expected invalid input for zero quorum, got %v", err)
	}

	configureSchedule(t, service, []MilestoneSpec{
		{Description: "mvp", FundingPercentBps: 10_000, ApprovalsNeeded: 1},
	})
	if _, err := service.Configure(context.Background(), ConfigureInput{
		PoolID:      "pool-1",
		CandidateID: "cand-a",
		Milestones: []MilestoneSpec{
			{Description: "again", FundingPercentBps: 10_000, ApprovalsNeeded: 1},
		},
	}); !errors.Is(err, domainerrors.ErrAlreadyConfigured) {
		t.Fatalf("expected already configured, got %v", err)
	}
}

func TestApproveIsIdempotentPerApprover(t *testing.T) {
	service := newService()
	milestones := configureSchedule(t, service, []MilestoneSpec{
		{Description: "mvp", FundingPercentBps: 10_000, ApprovalsNeeded: 2},
	})
	milestoneID := milestones[0].MilestoneID

	milestone, approved, err := service.Approve(context.Background(), milestoneID, "alice")
	if err != nil || !approved || milestone.ApprovalCount != 1 {
		t.Fatalf("first approval: approved=%v count=%d err=%v", approved, milestone.ApprovalCount, err)
	}
	milestone, approved, err = service.Approve(context.Background(), milestoneID, "alice")
	if err != nil || approved || milestone.ApprovalCount != 1 {
		t.Fatalf("repeat approval should not move counter: approved=%v count=%d err=%v", approved, milestone.ApprovalCount, err)
	}
	milestone, approved, err = service.Approve(context.Background(), milestoneID, "bob")
	if err != nil || !approved || milestone.ApprovalCount != 2 {
		t.Fatalf("second approver: approved=%v count=%d err=%v", approved, milestone.ApprovalCount, err)
	}
}

func TestReleaseRequiresQuorumAndPaysOnce(t *testing.T) {
	service := newService()
	milestones := configureSchedule(t, service, []MilestoneSpec{
		{Description: "mvp", FundingPercentBps: 6_000, ApprovalsNeeded: 1},
		{Description: "launch", FundingPercentBps: 4_000, ApprovalsNeeded: 1},
	})

	if _, err := service.Release(context.Background(), ReleaseInput{
		MilestoneID:      milestones[0].MilestoneID,
		AllocationAmount: 57_000,
	}); !errors.Is(err, domainerrors.ErrInsufficientApprovals) {
		t.Fatalf("expected quorum error, got %v", err)
	}

	if _, _, err := service.Approve(context.Background(), milestones[0].MilestoneID, "alice"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	outcome, err := service.Release(context.Background(), ReleaseInput{
		MilestoneID:      milestones[0].MilestoneID,
		AllocationAmount: 57_000,
	})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if outcome.Amount != 34_200 {
		t.Fatalf("expected floored 60 percent tranche 34200, got %d", outcome.Amount)
	}
	if outcome.CandidateDone {
		t.Fatalf("schedule still holds an open milestone")
	}

	if _, err := service.Release(context.Background(), ReleaseInput{
		MilestoneID:      milestones[0].MilestoneID,
		AllocationAmount: 57_000,
	}); !errors.Is(err, domainerrors.ErrAlreadyCompleted) {
		t.Fatalf("expected already completed on second release, got %v", err)
	}

	if _, _, err := service.Approve(context.Background(), milestones[1].MilestoneID, "alice"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	outcome, err = service.Release(context.Background(), ReleaseInput{
		MilestoneID:      milestones[1].MilestoneID,
		AllocationAmount: 57_000,
	})
	if err != nil {
		t.Fatalf("final release failed: %v", err)
	}
	if outcome.Amount != 22_800 || !outcome.CandidateDone {
		t.Fatalf("expected final tranche 22800 closing the schedule, got %+v", outcome)
	}
}

func TestReleaseCapsAtAllocation(t *testing.T) {
	service := newService()
	// Floor rounding plus a generous final tranche must never overshoot the
	// allocation.
	milestones := configureSchedule(t, service, []MilestoneSpec{
		{Description: "one", FundingPercentBps: 7_000, ApprovalsNeeded: 1},
		{Description: "two", FundingPercentBps: 3_000, ApprovalsNeeded: 1},
	})

	var total int64
	for _, milestone := range milestones {
		if _, _, err := service.Approve(context.Background(), milestone.MilestoneID, "alice"); err != nil {
			t.Fatalf("approve failed: %v", err)
		}
		outcome, err := service.Release(context.Background(), ReleaseInput{
			MilestoneID:      milestone.MilestoneID,
			AllocationAmount: 33,
		})
		if err != nil {
			t.Fatalf("release failed: %v", err)
		}
		total += outcome.Amount
	}
	if total > 33 {
		t.Fatalf("lifetime releases %d exceed allocation 33", total)
	}
}

func TestDisputeBlocksApprovalAndRelease(t *testing.T) {
	service := newService()
	milestones := configureSchedule(t, service, []MilestoneSpec{
		{Description: "mvp", FundingPercentBps: 10_000, ApprovalsNeeded: 1},
	})
	milestoneID := milestones[0].MilestoneID

	if _, _, err := service.Approve(context.Background(), milestoneID, "alice"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := service.Dispute(context.Background(), milestoneID); err != nil {
		t.Fatalf("dispute failed: %v", err)
	}
	if _, err := service.Release(context.Background(), ReleaseInput{
		MilestoneID:      milestoneID,
		AllocationAmount: 10_000,
	}); !errors.Is(err, domainerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed error, got %v", err)
	}
	if _, _, err := service.Approve(context.Background(), milestoneID, "bob"); !errors.Is(err, domainerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed error on approve, got %v", err)
	}

	milestone, err := service.Abandon(context.Background(), milestoneID)
	if err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if !milestone.Abandoned || milestone.Disputed {
		t.Fatalf("abandon should retire the dispute: %+v", milestone)
	}

	done, err := service.AllResolved(context.Background(), "pool-1", []string{"cand-a"})
	if err != nil || !done {
		t.Fatalf("abandoned schedule should count as resolved: done=%v err=%v", done, err)
	}
}

func TestAllResolvedRequiresSchedules(t *testing.T) {
	service := newService()
	done, err := service.AllResolved(context.Background(), "pool-1", []string{"cand-a"})
	if err != nil || done {
		t.Fatalf("candidate without a schedule must block closure: done=%v err=%v", done, err)
	}
}
