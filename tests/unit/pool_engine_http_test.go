package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	poollifecycle "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	httptransport "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/transport/http"
)

func TestHandlerLifecycleRoundTrip(t *testing.T) {
	ctx := context.Background()
	module := poollifecycle.NewInMemoryModule(domainservices.DefaultPolicySet(), nil)
	module.Store.SetNow(baseTime)

	created, err := module.Handler.CreatePoolHandler(ctx, "", httptransport.CreatePoolRequest{
		Name:            "Community Studio Fund",
		Controller:      "controller-1",
		FundingAssetID:  "usdc",
		FundingGoal:     50000,
		MinContribution: 100,
		FeeBasisPoints:  500,
		FeeRecipient:    "platform-treasury",
		VotingDeadline:  baseTime.Add(24 * time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("create pool failed: %v", err)
	}
	poolID := created.Data.PoolID
	if created.Data.Status != "inactive" {
		t.Fatalf("expected inactive pool, got %s", created.Data.Status)
	}

	if _, err := module.Handler.RegisterCandidateHandler(ctx, "", poolID, httptransport.RegisterCandidateRequest{
		CandidateID: "cand-1",
		Name:        "Studio Upgrade",
		Recipient:   "recipient-1",
	}); err != nil {
		t.Fatalf("register candidate failed: %v", err)
	}

	activated, err := module.Handler.ActivatePoolHandler(ctx, "", poolID)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if activated.Data.Status != "active" {
		t.Fatalf("expected active pool, got %s", activated.Data.Status)
	}

	contribution, err := module.Handler.ContributeHandler(ctx, poolID, httptransport.ContributeRequest{
		Contributor: "contributor-1",
		AssetID:     "usdc",
		Amount:      60000,
	})
	if err != nil {
		t.Fatalf("contribute failed: %v", err)
	}
	if contribution.Data.NetAmount != 57000 || contribution.Data.PlatformFee != 3000 {
		t.Fatalf("unexpected contribution split: %+v", contribution.Data)
	}

	if _, err := module.Handler.VoteHandler(ctx, poolID, httptransport.VoteRequest{
		Voter:       "contributor-1",
		CandidateID: "cand-1",
	}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	standings, err := module.Handler.StandingsHandler(ctx, poolID)
	if err != nil {
		t.Fatalf("standings failed: %v", err)
	}
	if len(standings.Data) != 1 || standings.Data[0].Weight != 57000 {
		t.Fatalf("unexpected standings: %+v", standings.Data)
	}

	balance, err := module.Handler.BalanceHandler(ctx, poolID, "contributor-1")
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.Data.Balance != 57000 {
		t.Fatalf("expected balance 57000, got %d", balance.Data.Balance)
	}

	module.Store.SetNow(baseTime.Add(25 * time.Hour))
	closed, err := module.Handler.CloseVotingHandler(ctx, poolID)
	if err != nil {
		t.Fatalf("close voting failed: %v", err)
	}
	if closed.Data.Pool.Status != "funded" {
		t.Fatalf("expected funded pool, got %s", closed.Data.Pool.Status)
	}
	if closed.Data.Result == nil || len(closed.Data.Result.Winners) != 1 {
		t.Fatalf("unexpected close result: %+v", closed.Data.Result)
	}
	if closed.Data.Result.Winners[0].Amount != 57000 {
		t.Fatalf("expected full allocation to sole winner, got %d", closed.Data.Result.Winners[0].Amount)
	}

	entries, err := module.Handler.LedgerEntriesHandler(ctx, poolID)
	if err != nil {
		t.Fatalf("ledger entries failed: %v", err)
	}
	if len(entries.Data) == 0 {
		t.Fatalf("expected ledger entries for the contribution")
	}
}

func TestHandlerRejectsMalformedDeadline(t *testing.T) {
	ctx := context.Background()
	module := poollifecycle.NewInMemoryModule(domainservices.DefaultPolicySet(), nil)
	module.Store.SetNow(baseTime)

	_, err := module.Handler.CreatePoolHandler(ctx, "", httptransport.CreatePoolRequest{
		Name:           "Broken Deadline",
		Controller:     "controller-1",
		FundingAssetID: "usdc",
		FundingGoal:    50000,
		FeeRecipient:   "platform-treasury",
		VotingDeadline: "next thursday",
	})
	if !errors.Is(err, domainerrors.ErrInvalidPoolInput) {
		t.Fatalf("expected invalid input for bad deadline, got %v", err)
	}
}
