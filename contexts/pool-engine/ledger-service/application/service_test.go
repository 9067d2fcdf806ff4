package application

import (
	"context"
	"errors"
	"testing"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/errors"
)

func newService() (Service, *memory.Store) {
	store := memory.NewStore(nil)
	return Service{Ledger: store, Clock: store, IDGen: store}, store
}

func baseInput() ContributeInput {
	return ContributeInput{
		PoolID:          "pool-1",
		Contributor:     "alice",
		AssetID:         "usd",
		PoolAssetID:     "usd",
		GrossAmount:     40_000,
		FeeBasisPoints:  500,
		FeeRecipient:    "platform",
		MinContribution: 1_000,
	}
}

func TestContributeSplitsFeeExactly(t *testing.T) {
	svc, _ := newService()
	contribution, err := svc.Contribute(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("contribute failed: %v", err)
	}
	if contribution.PlatformFee != 2_000 || contribution.NetAmount != 38_000 {
		t.Fatalf("unexpected split: fee=%d net=%d", contribution.PlatformFee, contribution.NetAmount)
	}
	if contribution.PlatformFee+contribution.NetAmount != contribution.GrossAmount {
		t.Fatalf("fee+net != gross")
	}
}

func TestContributeRejectsAssetMismatch(t *testing.T) {
	svc, _ := newService()
	in := baseInput()
	in.AssetID = "eur"
	if _, err := svc.Contribute(context.Background(), in); !errors.Is(err, domainerrors.ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported asset, got %v", err)
	}
}

func TestContributeTicketSizeBounds(t *testing.T) {
	svc, _ := newService()
	in := baseInput()
	in.GrossAmount = 1_000 // net 950 < min 1000
	if _, err := svc.Contribute(context.Background(), in); !errors.Is(err, domainerrors.ErrBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}

	max := int64(50_000)
	in = baseInput()
	in.MaxContribution = &max
	if _, err := svc.Contribute(context.Background(), in); err != nil {
		t.Fatalf("first contribute failed: %v", err)
	}
	// cumulative net would be 76000 > 50000
	if _, err := svc.Contribute(context.Background(), in); !errors.Is(err, domainerrors.ErrAboveMaximum) {
		t.Fatalf("expected above maximum, got %v", err)
	}
}

func TestEarlyWithdrawSplitsPenaltyAndIsFinal(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Contribute(context.Background(), baseInput()); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}

	receipt, err := svc.EarlyWithdraw(context.Background(), EarlyWithdrawInput{
		PoolID:         "pool-1",
		Contributor:    "alice",
		PenaltyBps:     1_000,
		PenaltyAccount: "platform",
	})
	if err != nil {
		t.Fatalf("early withdraw failed: %v", err)
	}
	if receipt.PenaltyAmount != 3_800 || receipt.RefundAmount != 34_200 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	balance, err := svc.Balance(context.Background(), "pool-1", "alice")
	if err != nil || balance != 0 {
		t.Fatalf("expected zero balance, got %d (%v)", balance, err)
	}

	// Second withdrawal must not double-refund.
	if _, err := svc.EarlyWithdraw(context.Background(), EarlyWithdrawInput{
		PoolID:      "pool-1",
		Contributor: "alice",
		PenaltyBps:  1_000,
	}); !errors.Is(err, domainerrors.ErrContributionNotFound) {
		t.Fatalf("expected not found on repeat withdrawal, got %v", err)
	}
}

func TestTotalTracksNonWithdrawnNet(t *testing.T) {
	svc, _ := newService()
	in := baseInput()
	if _, err := svc.Contribute(context.Background(), in); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}
	in.Contributor = "bob"
	in.GrossAmount = 60_000
	if _, err := svc.Contribute(context.Background(), in); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}

	total, err := svc.Total(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("total failed: %v", err)
	}
	if total != 38_000+57_000 {
		t.Fatalf("unexpected total %d", total)
	}

	if _, err := svc.EarlyWithdraw(context.Background(), EarlyWithdrawInput{
		PoolID:      "pool-1",
		Contributor: "bob",
	}); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	total, err = svc.Total(context.Background(), "pool-1")
	if err != nil || total != 38_000 {
		t.Fatalf("expected total 38000 after withdrawal, got %d (%v)", total, err)
	}
}

func TestRefundReturnsFullNet(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Contribute(context.Background(), baseInput()); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}
	receipt, err := svc.Refund(context.Background(), "pool-1", "alice")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if receipt.RefundAmount != 38_000 || receipt.PenaltyAmount != 0 {
		t.Fatalf("unexpected refund receipt: %+v", receipt)
	}
}

func TestLedgerEntriesBookFeeAndContribution(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Contribute(context.Background(), baseInput()); err != nil {
		t.Fatalf("contribute failed: %v", err)
	}
	entries, err := svc.Entries(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	var sawFee, sawContribution bool
	for _, entry := range entries {
		switch entry.EntryType {
		case entities.EntryTypeFee:
			sawFee = entry.Account == "platform" && entry.Amount == 2_000
		case entities.EntryTypeContribution:
			sawContribution = entry.Account == "alice" && entry.Amount == 38_000
		}
	}
	if !sawFee || !sawContribution {
		t.Fatalf("missing expected entries: %+v", entries)
	}
}
