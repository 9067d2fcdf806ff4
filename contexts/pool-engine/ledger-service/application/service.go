package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/errors"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/ports"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// Service owns contribution bookkeeping for one pool engine deployment. It
// never inspects pool status; the lifecycle controller resolves pool
// parameters and legality before calling in.
type Service struct {
	Ledger ports.LedgerRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// ContributeInput carries the pool parameters the controller resolved for
// this call alongside the contribution itself.
type ContributeInput struct {
	PoolID          string
	Contributor     string
	AssetID         string
	GrossAmount     int64
	PoolAssetID     string
	FeeBasisPoints  int64
	FeeRecipient    string
	MinContribution int64
	MaxContribution *int64
}

// Contribute validates the ticket size, splits the gross amount into
// platform fee and net, and records the contribution with its fee entry in
// one transaction. platformFee+netAmount == grossAmount always holds exactly.
func (s Service) Contribute(ctx context.Context, in ContributeInput) (entities.Contribution, error) {
	logger := resolveLogger(s.Logger)
	if strings.TrimSpace(in.PoolID) == "" || strings.TrimSpace(in.Contributor) == "" || in.GrossAmount <= 0 {
		return entities.Contribution{}, domainerrors.ErrInvalidLedgerInput
	}
	if !strings.EqualFold(strings.TrimSpace(in.AssetID), strings.TrimSpace(in.PoolAssetID)) {
		return entities.Contribution{}, domainerrors.ErrUnsupportedAsset
	}

	fee, err := money.Bps(in.GrossAmount, in.FeeBasisPoints)
	if err != nil {
		return entities.Contribution{}, err
	}
	net, err := money.Sub(in.GrossAmount, fee)
	if err != nil {
		return entities.Contribution{}, err
	}
	if net < in.MinContribution {
		return entities.Contribution{}, domainerrors.ErrBelowMinimum
	}
	if in.MaxContribution != nil {
		balance, err := s.Balance(ctx, in.PoolID, in.Contributor)
		if err != nil {
			return entities.Contribution{}, err
		}
		cumulative, err := money.Add(balance, net)
		if err != nil {
			return entities.Contribution{}, err
		}
		if cumulative > *in.MaxContribution {
			return entities.Contribution{}, domainerrors.ErrAboveMaximum
		}
	}

	now := s.now()
	contributionID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.Contribution{}, err
	}
	contribution := entities.Contribution{
		ContributionID: contributionID,
		PoolID:         strings.TrimSpace(in.PoolID),
		Contributor:    strings.TrimSpace(in.Contributor),
		AssetID:        strings.TrimSpace(in.PoolAssetID),
		GrossAmount:    in.GrossAmount,
		PlatformFee:    fee,
		NetAmount:      net,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	entries, err := s.contributionEntries(ctx, contribution, in.FeeRecipient, now)
	if err != nil {
		return entities.Contribution{}, err
	}
	if err := s.Ledger.RecordContribution(ctx, contribution, entries); err != nil {
		return entities.Contribution{}, err
	}

	logger.Info("contribution recorded",
		"event", "ledger_contribution_recorded",
		"module", "pool-engine/ledger-service",
		"layer", "application",
		"pool_id", contribution.PoolID,
		"contributor", contribution.Contributor,
		"gross_amount", contribution.GrossAmount,
		"platform_fee", contribution.PlatformFee,
		"net_amount", contribution.NetAmount,
	)
	return contribution, nil
}

// EarlyWithdrawInput carries the penalty terms the controller resolved from
// the deployment policy.
type EarlyWithdrawInput struct {
	PoolID         string
	Contributor    string
	PenaltyBps     int64
	PenaltyAccount string
}

// EarlyWithdraw marks every active contribution of the contributor
// withdrawn, books the penalty to the configured account, and returns the
// refund split. Calling it again for the same contributor fails with
// ErrContributionNotFound, so a double refund is structurally impossible.
func (s Service) EarlyWithdraw(ctx context.Context, in EarlyWithdrawInput) (entities.WithdrawalReceipt, error) {
	logger := resolveLogger(s.Logger)
	balance, err := s.Balance(ctx, in.PoolID, in.Contributor)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}
	if balance == 0 {
		return entities.WithdrawalReceipt{}, domainerrors.ErrContributionNotFound
	}

	penalty, err := money.Bps(balance, in.PenaltyBps)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}
	refund, err := money.Sub(balance, penalty)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}

	now := s.now()
	entries := make([]entities.LedgerEntry, 0, 2)
	withdrawalEntry, err := s.newEntry(ctx, in.PoolID, in.Contributor, entities.EntryTypeWithdrawal, refund, now)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}
	entries = append(entries, withdrawalEntry)
	if penalty > 0 {
		penaltyEntry, err := s.newEntry(ctx, in.PoolID, in.PenaltyAccount, entities.EntryTypePenalty, penalty, now)
		if err != nil {
			return entities.WithdrawalReceipt{}, err
		}
		entries = append(entries, penaltyEntry)
	}

	if _, err := s.Ledger.WithdrawContributions(ctx, in.PoolID, in.Contributor, now, entries); err != nil {
		return entities.WithdrawalReceipt{}, err
	}

	logger.Info("early withdrawal recorded",
		"event", "ledger_early_withdrawal_recorded",
		"module", "pool-engine/ledger-service",
		"layer", "application",
		"pool_id", strings.TrimSpace(in.PoolID),
		"contributor", strings.TrimSpace(in.Contributor),
		"refund_amount", refund,
		"penalty_amount", penalty,
	)
	return entities.WithdrawalReceipt{
		PoolID:        strings.TrimSpace(in.PoolID),
		Contributor:   strings.TrimSpace(in.Contributor),
		RefundAmount:  refund,
		PenaltyAmount: penalty,
		WithdrawnAt:   now,
	}, nil
}

// Refund returns the contributor's full net balance after a pool has failed.
// No penalty applies; fees already taken at contribution time stay taken.
func (s Service) Refund(ctx context.Context, poolID string, contributor string) (entities.WithdrawalReceipt, error) {
	logger := resolveLogger(s.Logger)
	balance, err := s.Balance(ctx, poolID, contributor)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}
	if balance == 0 {
		return entities.WithdrawalReceipt{}, domainerrors.ErrContributionNotFound
	}

	now := s.now()
	entry, err := s.newEntry(ctx, poolID, contributor, entities.EntryTypeRefund, balance, now)
	if err != nil {
		return entities.WithdrawalReceipt{}, err
	}
	if _, err := s.Ledger.WithdrawContributions(ctx, poolID, contributor, now, []entities.LedgerEntry{entry}); err != nil {
		return entities.WithdrawalReceipt{}, err
	}

	logger.Info("refund recorded",
		"event", "ledger_refund_recorded",
		"module", "pool-engine/ledger-service",
		"layer", "application",
		"pool_id", strings.TrimSpace(poolID),
		"contributor", strings.TrimSpace(contributor),
		"refund_amount", balance,
	)
	return entities.WithdrawalReceipt{
		PoolID:       strings.TrimSpace(poolID),
		Contributor:  strings.TrimSpace(contributor),
		RefundAmount: balance,
		WithdrawnAt:  now,
	}, nil
}

// RecordRelease books a milestone release against the ledger so pool audits
// can reconcile distributed funds. It does not touch contributions.
func (s Service) RecordRelease(ctx context.Context, poolID string, recipient string, amount int64, referenceID string) error {
	now := s.now()
	entry, err := s.newEntry(ctx, poolID, recipient, entities.EntryTypeRelease, amount, now)
	if err != nil {
		return err
	}
	entry.ReferenceID = strings.TrimSpace(referenceID)
	return s.Ledger.AppendEntries(ctx, []entities.LedgerEntry{entry})
}

// Balance is the contributor's live net contribution: the sum of netAmount
// over their non-withdrawn contributions.
func (s Service) Balance(ctx context.Context, poolID string, contributor string) (int64, error) {
	contributions, err := s.Ledger.ListContributionsByContributor(ctx, poolID, contributor)
	if err != nil {
		return 0, err
	}
	var balance int64
	for _, contribution := range contributions {
		if contribution.Withdrawn {
			continue
		}
		balance, err = money.Add(balance, contribution.NetAmount)
		if err != nil {
			return 0, err
		}
	}
	return balance, nil
}

// Total is the sum of netAmount over all non-withdrawn contributions of the
// pool (the ledger-conservation figure).
func (s Service) Total(ctx context.Context, poolID string) (int64, error) {
	contributions, err := s.Ledger.ListContributionsByPool(ctx, poolID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, contribution := range contributions {
		if contribution.Withdrawn {
			continue
		}
		total, err = money.Add(total, contribution.NetAmount)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ActiveContributors lists contributors that still hold a non-withdrawn
// balance (refund eligibility after a failed close).
func (s Service) ActiveContributors(ctx context.Context, poolID string) ([]string, error) {
	contributions, err := s.Ledger.ListContributionsByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	contributors := make([]string, 0)
	for _, contribution := range contributions {
		if contribution.Withdrawn || seen[contribution.Contributor] {
			continue
		}
		seen[contribution.Contributor] = true
		contributors = append(contributors, contribution.Contributor)
	}
	return contributors, nil
}

// Entries exposes the append-only audit trail for a pool.
func (s Service) Entries(ctx context.Context, poolID string) ([]entities.LedgerEntry, error) {
	return s.Ledger.ListEntriesByPool(ctx, poolID)
}

func (s Service) contributionEntries(
	ctx context.Context,
	contribution entities.Contribution,
	feeRecipient string,
	now time.Time,
) ([]entities.LedgerEntry, error) {
	entries := make([]entities.LedgerEntry, 0, 2)
	credit, err := s.newEntry(ctx, contribution.PoolID, contribution.Contributor, entities.EntryTypeContribution, contribution.NetAmount, now)
	if err != nil {
		return nil, err
	}
	credit.ReferenceID = contribution.ContributionID
	entries = append(entries, credit)

	if contribution.PlatformFee > 0 {
		feeEntry, err := s.newEntry(ctx, contribution.PoolID, feeRecipient, entities.EntryTypeFee, contribution.PlatformFee, now)
		if err != nil {
			return nil, err
		}
		feeEntry.ReferenceID = contribution.ContributionID
		entries = append(entries, feeEntry)
	}
	return entries, nil
}

func (s Service) newEntry(
	ctx context.Context,
	poolID string,
	account string,
	entryType entities.EntryType,
	amount int64,
	now time.Time,
) (entities.LedgerEntry, error) {
	entryID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.LedgerEntry{}, err
	}
	return entities.LedgerEntry{
		EntryID:   entryID,
		PoolID:    strings.TrimSpace(poolID),
		Account:   strings.TrimSpace(account),
		EntryType: entryType,
		Amount:    amount,
		CreatedAt: now,
	}, nil
}

func (s Service) now() time.Time {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	return now
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
