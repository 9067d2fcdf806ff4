package application

import (
	"context"
	"fmt"
	"strings"

	ledgerapp "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/application"
	ledgerentities "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/money"
)

// ContributeInput is a contributor's deposit into an active pool.
type ContributeInput struct {
	PoolID      string
	Contributor string
	AssetID     string
	Amount      int64
}

// Contribute pulls funds in over the settlement rail, then records the
// contribution under the pool lock. The transfer happens before the lock is
// taken; if the recording fails the transfer is compensated with a refund
// transfer, so custody and ledger never drift.
func (s *Service) Contribute(ctx context.Context, in ContributeInput) (ledgerentities.Contribution, error) {
	logger := resolveLogger(s.Logger)
	if strings.TrimSpace(in.Contributor) == "" || in.Amount <= 0 {
		return ledgerentities.Contribution{}, domainerrors.ErrInvalidPoolInput
	}

	pool, err := s.loadPool(ctx, in.PoolID)
	if err != nil {
		return ledgerentities.Contribution{}, err
	}
	if pool.Status != entities.PoolStatusActive || !s.now().Before(pool.VotingDeadline) {
		return ledgerentities.Contribution{}, domainerrors.ErrInvalidState
	}

	referenceID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return ledgerentities.Contribution{}, err
	}
	if err := s.transferIn(ctx, pool.PoolID, in.Contributor, pool.FundingAssetID, in.Amount, referenceID); err != nil {
		return ledgerentities.Contribution{}, err
	}

	contribution, err := s.recordContribution(ctx, in)
	if err != nil {
		// Funds already moved in; push them back out before reporting.
		if railErr := s.transferOut(ctx, pool.PoolID, in.Contributor, pool.FundingAssetID, in.Amount, referenceID); railErr != nil {
			logger.Error("contribution compensation failed",
				"event", "lifecycle_contribution_compensation_failed",
				"module", "pool-engine/pool-lifecycle",
				"layer", "application",
				"pool_id", pool.PoolID,
				"contributor", strings.TrimSpace(in.Contributor),
				"amount", in.Amount,
				"error", railErr.Error(),
			)
		}
		return ledgerentities.Contribution{}, err
	}
	return contribution, nil
}

func (s *Service) recordContribution(ctx context.Context, in ContributeInput) (ledgerentities.Contribution, error) {
	lock := s.poolLock(strings.TrimSpace(in.PoolID))
	lock.Lock()
	defer lock.Unlock()

	pool, err := s.loadPool(ctx, in.PoolID)
	if err != nil {
		return ledgerentities.Contribution{}, err
	}
	if pool.Status != entities.PoolStatusActive || !s.now().Before(pool.VotingDeadline) {
		return ledgerentities.Contribution{}, domainerrors.ErrInvalidState
	}

	var contribution ledgerentities.Contribution
	if err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		contribution, err = s.Ledger.Contribute(ctx, ledgerapp.ContributeInput{
			PoolID:          pool.PoolID,
			Contributor:     in.Contributor,
			AssetID:         in.AssetID,
			GrossAmount:     in.Amount,
			PoolAssetID:     pool.FundingAssetID,
			FeeBasisPoints:  pool.FeeBasisPoints,
			FeeRecipient:    pool.FeeRecipient,
			MinContribution: pool.MinContribution,
			MaxContribution: pool.MaxContribution,
		})
		if err != nil {
			return err
		}

		pool.TotalContributions, err = money.Add(pool.TotalContributions, contribution.NetAmount)
		if err != nil {
			return err
		}
		pool.UpdatedAt = s.now()
		if err := s.Pools.SavePool(ctx, pool); err != nil {
			return err
		}

		return s.appendEvent(ctx, EventContributionMade, pool.PoolID, ContributionMadeEvent{
			PoolID:         pool.PoolID,
			ContributionID: contribution.ContributionID,
			Contributor:    contribution.Contributor,
			GrossAmount:    contribution.GrossAmount,
			PlatformFee:    contribution.PlatformFee,
			NetAmount:      contribution.NetAmount,
			PoolTotal:      pool.TotalContributions,
		})
	}); err != nil {
		return ledgerentities.Contribution{}, err
	}
	return contribution, nil
}

// EarlyWithdraw refunds a contributor's full net balance minus the policy
// penalty while the pool is still active. The contributor's votes are
// destroyed in the same critical section, so close never counts dead weight.
func (s *Service) EarlyWithdraw(ctx context.Context, poolID string, contributor string) (ledgerentities.WithdrawalReceipt, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()

	var receipt ledgerentities.WithdrawalReceipt
	var payouts []payout
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		receipt, payouts, err = s.withdrawLocked(ctx, poolID, contributor)
		return err
	})
	lock.Unlock()
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, err
	}
	if err := s.payOut(ctx, payouts); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func (s *Service) withdrawLocked(ctx context.Context, poolID string, contributor string) (ledgerentities.WithdrawalReceipt, []payout, error) {
	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}
	if pool.Status != entities.PoolStatusActive {
		return ledgerentities.WithdrawalReceipt{}, nil, domainerrors.ErrInvalidState
	}

	now := s.now()
	rate, err := s.Policies.Penalty.RateBps(pool.ActivatedAt, pool.VotingDeadline, now)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}
	penaltyAccount := pool.FeeRecipient
	if s.Policies.Penalty.Destination == domainservices.PenaltyToPool {
		penaltyAccount = "pool:" + pool.PoolID
	}

	receipt, err := s.Ledger.EarlyWithdraw(ctx, ledgerapp.EarlyWithdrawInput{
		PoolID:         pool.PoolID,
		Contributor:    contributor,
		PenaltyBps:     rate,
		PenaltyAccount: penaltyAccount,
	})
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}

	cleared, err := s.Votes.ClearVotes(ctx, pool.PoolID, contributor)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}

	removed, err := money.Add(receipt.RefundAmount, receipt.PenaltyAmount)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}
	pool.TotalContributions, err = money.Sub(pool.TotalContributions, removed)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}
	if s.Policies.Penalty.Destination == domainservices.PenaltyToPool {
		pool.RetainedPenalties, err = money.Add(pool.RetainedPenalties, receipt.PenaltyAmount)
		if err != nil {
			return ledgerentities.WithdrawalReceipt{}, nil, err
		}
	}
	pool.UpdatedAt = now
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}

	if len(cleared) > 0 {
		if err := s.appendEvent(ctx, EventVotesCleared, pool.PoolID, VotesClearedEvent{
			PoolID:       pool.PoolID,
			Voter:        receipt.Contributor,
			ClearedCount: len(cleared),
		}); err != nil {
			return ledgerentities.WithdrawalReceipt{}, nil, err
		}
	}
	if err := s.appendEvent(ctx, EventEarlyWithdrawal, pool.PoolID, EarlyWithdrawalEvent{
		PoolID:        pool.PoolID,
		Contributor:   receipt.Contributor,
		RefundAmount:  receipt.RefundAmount,
		PenaltyAmount: receipt.PenaltyAmount,
		PoolTotal:     pool.TotalContributions,
	}); err != nil {
		return ledgerentities.WithdrawalReceipt{}, nil, err
	}

	payouts := []payout{{
		poolID:      pool.PoolID,
		to:          receipt.Contributor,
		assetID:     pool.FundingAssetID,
		amount:      receipt.RefundAmount,
		referenceID: "withdrawal:" + pool.PoolID + ":" + receipt.Contributor,
	}}
	if receipt.PenaltyAmount > 0 && s.Policies.Penalty.Destination == domainservices.PenaltyToFeeRecipient {
		payouts = append(payouts, payout{
			poolID:      pool.PoolID,
			to:          pool.FeeRecipient,
			assetID:     pool.FundingAssetID,
			amount:      receipt.PenaltyAmount,
			referenceID: "penalty:" + pool.PoolID + ":" + receipt.Contributor,
		})
	}
	return receipt, payouts, nil
}

// Refund returns a contributor's full net balance after the pool failed.
func (s *Service) Refund(ctx context.Context, poolID string, contributor string) (ledgerentities.WithdrawalReceipt, error) {
	lock := s.poolLock(strings.TrimSpace(poolID))
	lock.Lock()

	var receipt ledgerentities.WithdrawalReceipt
	var pool entities.Pool
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		receipt, pool, err = s.refundLocked(ctx, poolID, contributor)
		return err
	})
	lock.Unlock()
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, err
	}
	if err := s.payOut(ctx, []payout{{
		poolID:      pool.PoolID,
		to:          receipt.Contributor,
		assetID:     pool.FundingAssetID,
		amount:      receipt.RefundAmount,
		referenceID: "refund:" + pool.PoolID + ":" + receipt.Contributor,
	}}); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func (s *Service) refundLocked(ctx context.Context, poolID string, contributor string) (ledgerentities.WithdrawalReceipt, entities.Pool, error) {
	pool, err := s.loadPool(ctx, poolID)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, err
	}
	if pool.Status != entities.PoolStatusFailed {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, domainerrors.ErrInvalidState
	}

	receipt, err := s.Ledger.Refund(ctx, pool.PoolID, contributor)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, err
	}

	pool.TotalContributions, err = money.Sub(pool.TotalContributions, receipt.RefundAmount)
	if err != nil {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, err
	}
	pool.UpdatedAt = s.now()
	if err := s.Pools.SavePool(ctx, pool); err != nil {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, err
	}

	if err := s.appendEvent(ctx, EventRefunded, pool.PoolID, RefundedEvent{
		PoolID:       pool.PoolID,
		Contributor:  receipt.Contributor,
		RefundAmount: receipt.RefundAmount,
	}); err != nil {
		return ledgerentities.WithdrawalReceipt{}, entities.Pool{}, err
	}
	return receipt, pool, nil
}

// payout is a settlement-rail transfer staged while the pool lock is held and
// executed after it is released.
type payout struct {
	poolID      string
	to          string
	assetID     string
	amount      int64
	referenceID string
}

func (s *Service) payOut(ctx context.Context, payouts []payout) error {
	for _, p := range payouts {
		if p.amount <= 0 {
			continue
		}
		if err := s.transferOut(ctx, p.poolID, p.to, p.assetID, p.amount, p.referenceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) transferIn(ctx context.Context, poolID, from, assetID string, amount int64, referenceID string) error {
	if s.Rail == nil {
		return nil
	}
	if _, err := s.Rail.TransferIn(ctx, poolID, from, assetID, amount, referenceID); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrSettlementFailed, err)
	}
	return nil
}

func (s *Service) transferOut(ctx context.Context, poolID, to, assetID string, amount int64, referenceID string) error {
	if s.Rail == nil {
		return nil
	}
	if _, err := s.Rail.TransferOut(ctx, poolID, to, assetID, amount, referenceID); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrSettlementFailed, err)
	}
	return nil
}
