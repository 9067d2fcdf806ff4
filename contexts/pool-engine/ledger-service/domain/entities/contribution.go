package entities

import "time"

// Contribution is one deposit into a pool. NetAmount is what counts toward
// the pool total and the contributor's vote weight; a withdrawn contribution
// counts zero toward both. The row itself is never deleted so the audit
// trail stays valid after withdrawals.
type Contribution struct {
	ContributionID string
	PoolID         string
	Contributor    string
	AssetID        string
	GrossAmount    int64
	PlatformFee    int64
	NetAmount      int64
	Withdrawn      bool
	WithdrawnAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EntryType string

const (
	EntryTypeContribution EntryType = "contribution"
	EntryTypeFee          EntryType = "fee"
	EntryTypeWithdrawal   EntryType = "withdrawal"
	EntryTypePenalty      EntryType = "penalty"
	EntryTypeRefund       EntryType = "refund"
	EntryTypeRelease      EntryType = "release"
)

// LedgerEntry is an append-only bookkeeping record. Entries are written in
// the same transaction as the contribution mutation they describe.
type LedgerEntry struct {
	EntryID     string
	PoolID      string
	Account     string
	EntryType   EntryType
	Amount      int64
	AssetID     string
	ReferenceID string
	CreatedAt   time.Time
}

// WithdrawalReceipt reports the split of an early withdrawal or refund.
type WithdrawalReceipt struct {
	PoolID        string
	Contributor   string
	RefundAmount  int64
	PenaltyAmount int64
	WithdrawnAt   time.Time
}
