package ports

import (
	"context"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
)

// LedgerRepository persists contributions and append-only ledger entries.
// The composite methods are atomic: either every row in the call commits or
// none does, so no partial ledger state is ever observable.
type LedgerRepository interface {
	// RecordContribution inserts a contribution together with its
	// bookkeeping entries in one transaction.
	RecordContribution(ctx context.Context, contribution entities.Contribution, entries []entities.LedgerEntry) error
	// WithdrawContributions marks every active contribution of the
	// contributor withdrawn and appends the given entries atomically. It
	// returns the contributions that were withdrawn.
	WithdrawContributions(ctx context.Context, poolID string, contributor string, at time.Time, entries []entities.LedgerEntry) ([]entities.Contribution, error)
	// AppendEntries appends bookkeeping entries atomically (milestone
	// releases book against the ledger without touching contributions).
	AppendEntries(ctx context.Context, entries []entities.LedgerEntry) error

	ListContributionsByPool(ctx context.Context, poolID string) ([]entities.Contribution, error)
	ListContributionsByContributor(ctx context.Context, poolID string, contributor string) ([]entities.Contribution, error)
	ListEntriesByPool(ctx context.Context, poolID string) ([]entities.LedgerEntry, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
