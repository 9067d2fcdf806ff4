package ports

import (
	"context"
	"time"

	contractsv1 "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contracts/gen/events/v1"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/outbox"
)

// EventEnvelope is the canonical envelope this service emits.
type EventEnvelope = contractsv1.Envelope

// PoolRepository persists pool aggregates and their candidate registries.
type PoolRepository interface {
	// CreatePool inserts a new pool; a duplicate ID fails with ErrPoolExists.
	CreatePool(ctx context.Context, pool entities.Pool) error
	GetPool(ctx context.Context, poolID string) (entities.Pool, bool, error)
	SavePool(ctx context.Context, pool entities.Pool) error
	ListPoolsByStatus(ctx context.Context, status entities.PoolStatus) ([]entities.Pool, error)

	// RegisterCandidate inserts a candidate; a duplicate per pool fails with
	// ErrCandidateExists.
	RegisterCandidate(ctx context.Context, candidate entities.Candidate) error
	GetCandidate(ctx context.Context, poolID string, candidateID string) (entities.Candidate, bool, error)
	ListCandidates(ctx context.Context, poolID string) ([]entities.Candidate, error)
}

// OutboxRepository stores event rows pending relay. AppendMessages runs after
// the state change commits; the relay worker drains pending rows in order.
type OutboxRepository interface {
	AppendMessages(ctx context.Context, messages []outbox.Message) error
	ListPending(ctx context.Context, limit int) ([]outbox.Message, error)
	MarkPublished(ctx context.Context, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, messageID string) error
}

// UnitOfWork runs fn atomically: every repository write issued through the
// context fn receives commits together or not at all. The controller opens
// one unit of work per mutating operation so a failure mid-sequence never
// leaves the ledger, votes, escrow, pool aggregate, and outbox disagreeing.
type UnitOfWork interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher delivers envelopes to the downstream event sink.
type EventPublisher interface {
	Publish(ctx context.Context, envelope EventEnvelope) error
}

// TransferReceipt identifies one executed settlement transfer.
type TransferReceipt struct {
	TransferID string
	ExecutedAt time.Time
}

// SettlementRail moves real funds. TransferIn pulls a contribution into pool
// custody before the ledger records it; TransferOut pays refunds, penalties,
// and milestone tranches after the ledger committed. Both are expected to be
// idempotent per reference ID.
type SettlementRail interface {
	TransferIn(ctx context.Context, poolID string, from string, assetID string, amount int64, referenceID string) (TransferReceipt, error)
	TransferOut(ctx context.Context, poolID string, to string, assetID string, amount int64, referenceID string) (TransferReceipt, error)
}

// IdentityVerifier authenticates controller-only operations.
type IdentityVerifier interface {
	VerifyController(ctx context.Context, token string, controller string) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
