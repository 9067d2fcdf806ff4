package settlement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"

	"github.com/google/uuid"
)

// Rail is the settlement adapter the lifecycle controller moves funds
// through. Current implementation records transfers in process and is
// idempotent per reference ID; production deployments swap in a custodial
// banking or chain adapter behind the same port.
type Rail struct {
	mu       sync.Mutex
	receipts map[string]ports.TransferReceipt
	logger   *slog.Logger
}

func NewRail(logger *slog.Logger) *Rail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rail{
		receipts: make(map[string]ports.TransferReceipt),
		logger:   logger,
	}
}

func (r *Rail) TransferIn(_ context.Context, poolID string, from string, assetID string, amount int64, referenceID string) (ports.TransferReceipt, error) {
	return r.execute("settlement_transfer_in", poolID, from, assetID, amount, referenceID)
}

func (r *Rail) TransferOut(_ context.Context, poolID string, to string, assetID string, amount int64, referenceID string) (ports.TransferReceipt, error) {
	return r.execute("settlement_transfer_out", poolID, to, assetID, amount, referenceID)
}

func (r *Rail) execute(event string, poolID string, account string, assetID string, amount int64, referenceID string) (ports.TransferReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event + ":" + referenceID
	if receipt, ok := r.receipts[key]; ok {
		return receipt, nil
	}
	receipt := ports.TransferReceipt{
		TransferID: uuid.NewString(),
		ExecutedAt: time.Now().UTC(),
	}
	r.receipts[key] = receipt

	r.logger.Info("transfer executed",
		"event", event,
		"module", "internal/platform/settlement",
		"layer", "platform",
		"pool_id", poolID,
		"account", account,
		"asset_id", assetID,
		"amount", amount,
		"reference_id", referenceID,
		"transfer_id", receipt.TransferID,
	)
	return receipt, nil
}
