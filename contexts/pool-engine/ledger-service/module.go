// Package ledgerservice implements the contribution ledger of the pool
// engine: fee-split contribution records, early withdrawals, failed-pool
// refunds, and the append-only bookkeeping trail. It holds the
// ledger-conservation invariant: the pool total always equals the sum of
// net amounts over non-withdrawn contributions.
package ledgerservice

import (
	"log/slog"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/ports"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Ledger ports.LedgerRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Ledger: deps.Ledger,
			Clock:  deps.Clock,
			IDGen:  deps.IDGen,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.Contribution, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Ledger: store,
		Clock:  store,
		IDGen:  store,
		Logger: logger,
	})
	module.Store = store
	return module
}
