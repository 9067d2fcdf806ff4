package poollifecycle

import (
	"log/slog"

	ledgerservice "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service"
	milestoneescrow "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow"
	httpadapter "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/adapters/http"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/application"
	domainservices "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/services"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/ports"
	votingengine "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine"
)

// Module bundles the lifecycle controller with its transport handler.
type Module struct {
	Service *application.Service
	Handler httpadapter.Handler
	Store   *memory.Store
}

// Dependencies wires the controller to the component services and platform
// adapters. Ledger, Voting, and Escrow are the other pool-engine modules.
type Dependencies struct {
	Pools    ports.PoolRepository
	Outbox   ports.OutboxRepository
	Ledger   ledgerservice.Module
	Voting   votingengine.Module
	Escrow   milestoneescrow.Module
	Rail     ports.SettlementRail
	Identity ports.IdentityVerifier
	Policies domainservices.PolicySet
	UoW      ports.UnitOfWork
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := &application.Service{
		Pools:    deps.Pools,
		Outbox:   deps.Outbox,
		Ledger:   deps.Ledger.Service,
		Votes:    deps.Voting.Votes,
		Close:    deps.Voting.Close,
		Tallies:  deps.Voting.Tallies,
		Escrow:   deps.Escrow.Service,
		Rail:     deps.Rail,
		Identity: deps.Identity,
		Policies: deps.Policies,
		UoW:      deps.UoW,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{Service: service, Logger: deps.Logger},
	}
}

// NewInMemoryModule builds a complete in-memory pool engine: the controller
// plus in-memory instances of the ledger, voting, and escrow modules. Used by
// tests and local development.
func NewInMemoryModule(policies domainservices.PolicySet, logger *slog.Logger) Module {
	store := memory.NewStore(nil)
	ledger := ledgerservice.NewInMemoryModule(nil, logger)
	voting := votingengine.NewInMemoryModule(nil, logger)
	escrow := milestoneescrow.NewInMemoryModule(nil, logger)
	module := NewModule(Dependencies{
		Pools:    store,
		Outbox:   store,
		Ledger:   ledger,
		Voting:   voting,
		Escrow:   escrow,
		Policies: policies,
		UoW:      memory.NewUnitOfWork(store, ledger.Store, voting.Store, escrow.Store),
		Clock:    store,
		IDGen:    store,
		Logger:   logger,
	})
	module.Store = store
	return module
}
