package milestoneescrow

import (
	"log/slog"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/application"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/ports"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Milestones ports.MilestoneRepository
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Milestones: deps.Milestones,
			Clock:      deps.Clock,
			IDGen:      deps.IDGen,
			Logger:     deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.Milestone, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Milestones: store,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
