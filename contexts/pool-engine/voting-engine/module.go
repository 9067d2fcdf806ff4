package votingengine

import (
	"log/slog"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/adapters/memory"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/commands"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/application/queries"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/ports"
)

type Module struct {
	Votes   commands.VoteUseCase
	Close   commands.CloseUseCase
	Tallies queries.TallyUseCase
	Store   *memory.Store
}

type Dependencies struct {
	Votes  ports.VoteRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Votes: commands.VoteUseCase{
			Votes:  deps.Votes,
			Clock:  deps.Clock,
			IDGen:  deps.IDGen,
			Logger: deps.Logger,
		},
		Close: commands.CloseUseCase{
			Votes:  deps.Votes,
			Logger: deps.Logger,
		},
		Tallies: queries.TallyUseCase{
			Votes: deps.Votes,
		},
	}
}

func NewInMemoryModule(seed []entities.Vote, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Votes:  store,
		Clock:  store,
		IDGen:  store,
		Logger: logger,
	})
	module.Store = store
	return module
}
