package electionmachine

import (
	"log/slog"

	httpadapter "ballotbox/contexts/election-core/election-machine/adapters/http"
	"ballotbox/contexts/election-core/election-machine/adapters/memory"
	"ballotbox/contexts/election-core/election-machine/application/commands"
	"ballotbox/contexts/election-core/election-machine/application/queries"
	"ballotbox/contexts/election-core/election-machine/domain/entities"
	"ballotbox/contexts/election-core/election-machine/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Elections *commands.ElectionUseCase
	Store     *memory.Store
}

type Dependencies struct {
	Elections ports.ElectionRepository
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	electionUseCase := &commands.ElectionUseCase{
		Elections: deps.Elections,
		Outbox:    deps.Outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		Elections: deps.Elections,
		Clock:     deps.Clock,
	}
	return Module{
		Handler: httpadapter.Handler{
			Elections: electionUseCase,
			Reads:     resultsUseCase,
			Logger:    deps.Logger,
		},
		Elections: electionUseCase,
	}
}

func NewInMemoryModule(seed []entities.Election, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Elections: store,
		Outbox:    store,
		Clock:     store,
		IDGen:     store,
		Logger:    logger,
	})
	module.Store = store
	return module
}
