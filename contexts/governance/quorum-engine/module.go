package quorumengine

import (
	"log/slog"
	"time"

	httpadapter "custos/contexts/governance/quorum-engine/adapters/http"
	"custos/contexts/governance/quorum-engine/adapters/memory"
	"custos/contexts/governance/quorum-engine/application/commands"
	"custos/contexts/governance/quorum-engine/application/queries"
	"custos/contexts/governance/quorum-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Stores         ports.StoreRepository
	Proposals      ports.ProposalRepository
	Authorizations ports.AuthorizationRepository
	Audit          ports.AuditRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Locks          ports.StoreLocker
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	storeUseCase := commands.StoreUseCase{
		Stores: deps.Stores,
		Outbox: deps.Outbox,
		Locks:  deps.Locks,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	proposalUseCase := commands.ProposalUseCase{
		Stores:         deps.Stores,
		Proposals:      deps.Proposals,
		Authorizations: deps.Authorizations,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Locks:          deps.Locks,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	governanceUseCase := queries.GovernanceUseCase{
		Stores:         deps.Stores,
		Proposals:      deps.Proposals,
		Authorizations: deps.Authorizations,
		Audit:          deps.Audit,
	}
	return Module{
		Handler: httpadapter.Handler{
			Stores:    storeUseCase,
			Proposals: proposalUseCase,
			Queries:   governanceUseCase,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Stores:         store,
		Proposals:      store,
		Authorizations: store,
		Audit:          store,
		Idempotency:    store,
		Outbox:         store,
		Locks:          store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
