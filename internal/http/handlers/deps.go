package handlers

import (
	"github.com/jmoiron/sqlx"

	"popjoy/internal/clock"
	"popjoy/internal/config"
	"popjoy/internal/repos"
	"popjoy/internal/services"
)

type Deps struct {
	EventHandler *EventHandler
	BatchHandler *BatchHandler
	UnitHandler  *UnitHandler
	AdminHandler *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, clk clock.Clock) *Deps {
	if clk == nil {
		clk = clock.NewSystem()
	}
	unitRepo := repos.NewUnitRepo(db)
	allocRepo := repos.NewAllocationRepo(db)
	eventRepo := repos.NewEventRepo(db)
	batchRepo := repos.NewBatchRepo(db)
	variantRepo := repos.NewVariantRepo(db)
	userRepo := repos.NewUserRepo(db)

	allocSvc := services.NewAllocationService(db, unitRepo, allocRepo, eventRepo,
		services.WithMaxRetries(cfg.AllocationMaxRetries), services.WithClock(clk))
	eventSvc := services.NewEventService(db, eventRepo, allocRepo, userRepo, allocSvc)
	batchSvc := services.NewBatchService(db, batchRepo, unitRepo, variantRepo, clk)
	unitSvc := services.NewUnitService(db, unitRepo, allocRepo, clk)

	return &Deps{
		EventHandler: &EventHandler{Events: eventSvc, Alloc: allocSvc},
		BatchHandler: &BatchHandler{Batches: batchSvc},
		UnitHandler:  &UnitHandler{Units: unitSvc, Alloc: allocSvc},
		AdminHandler: &AdminHandler{Events: eventSvc},
	}
}
