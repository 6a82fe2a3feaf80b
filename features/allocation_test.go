package features

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"popjoy/internal/clock"
	"popjoy/internal/domain"
	"popjoy/internal/repos"
	"popjoy/internal/services"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type allocationTestContext struct {
	db      *sqlx.DB
	alloc   *services.AllocationService
	batches *services.BatchService
	events  *repos.EventRepo

	batchIDs map[string]string
	eventIDs map[string]string

	allocated []domain.Allocation
	released  []domain.Allocation
	err       error
}

func (c *allocationTestContext) reset() error {
	if c.db != nil {
		_ = c.db.Close()
	}
	db, err := repos.OpenDB(repos.DriverSQLite, ":memory:")
	if err != nil {
		return err
	}
	ctx := context.Background()
	now := domain.NewTime(t0)
	variants := repos.NewVariantRepo(db)
	if err := repos.NewUserRepo(db).Insert(ctx, domain.User{ID: "owner", Email: "owner@popjoy.test", Name: "Owner", Role: "MANAGER", CreatedAt: now}); err != nil {
		return err
	}
	if err := variants.InsertProduct(ctx, domain.Product{ID: "p", Name: "Popsicle", CreatedAt: now}); err != nil {
		return err
	}
	for _, id := range []string{"v-a", "v-b"} {
		if err := variants.InsertVariant(ctx, domain.Variant{ID: id, ProductID: "p", SKU: "SKU-" + id, IsActive: true, CreatedAt: now}); err != nil {
			return err
		}
	}

	clk := clock.NewStepped(t0, time.Millisecond)
	units := repos.NewUnitRepo(db)
	c.db = db
	c.events = repos.NewEventRepo(db)
	c.alloc = services.NewAllocationService(db, units, repos.NewAllocationRepo(db), c.events,
		services.WithClock(clk), services.WithRetryBackoff(time.Millisecond))
	c.batches = services.NewBatchService(db, repos.NewBatchRepo(db), units, variants, clk)
	c.batchIDs = map[string]string{}
	c.eventIDs = map[string]string{}
	c.allocated, c.released, c.err = nil, nil, nil
	return nil
}

func (c *allocationTestContext) aBatchOfUnitsExpiringOn(name string, n int, variantID, exp string) error {
	code := name
	b, err := c.batches.Create(context.Background(), services.CreateBatchInput{
		Name:           "Batch " + name,
		VariantID:      variantID,
		ProductionDate: "2026-01-01",
		ExpirationDate: exp,
		Quantity:       n,
		BatchCode:      &code,
	})
	if err != nil {
		return err
	}
	c.batchIDs[name] = b.ID
	return nil
}

func (c *allocationTestContext) anOpenEvent(name string) error {
	now := domain.NewTime(t0)
	ev := domain.Event{
		ID:              "ev-" + name,
		Name:            "Event " + name,
		EventDate:       domain.NewTime(t0.AddDate(0, 1, 0)),
		Status:          domain.EventPlanned,
		InternalOwnerID: "owner",
		AllocatedUnits:  1,
		EventPrice:      decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.events.Insert(context.Background(), ev); err != nil {
		return err
	}
	c.eventIDs[name] = ev.ID
	return nil
}

func (c *allocationTestContext) eventIsCancelled(name string) error {
	_, err := c.db.Exec(`UPDATE events SET status = 'CANCELLED' WHERE id = ?`, c.eventIDs[name])
	return err
}

func (c *allocationTestContext) eventAllocatesUnits(name string, n int) error {
	c.allocated, c.err = c.alloc.Allocate(context.Background(), services.AllocateInput{
		EventID: c.eventIDs[name], Quantity: n,
	})
	return nil
}

func (c *allocationTestContext) eventAllocatesUnitsFromBatch(name string, n int, batch string) error {
	c.allocated, c.err = c.alloc.Allocate(context.Background(), services.AllocateInput{
		EventID: c.eventIDs[name], Quantity: n, Filters: domain.Filters{BatchID: c.batchIDs[batch]},
	})
	return nil
}

func (c *allocationTestContext) eventReleasesAllUnits(name string) error {
	c.released, c.err = c.alloc.Release(context.Background(), services.ReleaseInput{EventID: c.eventIDs[name]})
	return c.err
}

func (c *allocationTestContext) theAllocationSucceedsWith(n int) error {
	if c.err != nil {
		return fmt.Errorf("expected allocation but got error: %v", c.err)
	}
	if len(c.allocated) != n {
		return fmt.Errorf("expected %d allocations, got %d", n, len(c.allocated))
	}
	return nil
}

func (c *allocationTestContext) theAllocationFailsWith(found, required int) error {
	var short *domain.InsufficientInventoryError
	if !errors.As(c.err, &short) {
		return fmt.Errorf("expected InsufficientInventoryError, got %v", c.err)
	}
	if short.Found != found || short.Required != required {
		return fmt.Errorf("expected found=%d required=%d, got found=%d required=%d",
			found, required, short.Found, short.Required)
	}
	return nil
}

func (c *allocationTestContext) theAllocationIsRejectedBecauseClosed() error {
	if !errors.Is(c.err, domain.ErrEventClosed) {
		return fmt.Errorf("expected ErrEventClosed, got %v", c.err)
	}
	return nil
}

func (c *allocationTestContext) unitsAreUnavailable(n int) error {
	var got int
	if err := c.db.Get(&got, `SELECT COUNT(*) FROM units WHERE is_available = FALSE`); err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("expected %d unavailable units, got %d", n, got)
	}
	return nil
}

func (c *allocationTestContext) unitsAreReleased(n int) error {
	if len(c.released) != n {
		return fmt.Errorf("expected %d released, got %d", n, len(c.released))
	}
	return nil
}

func (c *allocationTestContext) eventHoldsUnits(name string, n int) error {
	var got int
	err := c.db.Get(&got, `SELECT COUNT(*) FROM event_units WHERE event_id = ? AND released_at IS NULL`, c.eventIDs[name])
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("expected event %s to hold %d units, got %d", name, n, got)
	}
	return nil
}

func (c *allocationTestContext) eventHoldsUnitsFromBatch(name string, n int, batch string) error {
	var got int
	err := c.db.Get(&got, `SELECT COUNT(*) FROM event_units eu JOIN units u ON u.id = eu.unit_id
  WHERE eu.event_id = ? AND eu.released_at IS NULL AND u.batch_id = ?`, c.eventIDs[name], c.batchIDs[batch])
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("expected event %s to hold %d units from %s, got %d", name, n, batch, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &allocationTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.db != nil {
			_ = tc.db.Close()
			tc.db = nil
		}
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a batch "([^"]*)" of (\d+) units of variant "([^"]*)" expiring on "([^"]*)"$`, tc.aBatchOfUnitsExpiringOn)
	ctx.Step(`^an open event "([^"]*)"$`, tc.anOpenEvent)
	ctx.Step(`^event "([^"]*)" is cancelled$`, tc.eventIsCancelled)

	// When steps
	ctx.Step(`^event "([^"]*)" allocates (\d+) units$`, tc.eventAllocatesUnits)
	ctx.Step(`^event "([^"]*)" allocates (\d+) units from batch "([^"]*)"$`, tc.eventAllocatesUnitsFromBatch)
	ctx.Step(`^event "([^"]*)" releases all units$`, tc.eventReleasesAllUnits)

	// Then steps
	ctx.Step(`^the allocation succeeds with (\d+) units$`, tc.theAllocationSucceedsWith)
	ctx.Step(`^the allocation fails with found (\d+) and required (\d+)$`, tc.theAllocationFailsWith)
	ctx.Step(`^the allocation is rejected because the event is closed$`, tc.theAllocationIsRejectedBecauseClosed)
	ctx.Step(`^(\d+) units are unavailable$`, tc.unitsAreUnavailable)
	ctx.Step(`^(\d+) units are released$`, tc.unitsAreReleased)
	ctx.Step(`^event "([^"]*)" holds (\d+) units$`, tc.eventHoldsUnits)
	ctx.Step(`^event "([^"]*)" holds (\d+) units from batch "([^"]*)"$`, tc.eventHoldsUnitsFromBatch)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"allocation.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
