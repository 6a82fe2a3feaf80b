package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"popjoy/internal/clock"
	"popjoy/internal/domain"
	"popjoy/internal/repos"
	"popjoy/internal/services"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *sqlx.DB
	clock   *clock.Stepped
	alloc   *services.AllocationService
	events  *services.EventService
	batches *services.BatchService
	units   *services.UnitService

	eventRepo *repos.EventRepo
	unitRepo  *repos.UnitRepo
	allocRepo *repos.AllocationRepo
	n         int
}

// memdb opens a fresh in-memory store with one owner, product and two
// variants (v-a, v-b).
func memdb(t *testing.T) *fixture {
	t.Helper()
	db, err := repos.OpenDB(repos.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	now := domain.NewTime(t0)
	users := repos.NewUserRepo(db)
	variants := repos.NewVariantRepo(db)
	if err := users.Insert(ctx, domain.User{ID: "owner", Email: "owner@popjoy.test", Name: "Owner", Role: "MANAGER", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := variants.InsertProduct(ctx, domain.Product{ID: "p", Name: "Popsicle", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"v-a", "v-b"} {
		if err := variants.InsertVariant(ctx, domain.Variant{ID: id, ProductID: "p", SKU: "SKU-" + id, IsActive: true, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	f := &fixture{
		db:        db,
		clock:     clock.NewStepped(t0, time.Millisecond),
		eventRepo: repos.NewEventRepo(db),
		unitRepo:  repos.NewUnitRepo(db),
		allocRepo: repos.NewAllocationRepo(db),
	}
	f.alloc = services.NewAllocationService(db, f.unitRepo, f.allocRepo, f.eventRepo,
		services.WithClock(f.clock), services.WithRetryBackoff(time.Millisecond))
	f.events = services.NewEventService(db, f.eventRepo, f.allocRepo, users, f.alloc)
	f.batches = services.NewBatchService(db, repos.NewBatchRepo(db), f.unitRepo, variants, f.clock)
	f.units = services.NewUnitService(db, f.unitRepo, f.allocRepo, f.clock)
	return f
}

// batch creates a batch of n units expiring on exp and returns its id and
// unit ids in SKU order.
func (f *fixture) batch(t *testing.T, variantID string, exp time.Time, n int) (string, []string) {
	t.Helper()
	f.n++
	code := fmt.Sprintf("B%d", f.n)
	b, err := f.batches.Create(context.Background(), services.CreateBatchInput{
		Name:           "Batch " + code,
		VariantID:      variantID,
		ProductionDate: exp.AddDate(0, -6, 0).Format(time.RFC3339),
		ExpirationDate: exp.Format(time.RFC3339),
		Quantity:       n,
		BatchCode:      &code,
	})
	if err != nil {
		t.Fatal(err)
	}
	units, err := f.unitRepo.ListByBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return b.ID, ids
}

// event inserts an event row directly, without the implicit allocation.
func (f *fixture) event(t *testing.T, status domain.EventStatus) string {
	t.Helper()
	f.n++
	now := domain.NewTime(f.clock.Now())
	ev := domain.Event{
		ID:              fmt.Sprintf("ev-%d", f.n),
		Name:            "Market day",
		EventDate:       domain.NewTime(t0.AddDate(0, 1, 0)),
		Status:          status,
		InternalOwnerID: "owner",
		AllocatedUnits:  1,
		EventPrice:      decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.eventRepo.Insert(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	return ev.ID
}

func (f *fixture) unit(t *testing.T, id string) domain.Unit {
	t.Helper()
	u, err := f.unitRepo.ByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) openCount(t *testing.T) map[string]int {
	t.Helper()
	var rows []struct {
		UnitID string `db:"unit_id"`
		N      int    `db:"n"`
	}
	if err := f.db.Select(&rows, `SELECT unit_id, COUNT(*) AS n FROM event_units
  WHERE released_at IS NULL GROUP BY unit_id`); err != nil {
		t.Fatal(err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[r.UnitID] = r.N
	}
	return out
}

func unitIDs(allocs []domain.Allocation) map[string]bool {
	out := make(map[string]bool, len(allocs))
	for _, a := range allocs {
		out[a.UnitID] = true
	}
	return out
}
