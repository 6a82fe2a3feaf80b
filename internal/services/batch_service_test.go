package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"popjoy/internal/domain"
	"popjoy/internal/services"
)

func TestBatchService_CreateNumbersUnits(t *testing.T) {
	f := memdb(t)
	ctx := context.Background()
	code := "CH0526"

	b, err := f.batches.Create(ctx, services.CreateBatchInput{
		Name:           "Chocolate May",
		VariantID:      "v-a",
		ProductionDate: "2026-05-01",
		ExpirationDate: "2027-05-01",
		Quantity:       3,
		BatchCode:      &code,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.UnitsSummary.InStock != 3 || b.UnitsSummary.Total != 3 {
		t.Fatalf("bad summary %+v", b.UnitsSummary)
	}
	units, err := f.unitRepo.ListByBatch(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"CH0526-001", "CH0526-002", "CH0526-003"}
	for i, u := range units {
		if u.SKU != want[i] || !u.IsAvailable || u.MovementStatus != domain.MovementInStock {
			t.Fatalf("unit %d: %+v", i, u)
		}
	}

	no := false
	empty, err := f.batches.Create(ctx, services.CreateBatchInput{
		Name: "Placeholder", VariantID: "v-a", ProductionDate: "2026-05-01", ExpirationDate: "2027-05-01",
		Quantity: 10, CreateUnits: &no,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.batches.Get(ctx, empty.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 10 || got.UnitsSummary.Total != 0 {
		t.Fatalf("want nominal quantity without units, got %+v", got)
	}
}

func TestBatchService_CreateRejects(t *testing.T) {
	f := memdb(t)
	ctx := context.Background()
	base := services.CreateBatchInput{Name: "Batch", VariantID: "v-a", ProductionDate: "2026-05-01", ExpirationDate: "2027-05-01", Quantity: 1}

	in := base
	in.ExpirationDate = "2026-04-01"
	if _, err := f.batches.Create(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expiry before production: want ErrInvalidInput, got %v", err)
	}
	in = base
	in.Quantity = 0
	if _, err := f.batches.Create(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("zero quantity: want ErrInvalidInput, got %v", err)
	}
	in = base
	in.VariantID = "v-missing"
	if _, err := f.batches.Create(ctx, in); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("want ErrVariantNotFound, got %v", err)
	}
	if _, err := f.batches.Get(ctx, "nope"); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Fatalf("want ErrBatchNotFound, got %v", err)
	}
}

func TestBatchService_SellSkipsAllocatedUnits(t *testing.T) {
	f := memdb(t)
	ctx := context.Background()
	b, units := f.batch(t, "v-a", t0.Add(180*24*time.Hour), 4)
	ev := f.event(t, domain.EventPlanned)

	held, err := f.alloc.Allocate(ctx, services.AllocateInput{EventID: ev, Quantity: 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.batches.Sell(ctx, b, 3); !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("want insufficient inventory, got %v", err)
	}
	sold, err := f.batches.Sell(ctx, b, 2)
	if err != nil {
		t.Fatal(err)
	}
	isHeld := unitIDs(held)
	for _, c := range sold {
		if isHeld[c.UnitID] {
			t.Fatalf("sold allocated unit %s", c.UnitID)
		}
		u := f.unit(t, c.UnitID)
		if !u.Sold || u.MovementStatus != domain.MovementSold || u.IsAvailable {
			t.Fatalf("unit not sold: %+v", u)
		}
	}

	got, err := f.batches.Get(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if got.UnitsSummary.Sold != 2 || got.UnitsSummary.InStock != 2 || got.UnitsSummary.Total != len(units) {
		t.Fatalf("bad summary %+v", got.UnitsSummary)
	}

	// sold units are not restored by a release
	if _, err := f.alloc.Release(ctx, services.ReleaseInput{EventID: ev}); err != nil {
		t.Fatal(err)
	}
	for _, c := range sold {
		if f.unit(t, c.UnitID).IsAvailable {
			t.Fatal("sold unit became available")
		}
	}
}
