package services_test

import (
	"context"
	"errors"
	"testing"

	"popjoy/internal/domain"
	"popjoy/internal/services"
)

func TestUnitService_MovementBlockedWhileAllocated(t *testing.T) {
	f := memdb(t)
	ctx := context.Background()
	_, units := f.batch(t, "v-a", t0.AddDate(0, 6, 0), 1)
	ev := f.event(t, domain.EventPlanned)
	if _, err := f.alloc.Allocate(ctx, services.AllocateInput{EventID: ev, Quantity: 1}); err != nil {
		t.Fatal(err)
	}

	for _, st := range []string{"sold", "returned", "discarded"} {
		if _, err := f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: st}); !errors.Is(err, domain.ErrUnitAllocated) {
			t.Fatalf("%s: want ErrUnitAllocated, got %v", st, err)
		}
	}
	d, err := f.units.Get(ctx, units[0])
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allocated || d.MovementStatus != domain.MovementInStock {
		t.Fatalf("unit changed: %+v", d)
	}

	if _, err := f.alloc.Release(ctx, services.ReleaseInput{EventID: ev}); err != nil {
		t.Fatal(err)
	}
	reason := "melted"
	d, err = f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: "returned", ReturnReason: &reason})
	if err != nil {
		t.Fatal(err)
	}
	if d.IsAvailable || d.ReturnDate == nil || d.ReturnReason == nil || *d.ReturnReason != "melted" {
		t.Fatalf("bad returned unit %+v", d.Unit)
	}

	// back in stock: available again and eligible for the selector
	d, err = f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: "in_stock"})
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsAvailable || d.ReturnReason != nil {
		t.Fatalf("want available in_stock unit, got %+v", d.Unit)
	}
	cands, err := f.alloc.SelectAvailable(ctx, 1, domain.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatal("restocked unit not eligible")
	}
}

func TestUnitService_SoldIsTerminal(t *testing.T) {
	f := memdb(t)
	ctx := context.Background()
	_, units := f.batch(t, "v-a", t0.AddDate(0, 6, 0), 1)

	if _, err := f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: "sold"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: "in_stock"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
	if _, err := f.units.UpdateMovement(ctx, units[0], services.MovementInput{Status: "lost"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown status: want ErrInvalidInput, got %v", err)
	}
	if _, err := f.units.Get(ctx, "missing"); !errors.Is(err, domain.ErrUnitNotFound) {
		t.Fatalf("want ErrUnitNotFound, got %v", err)
	}
}
