package services

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"popjoy/internal/clock"
	"popjoy/internal/domain"
	"popjoy/internal/repos"
	"popjoy/internal/validate"
)

type UnitService struct {
	DB     *sqlx.DB
	Units  *repos.UnitRepo
	Allocs *repos.AllocationRepo
	Clock  clock.Clock
}

func NewUnitService(db *sqlx.DB, units *repos.UnitRepo, allocs *repos.AllocationRepo, clk clock.Clock) *UnitService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &UnitService{DB: db, Units: units, Allocs: allocs, Clock: clk}
}

// UnitDetail adds the ledger view to a unit.
type UnitDetail struct {
	domain.Unit
	Allocated bool `json:"allocated"`
}

func (s *UnitService) Get(ctx context.Context, id string) (UnitDetail, error) {
	id, ok := validate.ID(id)
	if !ok {
		return UnitDetail{}, domain.Invalid("id", "malformed id")
	}
	u, err := s.Units.ByID(ctx, id)
	if err != nil {
		return UnitDetail{}, err
	}
	held, err := s.Allocs.HasOpen(ctx, id)
	if err != nil {
		return UnitDetail{}, err
	}
	return UnitDetail{Unit: u, Allocated: held}, nil
}

type MovementInput struct {
	Status       string  `json:"movementStatus"`
	ReturnReason *string `json:"returnReason"`
}

// UpdateMovement moves a unit between in_stock, sold, returned and
// discarded. A unit held by an event must be released first. Availability
// follows the new status: only an unheld in_stock unit is available.
func (s *UnitService) UpdateMovement(ctx context.Context, id string, in MovementInput) (UnitDetail, error) {
	id, ok := validate.ID(id)
	if !ok {
		return UnitDetail{}, domain.Invalid("id", "malformed id")
	}
	status, ok := validate.Movement(in.Status)
	if !ok {
		return UnitDetail{}, domain.Invalid("movementStatus", "must be in_stock, sold, returned or discarded")
	}

	var out UnitDetail
	err := repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
		u, err := s.Units.ByID(ctx, id)
		if err != nil {
			return err
		}
		held, err := s.Allocs.HasOpen(ctx, id)
		if err != nil {
			return err
		}
		if held && status != domain.MovementInStock {
			return domain.ErrUnitAllocated
		}
		if u.Sold && status != domain.MovementSold {
			return domain.Invalid("movementStatus", "a sold unit cannot change status")
		}

		now := domain.NewTime(s.Clock.Now())
		u.MovementStatus = status
		u.UpdatedAt = now
		u.ReturnReason, u.ReturnDate = nil, nil
		switch status {
		case domain.MovementSold:
			u.Sold = true
			u.IsAvailable = false
		case domain.MovementReturned:
			u.IsAvailable = false
			u.ReturnDate = &now
			if in.ReturnReason != nil && strings.TrimSpace(*in.ReturnReason) != "" {
				r := strings.TrimSpace(*in.ReturnReason)
				u.ReturnReason = &r
			}
		case domain.MovementDiscarded:
			u.IsAvailable = false
		case domain.MovementInStock:
			u.IsAvailable = !held && u.IsActive
		}
		if err := s.Units.UpdateMovement(ctx, u); err != nil {
			return err
		}
		out = UnitDetail{Unit: u, Allocated: held}
		return nil
	})
	if err != nil {
		return UnitDetail{}, err
	}
	return out, nil
}
