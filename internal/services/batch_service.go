package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"popjoy/internal/clock"
	"popjoy/internal/domain"
	"popjoy/internal/repos"
	"popjoy/internal/validate"
)

type BatchService struct {
	DB       *sqlx.DB
	Batches  *repos.BatchRepo
	Units    *repos.UnitRepo
	Variants *repos.VariantRepo
	Clock    clock.Clock
}

func NewBatchService(db *sqlx.DB, batches *repos.BatchRepo, units *repos.UnitRepo, variants *repos.VariantRepo, clk clock.Clock) *BatchService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BatchService{DB: db, Batches: batches, Units: units, Variants: variants, Clock: clk}
}

type CreateBatchInput struct {
	Name           string  `json:"name"`
	VariantID      string  `json:"productVariantId"`
	ProductionDate string  `json:"productionDate"`
	ExpirationDate string  `json:"expirationDate"`
	Quantity       int     `json:"quantity"`
	BatchCode      *string `json:"batchCode"`
	CreateUnits    *bool   `json:"createUnits"` // default true
}

type BatchDetail struct {
	domain.Batch
	UnitsSummary domain.BatchUnitsSummary `json:"unitsSummary"`
}

// Create stores the batch and, unless CreateUnits is false, one in-stock unit
// per nominal quantity, all in one transaction.
func (s *BatchService) Create(ctx context.Context, in CreateBatchInput) (BatchDetail, error) {
	var b domain.Batch
	var ok bool
	if b.Name, ok = validate.Name(in.Name); !ok {
		return BatchDetail{}, domain.Invalid("name", "must be 2 to 120 characters")
	}
	if b.VariantID, ok = validate.ID(in.VariantID); !ok {
		return BatchDetail{}, domain.Invalid("productVariantId", "malformed id")
	}
	if b.ProductionDate, ok = validate.Time(in.ProductionDate); !ok {
		return BatchDetail{}, domain.Invalid("productionDate", "not a date")
	}
	if b.ExpirationDate, ok = validate.Time(in.ExpirationDate); !ok {
		return BatchDetail{}, domain.Invalid("expirationDate", "not a date")
	}
	if b.ExpirationDate.Before(b.ProductionDate.Time) {
		return BatchDetail{}, domain.Invalid("expirationDate", "before production date")
	}
	if !validate.Quantity(in.Quantity) {
		return BatchDetail{}, domain.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", validate.MaxQuantity))
	}
	b.Quantity = in.Quantity
	if in.BatchCode != nil && *in.BatchCode != "" {
		code, ok := validate.Code(*in.BatchCode)
		if !ok {
			return BatchDetail{}, domain.Invalid("batchCode", "letters, digits, - and _ only")
		}
		b.BatchCode = &code
	}
	id, err := uuid.NewV7()
	if err != nil {
		return BatchDetail{}, err
	}
	b.ID = id.String()
	now := domain.NewTime(s.Clock.Now())
	b.CreatedAt, b.UpdatedAt = now, now
	withUnits := in.CreateUnits == nil || *in.CreateUnits

	var sum domain.BatchUnitsSummary
	err = repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
		if _, err := s.Variants.ByID(ctx, b.VariantID); err != nil {
			return err
		}
		if err := s.Batches.Insert(ctx, b); err != nil {
			return err
		}
		if !withUnits {
			return nil
		}
		prefix := b.ID
		if b.BatchCode != nil {
			prefix = *b.BatchCode
		}
		units := make([]domain.Unit, 0, b.Quantity)
		for i := 1; i <= b.Quantity; i++ {
			uid, err := uuid.NewV7()
			if err != nil {
				return err
			}
			units = append(units, domain.Unit{
				ID:             uid.String(),
				BatchID:        b.ID,
				SKU:            repos.UnitSKU(prefix, i),
				IsActive:       true,
				IsAvailable:    true,
				MovementStatus: domain.MovementInStock,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if err := s.Units.InsertMany(ctx, units); err != nil {
			return err
		}
		sum = domain.BatchUnitsSummary{InStock: len(units), Total: len(units)}
		return nil
	})
	if err != nil {
		return BatchDetail{}, err
	}
	return BatchDetail{Batch: b, UnitsSummary: sum}, nil
}

func (s *BatchService) Get(ctx context.Context, id string) (BatchDetail, error) {
	id, ok := validate.ID(id)
	if !ok {
		return BatchDetail{}, domain.Invalid("id", "malformed id")
	}
	b, err := s.Batches.ByID(ctx, id)
	if err != nil {
		return BatchDetail{}, err
	}
	sum, err := s.Units.CountByMovement(ctx, id)
	if err != nil {
		return BatchDetail{}, err
	}
	return BatchDetail{Batch: b, UnitsSummary: sum}, nil
}

func (s *BatchService) List(ctx context.Context, variantID string) ([]domain.Batch, error) {
	variantID, ok := validate.OptionalID(variantID)
	if !ok {
		return nil, domain.Invalid("variantId", "malformed id")
	}
	return s.Batches.List(ctx, variantID)
}

// Sell marks quantity units of the batch as sold, picked the same way the
// allocator picks them. Units held by an event are never sold.
func (s *BatchService) Sell(ctx context.Context, batchID string, quantity int) ([]domain.Candidate, error) {
	batchID, ok := validate.ID(batchID)
	if !ok {
		return nil, domain.Invalid("id", "malformed id")
	}
	if !validate.Quantity(quantity) {
		return nil, domain.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", validate.MaxQuantity))
	}
	var sold []domain.Candidate
	err := repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
		if _, err := s.Batches.ByID(ctx, batchID); err != nil {
			return err
		}
		cands, err := s.Units.SelectAvailable(ctx, quantity, domain.Filters{BatchID: batchID})
		if err != nil {
			return err
		}
		if len(cands) < quantity {
			return &domain.InsufficientInventoryError{Found: len(cands), Required: quantity}
		}
		ids := make([]string, 0, len(cands))
		for _, c := range cands {
			ids = append(ids, c.UnitID)
		}
		n, err := s.Units.MarkSold(ctx, ids, domain.NewTime(s.Clock.Now()))
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%w: sold %d of %d selected units", domain.ErrTransactionConflict, n, len(ids))
		}
		sold = cands
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sold, nil
}
