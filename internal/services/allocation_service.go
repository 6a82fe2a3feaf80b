package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"popjoy/internal/clock"
	"popjoy/internal/domain"
	applog "popjoy/internal/log"
	"popjoy/internal/repos"
	"popjoy/internal/validate"
)

// AllocationService reserves units for events and hands them back. Every
// allocate and release runs in one store transaction; write conflicts are
// retried a bounded number of times before they surface.
type AllocationService struct {
	DB     *sqlx.DB
	Units  *repos.UnitRepo
	Allocs *repos.AllocationRepo
	Events *repos.EventRepo

	clock      clock.Clock
	maxRetries int
	backoff    time.Duration
}

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 20 * time.Millisecond
)

type AllocationOption func(*AllocationService)

// WithMaxRetries sets how many attempts a conflicting transaction gets.
func WithMaxRetries(n int) AllocationOption {
	return func(s *AllocationService) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay; attempt k waits k times this.
func WithRetryBackoff(d time.Duration) AllocationOption {
	return func(s *AllocationService) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

func WithClock(c clock.Clock) AllocationOption {
	return func(s *AllocationService) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewAllocationService(db *sqlx.DB, units *repos.UnitRepo, allocs *repos.AllocationRepo, events *repos.EventRepo, opts ...AllocationOption) *AllocationService {
	s := &AllocationService{
		DB:         db,
		Units:      units,
		Allocs:     allocs,
		Events:     events,
		clock:      clock.NewSystem(),
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AllocationService) now() domain.Time { return domain.NewTime(s.clock.Now()) }

// SelectAvailable previews which units an allocation with the same filters
// would take. It never writes.
func (s *AllocationService) SelectAvailable(ctx context.Context, quantity int, f domain.Filters) ([]domain.Candidate, error) {
	if !validate.Quantity(quantity) {
		return nil, domain.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", validate.MaxQuantity))
	}
	f, err := validate.Filters(f)
	if err != nil {
		return nil, err
	}
	return s.Units.SelectAvailable(ctx, quantity, f)
}

type AllocateInput struct {
	EventID  string
	Quantity int
	Filters  domain.Filters
}

// Allocate reserves exactly in.Quantity eligible units for the event, or
// nothing at all.
func (s *AllocationService) Allocate(ctx context.Context, in AllocateInput) ([]domain.Allocation, error) {
	eventID, ok := validate.ID(in.EventID)
	if !ok {
		return nil, domain.Invalid("eventId", "malformed id")
	}
	if !validate.Quantity(in.Quantity) {
		return nil, domain.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", validate.MaxQuantity))
	}
	filters, err := validate.Filters(in.Filters)
	if err != nil {
		return nil, err
	}

	var out []domain.Allocation
	err = s.retry(ctx, "allocate", eventID, func() error {
		out = nil
		return repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
			ev, err := s.Events.Active(ctx, eventID)
			if err != nil {
				return err
			}
			if !ev.Status.Open() {
				return fmt.Errorf("%w: event is %s", domain.ErrEventClosed, ev.Status)
			}

			cands, err := s.Units.SelectAvailable(ctx, in.Quantity, filters)
			if err != nil {
				return err
			}
			if len(cands) < in.Quantity {
				return &domain.InsufficientInventoryError{Found: len(cands), Required: in.Quantity}
			}

			now := s.now()
			rows := make([]domain.Allocation, 0, len(cands))
			ids := make([]string, 0, len(cands))
			for _, c := range cands {
				id, err := uuid.NewV7()
				if err != nil {
					return err
				}
				rows = append(rows, domain.Allocation{ID: id.String(), EventID: eventID, UnitID: c.UnitID, AllocatedAt: now})
				ids = append(ids, c.UnitID)
			}
			if err := s.Allocs.InsertMany(ctx, rows); err != nil {
				return err
			}
			n, err := s.Units.Reserve(ctx, ids, now)
			if err != nil {
				return err
			}
			if n != int64(len(ids)) {
				return fmt.Errorf("%w: reserved %d of %d selected units", domain.ErrTransactionConflict, n, len(ids))
			}
			out = rows
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type ReleaseInput struct {
	EventID string
	UnitIDs []string // empty releases every open allocation of the event
}

// Release closes the event's open allocations and makes the units
// available again. Releasing nothing is not an error.
func (s *AllocationService) Release(ctx context.Context, in ReleaseInput) ([]domain.Allocation, error) {
	eventID, ok := validate.ID(in.EventID)
	if !ok {
		return nil, domain.Invalid("eventId", "malformed id")
	}
	unitIDs, ok := validate.IDs(in.UnitIDs)
	if !ok {
		return nil, domain.Invalid("unitIds", "malformed or too many ids")
	}

	var out []domain.Allocation
	err := s.retry(ctx, "release", eventID, func() error {
		out = nil
		return repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
			if _, err := s.Events.Active(ctx, eventID); err != nil {
				return err
			}
			released, err := s.release(ctx, eventID, unitIDs)
			out = released
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// release runs inside the caller's transaction; EventService.Delete reuses it.
func (s *AllocationService) release(ctx context.Context, eventID string, unitIDs []string) ([]domain.Allocation, error) {
	open, err := s.Allocs.OpenByEvent(ctx, eventID, unitIDs)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return []domain.Allocation{}, nil
	}

	now := s.now()
	ids := make([]string, 0, len(open))
	units := make([]string, 0, len(open))
	for _, a := range open {
		ids = append(ids, a.ID)
		units = append(units, a.UnitID)
	}
	n, err := s.Allocs.MarkReleased(ctx, ids, now)
	if err != nil {
		return nil, err
	}
	if n != int64(len(ids)) {
		return nil, fmt.Errorf("%w: released %d of %d allocations", domain.ErrTransactionConflict, n, len(ids))
	}
	if _, err := s.Units.Restore(ctx, units, now); err != nil {
		return nil, err
	}
	for i := range open {
		open[i].ReleasedAt = &now
	}
	return open, nil
}

func (s *AllocationService) retry(ctx context.Context, op, eventID string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrTransactionConflict) || attempt == s.maxRetries {
			return err
		}
		applog.Warn(nil, "allocation.retry", err, map[string]any{
			"op": op, "event_id": eventID, "attempt": attempt, "max_retries": s.maxRetries,
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return err
}
