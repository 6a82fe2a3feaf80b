package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"popjoy/internal/domain"
	applog "popjoy/internal/log"
	"popjoy/internal/repos"
	"popjoy/internal/validate"
)

type EventService struct {
	DB     *sqlx.DB
	Events *repos.EventRepo
	Allocs *repos.AllocationRepo
	Users  *repos.UserRepo
	Alloc  *AllocationService
}

func NewEventService(db *sqlx.DB, events *repos.EventRepo, allocs *repos.AllocationRepo, users *repos.UserRepo, alloc *AllocationService) *EventService {
	return &EventService{DB: db, Events: events, Allocs: allocs, Users: users, Alloc: alloc}
}

// EventDetail is an event with its derived cost and ledger view.
type EventDetail struct {
	domain.Event
	TotalCost    decimal.Decimal     `json:"totalCost"`
	UnitsSummary domain.UnitsSummary `json:"unitsSummary"`
	Allocations  []domain.Allocation `json:"allocations,omitempty"`
}

// CreateEventInput accepts either startAt/endAt or the older
// eventDate/startTime/endTime triple; startAt wins when both are sent.
type CreateEventInput struct {
	Name             string         `json:"name"`
	Description      *string        `json:"description"`
	EventDate        string         `json:"eventDate"`
	StartTime        string         `json:"startTime"`
	EndTime          string         `json:"endTime"`
	StartAt          string         `json:"startAt"`
	EndAt            string         `json:"endAt"`
	ImageURL         *string        `json:"imageUrl"`
	Status           string         `json:"status"`
	InternalOwnerID  string         `json:"internalOwnerId"`
	AllocatedUnits   int            `json:"allocatedUnits"`
	MaxSalesCapacity *int           `json:"maxSalesCapacity"`
	EventPrice       string         `json:"eventPrice"`
	TransportCost    string         `json:"transportCost"`
	FoodCost         string         `json:"foodCost"`
	AddressStreet    *string        `json:"addressStreet"`
	AddressNumber    *string        `json:"addressNumber"`
	AddressCity      *string        `json:"addressCity"`
	AddressState     *string        `json:"addressState"`
	AddressPostal    *string        `json:"addressPostalCode"`
	AddressCountry   string         `json:"addressCountry"`
	Filters          domain.Filters `json:"filters"`
}

// Create stores the event and allocates AllocatedUnits units to it. When the
// allocation fails the event is removed again and the allocation error is
// returned.
func (s *EventService) Create(ctx context.Context, in CreateEventInput) (EventDetail, error) {
	now := s.Alloc.now()
	ev, err := newEvent(in)
	if err != nil {
		return EventDetail{}, err
	}
	if in.Filters, err = validate.Filters(in.Filters); err != nil {
		return EventDetail{}, err
	}
	if _, err := s.Users.ByID(ctx, ev.InternalOwnerID); err != nil {
		return EventDetail{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return EventDetail{}, err
	}
	ev.ID = id.String()
	ev.CreatedAt, ev.UpdatedAt = now, now

	if err := s.Events.Insert(ctx, ev); err != nil {
		return EventDetail{}, err
	}

	allocs, err := s.Alloc.Allocate(ctx, AllocateInput{EventID: ev.ID, Quantity: ev.AllocatedUnits, Filters: in.Filters})
	if err != nil {
		if delErr := s.Events.Delete(context.WithoutCancel(ctx), ev.ID); delErr != nil {
			applog.Error(nil, "event.create.compensate", delErr, map[string]any{"event_id": ev.ID})
			return EventDetail{}, errors.Join(err, delErr)
		}
		applog.Warn(nil, "event.create.compensate", err, map[string]any{"event_id": ev.ID})
		return EventDetail{}, err
	}

	return EventDetail{
		Event:        ev,
		TotalCost:    ev.TotalCost(),
		UnitsSummary: domain.UnitsSummary{TotalAllocated: len(allocs), CurrentlyAllocated: len(allocs)},
		Allocations:  allocs,
	}, nil
}

func newEvent(in CreateEventInput) (domain.Event, error) {
	var ev domain.Event
	var ok bool
	if ev.Name, ok = validate.Name(in.Name); !ok {
		return ev, domain.Invalid("name", "must be 2 to 120 characters")
	}

	switch {
	case in.StartAt != "":
		start, ok := validate.Time(in.StartAt)
		if !ok {
			return ev, domain.Invalid("startAt", "not a timestamp")
		}
		ev.EventDate, ev.StartTime = start, &start
		if in.EndAt != "" {
			end, ok := validate.Time(in.EndAt)
			if !ok {
				return ev, domain.Invalid("endAt", "not a timestamp")
			}
			ev.EndTime = &end
		}
	case in.EventDate != "":
		if ev.EventDate, ok = validate.Time(in.EventDate); !ok {
			return ev, domain.Invalid("eventDate", "not a date")
		}
		var err error
		if ev.StartTime, err = optionalTime("startTime", in.StartTime); err != nil {
			return ev, err
		}
		if ev.EndTime, err = optionalTime("endTime", in.EndTime); err != nil {
			return ev, err
		}
	default:
		return ev, domain.Invalid("startAt", "eventDate or startAt is required")
	}
	if ev.StartTime != nil && ev.EndTime != nil && ev.EndTime.Before(ev.StartTime.Time) {
		return ev, domain.Invalid("endTime", "ends before it starts")
	}

	ev.Status = domain.EventPlanned
	if in.Status != "" {
		if ev.Status, ok = validate.EventStatus(in.Status); !ok {
			return ev, domain.Invalid("status", "unknown status")
		}
	}
	if ev.InternalOwnerID, ok = validate.ID(in.InternalOwnerID); !ok {
		return ev, domain.Invalid("internalOwnerId", "malformed id")
	}
	if !validate.Quantity(in.AllocatedUnits) {
		return ev, domain.Invalid("allocatedUnits", "must allocate at least one unit")
	}
	ev.AllocatedUnits = in.AllocatedUnits
	if in.MaxSalesCapacity != nil && *in.MaxSalesCapacity <= 0 {
		return ev, domain.Invalid("maxSalesCapacity", "must be positive")
	}
	ev.MaxSalesCapacity = in.MaxSalesCapacity

	ev.EventPrice = decimal.Zero
	if in.EventPrice != "" {
		if ev.EventPrice, ok = validate.Money(in.EventPrice); !ok {
			return ev, domain.Invalid("eventPrice", "not a money amount")
		}
	}
	var err error
	if ev.TransportCost, err = optionalMoney("transportCost", in.TransportCost); err != nil {
		return ev, err
	}
	if ev.FoodCost, err = optionalMoney("foodCost", in.FoodCost); err != nil {
		return ev, err
	}

	country := "PT"
	if in.AddressCountry != "" {
		if country, ok = validate.Country(in.AddressCountry); !ok {
			return ev, domain.Invalid("addressCountry", "must be a two-letter code")
		}
	}
	ev.AddressCountry = &country
	ev.Description = blankToNil(in.Description)
	ev.ImageURL = blankToNil(in.ImageURL)
	ev.AddressStreet = blankToNil(in.AddressStreet)
	ev.AddressNumber = blankToNil(in.AddressNumber)
	ev.AddressCity = blankToNil(in.AddressCity)
	ev.AddressState = blankToNil(in.AddressState)
	ev.AddressPostal = blankToNil(in.AddressPostal)
	return ev, nil
}

func (s *EventService) Get(ctx context.Context, id string) (EventDetail, error) {
	id, ok := validate.ID(id)
	if !ok {
		return EventDetail{}, domain.Invalid("id", "malformed id")
	}
	ev, err := s.Events.Active(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}
	allocs, err := s.Allocs.ListByEvent(ctx, id)
	if err != nil {
		return EventDetail{}, err
	}
	return EventDetail{Event: ev, TotalCost: ev.TotalCost(), UnitsSummary: summarize(allocs), Allocations: allocs}, nil
}

// List returns every non-deleted event, latest first, with ledger counts.
func (s *EventService) List(ctx context.Context) ([]EventDetail, error) {
	evs, err := s.Events.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(evs))
	for _, ev := range evs {
		ids = append(ids, ev.ID)
	}
	sums, err := s.Allocs.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]EventDetail, 0, len(evs))
	for _, ev := range evs {
		out = append(out, EventDetail{Event: ev, TotalCost: ev.TotalCost(), UnitsSummary: sums[ev.ID]})
	}
	return out, nil
}

// UpdateEventInput is a partial update: nil fields are left as they are and
// an empty string clears an optional text field.
type UpdateEventInput struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	EventDate        *string `json:"eventDate"`
	StartTime        *string `json:"startTime"`
	EndTime          *string `json:"endTime"`
	ImageURL         *string `json:"imageUrl"`
	Status           *string `json:"status"`
	InternalOwnerID  *string `json:"internalOwnerId"`
	AllocatedUnits   *int    `json:"allocatedUnits"`
	MaxSalesCapacity *int    `json:"maxSalesCapacity"`
	EventPrice       *string `json:"eventPrice"`
	TransportCost    *string `json:"transportCost"`
	FoodCost         *string `json:"foodCost"`
	AddressStreet    *string `json:"addressStreet"`
	AddressNumber    *string `json:"addressNumber"`
	AddressCity      *string `json:"addressCity"`
	AddressState     *string `json:"addressState"`
	AddressPostal    *string `json:"addressPostalCode"`
	AddressCountry   *string `json:"addressCountry"`
	Rating           *int    `json:"rating"`
	RatingComment    *string `json:"ratingComment"`
}

// Update never touches allocations; allocatedUnits stays informational.
func (s *EventService) Update(ctx context.Context, id string, in UpdateEventInput) (EventDetail, error) {
	id, ok := validate.ID(id)
	if !ok {
		return EventDetail{}, domain.Invalid("id", "malformed id")
	}
	err := repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
		ev, err := s.Events.Active(ctx, id)
		if err != nil {
			return err
		}
		if err := applyUpdate(&ev, in); err != nil {
			return err
		}
		if in.InternalOwnerID != nil {
			if _, err := s.Users.ByID(ctx, ev.InternalOwnerID); err != nil {
				return err
			}
		}
		ev.UpdatedAt = s.Alloc.now()
		return s.Events.Update(ctx, ev)
	})
	if err != nil {
		return EventDetail{}, err
	}
	return s.Get(ctx, id)
}

func applyUpdate(ev *domain.Event, in UpdateEventInput) error {
	var ok bool
	if in.Name != nil {
		if ev.Name, ok = validate.Name(*in.Name); !ok {
			return domain.Invalid("name", "must be 2 to 120 characters")
		}
	}
	if in.EventDate != nil {
		if ev.EventDate, ok = validate.Time(*in.EventDate); !ok {
			return domain.Invalid("eventDate", "not a date")
		}
	}
	var err error
	if in.StartTime != nil {
		if ev.StartTime, err = optionalTime("startTime", *in.StartTime); err != nil {
			return err
		}
	}
	if in.EndTime != nil {
		if ev.EndTime, err = optionalTime("endTime", *in.EndTime); err != nil {
			return err
		}
	}
	if ev.StartTime != nil && ev.EndTime != nil && ev.EndTime.Before(ev.StartTime.Time) {
		return domain.Invalid("endTime", "ends before it starts")
	}
	if in.Status != nil {
		if ev.Status, ok = validate.EventStatus(*in.Status); !ok {
			return domain.Invalid("status", "unknown status")
		}
	}
	if in.InternalOwnerID != nil {
		if ev.InternalOwnerID, ok = validate.ID(*in.InternalOwnerID); !ok {
			return domain.Invalid("internalOwnerId", "malformed id")
		}
	}
	if in.AllocatedUnits != nil {
		if !validate.Quantity(*in.AllocatedUnits) {
			return domain.Invalid("allocatedUnits", "must be positive")
		}
		ev.AllocatedUnits = *in.AllocatedUnits
	}
	if in.MaxSalesCapacity != nil {
		if *in.MaxSalesCapacity <= 0 {
			return domain.Invalid("maxSalesCapacity", "must be positive")
		}
		ev.MaxSalesCapacity = in.MaxSalesCapacity
	}
	if in.EventPrice != nil {
		ev.EventPrice = decimal.Zero
		if *in.EventPrice != "" {
			if ev.EventPrice, ok = validate.Money(*in.EventPrice); !ok {
				return domain.Invalid("eventPrice", "not a money amount")
			}
		}
	}
	if in.TransportCost != nil {
		if ev.TransportCost, err = optionalMoney("transportCost", *in.TransportCost); err != nil {
			return err
		}
	}
	if in.FoodCost != nil {
		if ev.FoodCost, err = optionalMoney("foodCost", *in.FoodCost); err != nil {
			return err
		}
	}
	if in.AddressCountry != nil {
		if *in.AddressCountry == "" {
			ev.AddressCountry = nil
		} else {
			country, ok := validate.Country(*in.AddressCountry)
			if !ok {
				return domain.Invalid("addressCountry", "must be a two-letter code")
			}
			ev.AddressCountry = &country
		}
	}
	if in.Rating != nil {
		if !validate.Rating(*in.Rating) {
			return domain.Invalid("rating", "must be between 1 and 5")
		}
		ev.Rating = in.Rating
	}
	for _, f := range []struct {
		src *string
		dst **string
	}{
		{in.Description, &ev.Description},
		{in.ImageURL, &ev.ImageURL},
		{in.AddressStreet, &ev.AddressStreet},
		{in.AddressNumber, &ev.AddressNumber},
		{in.AddressCity, &ev.AddressCity},
		{in.AddressState, &ev.AddressState},
		{in.AddressPostal, &ev.AddressPostal},
		{in.RatingComment, &ev.RatingComment},
	} {
		if f.src != nil {
			*f.dst = blankToNil(f.src)
		}
	}
	return nil
}

// Delete soft-deletes the event and releases whatever it still holds, in one
// transaction. It returns the released allocations.
func (s *EventService) Delete(ctx context.Context, id string) ([]domain.Allocation, error) {
	id, ok := validate.ID(id)
	if !ok {
		return nil, domain.Invalid("id", "malformed id")
	}
	var released []domain.Allocation
	err := s.Alloc.retry(ctx, "delete", id, func() error {
		return repos.WithTx(ctx, s.DB, func(ctx context.Context) error {
			if _, err := s.Events.Active(ctx, id); err != nil {
				return err
			}
			var err error
			if released, err = s.Alloc.release(ctx, id, nil); err != nil {
				return err
			}
			return s.Events.SoftDelete(ctx, id, s.Alloc.now())
		})
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func summarize(allocs []domain.Allocation) domain.UnitsSummary {
	s := domain.UnitsSummary{TotalAllocated: len(allocs)}
	for _, a := range allocs {
		if a.Open() {
			s.CurrentlyAllocated++
		} else {
			s.Released++
		}
	}
	return s
}

func optionalTime(field, s string) (*domain.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, ok := validate.Time(s)
	if !ok {
		return nil, domain.Invalid(field, "not a timestamp")
	}
	return &t, nil
}

func optionalMoney(field, s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, ok := validate.Money(s)
	if !ok {
		return decimal.NullDecimal{}, domain.Invalid(field, fmt.Sprintf("%q is not a money amount", s))
	}
	return decimal.NewNullDecimal(d), nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
