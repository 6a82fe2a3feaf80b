package domain

import (
	"github.com/shopspring/decimal"
)

type MovementStatus string

const (
	MovementInStock   MovementStatus = "in_stock"
	MovementSold      MovementStatus = "sold"
	MovementReturned  MovementStatus = "returned"
	MovementDiscarded MovementStatus = "discarded"
)

func (m MovementStatus) Valid() bool {
	switch m {
	case MovementInStock, MovementSold, MovementReturned, MovementDiscarded:
		return true
	}
	return false
}

type EventStatus string

const (
	EventPlanned   EventStatus = "PLANNED"
	EventConfirmed EventStatus = "CONFIRMED"
	EventCancelled EventStatus = "CANCELLED"
	EventFinished  EventStatus = "FINISHED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventPlanned, EventConfirmed, EventCancelled, EventFinished:
		return true
	}
	return false
}

// Open reports whether units can still be allocated to an event in this status.
func (s EventStatus) Open() bool { return s == EventPlanned || s == EventConfirmed }

type User struct {
	ID        string `db:"id" json:"id"`
	Email     string `db:"email" json:"email"`
	Name      string `db:"name" json:"name"`
	Role      string `db:"role" json:"role"` // ADMIN | MANAGER | USER
	CreatedAt Time   `db:"created_at" json:"createdAt"`
}

type Product struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	CreatedAt Time   `db:"created_at" json:"createdAt"`
}

type Variant struct {
	ID          string           `db:"id" json:"id"`
	ProductID   string           `db:"product_id" json:"productId"`
	SKU         string           `db:"sku" json:"sku"`
	Weight      *int             `db:"weight" json:"weight"`
	RetailPrice *decimal.Decimal `db:"retail_price" json:"retailPrice"`
	IsActive    bool             `db:"is_active" json:"isActive"`
	SoftDelete  bool             `db:"soft_delete" json:"softDelete"`
	CreatedAt   Time             `db:"created_at" json:"createdAt"`
}

type Batch struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	VariantID      string  `db:"product_variant_id" json:"variantId"`
	ProductionDate Time    `db:"production_date" json:"productionDate"`
	ExpirationDate Time    `db:"expiration_date" json:"expirationDate"`
	Quantity       int     `db:"quantity" json:"quantity"`
	BatchCode      *string `db:"batch_code" json:"batchCode"`
	CreatedAt      Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      Time    `db:"updated_at" json:"updatedAt"`
}

// Unit is one physically trackable item. IsAvailable is a write-through cache
// of ledger state; eligibility is always decided against the ledger.
type Unit struct {
	ID             string         `db:"id" json:"id"`
	BatchID        string         `db:"batch_id" json:"batchId"`
	SKU            string         `db:"sku" json:"sku"`
	Sold           bool           `db:"sold" json:"sold"`
	IsActive       bool           `db:"is_active" json:"isActive"`
	IsAvailable    bool           `db:"is_available" json:"isAvailable"`
	MovementStatus MovementStatus `db:"movement_status" json:"movementStatus"`
	ReturnReason   *string        `db:"return_reason" json:"returnReason"`
	ReturnDate     *Time          `db:"return_date" json:"returnDate"`
	CreatedAt      Time           `db:"created_at" json:"createdAt"`
	UpdatedAt      Time           `db:"updated_at" json:"updatedAt"`
}

// Candidate is a unit returned by the selector together with the batch
// attributes the filters were evaluated on.
type Candidate struct {
	UnitID         string `db:"unit_id" json:"unitId"`
	SKU            string `db:"sku" json:"sku"`
	BatchID        string `db:"batch_id" json:"batchId"`
	BatchName      string `db:"batch_name" json:"batchName"`
	VariantID      string `db:"variant_id" json:"variantId"`
	ExpirationDate Time   `db:"expiration_date" json:"expirationDate"`
}

// Filters are conjunctive; zero values are ignored.
type Filters struct {
	VariantID     string `json:"variantId,omitempty"`
	BatchID       string `json:"batchId,omitempty"`
	MinExpiration *Time  `json:"minExpirationDate,omitempty"`
}

type Event struct {
	ID               string              `db:"id" json:"id"`
	Name             string              `db:"name" json:"name"`
	Description      *string             `db:"description" json:"description"`
	EventDate        Time                `db:"event_date" json:"eventDate"`
	StartTime        *Time               `db:"start_time" json:"startTime"`
	EndTime          *Time               `db:"end_time" json:"endTime"`
	ImageURL         *string             `db:"image_url" json:"imageUrl"`
	Status           EventStatus         `db:"status" json:"status"`
	InternalOwnerID  string              `db:"internal_owner_id" json:"internalOwnerId"`
	AllocatedUnits   int                 `db:"allocated_units" json:"allocatedUnits"`
	MaxSalesCapacity *int                `db:"max_sales_capacity" json:"maxSalesCapacity"`
	EventPrice       decimal.Decimal     `db:"event_price" json:"eventPrice"`
	TransportCost    decimal.NullDecimal `db:"transport_cost" json:"transportCost"`
	FoodCost         decimal.NullDecimal `db:"food_cost" json:"foodCost"`
	Rating           *int                `db:"rating" json:"rating"`
	RatingComment    *string             `db:"rating_comment" json:"ratingComment"`
	AddressStreet    *string             `db:"address_street" json:"addressStreet"`
	AddressNumber    *string             `db:"address_number" json:"addressNumber"`
	AddressCity      *string             `db:"address_city" json:"addressCity"`
	AddressState     *string             `db:"address_state" json:"addressState"`
	AddressPostal    *string             `db:"address_postal_code" json:"addressPostalCode"`
	AddressCountry   *string             `db:"address_country" json:"addressCountry"`
	DeletedAt        *Time               `db:"deleted_at" json:"deletedAt"`
	CreatedAt        Time                `db:"created_at" json:"createdAt"`
	UpdatedAt        Time                `db:"updated_at" json:"updatedAt"`
}

func (e Event) Deleted() bool { return e.DeletedAt != nil }

// TotalCost sums participation, transport and food costs.
func (e Event) TotalCost() decimal.Decimal {
	total := e.EventPrice
	if e.TransportCost.Valid {
		total = total.Add(e.TransportCost.Decimal)
	}
	if e.FoodCost.Valid {
		total = total.Add(e.FoodCost.Decimal)
	}
	return total
}

// Allocation links a unit to an event for [AllocatedAt, ReleasedAt).
// A nil ReleasedAt means the unit is currently held.
type Allocation struct {
	ID          string `db:"id" json:"id"`
	EventID     string `db:"event_id" json:"eventId"`
	UnitID      string `db:"unit_id" json:"unitId"`
	AllocatedAt Time   `db:"allocated_at" json:"allocatedAt"`
	ReleasedAt  *Time  `db:"released_at" json:"releasedAt"`
}

func (a Allocation) Open() bool { return a.ReleasedAt == nil }

type UnitsSummary struct {
	TotalAllocated     int `db:"total_allocated" json:"totalAllocated"`
	CurrentlyAllocated int `db:"currently_allocated" json:"currentlyAllocated"`
	Released           int `db:"released" json:"released"`
}

type BatchUnitsSummary struct {
	InStock   int `db:"in_stock" json:"inStock"`
	Sold      int `db:"sold" json:"sold"`
	Returned  int `db:"returned" json:"returned"`
	Discarded int `db:"discarded" json:"discarded"`
	Total     int `db:"total" json:"total"`
}
