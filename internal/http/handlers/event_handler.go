package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"popjoy/internal/domain"
	applog "popjoy/internal/log"
	"popjoy/internal/services"
	"popjoy/internal/validate"
)

type EventHandler struct {
	Events *services.EventService
	Alloc  *services.AllocationService
}

// GET /events
func (h *EventHandler) List(c *fiber.Ctx) error {
	evs, err := h.Events.List(c.UserContext())
	if err != nil {
		return respond(c, "event.list", err)
	}
	return c.JSON(evs)
}

// GET /events/:id
func (h *EventHandler) Get(c *fiber.Ctx) error {
	d, err := h.Events.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respond(c, "event.get", err)
	}
	return c.JSON(d)
}

// POST /events
func (h *EventHandler) Create(c *fiber.Ctx) error {
	var in services.CreateEventInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, "event.create", err)
	}
	d, err := h.Events.Create(c.UserContext(), in)
	if err != nil {
		return respond(c, "event.create", err)
	}
	applog.Audit(c, "event.create", map[string]any{
		"event_id": d.ID, "status": d.Status, "allocated": len(d.Allocations),
	})
	return c.Status(fiber.StatusCreated).JSON(d)
}

// PUT /events/:id
func (h *EventHandler) Update(c *fiber.Ctx) error {
	var in services.UpdateEventInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, "event.update", err)
	}
	d, err := h.Events.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return respond(c, "event.update", err)
	}
	applog.Audit(c, "event.update", map[string]any{"event_id": d.ID, "status": d.Status})
	return c.JSON(d)
}

// DELETE /events/:id
func (h *EventHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	released, err := h.Events.Delete(c.UserContext(), id)
	if err != nil {
		return respond(c, "event.delete", err)
	}
	applog.Audit(c, "event.delete", map[string]any{"event_id": id, "released": len(released)})
	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Event deleted successfully",
		"releasedCount": len(released),
	})
}

type allocateRequest struct {
	Quantity          int    `json:"quantity"`
	VariantID         string `json:"variantId"`
	ProductVariantID  string `json:"productVariantId"`
	BatchID           string `json:"batchId"`
	MinExpirationDate string `json:"minExpirationDate"`
}

// POST /events/:id/allocate-units
func (h *EventHandler) AllocateUnits(c *fiber.Ctx) error {
	var req allocateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, "event.allocate", err)
	}
	f := domain.Filters{VariantID: req.VariantID, BatchID: req.BatchID}
	if f.VariantID == "" {
		f.VariantID = req.ProductVariantID
	}
	if s := strings.TrimSpace(req.MinExpirationDate); s != "" {
		t, ok := validate.Time(s)
		if !ok {
			return respond(c, "event.allocate", domain.Invalid("minExpirationDate", "not a date"))
		}
		f.MinExpiration = &t
	}

	eventID := c.Params("id")
	allocs, err := h.Alloc.Allocate(c.UserContext(), services.AllocateInput{EventID: eventID, Quantity: req.Quantity, Filters: f})
	if err != nil {
		return respond(c, "event.allocate", err)
	}
	ids := make([]string, 0, len(allocs))
	for _, a := range allocs {
		ids = append(ids, a.UnitID)
	}
	applog.Audit(c, "event.allocate", map[string]any{
		"event_id": eventID, "quantity": req.Quantity, "variant_id": f.VariantID, "batch_id": f.BatchID,
	})
	return c.JSON(fiber.Map{
		"success":        true,
		"message":        fmt.Sprintf("%d unit(s) allocated to the event", len(allocs)),
		"allocatedCount": len(allocs),
		"unitIds":        ids,
	})
}

type releaseRequest struct {
	UnitIDs []string `json:"unitIds"`
}

// POST /events/:id/release-units
func (h *EventHandler) ReleaseUnits(c *fiber.Ctx) error {
	var req releaseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, "event.release", err)
		}
	}
	eventID := c.Params("id")
	released, err := h.Alloc.Release(c.UserContext(), services.ReleaseInput{EventID: eventID, UnitIDs: req.UnitIDs})
	if err != nil {
		return respond(c, "event.release", err)
	}
	applog.Audit(c, "event.release", map[string]any{
		"event_id": eventID, "requested": len(req.UnitIDs), "released": len(released),
	})
	return c.JSON(fiber.Map{
		"success":       true,
		"message":       fmt.Sprintf("%d unit(s) released from the event", len(released)),
		"releasedCount": len(released),
	})
}
