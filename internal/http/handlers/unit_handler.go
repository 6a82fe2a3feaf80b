package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"popjoy/internal/domain"
	applog "popjoy/internal/log"
	"popjoy/internal/services"
	"popjoy/internal/validate"
)

type UnitHandler struct {
	Units *services.UnitService
	Alloc *services.AllocationService
}

// GET /units/available?quantity=&variantId=&batchId=&minExpirationDate=
func (h *UnitHandler) Available(c *fiber.Ctx) error {
	qty := validate.QuantityParam(c.Query("quantity", "1"))
	if qty == 0 {
		return respond(c, "unit.available", domain.Invalid("quantity", "must be a positive integer"))
	}
	f := domain.Filters{VariantID: c.Query("variantId"), BatchID: c.Query("batchId")}
	if s := strings.TrimSpace(c.Query("minExpirationDate")); s != "" {
		t, ok := validate.Time(s)
		if !ok {
			return respond(c, "unit.available", domain.Invalid("minExpirationDate", "not a date"))
		}
		f.MinExpiration = &t
	}
	cands, err := h.Alloc.SelectAvailable(c.UserContext(), qty, f)
	if err != nil {
		return respond(c, "unit.available", err)
	}
	return c.JSON(fiber.Map{"requested": qty, "found": len(cands), "units": cands})
}

// GET /units/:id
func (h *UnitHandler) Get(c *fiber.Ctx) error {
	u, err := h.Units.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respond(c, "unit.get", err)
	}
	return c.JSON(u)
}

// PATCH /units/:id/movement
func (h *UnitHandler) UpdateMovement(c *fiber.Ctx) error {
	var in services.MovementInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, "unit.movement", err)
	}
	u, err := h.Units.UpdateMovement(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return respond(c, "unit.movement", err)
	}
	applog.Audit(c, "unit.movement", map[string]any{"unit_id": u.ID, "status": u.MovementStatus})
	return c.JSON(u)
}
