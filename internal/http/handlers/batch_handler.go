package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	applog "popjoy/internal/log"
	"popjoy/internal/services"
)

type BatchHandler struct {
	Batches *services.BatchService
}

// GET /batches?variantId=
func (h *BatchHandler) List(c *fiber.Ctx) error {
	bs, err := h.Batches.List(c.UserContext(), c.Query("variantId"))
	if err != nil {
		return respond(c, "batch.list", err)
	}
	return c.JSON(bs)
}

// POST /batches
func (h *BatchHandler) Create(c *fiber.Ctx) error {
	var in services.CreateBatchInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, "batch.create", err)
	}
	b, err := h.Batches.Create(c.UserContext(), in)
	if err != nil {
		return respond(c, "batch.create", err)
	}
	applog.Audit(c, "batch.create", map[string]any{
		"batch_id": b.ID, "variant_id": b.VariantID, "quantity": b.Quantity, "units": b.UnitsSummary.Total,
	})
	return c.Status(fiber.StatusCreated).JSON(b)
}

// GET /batches/:id
func (h *BatchHandler) Get(c *fiber.Ctx) error {
	b, err := h.Batches.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respond(c, "batch.get", err)
	}
	return c.JSON(b)
}

// POST /batches/:id/sell
func (h *BatchHandler) Sell(c *fiber.Ctx) error {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, "batch.sell", err)
	}
	id := c.Params("id")
	sold, err := h.Batches.Sell(c.UserContext(), id, req.Quantity)
	if err != nil {
		return respond(c, "batch.sell", err)
	}
	ids := make([]string, 0, len(sold))
	for _, u := range sold {
		ids = append(ids, u.UnitID)
	}
	applog.Audit(c, "batch.sell", map[string]any{"batch_id": id, "quantity": len(sold)})
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   fmt.Sprintf("%d unit(s) sold", len(sold)),
		"soldCount": len(sold),
		"unitIds":   ids,
	})
}
