package handlers

import (
	"github.com/gofiber/fiber/v2"

	"popjoy/internal/domain"
	applog "popjoy/internal/log"
	"popjoy/internal/services"
)

type AdminHandler struct {
	Events *services.EventService
}

// GET /admin/events
func (h *AdminHandler) EventsPage(c *fiber.Ctx) error {
	evs, err := h.Events.List(c.UserContext())
	if err != nil {
		applog.Error(c, "admin.events.list.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load events"})
	}
	return render(c, "events", fiber.Map{"Events": evs})
}

// GET /admin/events/:id
func (h *AdminHandler) EventPage(c *fiber.Ctx) error {
	d, err := h.Events.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if domain.IsNotFound(err) || isValidation(err) {
			return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Event not found"})
		}
		applog.Error(c, "admin.events.get.fail", err, map[string]any{"event_id": c.Params("id")})
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load event"})
	}
	return render(c, "event", fiber.Map{"Event": d})
}
