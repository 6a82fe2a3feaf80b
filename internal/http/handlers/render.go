package handlers

import (
	"github.com/gofiber/fiber/v2"

	"popjoy/internal/domain"
)

func render(c *fiber.Ctx, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if rid, ok := c.Locals("requestid").(string); ok {
		data["RequestID"] = rid
	}
	c.Type("html", "utf-8")
	return c.Render(tmpl, data)
}

// formatTime is the "date" template func; it takes domain.Time or *domain.Time.
func formatTime(v any) string {
	switch t := v.(type) {
	case domain.Time:
		return t.Format("2006-01-02 15:04 MST")
	case *domain.Time:
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02 15:04 MST")
	}
	return ""
}
