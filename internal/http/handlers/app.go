package handlers

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"

	"popjoy/internal/config"
	applog "popjoy/internal/log"
	"popjoy/web"
)

// NewApp builds the fiber app with middleware and every route.
func NewApp(cfg config.Config, d *Deps) *fiber.App {
	tmpl, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(tmpl), ".html")
	engine.AddFunc("date", formatTime)

	bodyLimit := cfg.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20 // 1 MiB
	}
	app := fiber.New(fiber.Config{
		Views:                 engine,
		BodyLimit:             bodyLimit,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	ev := app.Group("/events", writeLimiter(cfg.RateLimitMax))
	ev.Get("/", d.EventHandler.List)
	ev.Post("/", d.EventHandler.Create)
	ev.Get("/:id", d.EventHandler.Get)
	ev.Put("/:id", d.EventHandler.Update)
	ev.Delete("/:id", d.EventHandler.Delete)
	ev.Post("/:id/allocate-units", d.EventHandler.AllocateUnits)
	ev.Post("/:id/release-units", d.EventHandler.ReleaseUnits)

	bt := app.Group("/batches", writeLimiter(cfg.RateLimitMax))
	bt.Get("/", d.BatchHandler.List)
	bt.Post("/", d.BatchHandler.Create)
	bt.Get("/:id", d.BatchHandler.Get)
	bt.Post("/:id/sell", d.BatchHandler.Sell)

	un := app.Group("/units", writeLimiter(cfg.RateLimitMax))
	un.Get("/available", d.UnitHandler.Available)
	un.Get("/:id", d.UnitHandler.Get)
	un.Patch("/:id/movement", d.UnitHandler.UpdateMovement)

	admin := app.Group("/admin")
	admin.Get("/events", d.AdminHandler.EventsPage)
	admin.Get("/events/:id", d.AdminHandler.EventPage)

	app.Use(func(c *fiber.Ctx) error {
		return fail(c, fiber.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	return app
}

// writeLimiter caps mutating requests per client at limit per minute. Each call
// keeps its own counters, so every route group has a separate budget.
func writeLimiter(limit int) fiber.Handler {
	if limit <= 0 {
		limit = 60
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.write.hit", map[string]any{"limit": limit})
			return fail(c, fiber.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, retry soon", nil)
		},
	})
}
