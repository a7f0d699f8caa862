package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/tillworks/till/app/controllers"
	"github.com/tillworks/till/internal/pkg/constants"
	"github.com/tillworks/till/internal/pkg/env"
	"github.com/tillworks/till/internal/pkg/middleware"
)

type HttpRouter struct {
	limiterStorage fiber.Storage
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply TenantContext middleware globally as first middleware
	app.Use(middleware.TenantContextMiddleware)

	// The public surface shares one rate limit. With Redis storage the limit
	// holds across instances; a nil storage falls back to in-memory.
	rateLimit := limiter.New(limiter.Config{
		Max:     120,
		Storage: h.limiterStorage,
	})

	h.registerCheckoutRoutes(app, rateLimit)
	h.registerWebhookRoutes(app, rateLimit)
	h.registerAdminRoutes(app)
}

func (h HttpRouter) registerCheckoutRoutes(app *fiber.App, rateLimit fiber.Handler) {
	app.Post(constants.ForceFinalizeRoute, rateLimit, middleware.RequireTenant, controllers.HandleForceFinalize)
	app.Get(constants.CheckoutStatusRoute, rateLimit, middleware.RequireTenant, controllers.HandleCheckoutStatus)
}

func (h HttpRouter) registerWebhookRoutes(app *fiber.App, rateLimit fiber.Handler) {
	// Platform-scoped: the terminal does not authenticate as a tenant. A
	// rate-limited delivery is redelivered by the terminal, not lost.
	app.Post(constants.TerminalWebhookRoute, rateLimit, controllers.HandleTerminalWebhook)
}

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))
	adminGroup.Get("/queues/data", controllers.HandleAdminQueuesData)
	adminGroup.Get("/webhook-events", controllers.HandleAdminWebhookEvents)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances.
func newLimiterStorage() *redisstorage.Storage {
	port := 6379
	if p, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379")); err == nil {
		port = p
	}
	return redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 1,
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{limiterStorage: newLimiterStorage()}
}
