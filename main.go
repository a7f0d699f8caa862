package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tillworks/till/app/models"
	"github.com/tillworks/till/internal/pkg/cache"
	"github.com/tillworks/till/internal/pkg/database"
	"github.com/tillworks/till/internal/pkg/env"
	"github.com/tillworks/till/internal/pkg/jobqueue"
	"github.com/tillworks/till/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Webhook deliveries are acknowledged before processing; the queue is
	// what guarantees they still run to completion.
	manager := jobqueue.GetManager()
	manager.Start()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))

	// Drain the workers before exiting; log.Fatal would skip deferred calls.
	manager.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	if err := models.LoadSettings(database.GetDB()); err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Till",
		BodyLimit: 1 * 1024 * 1024, // terminal payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
