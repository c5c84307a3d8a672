package server

import (
	"time"

	"github.com/dynamatics/dynamatics/internal/controllers"
	"github.com/dynamatics/dynamatics/internal/middlewares"
	"github.com/dynamatics/dynamatics/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	FlowController *controllers.FlowController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "dynamatics-backend",
	})

	router.Use(cors.New())
	router.Use(logger.New())
	router.Use(middlewares.SecurityHeaders())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "dynamatics-backend",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Get("/version", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(version.Get())
	})

	flows := router.Group("/flows")

	flows.Post("/", deps.FlowController.CreateFlow)
	flows.Get("/", deps.FlowController.GetAllFlows)

	// Execution routes are registered before the parameterized CRUD routes
	// so "execute" and "schema" never match :flowID.
	flows.Post("/execute", deps.FlowController.ExecuteFlow)
	flows.Post("/execute/:flowID", deps.FlowController.ExecuteStoredFlow)
	flows.Post("/schema", deps.FlowController.FlowSchema)

	flows.Get("/:flowID", deps.FlowController.GetFlow)
	flows.Put("/:flowID", deps.FlowController.UpdateFlow)
	flows.Delete("/:flowID", deps.FlowController.DeleteFlow)

	return router
}
