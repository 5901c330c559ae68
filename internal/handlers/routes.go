package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/visawatch/internal/detect"
	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

// Deps are the stores and services the routes read from
type Deps struct {
	Snapshots *store.SnapshotStore
	Changes   *store.ChangeStore
	Stats     *service.StatsService
}

// Register mounts the HTML pages and the JSON API on app
func Register(app *fiber.App, deps Deps) {
	detector := detect.NewDetector(deps.Snapshots)

	app.Get("/", DashboardHandler(deps.Stats, deps.Changes))
	app.Get("/history/:casenum", CaseHistoryHandler(detector, deps.Changes))
	app.Get("/changes", ChangesPageHandler(deps.Changes))
	app.Get("/trends", TrendsHandler(deps.Stats))
	app.Get("/forum", ForumHandler(deps.Stats))

	api := app.Group("/api")
	api.Get("/changes", ChangesAPIHandler(deps.Changes))
	api.Get("/records", RecordsAPIHandler(deps.Snapshots))
	api.Get("/stats", StatsAPIHandler(deps.Stats))
	api.Get("/history/:casenum", HistoryAPIHandler(detector))
}
