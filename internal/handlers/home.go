package handlers

import (
	"errors"
	"log/slog"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
	"github.com/jjenkins/visawatch/internal/templates"
)

const dashboardChanges = 50

func DashboardHandler(stats *service.StatsService, changeStore *store.ChangeStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		month := c.Query("month")

		data := templates.DashboardData{}

		s, err := stats.Statistics(ctx, month)
		switch {
		case errors.Is(err, service.ErrNoSnapshot):
		case err != nil:
			slog.ErrorContext(ctx, "failed to load statistics", "error", err)
		default:
			data.Stats = s
		}

		if data.Stats != nil {
			changes, err := changeStore.ListChanges(ctx, store.ChangeFilter{Period: month, Limit: dashboardChanges})
			if err != nil {
				slog.ErrorContext(ctx, "failed to load recent changes", "error", err)
			} else {
				data.Changes = changes
			}
		}

		page := templates.Dashboard(data)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
