package handlers

import (
	"errors"
	"log/slog"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
	"github.com/jjenkins/visawatch/internal/templates"
)

const changeLogLimit = 100

// ChangesPageHandler lists the most recent changes, optionally narrowed to a
// month and change type
func ChangesPageHandler(changeStore *store.ChangeStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		data := templates.ChangesData{Month: c.Query("month")}
		filter := store.ChangeFilter{Period: data.Month, Limit: changeLogLimit}
		if raw := c.Query("change_type"); raw != "" {
			kind, err := model.ParseChangeKind(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).SendString("Invalid change type")
			}
			filter.Kind = kind
			data.Kind = string(kind)
		}

		changes, err := changeStore.ListChanges(ctx, filter)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list changes", "error", err)
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading changes")
		}
		data.Changes = changes

		page := templates.Changes(data)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

func TrendsHandler(stats *service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		s, err := stats.Statistics(ctx, c.Query("month"))
		if err != nil && !errors.Is(err, service.ErrNoSnapshot) {
			slog.ErrorContext(ctx, "failed to load statistics", "error", err)
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading statistics")
		}

		page := templates.Trends(s)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

// ForumHandler shows notes left on H1 cases. Cleared cases are hidden unless
// excludeApproved=false is passed.
func ForumHandler(stats *service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		exclude := c.Query("excludeApproved") != "false"
		posts, err := stats.ForumPosts(ctx, exclude)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load forum posts", "error", err)
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading forum")
		}

		page := templates.Forum(templates.ForumData{Records: posts, ExcludeApproved: exclude})
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
