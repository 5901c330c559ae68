package handlers

import (
	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/visawatch/internal/detect"
	"github.com/jjenkins/visawatch/internal/store"
	"github.com/jjenkins/visawatch/internal/templates"
)

func CaseHistoryHandler(detector *detect.Detector, changeStore *store.ChangeStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		caseNumber, ok := parseCaseNumber(c)
		if !ok {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid case number")
		}

		records, err := detector.History(ctx, caseNumber)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading case history")
		}

		changes, err := changeStore.ListChanges(ctx, store.ChangeFilter{CaseNumber: caseNumber})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading changes")
		}

		page := templates.CaseHistory(caseNumber, records, changes)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
