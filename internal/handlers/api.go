package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/visawatch/internal/detect"
	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func ChangesAPIHandler(changeStore *store.ChangeStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		limit, err := parseLimit(c)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}
		filter := store.ChangeFilter{Period: c.Query("month"), Limit: limit}

		if raw := c.Query("since"); raw != "" {
			since, err := parseSince(raw)
			if err != nil {
				return jsonError(c, fiber.StatusBadRequest, err.Error())
			}
			filter.Since = since
		}
		if raw := c.Query("change_type"); raw != "" {
			kind, err := model.ParseChangeKind(raw)
			if err != nil {
				return jsonError(c, fiber.StatusBadRequest, err.Error())
			}
			filter.Kind = kind
		}

		changes, err := changeStore.ListChanges(ctx, filter)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list changes", "error", err)
			return jsonError(c, fiber.StatusInternalServerError, "failed to load changes")
		}

		return c.JSON(fiber.Map{"changes": toChangeDTOs(changes)})
	}
}

func RecordsAPIHandler(snapshots *store.SnapshotStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		limit, err := parseLimit(c)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, err.Error())
		}

		snap, err := snapshots.GetLatestSnapshot(ctx, c.Query("month"))
		if err != nil {
			slog.ErrorContext(ctx, "failed to load snapshot", "error", err)
			return jsonError(c, fiber.StatusInternalServerError, "failed to load snapshot")
		}
		if snap == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"records": []recordDTO{}, "error": "No snapshots found"})
		}

		records, err := snapshots.ListRecords(ctx, snap.ID, store.RecordFilter{
			Consulate: c.Query("consulate"),
			VisaType:  c.Query("visa_type"),
			Status:    c.Query("status"),
			Limit:     limit,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to list records", "error", err)
			return jsonError(c, fiber.StatusInternalServerError, "failed to load records")
		}

		return c.JSON(fiber.Map{"records": toRecordDTOs(records)})
	}
}

func StatsAPIHandler(stats *service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		s, err := stats.Statistics(ctx, c.Query("month"))
		if errors.Is(err, service.ErrNoSnapshot) {
			return jsonError(c, fiber.StatusNotFound, "No snapshots found")
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to calculate statistics", "error", err)
			return jsonError(c, fiber.StatusInternalServerError, "failed to calculate statistics")
		}

		return c.JSON(s)
	}
}

func HistoryAPIHandler(detector *detect.Detector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		caseNumber, ok := parseCaseNumber(c)
		if !ok {
			return jsonError(c, fiber.StatusBadRequest, "invalid case number")
		}

		records, err := detector.History(ctx, caseNumber)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load history", "casenum", caseNumber, "error", err)
			return jsonError(c, fiber.StatusInternalServerError, "failed to load history")
		}

		return c.JSON(fiber.Map{"casenum": caseNumber, "records": toRecordDTOs(records)})
	}
}

func jsonError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func parseLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(limit, maxLimit), nil
}

// parseSince accepts an RFC 3339 timestamp or a plain date
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(model.DateLayout, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q", raw)
}

func parseCaseNumber(c *fiber.Ctx) (string, bool) {
	caseNumber := c.Params("casenum")
	if caseNumber == "" {
		return "", false
	}
	for _, r := range caseNumber {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return caseNumber, true
}
