package services

import (
	"strings"
	"time"

	"stablebatch/types"

	"github.com/gofiber/fiber/v2"
)

func (a *Api) Health() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(types.HealthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

func (a *Api) Pending() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := HttpLogger("pending", c)

		entries, err := a.pending.Load()
		if err != nil {
			logger.Error("could not read pending queue", "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   "pending queue unreadable",
				Message: err.Error(),
			})
		}

		out := types.PendingResponse{Entries: make([]types.PendingEntry, 0, len(entries))}
		for _, e := range entries {
			out.Entries = append(out.Entries, types.PendingEntry{
				ID:          e.ID.String(),
				ETA:         float64(e.ETA),
				FetchResult: e.FetchResult,
				Available:   e.Available,
			})
		}
		return c.Status(fiber.StatusOK).JSON(out)
	}
}

func (a *Api) RunBatch() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := HttpLogger("batch", c)

		var req types.BatchRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "invalid request body",
				Message: err.Error(),
			})
		}
		req.OptionsPath = strings.TrimSpace(req.OptionsPath)
		if req.OptionsPath == "" {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error: "optionsPath is required",
			})
		}

		summary, err := a.batch.RunFile(c.UserContext(), req.OptionsPath)
		if err != nil {
			logger.Error("batch aborted", "run", summary.RunID, "err", err)
			return c.Status(statusFor(err)).JSON(types.ErrorResponse{
				Error:   "batch aborted",
				Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(summary)
	}
}

func (a *Api) Fetch() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := HttpLogger("fetch", c)

		summary, err := a.reconciler.Reconcile(c.UserContext())
		if err != nil {
			logger.Error("reconcile failed", "err", err)
			return c.Status(statusFor(err)).JSON(types.ErrorResponse{
				Error:   "reconcile failed",
				Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(summary)
	}
}

func (a *Api) Sync() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logger := HttpLogger("sync", c)

		summary, err := a.classifier.Resync(c.UserContext())
		if err != nil {
			logger.Error("sync failed", "err", err)
			return c.Status(statusFor(err)).JSON(types.ErrorResponse{
				Error:   "sync failed",
				Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(summary)
	}
}
