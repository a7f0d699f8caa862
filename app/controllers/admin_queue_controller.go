package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tillworks/till/internal/pkg/jobqueue"
	"github.com/tillworks/till/internal/pkg/metrics/counter"
)

// HandleAdminQueuesData reports queue depths, job stats and reconciliation
// counters for the ops dashboard.
func HandleAdminQueuesData(c *fiber.Ctx) error {
	ctx := context.Background()
	queue := jobqueue.GetManager().GetQueue()

	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		log.Errorf("[Admin] Failed to read queue size: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		log.Errorf("[Admin] Failed to read processing size: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		log.Errorf("[Admin] Failed to read job stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "queue_unavailable"})
	}
	counters, err := counter.Snapshot()
	if err != nil {
		log.Errorf("[Admin] Failed to read reconciliation counters: %v", err)
		counters = map[string]string{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"pending":               pending,
		"processing":            processing,
		"job_stats":             stats,
		"reconciliation_counts": counters,
	})
}

// HandleAdminWebhookEvents returns the newest terminal webhook audit rows.
func HandleAdminWebhookEvents(c *fiber.Ctx) error {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := getCheckoutService().RecentWebhookEvents(limit)
	if err != nil {
		log.Errorf("[Admin] Failed to list webhook events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_events_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events})
}
