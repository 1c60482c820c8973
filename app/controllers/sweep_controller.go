package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TeamPay/internal/pkg/jobqueue"
)

// HandleTriggerSweep enqueues a sweep for the current time. The job runs on
// the queue workers; the response only carries its id.
func (h *Handlers) HandleTriggerSweep(c *fiber.Ctx) error {
	job, err := h.Sweeps.TriggerSweep(c.UserContext(), h.now(), jobqueue.TriggerAdmin)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "sweep_enqueue_failed",
			"message": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":     true,
		"job_id": job.ID,
		"status": job.Status,
	})
}

// HandleQueueStats shows pending and processing job counts plus lifetime
// completion stats.
func (h *Handlers) HandleQueueStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := h.Queue.GetJobStats(ctx)
	if err != nil {
		return respondError(c, err)
	}
	pending, err := h.Queue.GetQueueSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	processing, err := h.Queue.GetProcessingSize(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"stats":      stats,
	})
}
