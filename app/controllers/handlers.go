package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/repository"
	"github.com/ManuelReschke/TeamPay/internal/pkg/billing"
	"github.com/ManuelReschke/TeamPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
	"github.com/ManuelReschke/TeamPay/internal/pkg/schedule"
)

// SweepTrigger enqueues a sweep outside the regular schedule.
type SweepTrigger interface {
	TriggerSweep(ctx context.Context, now time.Time, trigger string) (*jobqueue.Job, error)
}

// QueueInspector reports job queue state for the admin monitor.
type QueueInspector interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// Handlers bundles the services the HTTP layer talks to.
type Handlers struct {
	Teams       repository.TeamRepository
	Memberships *membership.Service
	Billing     *billing.Service
	Stripe      *billing.StripeWebhook
	Sweeps      SweepTrigger
	Queue       QueueInspector
	Metrics     *metrics.Collector
	// Now is the clock used for payments, overrides and sweeps.
	Now func() time.Time
}

// NewHandlers wires the controllers; a nil clock defaults to UTC wall time.
func NewHandlers(h Handlers) *Handlers {
	if h.Now == nil {
		h.Now = func() time.Time { return time.Now().UTC() }
	}
	return &h
}

func (h *Handlers) now() time.Time {
	return h.Now().UTC()
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": message,
	})
}

// respondError maps service errors to HTTP responses. Anchor errors only get
// here from payment paths; team input checks them before.
func respondError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	var validationErrs validator.ValidationErrors

	status := fiber.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.As(err, &fiberErr):
		status, code = fiberErr.Code, "bad_request"
	case errors.As(err, &validationErrs):
		status, code = fiber.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, schedule.ErrInvalidOverride):
		status, code = fiber.StatusUnprocessableEntity, "invalid_due_date"
	case errors.Is(err, billing.ErrInvalidPayment):
		status, code = fiber.StatusUnprocessableEntity, "invalid_payment"
	case errors.Is(err, membership.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	case errors.Is(err, membership.ErrInvalidTransition):
		status, code = fiber.StatusConflict, "invalid_transition"
	case errors.Is(err, membership.ErrAlreadyMember):
		status, code = fiber.StatusConflict, "already_member"
	case errors.Is(err, membership.ErrStaleWrite):
		status, code = fiber.StatusConflict, "conflict"
	case errors.Is(err, schedule.ErrMissingAnchorField), errors.Is(err, schedule.ErrInvalidAnchor):
		code = "payment_not_applied"
	}

	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
