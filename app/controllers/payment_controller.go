package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TeamPay/internal/pkg/billing"
)

// HandleManualPayment records a payment a manager received outside Stripe and
// applies it to the membership.
func (h *Handlers) HandleManualPayment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in billing.ManualPaymentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.Billing.RecordManualPayment(c.UserContext(), id, in, h.now())
	if err != nil {
		return respondError(c, err)
	}
	if res.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true, "payment": res.Payment})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":         true,
		"membership": membershipResponse(res.Membership),
		"payment":    res.Payment,
	})
}
