package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/billing"
)

// HandleStripeWebhook stores every delivery, verifies it and applies paid
// events. Redeliveries of an event that was already applied are acknowledged
// without touching the membership; events that failed before are retried.
func (h *Handlers) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	event, verifyErr := h.Stripe.Verify(rawBody, signature)
	_, stored, err := h.Billing.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
		SignatureValid:  verifyErr == nil,
	})
	if err != nil {
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "persist_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if billing.AlreadyHandled(stored) {
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if verifyErr != nil {
		_ = h.Billing.MarkWebhookProcessed(ctx, stored.ID, verifyErr)
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "invalid_signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	payment, err := billing.ParseStripePayment(event)
	if errors.Is(err, billing.ErrIgnoredEvent) {
		_ = h.Billing.MarkWebhookProcessed(ctx, stored.ID, nil)
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "ignored")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if err != nil {
		_ = h.Billing.MarkWebhookProcessed(ctx, stored.ID, err)
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "invalid_payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	res, applyErr := h.Billing.ApplyPayment(ctx, *payment, h.now())
	_ = h.Billing.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		log.Errorf("[Billing] Stripe event %s not applied: %v", event.ID, applyErr)
		h.Metrics.WebhookOutcome(models.BillingProviderStripe, "failed")
		return respondError(c, applyErr)
	}

	h.Metrics.WebhookOutcome(models.BillingProviderStripe, "applied")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": res.Duplicate})
}
