package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
)

// Metadata keys read from checkout sessions and invoices.
const (
	MetadataMembershipID     = "membership_id"
	MetadataDueDateOverride  = "due_date_override"
	MetadataIntervalOverride = "interval_override"
)

const (
	StripeEventCheckoutCompleted = "checkout.session.completed"
	StripeEventInvoicePaid       = "invoice.paid"
)

var (
	// ErrInvalidSignature is returned when a webhook cannot be verified.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrIgnoredEvent marks event types (or payment states) that carry no
	// confirmed payment.
	ErrIgnoredEvent = errors.New("event does not confirm a payment")
	// ErrMissingMetadata is returned when a paid event cannot be linked to a
	// membership.
	ErrMissingMetadata = errors.New("payment metadata has no valid membership_id")
	// ErrInvalidPayment is returned for manual payments with unusable fields.
	ErrInvalidPayment = errors.New("invalid payment")
)

// StripeWebhook verifies Stripe webhook deliveries.
type StripeWebhook struct {
	secret string
}

// NewStripeWebhook creates a verifier for the endpoint signing secret.
func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: strings.TrimSpace(secret)}
}

// Verify checks the Stripe-Signature header and decodes the event. Events
// built for another API version are accepted; only the fields read below
// matter.
func (w *StripeWebhook) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if w.secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: no signing secret configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, w.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// invoiceParent covers subscription metadata, which Stripe copies onto the
// invoice's parent rather than the invoice itself.
type invoiceParent struct {
	Parent struct {
		SubscriptionDetails struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// ParseStripePayment maps a verified event to a payment. The paid time is the
// event creation time.
func ParseStripePayment(event stripe.Event) (*PaymentInput, error) {
	if event.Data == nil {
		return nil, errors.New("stripe event has no data")
	}
	paidAt := time.Unix(event.Created, 0).UTC()

	var (
		ref      string
		amount   int64
		currency string
		meta     map[string]string
	)

	switch string(event.Type) {
	case StripeEventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session: %w", err)
		}
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return nil, fmt.Errorf("%w: checkout session %s is unpaid", ErrIgnoredEvent, sess.ID)
		}
		ref, amount, currency, meta = sess.ID, sess.AmountTotal, string(sess.Currency), sess.Metadata

	case StripeEventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("parse invoice: %w", err)
		}
		ref, amount, currency, meta = inv.ID, inv.AmountPaid, string(inv.Currency), inv.Metadata
		if meta[MetadataMembershipID] == "" {
			var p invoiceParent
			if err := json.Unmarshal(event.Data.Raw, &p); err == nil && p.Parent.SubscriptionDetails.Metadata != nil {
				meta = p.Parent.SubscriptionDetails.Metadata
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}

	if ref == "" {
		ref = event.ID
	}
	membershipID, err := strconv.ParseUint(strings.TrimSpace(meta[MetadataMembershipID]), 10, 64)
	if err != nil || membershipID == 0 {
		return nil, fmt.Errorf("%w (%s %s)", ErrMissingMetadata, event.Type, ref)
	}

	return &PaymentInput{
		Provider:    models.BillingProviderStripe,
		ProviderRef: ref,
		Method:      models.PaymentMethodCard,
		AmountMinor: amount,
		Currency:    currency,
		Confirmed: membership.PaymentConfirmed{
			MembershipID:     uint(membershipID),
			PaidAt:           paidAt,
			DueDateOverride:  strings.TrimSpace(meta[MetadataDueDateOverride]),
			IntervalOverride: strings.TrimSpace(meta[MetadataIntervalOverride]),
		},
	}, nil
}
