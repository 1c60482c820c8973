package billing

import (
	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// PaymentInput is a confirmed payment from any provider, ready to be applied
// to a membership and appended to the ledger.
type PaymentInput struct {
	Provider    string
	ProviderRef string
	Method      string
	AmountMinor int64
	Currency    string
	Confirmed   membership.PaymentConfirmed
}

// ManualPaymentInput is what a manager submits for a cash, bank transfer or
// otherwise offline payment.
type ManualPaymentInput struct {
	Method          string `json:"method" validate:"required,oneof=bank_transfer manual card"`
	AmountMinor     int64  `json:"amount_minor" validate:"gt=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3,alpha"`
	Reference       string `json:"reference" validate:"omitempty,max=150"`
	PaidAt          string `json:"paid_at" validate:"omitempty"`
	DueDateOverride string `json:"due_date_override" validate:"omitempty"`
}

// PaymentResult is returned by ApplyPayment.
type PaymentResult struct {
	Membership *models.Membership
	Payment    *models.Payment
	// Duplicate is set when the provider reference was already in the ledger;
	// the membership was not touched again.
	Duplicate bool
}
