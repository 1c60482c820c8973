package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
)

// PaymentConfirmer applies a confirmed payment to a membership.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, evt membership.PaymentConfirmed, now time.Time) (*models.Membership, error)
}

// Service persists webhook deliveries and the payment ledger, and forwards
// confirmed payments to the membership engine.
type Service struct {
	repo     Repository
	engine   PaymentConfirmer
	metrics  *metrics.Collector
	validate *validator.Validate
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, engine PaymentConfirmer, m *metrics.Collector) *Service {
	return &Service{repo: repo, engine: engine, metrics: m, validate: validator.New()}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, engine PaymentConfirmer, m *metrics.Collector) *Service {
	return NewService(NewRepository(db), engine, m)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

// AlreadyHandled reports whether a stored webhook event was processed without
// error, so a redelivery can be acknowledged without doing anything.
func AlreadyHandled(event *models.BillingWebhookEvent) bool {
	return event != nil && event.ProcessedAt != nil && event.ProcessingError == ""
}

// ApplyPayment confirms the payment on the membership and appends it to the
// ledger. A provider reference that is already in the ledger is reported as
// a duplicate and not applied again.
func (s *Service) ApplyPayment(ctx context.Context, in PaymentInput, now time.Time) (*PaymentResult, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	ref := strings.TrimSpace(in.ProviderRef)
	if provider == "" || ref == "" {
		return nil, errors.New("provider and provider_ref are required")
	}

	existing, err := s.repo.FindPayment(ctx, provider, ref)
	if err == nil {
		s.metrics.PaymentResult(provider, "duplicate")
		return &PaymentResult{Payment: existing, Duplicate: true}, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	m, err := s.engine.ConfirmPayment(ctx, in.Confirmed, now)
	if err != nil {
		s.metrics.PaymentResult(provider, "rejected")
		return nil, err
	}

	payment := &models.Payment{
		MembershipID: m.ID,
		Provider:     provider,
		ProviderRef:  ref,
		Method:       in.Method,
		AmountMinor:  in.AmountMinor,
		Currency:     strings.ToUpper(in.Currency),
		PaidAt:       in.Confirmed.PaidAt.UTC(),
	}
	created, err := s.repo.CreatePaymentIfNotExists(ctx, payment)
	if err != nil {
		// The membership is already active at this point; only the ledger
		// entry is missing.
		log.Errorf("[Billing] Ledger write for %s/%s failed: %v", provider, ref, err)
		s.metrics.PaymentResult(provider, "ledger_error")
		return &PaymentResult{Membership: m}, fmt.Errorf("record payment: %w", err)
	}
	if !created {
		log.Warnf("[Billing] Payment %s/%s was recorded concurrently", provider, ref)
	}

	s.metrics.PaymentResult(provider, "applied")
	log.Infof("[Billing] Payment %s/%s applied to membership %d", provider, ref, m.ID)
	return &PaymentResult{Membership: m, Payment: payment}, nil
}

// RecordManualPayment applies a manager-entered payment. Without a reference
// a random one is generated, so every manual entry is its own ledger row.
func (s *Service) RecordManualPayment(ctx context.Context, membershipID uint, in ManualPaymentInput, now time.Time) (*PaymentResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	paidAt := now.UTC()
	if raw := strings.TrimSpace(in.PaidAt); raw != "" {
		parsed, err := parsePaidAt(raw)
		if err != nil {
			return nil, err
		}
		if parsed.After(now) {
			return nil, fmt.Errorf("%w: paid_at %s lies in the future", ErrInvalidPayment, raw)
		}
		paidAt = parsed
	}

	ref := strings.TrimSpace(in.Reference)
	if ref == "" {
		ref = uuid.NewString()
	}

	return s.ApplyPayment(ctx, PaymentInput{
		Provider:    models.BillingProviderManual,
		ProviderRef: ref,
		Method:      in.Method,
		AmountMinor: in.AmountMinor,
		Currency:    in.Currency,
		Confirmed: membership.PaymentConfirmed{
			MembershipID:    membershipID,
			PaidAt:          paidAt,
			DueDateOverride: in.DueDateOverride,
		},
	}, now)
}

// ListPayments returns the ledger of a membership, newest first.
func (s *Service) ListPayments(ctx context.Context, membershipID uint) ([]models.Payment, error) {
	return s.repo.ListPaymentsByMembership(ctx, membershipID)
}

func parsePaidAt(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: paid_at %q is neither RFC3339 nor YYYY-MM-DD", ErrInvalidPayment, raw)
	}
	return t, nil
}
