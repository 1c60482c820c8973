package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/app/repository"
	"github.com/ManuelReschke/TeamPay/internal/pkg/billing"
	"github.com/ManuelReschke/TeamPay/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/TeamPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
)

const testWebhookSecret = "whsec_controller_test"

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type fakeSweeps struct {
	calls []time.Time
	err   error
}

func (f *fakeSweeps) TriggerSweep(_ context.Context, now time.Time, trigger string) (*jobqueue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, now)
	return &jobqueue.Job{ID: "job-1", Type: jobqueue.JobTypeMembershipSweep, Status: jobqueue.JobStatusPending}, nil
}

type fakeQueue struct{}

func (fakeQueue) GetJobStats(context.Context) (map[jobqueue.JobStatus]int64, error) {
	return map[jobqueue.JobStatus]int64{jobqueue.JobStatusCompleted: 4, jobqueue.JobStatusFailed: 1}, nil
}

func (fakeQueue) GetQueueSize(context.Context) (int64, error) { return 2, nil }

func (fakeQueue) GetProcessingSize(context.Context) (int64, error) { return 1, nil }

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	sweeps  *fakeSweeps
	metrics *metrics.Collector
}

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	collector := metrics.NewCollector()
	engine := membership.NewServiceFromDB(db, membership.DefaultConfig())
	sweeps := &fakeSweeps{}

	h := NewHandlers(Handlers{
		Teams:       repository.NewTeamRepository(db),
		Memberships: engine,
		Billing:     billing.NewServiceFromDB(db, engine, collector),
		Stripe:      billing.NewStripeWebhook(testWebhookSecret),
		Sweeps:      sweeps,
		Queue:       fakeQueue{},
		Metrics:     collector,
		Now:         func() time.Time { return fixedNow },
	})

	app := fiber.New()
	app.Post("/teams", h.HandleCreateTeam)
	app.Get("/teams/:id", h.HandleGetTeam)
	app.Put("/teams/:id/schedule", h.HandleUpdateSchedule)
	app.Get("/teams/:id/memberships", h.HandleListMemberships)
	app.Post("/join/:code", h.HandleJoin)
	app.Get("/memberships/:id", h.HandleGetMembership)
	app.Put("/memberships/:id/due-date", h.HandleSetDueDate)
	app.Post("/memberships/:id/payments", h.HandleManualPayment)
	app.Post("/memberships/:id/cancel", h.HandleCancel)
	app.Post("/webhooks/stripe", h.HandleStripeWebhook)
	app.Post("/admin/sweep", h.HandleTriggerSweep)
	app.Get("/admin/queue", h.HandleQueueStats)

	return &testEnv{app: app, db: db, sweeps: sweeps, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) createTeam(t *testing.T) (uint, string) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/teams", fiber.Map{
		"name":                "Riverside FC",
		"currency":            "eur",
		"amount_minor":        1500,
		"billing_interval":    "monthly",
		"anchor_day_of_month": 1,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return uint(body["id"].(float64)), body["join_code"].(string)
}

func (e *testEnv) join(t *testing.T, code, email string) uint {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/join/"+code, fiber.Map{
		"player_name":  "Sam Kerr",
		"player_email": email,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return uint(body["id"].(float64))
}

func TestTeamEndpoints(t *testing.T) {
	e := setupHandlers(t)
	id, code := e.createTeam(t)
	assert.NotEmpty(t, code)

	status, body := e.do(t, http.MethodGet, fmt.Sprintf("/teams/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "month", body["billing_interval"])
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, "/join/"+code, body["join_path"])

	status, body = e.do(t, http.MethodPut, fmt.Sprintf("/teams/%d/schedule", id), fiber.Map{
		"billing_interval": "week",
		"anchor_weekday":   6,
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "week", body["billing_interval"])
	assert.Nil(t, body["anchor_day_of_month"])

	status, _ = e.do(t, http.MethodGet, "/teams/999", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodGet, "/teams/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateTeam_RejectsIncompleteAnchor(t *testing.T) {
	e := setupHandlers(t)

	tests := []struct {
		name string
		body fiber.Map
	}{
		{name: "missing day of month", body: fiber.Map{"name": "FC", "amount_minor": 100, "billing_interval": "month"}},
		{name: "quarter without month", body: fiber.Map{"name": "FC", "amount_minor": 100, "billing_interval": "quarter", "anchor_day_of_month": 5}},
		{name: "weekday out of range", body: fiber.Map{"name": "FC", "amount_minor": 100, "billing_interval": "week", "anchor_weekday": 9}},
		{name: "unknown interval", body: fiber.Map{"name": "FC", "amount_minor": 100, "billing_interval": "yearly", "anchor_day_of_month": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/teams", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, status)
			assert.Equal(t, "invalid_schedule", body["error"])
		})
	}

	status, body := e.do(t, http.MethodPost, "/teams", fiber.Map{
		"name": "FC", "amount_minor": 0, "billing_interval": "month", "anchor_day_of_month": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", body["error"])

	count, err := repository.NewTeamRepository(e.db).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMembershipLifecycle(t *testing.T) {
	e := setupHandlers(t)
	teamID, code := e.createTeam(t)
	id := e.join(t, code, "sam@example.com")

	status, body := e.do(t, http.MethodPost, "/join/"+code, fiber.Map{"player_name": "Sam", "player_email": "SAM@example.com"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_member", body["error"])

	status, body = e.do(t, http.MethodPost, "/join/unknown", fiber.Map{"player_name": "Sam", "player_email": "x@example.com"})
	assert.Equal(t, http.StatusNotFound, status, body)

	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{
		"method":       "bank_transfer",
		"amount_minor": 1500,
		"currency":     "EUR",
		"reference":    "SEPA-2024-06",
		"paid_at":      "2024-06-02",
	})
	require.Equal(t, http.StatusCreated, status, body)
	m := body["membership"].(map[string]interface{})
	assert.Equal(t, models.MembershipStatusActive, m["status"])
	assert.Equal(t, "2024-07-01T00:00:00Z", m["next_due_at"])

	// Same bank reference again is recognised and not applied twice.
	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{
		"method":       "bank_transfer",
		"amount_minor": 1500,
		"reference":    "SEPA-2024-06",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	status, body = e.do(t, http.MethodPut, fmt.Sprintf("/memberships/%d/due-date", id), fiber.Map{"next_due_date": "2024-02-30"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_due_date", body["error"])

	status, body = e.do(t, http.MethodPut, fmt.Sprintf("/memberships/%d/due-date", id), fiber.Map{"next_due_date": "2024-06-03"})
	assert.Equal(t, http.StatusUnprocessableEntity, status, body)

	status, body = e.do(t, http.MethodPut, fmt.Sprintf("/memberships/%d/due-date", id), fiber.Map{"next_due_date": "2024-07-15"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2024-07-15T00:00:00Z", body["next_due_at"])

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/memberships/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["payments"], 1)

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/teams/%d/memberships", teamID), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/cancel", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MembershipStatusCanceled, body["status"])

	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{
		"method": "manual", "amount_minor": 1500,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_transition", body["error"])
}

func TestScheduleChange_PaymentsStillApply(t *testing.T) {
	e := setupHandlers(t)
	teamID, code := e.createTeam(t)
	id := e.join(t, code, "weekly@example.com")

	status, body := e.do(t, http.MethodPut, fmt.Sprintf("/teams/%d/schedule", teamID), fiber.Map{
		"billing_interval": "weekly",
		"anchor_weekday":   1,
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/memberships/%d", id), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "week", body["billing_interval"])

	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{
		"method": "manual", "amount_minor": 1500,
	})
	require.Equal(t, http.StatusCreated, status, body)
	m := body["membership"].(map[string]interface{})
	assert.Equal(t, models.MembershipStatusActive, m["status"])
	assert.Equal(t, "2024-06-10T00:00:00Z", m["next_due_at"])
}

func TestManualPayment_Validation(t *testing.T) {
	e := setupHandlers(t)
	_, code := e.createTeam(t)
	id := e.join(t, code, "val@example.com")

	status, body := e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{"method": "cash", "amount_minor": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", body["error"])

	status, body = e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{
		"method": "manual", "amount_minor": 100, "paid_at": "2024-12-24",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_payment", body["error"])

	status, _ = e.do(t, http.MethodPost, "/memberships/999/payments", fiber.Map{"method": "manual", "amount_minor": 100})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestManualPayment_BrokenAnchorIsNotApplied(t *testing.T) {
	e := setupHandlers(t)
	team := &models.Team{
		Name:            "Legacy",
		JoinCode:        "0b9b3c38-8f57-4c3a-9b0f-5e6f1d3a2c10",
		AmountMinor:     1000,
		Currency:        "EUR",
		BillingInterval: "month",
	}
	require.NoError(t, e.db.Create(team).Error)
	id := e.join(t, team.JoinCode, "legacy@example.com")

	status, body := e.do(t, http.MethodPost, fmt.Sprintf("/memberships/%d/payments", id), fiber.Map{"method": "manual", "amount_minor": 1000})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "payment_not_applied", body["error"])

	var stored models.Membership
	require.NoError(t, e.db.First(&stored, id).Error)
	assert.Equal(t, models.MembershipStatusPending, stored.Status)
}

func stripeEvent(eventID, eventType string, membershipID uint) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "created": 1717405200,
  "data": {
    "object": {
      "id": "cs_%s",
      "object": "checkout.session",
      "amount_total": 1500,
      "currency": "eur",
      "payment_status": "paid",
      "metadata": {"membership_id": "%d"}
    }
  }
}`, eventID, eventType, eventID, membershipID))
}

func (e *testEnv) postWebhook(t *testing.T, payload []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return e.send(t, req)
}

func signStripe(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestStripeWebhook(t *testing.T) {
	e := setupHandlers(t)
	_, code := e.createTeam(t)
	id := e.join(t, code, "stripe@example.com")

	payload := stripeEvent("evt_paid_1", billing.StripeEventCheckoutCompleted, id)
	status, body := e.postWebhook(t, payload, signStripe(payload))
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["duplicate"])

	var stored models.Membership
	require.NoError(t, e.db.First(&stored, id).Error)
	assert.Equal(t, models.MembershipStatusActive, stored.Status)
	require.NotNil(t, stored.NextDueAt)
	assert.True(t, stored.NextDueAt.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))
	version := stored.Version

	// Redelivery is acknowledged without another write.
	status, body = e.postWebhook(t, payload, signStripe(payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	require.NoError(t, e.db.First(&stored, id).Error)
	assert.Equal(t, version, stored.Version)

	status, _ = e.postWebhook(t, payload, "t=1,v1=bad")
	assert.Equal(t, http.StatusUnauthorized, status)

	other := stripeEvent("evt_other", "customer.created", id)
	status, body = e.postWebhook(t, other, signStripe(other))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ignored"])

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues(models.BillingProviderStripe, "applied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues(models.BillingProviderStripe, "duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues(models.BillingProviderStripe, "invalid_signature")))
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.Payments.WithLabelValues(models.BillingProviderStripe, "applied")))
}

func TestStripeWebhook_FailedEventIsRetried(t *testing.T) {
	e := setupHandlers(t)

	payload := stripeEvent("evt_unknown_member", billing.StripeEventCheckoutCompleted, 4242)
	for i := 0; i < 2; i++ {
		status, body := e.postWebhook(t, payload, signStripe(payload))
		assert.Equal(t, http.StatusNotFound, status, body)
	}

	var events []models.BillingWebhookEvent
	require.NoError(t, e.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ProcessingError)
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.WebhookEvents.WithLabelValues(models.BillingProviderStripe, "failed")))

	missing := []byte(`{"id":"evt_nometa","object":"event","type":"invoice.paid","created":1717405200,
"data":{"object":{"id":"in_1","object":"invoice","amount_paid":1500,"currency":"eur","metadata":{}}}}`)
	status, body := e.postWebhook(t, missing, signStripe(missing))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", body["error"])
}

func TestTriggerSweep(t *testing.T) {
	e := setupHandlers(t)

	status, body := e.do(t, http.MethodPost, "/admin/sweep", nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "job-1", body["job_id"])
	require.Len(t, e.sweeps.calls, 1)
	assert.True(t, fixedNow.Equal(e.sweeps.calls[0]))

	e.sweeps.err = errors.New("redis down")
	status, body = e.do(t, http.MethodPost, "/admin/sweep", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "sweep_enqueue_failed", body["error"])
}

func TestQueueStats(t *testing.T) {
	e := setupHandlers(t)

	status, body := e.do(t, http.MethodGet, "/admin/queue", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["pending"])
	assert.Equal(t, float64(1), body["processing"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(4), stats["completed"])
}
