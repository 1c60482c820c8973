package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TeamPay/app/models"
	"github.com/ManuelReschke/TeamPay/internal/pkg/schedule"
)

// Service drives membership status transitions. Every write goes through a
// conditional update so concurrent sweeps and payments never interleave on a
// single row.
type Service struct {
	repo     Repository
	cfg      Config
	validate *validator.Validate
}

// NewService creates a status engine from an injected repository.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg, validate: validator.New()}
}

// NewServiceFromDB creates a status engine from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config) *Service {
	return NewService(NewRepository(db), cfg)
}

// Config returns the engine configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// JoinInput is what a player submits on the join link.
type JoinInput struct {
	PlayerName  string `json:"player_name" validate:"required,min=2,max=150"`
	PlayerEmail string `json:"player_email" validate:"required,email,max=200"`
	PlayerPhone string `json:"player_phone" validate:"omitempty,e164"`
	BillingType string `json:"billing_type" validate:"omitempty,oneof=subscription one_off bank_transfer manual"`
}

// PaymentConfirmed is emitted by the payment gateway (or a manager recording a
// manual payment) once money has been received.
type PaymentConfirmed struct {
	MembershipID uint
	PaidAt       time.Time
	// DueDateOverride is a manager-supplied next due date (YYYY-MM-DD).
	DueDateOverride string
	// IntervalOverride comes from payment metadata and replaces the stored interval.
	IntervalOverride string
}

// Join creates a pending membership for the team behind the join code.
func (s *Service) Join(ctx context.Context, joinCode string, in JoinInput) (*models.Membership, error) {
	in.PlayerName = strings.TrimSpace(in.PlayerName)
	in.PlayerEmail = strings.ToLower(strings.TrimSpace(in.PlayerEmail))
	in.PlayerPhone = strings.TrimSpace(in.PlayerPhone)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	team, err := s.repo.GetTeamByJoinCode(ctx, strings.TrimSpace(joinCode))
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindMembershipByEmail(ctx, team.ID, in.PlayerEmail); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	billingType := in.BillingType
	if billingType == "" {
		billingType = models.BillingTypeSubscription
	}
	m := &models.Membership{
		TeamID:          team.ID,
		PlayerName:      in.PlayerName,
		PlayerEmail:     in.PlayerEmail,
		PlayerPhone:     in.PlayerPhone,
		Status:          models.MembershipStatusPending,
		BillingType:     billingType,
		BillingInterval: team.BillingInterval,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	log.Infof("[Membership] Player %d joined team %d (pending)", m.ID, team.ID)
	return m, nil
}

// Get returns one membership.
func (s *Service) Get(ctx context.Context, id uint) (*models.Membership, error) {
	return s.repo.GetMembership(ctx, id)
}

// ListByTeam returns all memberships of a team, canceled ones included.
func (s *Service) ListByTeam(ctx context.Context, teamID uint) ([]models.Membership, error) {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembershipsByTeam(ctx, teamID)
}

// ConfirmPayment moves a membership to active and recomputes its next due
// date from the payment time. Any prior non-canceled status is accepted.
//
// The next due date is chosen in this order: a validated manager override,
// then the interval carried in payment metadata, then the membership's stored
// interval, always anchored on the team's billing anchor. When the anchor is
// missing or invalid the payment is not applied and the scheduler error is
// returned.
func (s *Service) ConfirmPayment(ctx context.Context, evt PaymentConfirmed, now time.Time) (*models.Membership, error) {
	if evt.MembershipID == 0 {
		return nil, errors.New("membership_id is required")
	}
	if evt.PaidAt.IsZero() {
		return nil, errors.New("paid_at is required")
	}
	paidAt := evt.PaidAt.UTC()

	for attempt := 0; ; attempt++ {
		m, err := s.repo.GetMembership(ctx, evt.MembershipID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(m.Status, models.MembershipStatusActive) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, models.MembershipStatusActive)
		}
		team, err := s.repo.GetTeam(ctx, m.TeamID)
		if err != nil {
			return nil, fmt.Errorf("load team %d: %w", m.TeamID, err)
		}

		next, err := resolveNextDue(m, team, evt, paidAt, now)
		if err != nil {
			log.Errorf("[Membership] Payment for membership %d not applied: %v", m.ID, err)
			return nil, fmt.Errorf("membership %d: %w", m.ID, err)
		}

		err = s.repo.CompareAndSwap(ctx, m.ID, m.Status, m.Version, Update{
			Status:     models.MembershipStatusActive,
			NextDueAt:  &next,
			LastPaidAt: &paidAt,
		})
		if err == nil {
			prev := m.Status
			m.Status = models.MembershipStatusActive
			m.NextDueAt = &next
			m.LastPaidAt = &paidAt
			m.Version++
			log.Infof("[Membership] Payment applied to membership %d (%s -> active, next due %s)", m.ID, prev, next.Format("2006-01-02"))
			return m, nil
		}
		if !errors.Is(err, ErrStaleWrite) || attempt >= s.cfg.MaxStaleRetries {
			return nil, err
		}
		log.Warnf("[Membership] Membership %d changed during payment, re-evaluating (attempt %d)", m.ID, attempt+1)
	}
}

func resolveNextDue(m *models.Membership, team *models.Team, evt PaymentConfirmed, paidAt, now time.Time) (time.Time, error) {
	// TODO: the override > metadata > stored precedence mirrors the legacy
	// webhook; revisit once managers can pick per-membership intervals.
	if raw := strings.TrimSpace(evt.DueDateOverride); raw != "" {
		return schedule.ParseDueOverride(raw, now)
	}

	intervalRaw := m.BillingInterval
	if raw := strings.TrimSpace(evt.IntervalOverride); raw != "" {
		intervalRaw = raw
	}
	if intervalRaw == "" {
		intervalRaw = team.BillingInterval
	}
	interval, err := schedule.ParseInterval(intervalRaw)
	if err != nil {
		return time.Time{}, err
	}

	// The team anchor only describes the team interval. Anything it cannot
	// express falls back to the team schedule instead of blocking payments.
	anchor := team.Anchor()
	if anchor.Validate(interval) != nil {
		if teamInterval := team.Interval(); teamInterval != interval && anchor.Validate(teamInterval) == nil {
			log.Warnf("[Membership] Interval %s of membership %d does not fit the team anchor, using team interval %s", interval, m.ID, teamInterval)
			interval = teamInterval
		}
	}
	return schedule.NextDueDate(paidAt, interval, anchor)
}

// SetNextDueDate replaces the computed due date with a manager-chosen one.
// The raw value must be a real calendar date after now; the status is kept.
func (s *Service) SetNextDueDate(ctx context.Context, id uint, raw string, now time.Time) (*models.Membership, error) {
	due, err := schedule.ParseDueOverride(raw, now)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		m, err := s.repo.GetMembership(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.IsCanceled() {
			return nil, fmt.Errorf("%w: membership %d is canceled", ErrInvalidTransition, id)
		}
		err = s.repo.CompareAndSwap(ctx, m.ID, m.Status, m.Version, Update{
			Status:    m.Status,
			NextDueAt: &due,
		})
		if err == nil {
			m.NextDueAt = &due
			m.Version++
			return m, nil
		}
		if !errors.Is(err, ErrStaleWrite) || attempt >= s.cfg.MaxStaleRetries {
			return nil, err
		}
	}
}

// Cancel ends a membership. The row is kept for history and is excluded from
// every later sweep.
func (s *Service) Cancel(ctx context.Context, id uint, now time.Time) (*models.Membership, error) {
	canceledAt := now.UTC()

	for attempt := 0; ; attempt++ {
		m, err := s.repo.GetMembership(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(m.Status, models.MembershipStatusCanceled) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, models.MembershipStatusCanceled)
		}
		err = s.repo.CompareAndSwap(ctx, m.ID, m.Status, m.Version, Update{
			Status:     models.MembershipStatusCanceled,
			CanceledAt: &canceledAt,
		})
		if err == nil {
			m.Status = models.MembershipStatusCanceled
			m.CanceledAt = &canceledAt
			m.Version++
			log.Infof("[Membership] Membership %d canceled", m.ID)
			return m, nil
		}
		if !errors.Is(err, ErrStaleWrite) || attempt >= s.cfg.MaxStaleRetries {
			return nil, err
		}
	}
}
