package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ManuelReschke/TeamPay/internal/pkg/schedule"
)

// Team is owned by a manager and carries the recurring amount plus the billing
// anchor that pins its due dates to the calendar.
type Team struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Name                 string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	JoinCode             string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"join_code" validate:"required,uuid4"`
	AmountMinor          int64     `gorm:"not null" json:"amount_minor" validate:"gt=0"`
	Currency             string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"required,len=3,alpha"`
	BillingInterval      string    `gorm:"type:varchar(16);not null" json:"billing_interval" validate:"oneof=week month quarter"`
	AnchorWeekday        *int      `gorm:"default:null" json:"anchor_weekday,omitempty"`
	AnchorDayOfMonth     *int      `gorm:"default:null" json:"anchor_day_of_month,omitempty"`
	AnchorMonthInQuarter *int      `gorm:"default:null" json:"anchor_month_in_quarter,omitempty"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewTeam builds a validated team with a fresh join code.
func NewTeam(name, currency string, amountMinor int64, interval schedule.Interval, anchor schedule.Anchor) (*Team, error) {
	t := &Team{
		Name:        strings.TrimSpace(name),
		JoinCode:    uuid.New().String(),
		AmountMinor: amountMinor,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
	}
	if err := t.SetSchedule(interval, anchor); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the team fields against their validate tags.
func (t *Team) Validate() error {
	v := validator.New()

	return v.Struct(t)
}

// Interval returns the configured billing interval.
func (t *Team) Interval() schedule.Interval {
	return schedule.Interval(t.BillingInterval)
}

// Anchor returns the stored anchor fields as a scheduler anchor.
func (t *Team) Anchor() schedule.Anchor {
	return schedule.Anchor{
		Weekday:        t.AnchorWeekday,
		DayOfMonth:     t.AnchorDayOfMonth,
		MonthInQuarter: t.AnchorMonthInQuarter,
	}
}

// SetSchedule validates the anchor for the interval and stores only the
// fields that interval uses; the rest are cleared.
func (t *Team) SetSchedule(interval schedule.Interval, anchor schedule.Anchor) error {
	if err := anchor.Validate(interval); err != nil {
		return err
	}
	a := anchor.Normalized(interval)
	t.BillingInterval = string(interval)
	t.AnchorWeekday = a.Weekday
	t.AnchorDayOfMonth = a.DayOfMonth
	t.AnchorMonthInQuarter = a.MonthInQuarter
	return nil
}

// JoinPath is the relative link players use to join the team.
func (t *Team) JoinPath() string {
	return "/join/" + t.JoinCode
}
