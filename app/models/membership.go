package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MembershipStatusPending  = "pending"
	MembershipStatusActive   = "active"
	MembershipStatusDue      = "due"
	MembershipStatusOverdue  = "overdue"
	MembershipStatusCanceled = "canceled"
)

const (
	BillingTypeSubscription = "subscription"
	BillingTypeOneOff       = "one_off"
	BillingTypeBankTransfer = "bank_transfer"
	BillingTypeManual       = "manual"
)

// Membership is the billing relationship between one player and one team.
// Rows are never deleted; canceling only changes the status. Version is
// bumped on every status write and guards conditional updates.
type Membership struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TeamID          uint       `gorm:"not null;index:ux_memberships_team_email,unique,priority:1" json:"team_id"`
	PlayerName      string     `gorm:"type:varchar(150);not null" json:"player_name" validate:"required,min=2,max=150"`
	PlayerEmail     string     `gorm:"type:varchar(200);not null;index:ux_memberships_team_email,unique,priority:2" json:"player_email" validate:"required,email,max=200"`
	PlayerPhone     string     `gorm:"type:varchar(32);default:''" json:"player_phone" validate:"omitempty,e164"`
	Status          string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status" validate:"oneof=pending active due overdue canceled"`
	BillingType     string     `gorm:"type:varchar(16);not null;default:'subscription'" json:"billing_type" validate:"oneof=subscription one_off bank_transfer manual"`
	BillingInterval string     `gorm:"type:varchar(16);not null" json:"billing_interval" validate:"oneof=week month quarter"`
	NextDueAt       *time.Time `gorm:"type:datetime;default:null;index" json:"next_due_at,omitempty"`
	LastPaidAt      *time.Time `gorm:"type:datetime;default:null" json:"last_paid_at,omitempty"`
	CanceledAt      *time.Time `gorm:"type:datetime;default:null" json:"canceled_at,omitempty"`
	Version         uint64     `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Membership) Validate() error {
	v := validator.New()

	return v.Struct(m)
}

// IsCanceled reports whether the membership reached its terminal state.
func (m *Membership) IsCanceled() bool {
	return m.Status == MembershipStatusCanceled
}
