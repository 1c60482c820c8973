package models

import "time"

const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodManual       = "manual"
)

// Payment is an append-only ledger entry for a confirmed payment.
type Payment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MembershipID uint      `gorm:"not null;index" json:"membership_id"`
	Provider     string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_ref,unique,priority:1" json:"provider"`
	ProviderRef  string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_ref,unique,priority:2" json:"provider_ref"`
	Method       string    `gorm:"type:varchar(20);not null" json:"method"`
	AmountMinor  int64     `gorm:"not null;default:0" json:"amount_minor"`
	Currency     string    `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	PaidAt       time.Time `gorm:"type:timestamp;not null" json:"paid_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
