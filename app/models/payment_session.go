package models

import "time"

// Payment session statuses. A session starts pending and moves to exactly one
// terminal status; there is no transition out of a terminal status.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusDeclined = "declined"
)

// PaymentSession tracks one checkout attempt's payment outcome. One row per
// attempt, keyed by (tenant, invoice) while open. SaleID is set at most once
// and never reverts to null; sessions are never deleted.
type PaymentSession struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      uint      `gorm:"not null;index:idx_payment_sessions_tenant_invoice,priority:1" json:"tenant_id"`
	InvoiceNumber string    `gorm:"type:varchar(64);not null;index:idx_payment_sessions_tenant_invoice,priority:2" json:"invoice_number"`
	ReqTxnID      string    `gorm:"type:varchar(128);not null;default:'';index" json:"req_txn_id"`
	Status        string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SaleID        *uint     `gorm:"index" json:"sale_id,omitempty"`
	PosSnapshot   string    `gorm:"type:longtext" json:"pos_snapshot"`
	LastPayload   string    `gorm:"type:longtext" json:"last_payload"`
	StartedAt     time.Time `gorm:"not null;index" json:"started_at"`
	LastSeenAt    time.Time `gorm:"not null" json:"last_seen_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// IsTerminal reports whether the session has reached a final status.
func (s *PaymentSession) IsTerminal() bool {
	return s.Status == PaymentStatusApproved || s.Status == PaymentStatusDeclined
}

// IsValidPaymentStatus reports whether v is one of the known session statuses.
func IsValidPaymentStatus(v string) bool {
	switch v {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusDeclined:
		return true
	default:
		return false
	}
}
