package models

import "time"

// TerminalWebhookEvent is the append-only audit record of one raw payment
// terminal delivery. A row is written for every delivery, valid or malformed,
// matched or orphan, and is never mutated or deleted. TenantID is advisory
// (derived from payload content when possible, 0 when unresolved); the
// platform owns these rows.
type TerminalWebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TenantID        uint      `gorm:"not null;default:0;index" json:"tenant_id"`
	ReqTxnID        string    `gorm:"type:varchar(128);not null;default:'';index" json:"req_txn_id"`
	InvoiceNumber   string    `gorm:"type:varchar(64);not null;default:'';index" json:"invoice_number"`
	NormalizedState string    `gorm:"type:varchar(20);not null;index" json:"normalized_state"`
	Amount          float64   `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	TipAmount       float64   `gorm:"type:decimal(12,2);not null;default:0" json:"tip_amount"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (TerminalWebhookEvent) TableName() string {
	return "terminal_webhook_events"
}
