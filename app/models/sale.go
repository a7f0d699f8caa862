package models

import "time"

// Payment methods recorded on a sale. Sales materialized from a payment
// session are always card_terminal; the other methods exist for the cash
// register paths outside this core.
const (
	PaymentMethodCardTerminal = "card_terminal"
	PaymentMethodCash         = "cash"
)

// Sale is one completed transaction. Created exactly once per payment session
// by the materializer, immutable afterwards; never updated or deleted here.
type Sale struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	TenantID      uint      `gorm:"not null;index" json:"tenant_id"`
	InvoiceNumber string    `gorm:"type:varchar(64);not null;index" json:"invoice_number"`
	SaleTime      time.Time `gorm:"not null;index" json:"sale_time"`
	Subtotal      float64   `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	DiscountTotal float64   `gorm:"type:decimal(12,2);not null;default:0" json:"discount_total"`
	TaxTotal      float64   `gorm:"type:decimal(12,2);not null;default:0" json:"tax_total"`
	Total         float64   `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	PaymentMethod string    `gorm:"type:varchar(32);not null" json:"payment_method"`
	ItemsJSON     string    `gorm:"type:longtext" json:"items_json"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Sale) TableName() string {
	return "sales"
}
