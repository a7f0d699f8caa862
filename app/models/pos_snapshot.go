package models

import (
	"encoding/json"
	"errors"
	"time"
)

// PosSnapshotItem is one cart line captured at checkout initiation.
type PosSnapshotItem struct {
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// PosSnapshot is the immutable capture of cart lines, totals and payment
// breakdown taken when a checkout attempt starts. It is the single source of
// truth for what the materialized sale must contain.
type PosSnapshot struct {
	Items         []PosSnapshotItem `json:"items"`
	Subtotal      float64           `json:"subtotal"`
	DiscountTotal float64           `json:"discount_total"`
	TaxTotal      float64           `json:"tax_total"`
	Total         float64           `json:"total"`
	TipAmount     float64           `json:"tip_amount,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	CapturedAt    time.Time         `json:"captured_at"`
}

// ErrEmptySnapshot is returned when a session carries no snapshot payload.
var ErrEmptySnapshot = errors.New("payment session has no pos snapshot")

// ToJSON serializes the snapshot for storage on the session row.
func (p *PosSnapshot) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParsePosSnapshot decodes a stored snapshot. An empty value yields
// ErrEmptySnapshot so callers can distinguish "never captured" from a decode
// failure.
func ParsePosSnapshot(raw string) (*PosSnapshot, error) {
	if raw == "" {
		return nil, ErrEmptySnapshot
	}
	var snap PosSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
