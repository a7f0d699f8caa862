package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosSnapshotRoundTrip(t *testing.T) {
	snap := &PosSnapshot{
		Items: []PosSnapshotItem{
			{Name: "Americano", SKU: "COF-01", Quantity: 2, UnitPrice: 3.50, LineTotal: 7.00},
		},
		Subtotal:   7.00,
		TaxTotal:   0.49,
		Total:      7.49,
		Currency:   "EUR",
		CapturedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}

	raw, err := snap.ToJSON()
	require.NoError(t, err)

	got, err := ParsePosSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, snap.Total, got.Total)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Americano", got.Items[0].Name)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestParsePosSnapshot_Empty(t *testing.T) {
	_, err := ParsePosSnapshot("")
	assert.ErrorIs(t, err, ErrEmptySnapshot)
}

func TestParsePosSnapshot_Invalid(t *testing.T) {
	_, err := ParsePosSnapshot("{broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptySnapshot)
}

func TestPaymentSessionIsTerminal(t *testing.T) {
	s := &PaymentSession{Status: PaymentStatusPending}
	assert.False(t, s.IsTerminal())

	s.Status = PaymentStatusApproved
	assert.True(t, s.IsTerminal())

	s.Status = PaymentStatusDeclined
	assert.True(t, s.IsTerminal())
}

func TestIsValidPaymentStatus(t *testing.T) {
	for _, status := range []string{PaymentStatusPending, PaymentStatusApproved, PaymentStatusDeclined} {
		assert.True(t, IsValidPaymentStatus(status))
	}
	for _, status := range []string{"", "APPROVED", "cancelled"} {
		assert.False(t, IsValidPaymentStatus(status))
	}
}
