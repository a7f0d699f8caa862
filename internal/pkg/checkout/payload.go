package checkout

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Correlation field aliases seen across terminal producers. New aliases go
// here, not into ad hoc lookups.
var (
	reqTxnIDAliases = []string{"req_txn_id", "reqtxnid", "txn_id", "transaction_id"}
	invoiceAliases  = []string{"invoice_number", "invoicenumber", "invoice", "order_id"}
	tenantAliases   = []string{"tenant_id", "merchant_id", "shop_id"}
	amountAliases   = []string{"amount", "total", "txn_amount"}
	tipAliases      = []string{"tip_amount", "tip"}
)

// ParseTerminalEvent decodes a raw terminal delivery into a TerminalEvent.
// It never fails: malformed JSON yields a pending event flagged Malformed so
// the delivery can still be logged and acknowledged.
func ParseTerminalEvent(raw []byte) *TerminalEvent {
	event := &TerminalEvent{
		State:   StatePending,
		RawJSON: string(raw),
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		event.Malformed = true
		return event
	}

	event.ReqTxnID = stringField(payload, reqTxnIDAliases)
	event.InvoiceNumber = stringField(payload, invoiceAliases)
	event.TenantID = uintField(payload, tenantAliases)
	event.Amount = floatField(payload, amountAliases)
	event.TipAmount = floatField(payload, tipAliases)
	event.State = NormalizeTerminalState(payload)
	return event
}

func stringField(payload map[string]interface{}, aliases []string) string {
	for _, alias := range aliases {
		raw, ok := lookupField(payload, alias)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func floatField(payload map[string]interface{}, aliases []string) float64 {
	for _, alias := range aliases {
		raw, ok := lookupField(payload, alias)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func uintField(payload map[string]interface{}, aliases []string) uint {
	for _, alias := range aliases {
		raw, ok := lookupField(payload, alias)
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			if v > 0 {
				return uint(v)
			}
		case string:
			if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
				return uint(n)
			}
		}
	}
	return 0
}
