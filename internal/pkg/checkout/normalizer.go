package checkout

import "strings"

// stateFieldAliases lists the payload fields inspected for a state-like
// value, in priority order. Terminal firmware revisions disagree on the
// field name, so each alias is tried before giving up.
var stateFieldAliases = []string{
	"state",
	"status",
	"txn_status",
	"transaction_status",
	"result",
}

// NormalizeTerminalState maps a heterogeneous terminal payload onto one of
// the canonical outcomes. Matching is a case-insensitive substring check:
// any value containing "approved" is an approval, any value containing
// "declin" a decline. Everything else, including absent or malformed fields,
// stays pending: an unrecognized payload must never count as a successful
// payment.
func NormalizeTerminalState(payload map[string]interface{}) State {
	if payload == nil {
		return StatePending
	}
	for _, alias := range stateFieldAliases {
		raw, ok := lookupField(payload, alias)
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		lowered := strings.ToLower(strings.TrimSpace(value))
		if lowered == "" {
			continue
		}
		switch {
		case strings.Contains(lowered, "approved"):
			return StateApproved
		case strings.Contains(lowered, "declin"):
			return StateDeclined
		}
		// A recognized field with an unrecognized value is conclusive:
		// the terminal said something, and it was not a final outcome.
		return StatePending
	}
	return StatePending
}

// lookupField finds a payload key case-insensitively.
func lookupField(payload map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := payload[key]; ok {
		return v, true
	}
	for k, v := range payload {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
