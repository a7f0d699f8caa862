package checkout

// State is the canonical outcome of a terminal payload after normalization.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDeclined State = "declined"
)

// TerminalEvent is the normalized view of one raw terminal delivery. Every
// field except RawJSON is best-effort: terminal producers are not perfectly
// consistent, so absent or unparsable fields stay at their zero value.
type TerminalEvent struct {
	ReqTxnID      string
	InvoiceNumber string
	TenantID      uint // advisory, 0 when unresolved
	State         State
	Amount        float64
	TipAmount     float64
	RawJSON       string
	Malformed     bool
}

// SessionStatus is the read model served by the poll endpoint so a client can
// observe eventual reconciliation.
type SessionStatus struct {
	InvoiceNumber string  `json:"invoice_number"`
	Status        string  `json:"status"`
	SaleID        *uint   `json:"sale_id,omitempty"`
	SaleUUID      string  `json:"sale_uuid,omitempty"`
	SaleTotal     float64 `json:"sale_total,omitempty"`
}
