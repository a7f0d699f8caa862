package constants

// Static route constants
const (
	ForceFinalizeRoute   = "/checkout/force-finalize"
	CheckoutStatusRoute  = "/checkout/status/:invoice"
	TerminalWebhookRoute = "/webhooks/payment-terminal"
)
