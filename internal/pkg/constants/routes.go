package constants

// Static route constants
const (
	APIv1Route   = "/api/v1"
	WebhookRoute = "/webhooks/paygate"
	HealthRoute  = "/health"
	DocsRoute    = "/docs/v1"
	MonitorPath  = "/metrics/app"
)
