package constants

// Route constants
const (
	TreliWebhookRoute = "/treli/webhooks"
	HealthRoute       = "/health"
	MetricsRoute      = "/metrics"
	DocsBasePath      = "/docs/api/"
	DocsVersionPath   = "v1"
)
