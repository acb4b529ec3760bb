package otel

// Metric prefixes for each component
// Each component defines its own metric names and uses these prefixes
const (
	PrefixRequest  = "request"
	PrefixRefresh  = "refresh_token"
	PrefixPolling  = "polling"
	PrefixUpstream = "upstream"
)
