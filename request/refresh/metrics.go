package refresh

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/reqflow/internal/otel"
)

var (
	expiredTotal     metric.Int64Counter
	remediationTotal metric.Int64Counter
	remediationFail  metric.Int64Counter
	retryFailed      metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("request.refresh", intotel.PrefixRefresh)

	f.Int64Counter(&expiredTotal, "expired.total",
		metric.WithDescription("Invocations whose failure was classified as expired"))

	f.Int64Counter(&remediationTotal, "remediation.total",
		metric.WithDescription("Remediation handler runs started"))

	f.Int64Counter(&remediationFail, "remediation.failed",
		metric.WithDescription("Remediation handler runs that failed"))

	f.Int64Counter(&retryFailed, "retry.failed",
		metric.WithDescription("Retries after remediation that failed again"))
}
