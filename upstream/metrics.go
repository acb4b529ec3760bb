package upstream

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/reqflow/internal/otel"
)

var (
	tokensIssued metric.Int64Counter
	dataServed   metric.Int64Counter
	authRejected metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("upstream", intotel.PrefixUpstream)

	f.Int64Counter(&tokensIssued, "tokens.issued",
		metric.WithDescription("Access tokens signed"))

	f.Int64Counter(&dataServed, "data.served",
		metric.WithDescription("Data responses served to authorized callers"))

	f.Int64Counter(&authRejected, "auth.rejected",
		metric.WithDescription("Data requests rejected for a missing, invalid or expired token"))
}
