package polling

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/reqflow/internal/otel"
)

var (
	ticksTotal     metric.Int64Counter
	exhaustedTotal metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("request.polling", intotel.PrefixPolling)

	f.Int64Counter(&ticksTotal, "ticks.total",
		metric.WithDescription("Refreshes started by the polling timer or by becoming visible"))

	f.Int64Counter(&exhaustedTotal, "exhausted.total",
		metric.WithDescription("Series whose polling stopped after error retries ran out"))
}
