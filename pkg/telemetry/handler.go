package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promHTTPHandler exposes the default Prometheus registry, which
// go.opentelemetry.io/otel/exporters/prometheus registers its
// collector against.
func promHTTPHandler() http.Handler {
	return promhttp.Handler()
}
