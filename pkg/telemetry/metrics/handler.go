package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler for this collector's
// registry. A nil collector serves 404.
//
// The handler speaks OpenMetrics when the scraper asks for it and keeps
// serving the remaining families if one fails to collect.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("GET /metrics", collector.Handler())
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
