package metrics

import (
	"net/http"
	"strings"

	"relief-dispatch-api-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_claims_total",
		Help: "Accept attempts by outcome",
	}, []string{"result"})
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_status_transitions_total",
		Help: "Applied request status transitions",
	}, []string{"from", "to"})
	RequestsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relief_requests_created_total",
		Help: "Relief requests created",
	})
	LocationPushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_location_pushes_total",
		Help: "Volunteer location pushes by outcome",
	}, []string{"result"})
	RoutingRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relief_routing_requests_total",
		Help: "Total routing gateway requests",
	})
	RoutingFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relief_routing_fail_total",
		Help: "Total routing gateway failures (error or timeout)",
	})
	RoutingDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relief_routing_duration_ms",
		Help:    "Routing gateway call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	})
	TrackingDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relief_tracking_degraded_total",
		Help: "Tracking snapshots served without route/ETA because routing failed",
	})
)

func init() {
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(RequestsCreatedTotal)
	prometheus.MustRegister(LocationPushesTotal)
	prometheus.MustRegister(RoutingRequestsTotal)
	prometheus.MustRegister(RoutingFailTotal)
	prometheus.MustRegister(RoutingDurationMs)
	prometheus.MustRegister(TrackingDegradedTotal)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }

// Result turns an error into a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if c := models.Code(err); c != "" {
		return strings.ToLower(c)
	}
	return "error"
}
