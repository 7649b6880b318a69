// Package metrics exposes Prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultNotFound           = "not_found"
	ResultInvalidToken       = "invalid_token"
	ResultReused             = "reused"
	ResultConflict           = "conflict"
	ResultInvalidInput       = "invalid_input"
	ResultError              = "error"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accounts",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accounts",
		Name:      "refresh_total",
		Help:      "Refresh token exchanges by result.",
	}, []string{"result"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accounts",
		Name:      "registrations_total",
		Help:      "Registration attempts by result.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
