package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// TokenRefreshes counts refresh-grant attempts by outcome: success, rejected, transport.
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersync", Name: "token_refresh_total", Help: "Refresh-token grant attempts by outcome."},
		[]string{"outcome"},
	)
	DirectoryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersync", Name: "directory_requests_total", Help: "Requests sent to the user directory by operation and status class."},
		[]string{"operation", "status"},
	)
	SyncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersync", Name: "sync_total", Help: "User sync notifications by outcome."},
		[]string{"outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TokenRefreshes)
	reg.MustRegister(DirectoryRequests)
	reg.MustRegister(SyncOutcomes)
}
