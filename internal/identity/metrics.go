package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jwksRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jwks_refreshes_total",
		Help: "Key-set reloads by where the keys came from (fetched, shared) or failed",
	},
	[]string{"outcome"},
)
