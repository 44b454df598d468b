package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_rpc_calls_total",
		Help: "Contract read/write calls by network and outcome",
	}, []string{"network", "outcome"})

	EndpointFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_endpoint_failovers_total",
		Help: "Times an RPC endpoint failed and the pool moved to the next one",
	}, []string{"network"})

	AggregationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_aggregation_seconds",
		Help:    "Wall time of one balance aggregation pass per strategy",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	WithdrawalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgate_withdrawal_transitions_total",
		Help: "Withdrawal state machine transitions",
	}, []string{"phase"})

	RateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgate_rate_fallbacks_total",
		Help: "Exchange rate reads that fell back to the degraded 1.0 rate",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
