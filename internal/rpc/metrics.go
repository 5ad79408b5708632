package rpc

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK           = "ok"
	outcomeRemoteError  = "remote_error"
	outcomeNetworkError = "network_error"
	outcomeParseError   = "parse_error"
)

var callsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "paylink_rpc_calls_total",
		Help: "Outcome of RPC calls to the payment API, by method.",
	},
	[]string{"method", "outcome"},
)

func init() {
	prometheus.DefaultRegisterer.MustRegister(callsTotal)
}

func observeCall(method, outcome string) {
	callsTotal.WithLabelValues(method, outcome).Inc()
}
