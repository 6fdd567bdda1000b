package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the application.
type Metrics struct {
	// WebSocket connection metrics
	ConnectedClients prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	MessageSent      prometheus.Counter

	// RPC method metrics
	RPCRequests *prometheus.CounterVec

	// Account metrics
	UnlockAttempts *prometheus.CounterVec
	Accounts       prometheus.Gauge
}

// NewMetrics initializes and registers Prometheus metrics.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keyring_connected_clients",
			Help: "The current number of connected clients",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "keyring_connections_total",
			Help: "The total number of WebSocket connections made since server start",
		}),
		MessageSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "keyring_ws_messages_sent_total",
			Help: "The total number of WebSocket messages sent",
		}),
		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyring_rpc_requests_total",
				Help: "The total number of RPC requests by method and status",
			},
			[]string{"method", "status"},
		),
		UnlockAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyring_unlock_attempts_total",
				Help: "The total number of unlock attempts by result",
			},
			[]string{"result"},
		),
		Accounts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keyring_accounts",
			Help: "The number of accounts known to the provider",
		}),
	}
}
