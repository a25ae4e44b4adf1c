// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package metrics registers the prometheus collectors of the aggregate
// manager. Everything lives on the default registry and is exposed by the ops
// server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts HTTP calls toward the OpenNaaS controller.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opennaas_am_upstream_requests_total",
		Help: "HTTP requests toward the OpenNaaS controller, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// UpstreamRequestDuration observes upstream call latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opennaas_am_upstream_request_duration_seconds",
		Help:    "Latency of HTTP requests toward the OpenNaaS controller.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// ReconcilerState reports the current FSM state (0=get, 1=update, 2=clean).
	ReconcilerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opennaas_am_reconciler_state",
		Help: "Current reconciler state: 0=get, 1=update, 2=clean.",
	})

	// AuditBatches counts audit batches written to the store.
	AuditBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opennaas_am_audit_batches_total",
		Help: "Audit batches applied to the store, by kind.",
	}, []string{"kind"})

	// Reservations counts reservation attempts.
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opennaas_am_reservations_total",
		Help: "Reservation attempts, by outcome.",
	}, []string{"outcome"})

	// ExpiredConnections counts connections reaped by the expiration sweep.
	ExpiredConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opennaas_am_expired_connections_total",
		Help: "Connections reaped because their reservation end time passed.",
	})
)
