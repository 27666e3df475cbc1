// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/accounts/internal/account"
)

// outcomeOK labels operations that completed without error.
const outcomeOK = "ok"

// Metrics contains the Prometheus metrics for account lifecycle operations.
// It satisfies account.MetricsRecorder.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	SweptTotal      *prometheus.CounterVec
}

var _ account.MetricsRecorder = (*Metrics)(nil)

// NewMetrics creates and registers the account metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_operations_total",
				Help: "Total number of account operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SweptTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_swept_total",
				Help: "Total number of expired records removed by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.SweptTotal)

	return m
}

// RecordOperation counts one completed operation. A KindNone outcome is
// recorded as "ok".
func (m *Metrics) RecordOperation(operation string, outcome account.Kind) {
	label := string(outcome)
	if outcome == account.KindNone {
		label = outcomeOK
	}
	m.OperationsTotal.WithLabelValues(operation, label).Inc()
}

// RecordSwept adds count removed records of the given kind.
func (m *Metrics) RecordSwept(kind string, count int64) {
	if count <= 0 {
		return
	}
	m.SweptTotal.WithLabelValues(kind).Add(float64(count))
}
