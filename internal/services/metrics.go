package coloyalty

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики реестра

var (
	ledgerTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Committed ledger transactions",
		},
		[]string{"type"},
	)

	ledgerRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_rejections_total",
			Help: "Rejected ledger operations",
		},
		[]string{"type", "reason"},
	)

	ledgerSideEffectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_side_effect_errors_total",
			Help: "Journal and cache failures after commit",
		},
		[]string{"target"},
	)

	treasurySafetyRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "treasury_safety_ratio",
			Help: "Escrow fund to point liability ratio at the last computation",
		},
	)
)
