// Package txnstore executes Transactions of typed Commands against a
// relational store, returning a Response of a single Status and an optional
// Result.
//
// A Database owns its store. The store is opened lazily by the first
// Transaction, and each subsequent Transaction runs within a single store
// transaction which either commits entirely or is rolled back entirely.
// A Transaction consisting only of a CLOSE Command closes the store and
// resets the session, such that the next Transaction re-opens it.
//
// Schema versions are tracked in a reserved single-row table (MetaTable),
// which is created by the first INITIALIZE of a store and updated by MIGRATE.
//
// Database is not safe for concurrent use. Runner owns a Database within a
// single goroutine, serializing Transactions and memory pressure
// notifications on its behalf.
package txnstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqltxn_transactions_total",
		Help: "Cumulative number of transactions run, by response status.",
	}, []string{"status"})
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqltxn_commands_total",
		Help: "Cumulative number of commands dispatched, by command type and status.",
	}, []string{"type", "status"})
	transactionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sqltxn_transaction_duration_seconds",
		Help:    "Duration required to run a transaction, including any post-commit VACUUM.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})
	vacuumFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqltxn_vacuum_failures_total",
		Help: "Cumulative number of post-commit VACUUMs which failed.",
	})
	memoryTrimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqltxn_memory_trims_total",
		Help: "Cumulative number of times the store released cached memory under pressure.",
	})
	runnerQueuedTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sqltxn_runner_queued_transactions",
		Help: "Number of transactions awaiting their turn of a Runner.",
	})
)
