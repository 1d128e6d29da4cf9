// Package pressure delivers process memory-pressure notifications to
// subscribers which are able to release non-essential cached memory.
//
// A Notifier fans notifications out to Subscriptions, which are scoped: a
// subscriber holds its Subscription for as long as it has memory to give
// back, and closes it when that memory is released for good. A Monitor is a
// simple detector which samples the runtime heap against a configured limit.
package pressure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqltxn_memory_pressure_notifications_total",
		Help: "Cumulative number of memory pressure notifications, by level.",
	}, []string{"level"})
	heapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sqltxn_memory_pressure_heap_bytes",
		Help: "Heap bytes observed by the most recent memory pressure sample.",
	})
)
