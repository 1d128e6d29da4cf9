package pressure

import (
	"context"
	"runtime/metrics"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// Monitor periodically samples the heap size of the Go runtime, compares it
// with a configured Limit, and emits a Level to its sink whenever the
// observed Level rises, or remains critical.
type Monitor struct {
	// Limit of heap bytes. A zero Limit disables the Monitor.
	Limit uint64
	// Interval between samples.
	Interval time.Duration
	// Emit is called with each emitted Level. It's called from the goroutine
	// running Serve, and must not block for long.
	Emit func(Level)

	// sample returns current heap bytes. Tests may swap it out.
	sample func() uint64
	last   Level
}

// ModerateRatio is the fraction of the Limit at which pressure is moderate.
const ModerateRatio = 0.8

// NewMonitor returns a Monitor of heap use against the |limit|.
func NewMonitor(limit uint64, interval time.Duration, emit func(Level)) *Monitor {
	return &Monitor{
		Limit:    limit,
		Interval: interval,
		Emit:     emit,
		sample:   heapObjectBytes,
	}
}

// Serve samples until the Context is done. It returns nil on cancellation.
func (m *Monitor) Serve(ctx context.Context) error {
	if m.Limit == 0 {
		log.Debug("memory pressure monitor disabled (no limit)")
		<-ctx.Done()
		return nil
	}
	log.WithFields(log.Fields{
		"limit":    humanize.IBytes(m.Limit),
		"interval": m.Interval,
	}).Debug("starting memory pressure monitor")

	var ticker = time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check takes a single sample, emits its Level if warranted, and returns it.
func (m *Monitor) Check() Level {
	var heap = m.sample()
	heapBytes.Set(float64(heap))

	var level = LevelNone
	if heap >= m.Limit {
		level = LevelCritical
	} else if float64(heap) >= float64(m.Limit)*ModerateRatio {
		level = LevelModerate
	}

	if level == LevelCritical || level > m.last {
		log.WithFields(log.Fields{
			"heap":  humanize.IBytes(heap),
			"limit": humanize.IBytes(m.Limit),
			"level": level,
		}).Info("memory pressure")
		m.Emit(level)
	}
	m.last = level
	return level
}

func heapObjectBytes() uint64 {
	var s = []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
	metrics.Read(s)

	if s[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s[0].Value.Uint64()
}
