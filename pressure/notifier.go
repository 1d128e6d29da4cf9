package pressure

import (
	"slices"
	"strconv"
	"sync"
)

// Level of memory pressure.
type Level int

const (
	// LevelNone indicates memory use is within bounds.
	LevelNone Level = iota
	// LevelModerate indicates memory use is approaching its limit. Listeners
	// should release caches which are cheap to rebuild.
	LevelModerate
	// LevelCritical indicates memory use is at or beyond its limit.
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelModerate:
		return "moderate"
	case LevelCritical:
		return "critical"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Listener is notified of memory pressure.
type Listener func(Level)

// Source is a source of memory pressure notifications.
type Source interface {
	// Subscribe the Listener to notifications until the returned
	// Subscription is closed.
	Subscribe(Listener) *Subscription
}

// Notifier is a Source which fans out each Notify to current subscribers.
// Listeners are invoked synchronously, on the goroutine calling Notify, and
// in the order they subscribed. Hosts which confine a subscriber to a single
// goroutine must also call Notify from that goroutine.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]Listener
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[uint64]Listener)}
}

// Subscribe implements Source.
func (n *Notifier) Subscribe(fn Listener) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	n.listeners[n.nextID] = fn
	return &Subscription{notifier: n, id: n.nextID}
}

// Notify all current subscribers of the Level.
func (n *Notifier) Notify(level Level) {
	notificationsTotal.WithLabelValues(level.String()).Inc()

	n.mu.Lock()
	var ids = make([]uint64, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	var fns = make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, n.listeners[id])
	}
	n.mu.Unlock()

	// Listeners are called without holding |mu|, and may Close their Subscription.
	for _, fn := range fns {
		fn(level)
	}
}

// Len returns the number of current subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Subscription of a Listener to a Notifier.
type Subscription struct {
	notifier *Notifier
	id       uint64
	once     sync.Once
}

// Close the Subscription. Close is idempotent, and a nil *Subscription
// may be closed.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.notifier.mu.Lock()
		delete(s.notifier.listeners, s.id)
		s.notifier.mu.Unlock()
	})
}
