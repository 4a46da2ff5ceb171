package timeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultQueryLimit caps how many entries a single query returns.
const DefaultQueryLimit = 1000

// DefaultCapacity is the internal entry cap; the oldest entries are evicted
// once it is exceeded.
const DefaultCapacity = 5000

// Config contains configuration for the timeline log.
type Config struct {
	// Capacity is the internal entry cap (default DefaultCapacity).
	Capacity int

	// QueryLimit is the maximum entries returned per query (default
	// DefaultQueryLimit).
	QueryLimit int

	// SubscriberBuffer is the per-observer channel buffer (default 64).
	SubscriberBuffer int
}

// DefaultConfig returns the default timeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity:         DefaultCapacity,
		QueryLimit:       DefaultQueryLimit,
		SubscriberBuffer: 64,
	}
}

// Log is the bounded, insertion-ordered broadcast log. Entries live in a
// ring buffer so appends stay O(1) once the log is full.
type Log struct {
	config *Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries []Entry // ring; len == capacity once full
	head    int     // index of the oldest entry
	size    int
	evicted int64

	subMu       sync.RWMutex
	subscribers map[string]chan Entry
	dropped     atomic.Int64
}

// NewLog creates a timeline log.
func NewLog(config *Config, logger *slog.Logger) *Log {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.QueryLimit <= 0 {
		config.QueryLimit = DefaultQueryLimit
	}
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{
		config:      config,
		logger:      logger.With("component", "timeline"),
		subscribers: make(map[string]chan Entry),
	}
}

// Append records an entry and fans it out to all subscribers. The append is
// synchronous and ordering-preserving; the fan-out never blocks. Missing id
// and timestamp fields are filled in.
func (l *Log) Append(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	if l.size < l.config.Capacity {
		l.entries = append(l.entries, entry)
		l.size++
	} else {
		// Full: overwrite the oldest slot in place.
		l.entries[l.head] = entry
		l.head = (l.head + 1) % l.config.Capacity
		l.evicted++
	}
	l.mu.Unlock()

	l.broadcast(entry)
	return entry
}

// at returns the i-th entry in chronological order. Callers hold l.mu.
func (l *Log) at(i int) Entry {
	return l.entries[(l.head+i)%len(l.entries)]
}

// Recent returns up to limit entries, newest first. A non-positive or
// oversized limit means the configured query limit.
func (l *Log) Recent(limit int) []Entry {
	if limit <= 0 || limit > l.config.QueryLimit {
		limit = l.config.QueryLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit > l.size {
		limit = l.size
	}

	out := make([]Entry, 0, limit)
	for i := l.size - 1; i >= l.size-limit; i-- {
		out = append(out, l.at(i))
	}
	return out
}

// Query returns entries with from <= ts < to in chronological order, capped
// at the configured query limit. Zero bounds are open.
func (l *Log) Query(from, to time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, 64)
	for i := 0; i < l.size; i++ {
		entry := l.at(i)
		if !from.IsZero() && entry.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.Timestamp.Before(to) {
			continue
		}
		out = append(out, entry)
		if len(out) == l.config.QueryLimit {
			break
		}
	}
	return out
}

// Export writes every retained entry as newline-delimited JSON in
// chronological order.
func (l *Log) Export(w io.Writer) error {
	l.mu.RLock()
	entries := make([]Entry, 0, l.size)
	for i := 0; i < l.size; i++ {
		entries = append(entries, l.at(i))
	}
	l.mu.RUnlock()

	enc := json.NewEncoder(w)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Evicted returns how many entries have been evicted over capacity.
func (l *Log) Evicted() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}

// Dropped returns how many broadcasts were dropped on full observer buffers.
func (l *Log) Dropped() int64 {
	return l.dropped.Load()
}

// Subscribe registers an observer and returns its id and receive channel.
// The channel is closed on Unsubscribe.
func (l *Log) Subscribe() (string, <-chan Entry) {
	id := uuid.New().String()
	ch := make(chan Entry, l.config.SubscriberBuffer)

	l.subMu.Lock()
	l.subscribers[id] = ch
	l.subMu.Unlock()

	l.logger.Debug("observer subscribed", "subscriber_id", id)
	return id, ch
}

// Unsubscribe removes an observer and closes its channel. Unknown ids are a
// no-op.
func (l *Log) Unsubscribe(id string) {
	l.subMu.Lock()
	ch, ok := l.subscribers[id]
	if ok {
		delete(l.subscribers, id)
	}
	l.subMu.Unlock()

	if ok {
		close(ch)
		l.logger.Debug("observer unsubscribed", "subscriber_id", id)
	}
}

// SubscriberCount returns the number of live observers.
func (l *Log) SubscriberCount() int {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	return len(l.subscribers)
}

// broadcast fans an entry out to every subscriber without blocking.
// A full observer buffer drops the entry for that observer only.
func (l *Log) broadcast(entry Entry) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()

	for id, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			l.dropped.Add(1)
			l.logger.Warn("observer buffer full, entry dropped",
				"subscriber_id", id,
				"entry_id", entry.ID,
			)
		}
	}
}
