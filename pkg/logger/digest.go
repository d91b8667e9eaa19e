package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"
)

// Publisher ships a batch of digest entries somewhere (Kafka in production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	Interval  time.Duration // flush period
	MaxUnique int           // flush early once this many distinct errors are buffered
	Topic     string
	Publisher Publisher
}

type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorDigest deduplicates error logs by (level, message, fields, caller)
// and publishes the counts in batches.
type ErrorDigest struct {
	cfg     *DigestConfig
	mu      sync.Mutex
	entries map[uint64]*DigestEntry
	stop    chan struct{}
	done    chan struct{}
}

func NewErrorDigest(cfg *DigestConfig) *ErrorDigest {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxUnique <= 0 {
		cfg.MaxUnique = 100
	}
	d := &ErrorDigest{
		cfg:     cfg,
		entries: make(map[uint64]*DigestEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *ErrorDigest) Add(level, msg string, fields map[string]interface{}, caller string) {
	key := digestKey(level, msg, fields, caller)
	now := time.Now()

	d.mu.Lock()
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level: level, Message: msg, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	var batch []DigestEntry
	if len(d.entries) >= d.cfg.MaxUnique {
		batch = d.drainLocked()
	}
	d.mu.Unlock()

	if batch != nil {
		go d.publish(batch)
	}
}

// Len reports the number of distinct buffered entries.
func (d *ErrorDigest) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *ErrorDigest) loop() {
	defer close(d.done)
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.flush()
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *ErrorDigest) flush() {
	d.mu.Lock()
	batch := d.drainLocked()
	d.mu.Unlock()
	if len(batch) > 0 {
		d.publish(batch)
	}
}

func (d *ErrorDigest) drainLocked() []DigestEntry {
	if len(d.entries) == 0 {
		return nil
	}
	out := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	d.entries = make(map[uint64]*DigestEntry)
	return out
}

func (d *ErrorDigest) publish(batch []DigestEntry) {
	if d.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
		// the logger itself is the thing failing here, so go straight to stderr
		fmt.Fprintf(os.Stderr, "error digest publish failed: %v\n", err)
	}
}

func (d *ErrorDigest) Close() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

func digestKey(level, msg string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	b, _ := json.Marshal(fields) // map keys are sorted by encoding/json
	fmt.Fprintf(h, "%s|%s|%s|", level, msg, caller)
	h.Write(b)
	return h.Sum64()
}
