package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries before an early flush
	Topic          string
	Service        string
	Publisher      Publisher
}

// LogBatch is the payload handed to the publisher on every flush.
type LogBatch struct {
	Service string               `json:"service"`
	SentAt  time.Time            `json:"sent_at"`
	Dropped int64                `json:"dropped,omitempty"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// AggregatedLogEntry folds repeats of one log site into a single record.
// Fields hold the values seen on the first occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type logRecord struct {
	level, message, caller string
	fields                 map[string]interface{}
	at                     time.Time
}

// LogCollector aggregates error logs off the hot path. A single goroutine
// owns the pending set; AddLog never blocks and counts what it had to drop.
type LogCollector struct {
	cfg     CollectionConfig
	in      chan logRecord
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:  cfg,
		in:   make(chan logRecord, cfg.CountThreshold*4),
		done: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	rec := logRecord{level: level, message: message, caller: caller, fields: fields, at: time.Now()}
	select {
	case <-c.done:
	case c.in <- rec:
	default:
		c.dropped.Add(1)
	}
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	pending := make(map[uint64]*AggregatedLogEntry)
	for {
		select {
		case rec := <-c.in:
			c.fold(pending, rec)
			if len(pending) >= c.cfg.CountThreshold {
				pending = c.flush(pending)
			}
		case <-ticker.C:
			pending = c.flush(pending)
		case <-c.done:
			for {
				select {
				case rec := <-c.in:
					c.fold(pending, rec)
				default:
					c.flush(pending)
					return
				}
			}
		}
	}
}

func (c *LogCollector) fold(pending map[uint64]*AggregatedLogEntry, rec logRecord) {
	key := siteKey(rec)
	if e, ok := pending[key]; ok {
		e.Count++
		e.LastSeen = rec.at
		return
	}
	pending[key] = &AggregatedLogEntry{
		Level:     rec.level,
		Message:   rec.message,
		Caller:    rec.caller,
		Fields:    rec.fields,
		Count:     1,
		FirstSeen: rec.at,
		LastSeen:  rec.at,
	}
}

// siteKey identifies a log site by level, caller, message and field names.
// Field values are left out so one failing call site across many symbols
// collapses into one entry.
func siteKey(rec logRecord) uint64 {
	h := fnv.New64a()
	for _, s := range []string{rec.level, rec.caller, rec.message} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	names := make([]string, 0, len(rec.fields))
	for k := range rec.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// flush publishes the pending set and returns a fresh one.
func (c *LogCollector) flush(pending map[uint64]*AggregatedLogEntry) map[uint64]*AggregatedLogEntry {
	dropped := c.dropped.Swap(0)
	if len(pending) == 0 && dropped == 0 {
		return pending
	}
	batch := LogBatch{
		Service: c.cfg.Service,
		SentAt:  time.Now().UTC(),
		Dropped: dropped,
		Entries: make([]AggregatedLogEntry, 0, len(pending)),
	}
	for _, e := range pending {
		batch.Entries = append(batch.Entries, *e)
	}
	sort.Slice(batch.Entries, func(i, j int) bool {
		return batch.Entries[i].FirstSeen.Before(batch.Entries[j].FirstSeen)
	})

	if c.cfg.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch.Entries), err)
		}
	}
	return make(map[uint64]*AggregatedLogEntry)
}

// Close flushes what is pending and stops the collector. Safe to call twice.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}
