package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topic   string
	batches []LogBatch
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.(LogBatch))
	return nil
}

func TestLogCollectorFoldsRepeatsOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 50,
		Topic:          "logs",
		Service:        "ipopulse",
		Publisher:      pub,
	})

	c.AddLog("error", "quote fetch failed", map[string]interface{}{"symbol": "ABC"}, "a.go:1")
	c.AddLog("error", "quote fetch failed", map[string]interface{}{"symbol": "XYZ"}, "a.go:1")
	c.AddLog("error", "persist failed", nil, "b.go:7")
	c.Close()
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topic)

	batch := pub.batches[0]
	assert.Equal(t, "ipopulse", batch.Service)
	require.Len(t, batch.Entries, 2)
	counts := map[string]int{}
	for _, e := range batch.Entries {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 2, counts["quote fetch failed"])
	assert.Equal(t, 1, counts["persist failed"])
}

func TestLogCollectorThresholdFlush(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "one", nil, "x.go:1")
	c.AddLog("error", "two", nil, "x.go:2")

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.batches) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSiteKeyIgnoresFieldValues(t *testing.T) {
	a := logRecord{level: "error", message: "m", caller: "c", fields: map[string]interface{}{"k": 1}}
	b := logRecord{level: "error", message: "m", caller: "c", fields: map[string]interface{}{"k": 2}}
	d := logRecord{level: "error", message: "m", caller: "c", fields: map[string]interface{}{"other": 1}}

	assert.Equal(t, siteKey(a), siteKey(b))
	assert.NotEqual(t, siteKey(a), siteKey(d))
}
