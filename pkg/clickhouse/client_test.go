package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigOptions(t *testing.T) {
	var cfg ClientConfig
	for _, opt := range []ClientOption{
		WithAddr("ch", 9000),
		WithAuth("ipopulse", "u", "p"),
		WithPoolSize(4),
		WithTimeouts(2*time.Second, 3*time.Second),
		WithAsyncInsert(true),
	} {
		opt(&cfg)
	}

	o := cfg.options(cfg.Database)
	assert.Equal(t, []string{"ch:9000"}, o.Addr)
	assert.Equal(t, ch.Native, o.Protocol)
	assert.Equal(t, ch.Auth{Database: "ipopulse", Username: "u", Password: "p"}, o.Auth)
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 4, o.MaxOpenConns)
	assert.Equal(t, 2, o.MaxIdleConns)
	assert.Equal(t, 2*time.Second, o.DialTimeout)

	WithHTTP(true)(&cfg)
	assert.Equal(t, ch.HTTP, cfg.options("default").Protocol)
}

func TestNewClientRequiresAddr(t *testing.T) {
	_, err := NewClient(WithAuth("d", "u", ""))
	require.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`ipo`", quoteIdent("ipo"))
	assert.Equal(t, "`a\\`b`", quoteIdent("a`b"))
}
