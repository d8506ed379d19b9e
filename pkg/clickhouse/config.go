package clickhouse

import (
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig describes one ClickHouse endpoint and the pool around it.
type ClientConfig struct {
	Addr        string
	Database    string
	User        string
	Password    string
	HTTP        bool
	PoolSize    int
	Lifetime    time.Duration
	DialTimeout time.Duration
	ReadTimeout time.Duration
	AsyncInsert bool
	Bootstrap   bool
}

func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) { c.Addr = net.JoinHostPort(host, strconv.Itoa(port)) }
}

// WithAuth sets the database and the credentials used against it.
func WithAuth(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
		c.User = user
		c.Password = password
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption {
	return func(c *ClientConfig) { c.HTTP = on }
}

func WithPoolSize(n int) ClientOption {
	return func(c *ClientConfig) { c.PoolSize = n }
}

func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout = dial
		c.ReadTimeout = read
	}
}

// WithAsyncInsert lets the server buffer small inserts. The client still
// waits for the buffered insert to land.
func WithAsyncInsert(on bool) ClientOption {
	return func(c *ClientConfig) { c.AsyncInsert = on }
}

// WithBootstrap creates the database on connect when it is missing.
func WithBootstrap() ClientOption {
	return func(c *ClientConfig) { c.Bootstrap = true }
}

// options translates the config into driver options for the given database.
func (c ClientConfig) options(database string) *ch.Options {
	protocol := ch.Native
	if c.HTTP {
		protocol = ch.HTTP
	}
	settings := ch.Settings{}
	if c.AsyncInsert {
		settings["async_insert"] = 1
		settings["wait_for_async_insert"] = 1
	}
	return &ch.Options{
		Addr:     []string{c.Addr},
		Protocol: protocol,
		Auth: ch.Auth{
			Database: database,
			Username: c.User,
			Password: c.Password,
		},
		Settings:        settings,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		MaxOpenConns:    c.PoolSize,
		MaxIdleConns:    (c.PoolSize + 1) / 2,
		ConnMaxLifetime: c.Lifetime,
	}
}
