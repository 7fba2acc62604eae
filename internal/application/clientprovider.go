package application

import (
	"errors"
	"strings"
	"sync"

	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
)

// ErrMissingConnection is returned when neither the request nor the server
// configuration supplies a complete TestRail connection.
var ErrMissingConnection = errors.New("testrail url, username and api key are required")

// maxPooledClients bounds the number of distinct connections kept alive.
const maxPooledClients = 32

// Connection identifies a TestRail instance and the account used against it.
type Connection struct {
	URL      string
	Username string
	APIKey   string
}

func (c Connection) complete() bool {
	return c.URL != "" && c.Username != "" && c.APIKey != ""
}

// ClientFactory builds a TestRail client for a connection.
type ClientFactory func(Connection) (driven.TestRailClient, error)

// TestRailClientProvider hands out TestRail clients per connection. Clients
// are reused across calls so that requests for the same account share one
// rate limiter and response cache.
type TestRailClientProvider struct {
	mu       sync.Mutex
	defaults Connection
	factory  ClientFactory
	clients  map[Connection]driven.TestRailClient
}

// NewTestRailClientProvider creates a provider. defaults fills in whatever a
// caller leaves empty and may itself be empty.
func NewTestRailClientProvider(defaults Connection, factory ClientFactory) *TestRailClientProvider {
	return &TestRailClientProvider{
		defaults: defaults,
		factory:  factory,
		clients:  make(map[Connection]driven.TestRailClient),
	}
}

// HasDefault reports whether the server configuration holds a complete connection.
func (p *TestRailClientProvider) HasDefault() bool {
	return p.defaults.complete()
}

// Get returns the client for conn, with empty fields taken from the defaults.
// Default credentials are only lent to the default instance: a conn naming
// another URL must bring its own username and API key.
func (p *TestRailClientProvider) Get(conn Connection) (driven.TestRailClient, error) {
	if conn.URL == "" {
		conn.URL = p.defaults.URL
	}
	if sameInstance(conn.URL, p.defaults.URL) {
		if conn.Username == "" {
			conn.Username = p.defaults.Username
		}
		if conn.APIKey == "" {
			conn.APIKey = p.defaults.APIKey
		}
	}
	if !conn.complete() {
		return nil, ErrMissingConnection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[conn]; ok {
		return c, nil
	}
	c, err := p.factory(conn)
	if err != nil {
		return nil, err
	}
	if len(p.clients) >= maxPooledClients {
		clear(p.clients)
	}
	p.clients[conn] = c
	return c, nil
}

func sameInstance(a, b string) bool {
	norm := func(u string) string { return strings.TrimRight(strings.TrimSpace(u), "/") }
	return norm(a) != "" && strings.EqualFold(norm(a), norm(b))
}
