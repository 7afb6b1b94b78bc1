package stream

import (
	"log/slog"
	"sort"

	"github.com/yndnr/shellkeep-go/pkg/cmap"
)

// Registry holds one Connection per endpoint.
type Registry struct {
	conns  *cmap.Map[*Connection]
	dialer Dialer
	logger *slog.Logger
}

// NewRegistry creates a registry dialing through d. A nil dialer uses
// NewHTTPDialer.
func NewRegistry(d Dialer, logger *slog.Logger) *Registry {
	if d == nil {
		d = NewHTTPDialer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  cmap.New[*Connection](),
		dialer: d,
		logger: logger.With("component", "stream"),
	}
}

// Get returns the connection for endpoint, creating it with opts on first
// use. Later calls return the same connection and ignore opts.
func (r *Registry) Get(endpoint string, opts Options) *Connection {
	return r.conns.GetOrCreate(endpoint, func() *Connection {
		return newConnection(endpoint, opts, r.dialer, r.logger)
	})
}

// Lookup returns the connection for endpoint if one exists.
func (r *Registry) Lookup(endpoint string) (*Connection, bool) {
	return r.conns.Get(endpoint)
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return r.conns.Count()
}

// Connections returns every registered connection, ordered by endpoint.
func (r *Registry) Connections() []*Connection {
	conns := r.conns.Values()
	sort.Slice(conns, func(i, j int) bool { return conns[i].endpoint < conns[j].endpoint })
	return conns
}

// CloseEndpoint closes and forgets the connection for endpoint.
func (r *Registry) CloseEndpoint(endpoint string) {
	if c, ok := r.conns.Pop(endpoint); ok {
		c.Close()
	}
}

// CloseAll closes and forgets every connection.
func (r *Registry) CloseAll() {
	for _, c := range r.conns.Drain() {
		c.Close()
	}
}

// OnSuspend forwards backgrounding to every connection.
func (r *Registry) OnSuspend() {
	for _, c := range r.conns.Values() {
		c.OnSuspend()
	}
}

// OnResume forwards foregrounding to every connection.
func (r *Registry) OnResume() {
	for _, c := range r.conns.Values() {
		c.OnResume()
	}
}
