package connection

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// unixPrefix marks an agent address that is a Unix socket path.
const unixPrefix = "unix://"

// SocketPath returns the socket path of a "unix://" agent address.
func SocketPath(server string) (string, bool) {
	if !strings.HasPrefix(server, unixPrefix) {
		return "", false
	}
	path := strings.TrimPrefix(server, unixPrefix)
	return path, path != ""
}

// UnixTransport speaks HTTP over the Unix socket at path, whatever host the
// request names.
func UnixTransport(path string) *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", path)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
}
