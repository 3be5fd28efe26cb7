package apiclient

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Connectivity is the reachability precondition checked before every request.
// Callers on platforms with their own reachability signal can inject an
// implementation; the default probes the API host with a short TCP dial.
type Connectivity interface {
	// Online reports whether the network is currently reachable.
	Online(ctx context.Context) bool
}

// AlwaysOnline is a Connectivity that never blocks a request. Used in tests
// and in environments where the transport error itself is signal enough.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online(ctx context.Context) bool { return true }

// dialProbe checks reachability by dialing the API host.
type dialProbe struct {
	address string
	timeout time.Duration
}

// newDialProbe builds a probe for the given base URL. An unparseable URL
// yields a probe that reports offline, which the pipeline surfaces as
// NETWORK_ERROR before any request is attempted.
func newDialProbe(baseURL string, timeout time.Duration) *dialProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return &dialProbe{timeout: timeout}
	}

	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	return &dialProbe{address: host, timeout: timeout}
}

// Online dials the API host once with the probe timeout.
func (p *dialProbe) Online(ctx context.Context) bool {
	if p.address == "" {
		return false
	}

	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
