// Package netstatus reports server reachability. The engine consults
// the oracle before every online-path attempt; the oracle itself is
// read-only and side-effect-free from the engine's perspective.
package netstatus

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Oracle reports whether the server is currently reachable.
type Oracle interface {
	IsOnline(ctx context.Context) bool
}

// Static is an oracle pinned to a fixed answer. Used for forced
// offline mode and in tests.
type Static bool

// IsOnline returns the pinned answer.
func (s Static) IsOnline(context.Context) bool { return bool(s) }

const (
	// probeTimeout bounds one reachability probe. Short on purpose: a
	// slow health endpoint should read as offline, not block a write.
	probeTimeout = 3 * time.Second

	// probeCacheTTL is how long a probe result is reused before the
	// health endpoint is hit again.
	probeCacheTTL = 5 * time.Second
)

// Prober is an Oracle that issues a HEAD request against the server's
// health endpoint. Results are cached for a short TTL so a burst of
// engine operations does not turn into a burst of probes.
type Prober struct {
	client    *http.Client
	healthURL string

	mu         sync.Mutex
	lastProbe  time.Time
	lastOnline bool
}

// NewProber creates a prober for the given server base URL and health
// path. If client is nil, one with the probe timeout is created.
func NewProber(baseURL, healthPath string, client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}

	return &Prober{
		client:    client,
		healthURL: strings.TrimSuffix(baseURL, "/") + healthPath,
	}
}

// IsOnline probes the health endpoint, reusing a cached result within
// the TTL. Any response at all counts as online; only transport
// failures count as offline.
func (p *Prober) IsOnline(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastProbe) < probeCacheTTL {
		return p.lastOnline
	}

	p.lastProbe = time.Now()
	p.lastOnline = p.probe(ctx)

	return p.lastOnline
}

func (p *Prober) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}

	resp.Body.Close()

	return true
}
