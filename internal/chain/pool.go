package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/metrics"
)

// Pool fans a logical call out over an ordered list of RPC endpoints
// per network. Public endpoints rate-limit and degrade independently,
// so every call re-probes from the top of the list; a working endpoint
// is never sticky.
type Pool struct {
	timeout time.Duration

	mu        sync.Mutex
	endpoints map[string][]string
	clients   map[string]*ethclient.Client
}

func NewPool(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pool{
		timeout:   timeout,
		endpoints: make(map[string][]string),
		clients:   make(map[string]*ethclient.Client),
	}
}

// AddNetwork registers endpoint URLs for a network, preserving order.
// Duplicate URLs are ignored so several strategies can share a network.
func (p *Pool) AddNetwork(network string, urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing := p.endpoints[network]
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		found := false
		for _, e := range existing {
			if e == u {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, u)
		}
	}
	p.endpoints[network] = existing
}

func (p *Pool) Networks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.endpoints))
	for n := range p.endpoints {
		out = append(out, n)
	}
	return out
}

// Call runs fn against each endpoint of the network in order until one
// succeeds. Each attempt gets its own timeout. Exhaustion surfaces as
// ENDPOINT_UNAVAILABLE, or RATE_LIMITED when any attempt was throttled
// so callers can back off instead of hammering the next network.
func (p *Pool) Call(ctx context.Context, network string, fn func(ctx context.Context, client *ethclient.Client) error) error {
	p.mu.Lock()
	urls := p.endpoints[network]
	p.mu.Unlock()

	if len(urls) == 0 {
		return apperrors.New(apperrors.ErrInvalidConfig, fmt.Sprintf("no endpoints configured for network %q", network), nil)
	}

	var lastErr error
	rateLimited := false
	for _, url := range urls {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		client, err := p.getClient(attemptCtx, url)
		if err == nil {
			err = fn(attemptCtx, client)
		}
		cancel()
		if err == nil {
			metrics.RPCCalls.WithLabelValues(network, "ok").Inc()
			return nil
		}
		lastErr = err
		if isRateLimitErr(err) {
			rateLimited = true
		}
		metrics.EndpointFailovers.WithLabelValues(network).Inc()
		logger.Warn("rpc endpoint failed, trying next",
			"network", network, "endpoint", url, "error", err)
		p.evictClient(url)
	}

	metrics.RPCCalls.WithLabelValues(network, "exhausted").Inc()
	if rateLimited {
		return apperrors.New(apperrors.ErrRateLimited,
			fmt.Sprintf("network %q endpoints are rate limiting", network), lastErr)
	}
	return apperrors.New(apperrors.ErrEndpointUnavailable,
		fmt.Sprintf("all endpoints exhausted for network %q", network), lastErr)
}

func (p *Pool) getClient(ctx context.Context, url string) (*ethclient.Client, error) {
	p.mu.Lock()
	if c, ok := p.clients[url]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[url]; ok {
		client.Close()
		return c, nil
	}
	p.clients[url] = client
	return client, nil
}

// evictClient drops a cached client after a failed attempt so the next
// probe re-dials instead of reusing a possibly broken connection.
func (p *Pool) evictClient(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[url]; ok {
		c.Close()
		delete(p.clients, url)
	}
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, c := range p.clients {
		c.Close()
		delete(p.clients, url)
	}
}

func isRateLimitErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}
