package egress

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Pool is the fixed set of proxy identities used for caption requests.
// It is loaded once at startup and never mutated afterwards.
type Pool struct {
	proxies []*url.URL
}

// NewPool parses a static list of proxy URLs.
func NewPool(rawURLs []string) (*Pool, error) {
	p := &Pool{}
	for _, raw := range rawURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", raw)
		}
		p.proxies = append(p.proxies, u)
	}
	return p, nil
}

// Download fetches a Webshare-style proxy list: one ip:port:user:pass per line.
func Download(ctx context.Context, client *http.Client, listURL string) (*Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download proxy list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download proxy list: HTTP %d", resp.StatusCode)
	}

	p := &Pool{}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 4 {
			slog.Debug("Skipping malformed proxy line", "line", line)
			continue
		}
		p.proxies = append(p.proxies, &url.URL{
			Scheme: "http",
			User:   url.UserPassword(parts[2], parts[3]),
			Host:   parts[0] + ":" + parts[1],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	if len(p.proxies) == 0 {
		return nil, fmt.Errorf("no proxies returned from %s", listURL)
	}

	return p, nil
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Rotation starts a new draw sequence for one item.
func (p *Pool) Rotation() *Rotation {
	return &Rotation{pool: p, tried: make(map[int]bool)}
}

// Rotation draws random identities from a pool, avoiding those already
// drawn in the same sequence. Once every identity has been drawn the
// avoided set is cleared and reuse is permitted.
type Rotation struct {
	pool  *Pool
	tried map[int]bool
}

// Next returns the next identity, or nil when the pool is empty (direct connection).
func (r *Rotation) Next() *url.URL {
	n := r.pool.Len()
	if n == 0 {
		return nil
	}

	if len(r.tried) >= n {
		clear(r.tried)
	}

	available := make([]int, 0, n-len(r.tried))
	for i := range n {
		if !r.tried[i] {
			available = append(available, i)
		}
	}

	pick := available[rand.IntN(len(available))]
	r.tried[pick] = true
	return r.pool.proxies[pick]
}
