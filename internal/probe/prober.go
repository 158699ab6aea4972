// Package probe performs single HTTP checks against TestFlight invite URLs
// and classifies the responses into build statuses.
package probe

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// userAgent is an iOS Safari identity. TestFlight invite pages are
	// served conditionally by client type; a desktop or bot UA gets a
	// different page than the one testers see.
	userAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	// maxBodyBytes caps how much of the invite page is read. The
	// availability keywords appear well within the first chunk of HTML.
	maxBodyBytes = 512 * 1024

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 30 * time.Second
)

// Result is the raw outcome of one completed HTTP exchange.
type Result struct {
	StatusCode       int
	RedirectLocation string // Location header on 3xx responses, else ""
	Body             string // response body excerpt, capped at maxBodyBytes
}

// Prober issues a single GET against a target URL. Redirects are never
// followed: classification may depend on the Location header, so the prober
// returns the first response as-is. No retries happen here; retry policy
// belongs to the scheduler.
type Prober struct {
	client *http.Client
}

// NewProber creates a Prober with the given per-probe timeout. A zero or
// negative timeout falls back to DefaultTimeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe fetches url and returns the raw exchange result. A non-nil error
// means the exchange did not complete (DNS failure, refused connection,
// timeout); any completed exchange, whatever its status code, returns a
// Result and nil error.
func (p *Prober) Probe(url string) (*Result, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		// Headers arrived but the body transfer broke off. Classify on
		// what we have rather than calling the whole exchange failed.
		body = nil
	}

	return &Result{
		StatusCode:       resp.StatusCode,
		RedirectLocation: resp.Header.Get("Location"),
		Body:             string(body),
	}, nil
}
