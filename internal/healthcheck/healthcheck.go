// Package healthcheck pings an external monitor around each sweep.
package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger notifies a healthcheck endpoint (e.g. healthchecks.io) that a sweep
// started or finished. Pings are best effort: failures are logged and
// swallowed, never surfaced to the sweep.
type Pinger struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a pinger. An empty URL disables it.
func New(url string, logger *slog.Logger) *Pinger {
	return &Pinger{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "healthcheck"),
	}
}

// IsConfigured returns true if a ping URL is set
func (p *Pinger) IsConfigured() bool {
	return p.url != ""
}

// Start signals the beginning of a sweep
func (p *Pinger) Start(ctx context.Context) {
	p.ping(ctx, p.url+"/start")
}

// Done signals the end of a sweep
func (p *Pinger) Done(ctx context.Context) {
	p.ping(ctx, p.url)
}

func (p *Pinger) ping(ctx context.Context, url string) {
	if !p.IsConfigured() {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("failed to build healthcheck request", "error", err)
		return
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("healthcheck ping failed", "url", url, "error", err)
		return
	}
	resp.Body.Close()
}
