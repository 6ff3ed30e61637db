package indexing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// GooglePingEndpoint receives unauthenticated sitemap change notifications
const GooglePingEndpoint = "https://www.google.com/ping"

// PingResult is the outcome of a sitemap ping
type PingResult struct {
	SitemapURL string `json:"sitemapUrl"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error,omitempty"`
}

// SitemapPinger tells the search engine a sitemap has changed
type SitemapPinger struct {
	endpoint string
	ledger   *Ledger
	client   *http.Client
	logger   *logrus.Entry
}

// NewSitemapPinger creates a sitemap pinger; endpoint defaults to Google's
func NewSitemapPinger(endpoint string, ledger *Ledger, client *http.Client, logger *logrus.Entry) *SitemapPinger {
	if endpoint == "" {
		endpoint = GooglePingEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SitemapPinger{
		endpoint: endpoint,
		ledger:   ledger,
		client:   client,
		logger:   logger.WithField("component", "sitemap-pinger"),
	}
}

// Ping issues a single GET; success iff the endpoint answers 200
func (p *SitemapPinger) Ping(ctx context.Context, sitemapURL string) PingResult {
	res := p.ping(ctx, sitemapURL)
	p.ledger.RecordSitemap(ctx, res.Success)
	if !res.Success {
		p.logger.WithField("sitemap", sitemapURL).Warnf("Sitemap ping failed: %s", res.Error)
	}
	return res
}

func (p *SitemapPinger) ping(ctx context.Context, sitemapURL string) PingResult {
	res := PingResult{SitemapURL: sitemapURL}

	target := p.endpoint + "?sitemap=" + url.QueryEscape(sitemapURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		return res
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("request failed: %v", err)
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode == http.StatusOK
	if !res.Success {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}
