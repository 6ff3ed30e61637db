package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxBroadcastURLs is the IndexNow limit of urls per submission
const MaxBroadcastURLs = 10000

// DefaultBroadcastEndpoints are the search engines sharing the IndexNow protocol
var DefaultBroadcastEndpoints = []string{
	"https://api.indexnow.org/indexnow",
	"https://www.bing.com/indexnow",
	"https://yandex.com/indexnow",
}

// BroadcastResult is the response of a single endpoint
type BroadcastResult struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// BroadcastSummary combines the per-endpoint results of one submission
type BroadcastSummary struct {
	Success   bool              `json:"success"`
	Submitted int               `json:"submitted"`
	Results   []BroadcastResult `json:"results"`
	Error     string            `json:"error,omitempty"`
}

// BroadcastConfig holds the configuration for the broadcast engine
type BroadcastConfig struct {
	Key       string
	Endpoints []string
	Ledger    *Ledger
	Client    *http.Client
	Logger    *logrus.Entry
}

// BroadcastEngine pushes url lists to every IndexNow endpoint at once
type BroadcastEngine struct {
	key       string
	endpoints []string
	ledger    *Ledger
	client    *http.Client
	logger    *logrus.Entry
}

type indexNowPayload struct {
	Host        string   `json:"host"`
	Key         string   `json:"key"`
	KeyLocation string   `json:"keyLocation"`
	URLList     []string `json:"urlList"`
}

// NewBroadcastEngine creates the broadcast engine. Without a key it stays
// unavailable for the life of the process.
func NewBroadcastEngine(cfg *BroadcastConfig) *BroadcastEngine {
	e := &BroadcastEngine{
		key:       cfg.Key,
		endpoints: cfg.Endpoints,
		ledger:    cfg.Ledger,
		client:    cfg.Client,
		logger:    cfg.Logger.WithField("component", "broadcast-engine"),
	}
	if len(e.endpoints) == 0 {
		e.endpoints = DefaultBroadcastEndpoints
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 10 * time.Second}
	}
	if e.key == "" {
		e.logger.Warn("IndexNow key not configured, broadcast engine disabled")
	}
	return e
}

// Available reports whether a shared key is configured
func (e *BroadcastEngine) Available() bool {
	return e.key != ""
}

// Endpoints returns the configured endpoint list
func (e *BroadcastEngine) Endpoints() []string {
	return append([]string(nil), e.endpoints...)
}

// SubmitURLs posts urls to every endpoint concurrently. The submission succeeds
// when any endpoint accepts it.
func (e *BroadcastEngine) SubmitURLs(ctx context.Context, urls []string) BroadcastSummary {
	if !e.Available() {
		return BroadcastSummary{Error: "IndexNow key not configured"}
	}
	summary := e.submit(ctx, urls)
	e.ledger.RecordBroadcast(ctx, summary.Success)
	return summary
}

func (e *BroadcastEngine) submit(ctx context.Context, urls []string) BroadcastSummary {
	if len(urls) == 0 {
		return BroadcastSummary{Error: "no urls to submit"}
	}
	if len(urls) > MaxBroadcastURLs {
		e.logger.Warnf("Truncating broadcast from %d to %d url(s)", len(urls), MaxBroadcastURLs)
		urls = urls[:MaxBroadcastURLs]
	}

	first, err := url.Parse(urls[0])
	if err != nil || first.Host == "" {
		return BroadcastSummary{Error: fmt.Sprintf("invalid url %q", urls[0])}
	}

	body, err := json.Marshal(indexNowPayload{
		Host:        first.Host,
		Key:         e.key,
		KeyLocation: fmt.Sprintf("https://%s/%s.txt", first.Host, e.key),
		URLList:     urls,
	})
	if err != nil {
		return BroadcastSummary{Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	results := make([]BroadcastResult, len(e.endpoints))
	var g errgroup.Group
	for i, endpoint := range e.endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			results[i] = e.post(ctx, endpoint, body)
			return nil
		})
	}
	_ = g.Wait()

	summary := BroadcastSummary{Submitted: len(urls), Results: results}
	for _, r := range results {
		if r.Success {
			summary.Success = true
			break
		}
	}
	if !summary.Success {
		summary.Error = "no endpoint accepted the submission"
		e.logger.WithField("host", first.Host).Warn("Broadcast rejected by every endpoint")
	}
	return summary
}

func (e *BroadcastEngine) post(ctx context.Context, endpoint string, body []byte) BroadcastResult {
	res := BroadcastResult{Endpoint: endpoint}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := e.client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("request failed: %v", err)
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted
	if !res.Success {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}
