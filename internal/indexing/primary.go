package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	// GooglePublishEndpoint is the Indexing API URL notification endpoint
	GooglePublishEndpoint = "https://indexing.googleapis.com/v3/urlNotifications:publish"
	// GoogleTokenEndpoint is the OAuth2 token endpoint for service-account assertions
	GoogleTokenEndpoint = "https://oauth2.googleapis.com/token"

	indexingScope   = "https://www.googleapis.com/auth/indexing"
	assertionTTL    = time.Hour
	tokenEarlyRenew = time.Minute
	maxBodyLog      = 512
)

// ChangeType is the notification type sent to the indexing API
type ChangeType string

const (
	URLUpdated ChangeType = "URL_UPDATED"
	URLDeleted ChangeType = "URL_DELETED"
)

var (
	// ErrQuotaExhausted means no active credential has quota left today
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrNoCredentials means the primary engine was started without credentials
	ErrNoCredentials = errors.New("no indexing credentials configured")
)

// IndexResult is the outcome of one URL notification
type IndexResult struct {
	URL          string `json:"url"`
	Success      bool   `json:"success"`
	CredentialID string `json:"credentialId,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PrimaryConfig holds the configuration for the primary engine
type PrimaryConfig struct {
	Pool      *Pool
	Ledger    *Ledger
	Client    *http.Client
	Logger    *logrus.Entry
	Endpoint  string
	TokenURL  string
	CallDelay time.Duration
}

// PrimaryEngine publishes URL notifications to the Google Indexing API, one
// quota-limited service account per call.
type PrimaryEngine struct {
	pool      *Pool
	ledger    *Ledger
	client    *http.Client
	logger    *logrus.Entry
	endpoint  string
	tokenURL  string
	callDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration)
	now       func() time.Time

	tokensMu sync.Mutex
	tokens   map[string]cachedToken
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// authError is an authentication rejection from the API or the token endpoint
type authError struct {
	status int
	body   string
}

func (e *authError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.status, e.body)
}

// NewPrimaryEngine creates the primary indexing engine
func NewPrimaryEngine(cfg *PrimaryConfig) *PrimaryEngine {
	e := &PrimaryEngine{
		pool:      cfg.Pool,
		ledger:    cfg.Ledger,
		client:    cfg.Client,
		logger:    cfg.Logger.WithField("component", "primary-engine"),
		endpoint:  cfg.Endpoint,
		tokenURL:  cfg.TokenURL,
		callDelay: cfg.CallDelay,
		sleep:     sleepContext,
		now:       time.Now,
		tokens:    make(map[string]cachedToken),
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 15 * time.Second}
	}
	if e.endpoint == "" {
		e.endpoint = GooglePublishEndpoint
	}
	if e.tokenURL == "" {
		e.tokenURL = GoogleTokenEndpoint
	}
	return e
}

// Available reports whether any credential is configured
func (e *PrimaryEngine) Available() bool {
	return e.pool.Size() > 0
}

// SubmitURL notifies the API about a single URL change. Errors never escape;
// they are reported in the result.
func (e *PrimaryEngine) SubmitURL(ctx context.Context, rawURL string, changeType ChangeType) IndexResult {
	if !e.Available() {
		return IndexResult{URL: rawURL, Error: ErrNoCredentials.Error()}
	}
	res := e.submit(ctx, rawURL, changeType)
	e.ledger.RecordPrimary(ctx, res.Success)
	return res
}

// SubmitBatch submits urls one by one with a pause between calls. Once the pool
// runs dry the remaining urls fail without a network call.
func (e *PrimaryEngine) SubmitBatch(ctx context.Context, urls []string, changeType ChangeType) []IndexResult {
	results := make([]IndexResult, 0, len(urls))
	if !e.Available() {
		for _, u := range urls {
			results = append(results, IndexResult{URL: u, Error: ErrNoCredentials.Error()})
		}
		return results
	}

	calls := 0
	for i, u := range urls {
		if !e.pool.HasAnyQuota() {
			for _, rest := range urls[i:] {
				results = append(results, IndexResult{URL: rest, Error: ErrQuotaExhausted.Error()})
			}
			e.logger.Warnf("Quota exhausted, skipped %d of %d url(s)", len(urls)-i, len(urls))
			break
		}
		if calls > 0 {
			e.sleep(ctx, e.callDelay)
		}
		results = append(results, e.SubmitURL(ctx, u, changeType))
		calls++
	}
	return results
}

func (e *PrimaryEngine) submit(ctx context.Context, rawURL string, changeType ChangeType) IndexResult {
	res := IndexResult{URL: rawURL}
	cred := e.pool.NextAvailable(ctx)
	if cred == nil {
		res.Error = ErrQuotaExhausted.Error()
		return res
	}
	res.CredentialID = cred.ID
	recorded := false
	defer func() {
		if !recorded {
			e.pool.Release(cred.ID)
		}
	}()

	token, err := e.accessToken(ctx, cred)
	if err != nil {
		var ae *authError
		if errors.As(err, &ae) {
			e.pool.MarkFailed(cred.ID)
			res.StatusCode = ae.status
		}
		res.Error = err.Error()
		e.logger.WithField("credential", cred.ID).Errorf("Failed to obtain access token: %v", err)
		return res
	}

	body, err := json.Marshal(map[string]string{"url": rawURL, "type": string(changeType)})
	if err != nil {
		res.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		res.Error = fmt.Sprintf("failed to create request: %v", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.client.Do(req)
	if err != nil {
		res.Error = fmt.Sprintf("request failed: %v", err)
		e.logger.WithField("url", rawURL).Warnf("Indexing request failed: %v", err)
		return res
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))

	// every answered call counts against the daily quota
	e.pool.RecordUsage(ctx, cred.ID)
	recorded = true
	res.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		res.Success = true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.dropToken(cred.ID)
		e.pool.MarkFailed(cred.ID)
		res.Error = (&authError{status: resp.StatusCode, body: string(respBody)}).Error()
	default:
		res.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if !res.Success {
		e.logger.WithFields(logrus.Fields{
			"url":        rawURL,
			"credential": cred.ID,
			"status":     resp.StatusCode,
		}).Warn("Indexing request rejected")
	}
	return res
}

// accessToken returns a cached bearer token for cred or exchanges a freshly
// signed assertion for one.
func (e *PrimaryEngine) accessToken(ctx context.Context, cred *Credential) (string, error) {
	e.tokensMu.Lock()
	tok, ok := e.tokens[cred.ID]
	e.tokensMu.Unlock()
	if ok && e.now().Add(tokenEarlyRenew).Before(tok.expiresAt) {
		return tok.value, nil
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cred.PrivateKey))
	if err != nil {
		return "", &authError{body: fmt.Sprintf("invalid private key: %v", err)}
	}

	now := e.now()
	claims := jwt.MapClaims{
		"iss":   cred.ClientEmail,
		"scope": indexingScope,
		"aud":   e.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return "", &authError{status: resp.StatusCode, body: truncate(string(body), maxBodyLog)}
	default:
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response without access_token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = int(assertionTTL.Seconds())
	}

	e.tokensMu.Lock()
	e.tokens[cred.ID] = cachedToken{
		value:     tr.AccessToken,
		expiresAt: now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	e.tokensMu.Unlock()
	return tr.AccessToken, nil
}

func (e *PrimaryEngine) dropToken(id string) {
	e.tokensMu.Lock()
	delete(e.tokens, id)
	e.tokensMu.Unlock()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
