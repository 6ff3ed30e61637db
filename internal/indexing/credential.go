package indexing

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// DefaultDailyQuota is the per-credential publish allowance of the indexing API
const DefaultDailyQuota = 200

// Credential is a service-account key plus its runtime quota state
type Credential struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	ClientEmail   string `json:"clientEmail"`
	PrivateKey    string `json:"-"`
	DailyQuota    int    `json:"dailyQuota"`
	UsedToday     int    `json:"usedToday"`
	LastResetDate string `json:"lastResetDate"`
	IsActive      bool   `json:"isActive"`

	reserved int // selected by NextAvailable, not yet recorded or released
}

// Remaining returns the quota left today net of in-flight calls, never negative
func (c *Credential) Remaining() int {
	if left := c.DailyQuota - c.UsedToday - c.reserved; left > 0 {
		return left
	}
	return 0
}

func (c *Credential) available() bool {
	return c.IsActive && c.UsedToday+c.reserved < c.DailyQuota
}

// credentialEntry accepts both the camelCase keys and the snake_case keys of a
// downloaded service-account file.
type credentialEntry struct {
	ID              string `json:"id"`
	ProjectID       string `json:"projectId"`
	ProjectIDSnake  string `json:"project_id"`
	ClientEmail     string `json:"clientEmail"`
	ClientEmailSnk  string `json:"client_email"`
	PrivateKey      string `json:"privateKey"`
	PrivateKeySnake string `json:"private_key"`
	DailyQuota      int    `json:"dailyQuota"`
	DailyQuotaSnake int    `json:"daily_quota"`
}

// LoadCredentials parses the JSON array of service accounts held in the environment.
// Malformed entries are dropped with a warning; an empty input yields no credentials.
func LoadCredentials(raw string, defaultQuota int, logger *logrus.Entry) []*Credential {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logger.Warn("No indexing credentials configured, primary engine disabled")
		return nil
	}
	if defaultQuota <= 0 {
		defaultQuota = DefaultDailyQuota
	}

	var entries []credentialEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Errorf("Failed to parse indexing credentials: %v", err)
		return nil
	}

	seen := make(map[string]bool)
	creds := make([]*Credential, 0, len(entries))
	for i, e := range entries {
		email := firstNonEmpty(e.ClientEmail, e.ClientEmailSnk)
		key := firstNonEmpty(e.PrivateKey, e.PrivateKeySnake)
		if email == "" || key == "" {
			logger.Warnf("Skipping indexing credential #%d: missing client email or private key", i)
			continue
		}

		key = strings.ReplaceAll(key, `\n`, "\n")
		if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key)); err != nil {
			logger.Warnf("Skipping indexing credential #%d (%s): invalid private key: %v", i, email, err)
			continue
		}

		id := firstNonEmpty(e.ID, email)
		if seen[id] {
			logger.Warnf("Skipping indexing credential #%d: duplicate id %s", i, id)
			continue
		}
		seen[id] = true

		quota := e.DailyQuota
		if quota <= 0 {
			quota = e.DailyQuotaSnake
		}
		if quota <= 0 {
			quota = defaultQuota
		}

		creds = append(creds, &Credential{
			ID:          id,
			ProjectID:   firstNonEmpty(e.ProjectID, e.ProjectIDSnake),
			ClientEmail: email,
			PrivateKey:  key,
			DailyQuota:  quota,
			IsActive:    true,
		})
	}

	logger.Infof("Loaded %d indexing credential(s)", len(creds))
	return creds
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
