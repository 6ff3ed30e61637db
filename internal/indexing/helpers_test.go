package indexing

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"go_seoindex/internal/cache"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newTestPool builds a pool of credentials named a, b, c... with the given quotas
func newTestPool(t *testing.T, quotas ...int) (*Pool, *cache.MemoryStore) {
	t.Helper()
	creds := make([]*Credential, len(quotas))
	for i, q := range quotas {
		id := string(rune('a' + i))
		creds[i] = &Credential{
			ID:          id,
			ClientEmail: id + "@example.iam.gserviceaccount.com",
			PrivateKey:  "unused",
			DailyQuota:  q,
			IsActive:    true,
		}
	}
	store := cache.NewMemoryStore()
	pool := NewPool(&PoolConfig{Credentials: creds, Store: store, Logger: testLogger()})
	t.Cleanup(pool.Close)
	return pool, store
}
