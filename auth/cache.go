package auth

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wmde/qsbot/db/bolt"
)

const credentialBucket = "bot_credentials"

// cachedCredential is what actually sits in bbolt: the credential plus a
// bcrypt fingerprint of its password/token and a timestamp, so a refresh
// can detect whether the upstream source (the INI file, most often)
// changed without re-resolving on every single batch.
type cachedCredential struct {
	Credential BotCredential `json:"credential"`
	Fingerprint string       `json:"fingerprint"`
	CachedAt    time.Time    `json:"cached_at"`
}

// Cache is a local, on-disk fallback for resolved bot/OAuth credentials:
// if Store.Resolve can't reach the auth database or the INI file is
// temporarily unreadable, a batch already in flight can keep using the
// last credential it successfully resolved instead of stalling.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// NewCache opens (or creates) the bbolt-backed credential cache at path.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	db, err := bolt.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateBucket(credentialBucket); err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

func secretOf(cred *BotCredential) string {
	if cred.OAuthToken != "" {
		return cred.OAuthToken
	}
	return cred.Password
}

// Put stores cred, fingerprinting its secret with bcrypt so a later Get
// can tell whether the secret has since changed upstream.
func (c *Cache) Put(batchID int64, cred *BotCredential) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secretOf(cred)), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	entry := cachedCredential{
		Credential:  *cred,
		Fingerprint: string(hash),
		CachedAt:    time.Now(),
	}
	return c.db.PutJSON(credentialBucket, key(batchID), entry)
}

// Get returns the cached credential for batchID if it is still within its
// TTL, reporting false if there is nothing cached or it has expired.
func (c *Cache) Get(batchID int64) (*BotCredential, bool) {
	var entry cachedCredential
	if err := c.db.GetJSON(credentialBucket, key(batchID), &entry); err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.CachedAt) > c.ttl {
		return nil, false
	}
	cred := entry.Credential
	cred.Source = SourceCache
	return &cred, true
}

// Matches reports whether freshCred's secret still matches the
// fingerprint stored for a previously cached credential, used to decide
// whether the INI file's password has rotated out from under the cache.
func (c *Cache) Matches(batchID int64, freshCred *BotCredential) bool {
	var entry cachedCredential
	if err := c.db.GetJSON(credentialBucket, key(batchID), &entry); err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(entry.Fingerprint), []byte(secretOf(freshCred))) == nil
}

func key(batchID int64) string {
	return fmt.Sprintf("%d", batchID)
}

// Close releases the underlying bbolt file handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
