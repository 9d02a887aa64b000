package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/ini.v1"
	"gorm.io/gorm"
)

// oauthRecord is the GORM model for the auth schema's per-batch OAuth
// credential table, named after the legacy
// s53220__quickstatements_auth.batch_oauth table this is grounded on.
type oauthRecord struct {
	BatchID        int64 `gorm:"primaryKey"`
	SerializedJSON string
}

func (oauthRecord) TableName() string { return "batch_oauth" }

type oauthPayload struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// INIConfig points at the legacy bot-password INI file used when a batch
// has no OAuth credential on file.
type INIConfig struct {
	Path     string
	Username string // section/key holding the bot account name, default "user.user"
	Password string // default "user.pass"
}

// Store resolves a batch's credential: OAuth first, INI bot account as a
// fallback, matching the original implementation's set_bot_api_auth /
// get_oauth_for_batch pair.
type Store struct {
	db  *gorm.DB
	ini INIConfig
}

// NewStore wraps an already-migrated auth database connection.
func NewStore(db *gorm.DB, ini INIConfig) *Store {
	return &Store{db: db, ini: ini}
}

// Migrate creates the OAuth credential table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&oauthRecord{})
}

// Resolve returns the credential to use for batchID, preferring OAuth,
// falling back to the shared bot INI account, and finally ErrNoCredential
// if neither is configured.
func (s *Store) Resolve(ctx context.Context, batchID int64) (*BotCredential, error) {
	cred, err := s.resolveOAuth(ctx, batchID)
	if err == nil {
		return cred, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("auth: resolve oauth for batch %d: %w", batchID, err)
	}

	cred, err = s.resolveINI(batchID)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *Store) resolveOAuth(ctx context.Context, batchID int64) (*BotCredential, error) {
	var rec oauthRecord
	if err := s.db.WithContext(ctx).First(&rec, batchID).Error; err != nil {
		return nil, err
	}
	var payload oauthPayload
	if err := json.Unmarshal([]byte(rec.SerializedJSON), &payload); err != nil {
		return nil, fmt.Errorf("auth: decode oauth payload for batch %d: %w", batchID, err)
	}
	return &BotCredential{
		BatchID:    batchID,
		Username:   payload.Username,
		OAuthToken: payload.Token,
		Source:     SourceOAuth,
	}, nil
}

func (s *Store) resolveINI(batchID int64) (*BotCredential, error) {
	if s.ini.Path == "" {
		return nil, ErrNoCredential
	}

	cfg, err := ini.Load(s.ini.Path)
	if err != nil {
		return nil, fmt.Errorf("auth: load bot ini %s: %w", s.ini.Path, err)
	}

	usernameKey, passwordKey := s.ini.Username, s.ini.Password
	if usernameKey == "" {
		usernameKey = "user.user"
	}
	if passwordKey == "" {
		passwordKey = "user.pass"
	}

	username := iniGet(cfg, usernameKey)
	password := iniGet(cfg, passwordKey)
	if username == "" || password == "" {
		return nil, ErrNoCredential
	}

	return &BotCredential{
		BatchID:  batchID,
		Username: username,
		Password: password,
		Source:   SourceINI,
	}, nil
}

// iniGet reads a "section.key" path out of an ini.File: "user.user" is key
// "user" in section [user]. A path with no dot names a key in the default
// section.
func iniGet(cfg *ini.File, path string) string {
	section, key := splitDotted(path)
	return cfg.Section(section).Key(key).String()
}

func splitDotted(path string) (section, key string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}
