// Package auth resolves the bot credential a batch executes under and
// issues short-lived session tokens so a batch doesn't need to re-resolve
// (or re-login with) that credential on every command.
package auth

import "errors"

// ErrNoCredential means neither the OAuth store nor the INI fallback had
// anything for the requested batch.
var ErrNoCredential = errors.New("auth: no credential available for batch")

// Source names where a BotCredential came from, kept for audit logging.
type Source string

const (
	SourceOAuth Source = "oauth"
	SourceINI   Source = "ini"
	SourceCache Source = "cache"
)

// BotCredential is what the executor needs to act against the wiki API on
// behalf of a batch: a username and either an OAuth token or a legacy
// bot password.
type BotCredential struct {
	BatchID     int64  `json:"batch_id"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	OAuthToken  string `json:"oauth_token,omitempty"`
	Source      Source `json:"source"`
}
