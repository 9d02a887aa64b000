package wikiapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmde/qsbot/auth"
)

func TestAuthenticateOAuthSetsBearerHeader(t *testing.T) {
	var sawAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})

	err := c.Authenticate(context.Background(), &auth.BotCredential{OAuthToken: "tok123"})
	require.NoError(t, err)

	_, _ = c.http.R().Get("")
	require.Equal(t, "Bearer tok123", sawAuth)
}

func TestAuthenticateBotLoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{"tokens": map[string]any{"logintoken": "tok+\\"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clientlogin": map[string]any{"status": "PASS"},
		})
	})

	err := c.Authenticate(context.Background(), &auth.BotCredential{Username: "Bot", Password: "secret"})
	require.NoError(t, err)
}

func TestAuthenticateBotLoginFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("meta") == "tokens" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{"tokens": map[string]any{"logintoken": "tok"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"clientlogin": map[string]any{"status": "FAIL", "message": "bad password"},
		})
	})

	err := c.Authenticate(context.Background(), &auth.BotCredential{Username: "Bot", Password: "wrong"})
	require.Error(t, err)
}
