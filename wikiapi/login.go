package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wmde/qsbot/auth"
)

type loginTokenResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
}

type clientLoginResponse struct {
	ClientLogin struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"clientlogin"`
}

// Authenticate applies cred to this client: an OAuth token is sent as a
// bearer header on every subsequent request, while a legacy bot password
// goes through the two-step clientlogin handshake (fetch a logintoken,
// then post credentials), after which the session cookie resty already
// carries authenticates every later call.
func (c *Client) Authenticate(ctx context.Context, cred *auth.BotCredential) error {
	if cred.OAuthToken != "" {
		c.http.SetAuthToken(cred.OAuthToken)
		return nil
	}
	return c.botLogin(ctx, cred.Username, cred.Password)
}

func (c *Client) botLogin(ctx context.Context, username, password string) error {
	var tokOut loginTokenResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "query",
			"format": "json",
			"meta":   "tokens",
			"type":   "login",
		}).
		SetResult(&tokOut).
		Get("")
	if err != nil {
		return fmt.Errorf("wikiapi: fetch login token: %w", err)
	}
	if resp.IsError() {
		return apiError("query", "login-token", resp.String())
	}

	var loginOut clientLoginResponse
	resp, err = c.http.R().SetContext(ctx).
		SetFormData(map[string]string{
			"action":       "clientlogin",
			"format":       "json",
			"username":     username,
			"password":     password,
			"logintoken":   tokOut.Query.Tokens.LoginToken,
			"loginreturnurl": c.cfg.APIURL,
		}).
		SetResult(&loginOut).
		Post("")
	if err != nil {
		return fmt.Errorf("wikiapi: clientlogin: %w", err)
	}
	if resp.IsError() {
		return apiError("clientlogin", "http", resp.String())
	}
	if loginOut.ClientLogin.Status != "PASS" {
		var raw json.RawMessage
		_ = json.Unmarshal(resp.Body(), &raw)
		return fmt.Errorf("wikiapi: clientlogin failed for %s: %s (%s)", username, loginOut.ClientLogin.Status, loginOut.ClientLogin.Message)
	}
	return nil
}
