package wikiapi

import (
	"context"
	"fmt"
	"strconv"
)

type tokenResponse struct {
	Query struct {
		Tokens struct {
			CSRFToken string `json:"csrftoken"`
		} `json:"tokens"`
	} `json:"query"`
}

// freshToken fetches a new CSRF/edit token. Tokens are single-use enough in
// practice (they rotate on login/session changes) that the action runner
// fetches one immediately before each write rather than caching it across
// an entire batch.
func (c *Client) freshToken(ctx context.Context) (string, error) {
	var out tokenResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "query",
			"format": "json",
			"meta":   "tokens",
			"type":   "csrf",
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return "", fmt.Errorf("wikiapi: fetch csrf token: %w", err)
	}
	if resp.IsError() {
		return "", apiError("tokens", strconv.Itoa(resp.StatusCode()), resp.String())
	}
	if out.Query.Tokens.CSRFToken == "" {
		return "", fmt.Errorf("wikiapi: empty csrf token in response")
	}
	return out.Query.Tokens.CSRFToken, nil
}
