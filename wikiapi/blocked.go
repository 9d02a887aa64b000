package wikiapi

import (
	"context"
	"fmt"
	"strconv"
)

type userInfoResponse struct {
	Query struct {
		Users []struct {
			Name        string `json:"name"`
			BlockID     int    `json:"blockid"`
			BlockReason string `json:"blockreason"`
		} `json:"users"`
	} `json:"query"`
}

// IsUserBlocked reports whether the bot-acting user is currently blocked on
// this wiki. The scheduler polls this periodically during a long-running
// batch so a block takes effect within one poll interval rather than only
// at the next batch acquisition.
func (c *Client) IsUserBlocked(ctx context.Context, username string) (bool, error) {
	var out userInfoResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action":  "query",
			"format":  "json",
			"list":    "users",
			"ususers": username,
			"usprop":  "blockinfo",
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return false, fmt.Errorf("wikiapi: check block status for %s: %w", username, err)
	}
	if resp.IsError() {
		return false, apiError("query", strconv.Itoa(resp.StatusCode()), resp.String())
	}
	for _, u := range out.Query.Users {
		if u.BlockID != 0 {
			return true, nil
		}
	}
	return false, nil
}
