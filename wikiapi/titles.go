package wikiapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wmde/qsbot/qsvalue"
)

// ResolveTitle satisfies qsparse.Resolver. A Commons File-namespace title
// resolves to its MediaInfo id (M<page id>, via prop=info); any other
// title resolves through prop=pageprops to the Wikidata item id linked to
// the page, if any.
func (c *Client) ResolveTitle(title string) (qsvalue.EntityRef, error) {
	ctx := context.Background()
	if c.cfg.Site == "commons" && strings.HasPrefix(title, "File:") {
		return c.resolveCommonsFile(ctx, title)
	}
	return c.resolveWikidataLink(ctx, title)
}

type queryInfoResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID int `json:"pageid"`
			Missing *string `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

func (c *Client) resolveCommonsFile(ctx context.Context, title string) (qsvalue.EntityRef, error) {
	var out queryInfoResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "query",
			"format": "json",
			"prop":   "info",
			"titles": title,
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: resolve commons title %q: %w", title, err)
	}
	if resp.IsError() {
		return qsvalue.EntityRef{}, apiError("query", strconv.Itoa(resp.StatusCode()), resp.String())
	}
	for _, page := range out.Query.Pages {
		if page.Missing != nil {
			return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: %q does not exist on %s", title, c.cfg.Site)
		}
		return qsvalue.EntityRef{Type: "mediainfo", ID: fmt.Sprintf("M%d", page.PageID)}, nil
	}
	return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: no page returned for %q", title)
}

type queryPagePropsResponse struct {
	Query struct {
		Pages map[string]struct {
			PageProps struct {
				WikibaseItem string `json:"wikibase_item"`
			} `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
}

func (c *Client) resolveWikidataLink(ctx context.Context, title string) (qsvalue.EntityRef, error) {
	var out queryPagePropsResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "query",
			"format": "json",
			"prop":   "pageprops",
			"titles": title,
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: resolve title %q: %w", title, err)
	}
	if resp.IsError() {
		return qsvalue.EntityRef{}, apiError("query", strconv.Itoa(resp.StatusCode()), resp.String())
	}
	for _, page := range out.Query.Pages {
		if page.PageProps.WikibaseItem == "" {
			return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: %q has no linked wikibase item", title)
		}
		return qsvalue.EntityRef{Type: "item", ID: page.PageProps.WikibaseItem}, nil
	}
	return qsvalue.EntityRef{}, fmt.Errorf("wikiapi: no page returned for %q", title)
}
