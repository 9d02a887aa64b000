// Package wikiapi is the sole collaborator that speaks to a Wikibase-style
// wiki's action API: resolving page titles, loading entities (always at
// their latest revision; LoadEntity does not use its knownRevision
// argument), checking block status, and executing write actions.
// Every other package depends on it only through the narrow interfaces it
// exposes (qsparse.Resolver, qscompile.Lookup), never on this package's
// concrete types, so they can be tested against fakes.
package wikiapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config describes one target wiki's API endpoint and editing etiquette.
type Config struct {
	Site      string // short key, e.g. "wikidata", "commons"
	APIURL    string
	UserAgent string
	MaxLag    int           // seconds; default 5
	EditDelay time.Duration // minimum spacing between write calls; default 1s
}

func (c Config) withDefaults() Config {
	if c.MaxLag == 0 {
		c.MaxLag = 5
	}
	if c.EditDelay == 0 {
		c.EditDelay = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "qsbot/1.0"
	}
	return c
}

// Client is the resty-backed implementation of the wiki API collaborator.
// One Client is shared by every batch running against the same site so
// they share cookies, CSRF token caching, and edit-delay pacing.
type Client struct {
	cfg        Config
	http       *resty.Client
	lastEditAt time.Time
}

// New builds a Client for one wiki. The resty client carries cookies across
// calls (needed for session-based login) and retries idempotent GETs on
// transient network failure.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	http := resty.New().
		SetBaseURL(cfg.APIURL).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{cfg: cfg, http: http}
}

// Site returns the short site key this client was built for.
func (c *Client) Site() string { return c.cfg.Site }

// throttle blocks until at least cfg.EditDelay has passed since the last
// write call, the same pacing discipline the legacy bot applies to avoid
// tripping the wiki's own abuse filters.
func (c *Client) throttle(ctx context.Context) error {
	wait := c.cfg.EditDelay - time.Since(c.lastEditAt)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func apiError(action string, code, info string) error {
	return fmt.Errorf("wikiapi: %s failed: %s: %s", action, code, info)
}
