package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/wmde/qsbot/qscompile"
	"github.com/wmde/qsbot/qsvalue"
)

var reMediaInfoID = regexp.MustCompile(`^M\d+$`)

type snakWire struct {
	SnakType  string          `json:"snaktype"`
	Property  string          `json:"property"`
	DataValue json.RawMessage `json:"datavalue"`
}

type claimWire struct {
	ID         string                  `json:"id"`
	MainSnak   snakWire                `json:"mainsnak"`
	Qualifiers map[string][]snakWire   `json:"qualifiers"`
	References []struct {
		Snaks map[string][]snakWire `json:"snaks"`
	} `json:"references"`
}

type entityWire struct {
	ID           string `json:"id"`
	LastRevID    int64  `json:"lastrevid"`
	Type         string `json:"type"`
	Labels       map[string]struct {
		Value string `json:"value"`
	} `json:"labels"`
	Descriptions map[string]struct {
		Value string `json:"value"`
	} `json:"descriptions"`
	Aliases map[string][]struct {
		Value string `json:"value"`
	} `json:"aliases"`
	Sitelinks map[string]struct {
		Title string `json:"title"`
	} `json:"sitelinks"`
	Claims map[string][]claimWire `json:"claims"`
}

type getEntitiesResponse struct {
	Entities map[string]json.RawMessage `json:"entities"`
}

// LoadEntity fetches the current state of an entity and converts it into
// an qscompile.EntitySnapshot. A Commons MediaInfo id that does not exist
// yet (the page has been created by upload but wbgetentities has nothing
// to show, or the id names a file still pending upload in this same batch)
// is not an error: it resolves to an empty snapshot, since MediaInfo
// entities spring into existence implicitly and compile-time idempotency
// checks against them should simply find nothing to match.
func (c *Client) LoadEntity(ctx context.Context, id string, knownRevision int64) (*qscompile.EntitySnapshot, error) {
	var out getEntitiesResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "wbgetentities",
			"format": "json",
			"ids":    id,
			"props":  "info|labels|descriptions|aliases|sitelinks|claims",
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("wikiapi: load entity %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, apiError("wbgetentities", strconv.Itoa(resp.StatusCode()), resp.String())
	}

	raw, ok := out.Entities[id]
	if !ok {
		if reMediaInfoID.MatchString(id) {
			return &qscompile.EntitySnapshot{ID: id, Type: "mediainfo"}, nil
		}
		return nil, fmt.Errorf("wikiapi: entity %s not present in wbgetentities response", id)
	}

	var probe struct {
		Missing *string `json:"missing"`
	}
	if json.Unmarshal(raw, &probe) == nil && probe.Missing != nil {
		if reMediaInfoID.MatchString(id) {
			return &qscompile.EntitySnapshot{ID: id, Type: "mediainfo"}, nil
		}
		return nil, fmt.Errorf("wikiapi: entity %s does not exist", id)
	}

	var w entityWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("wikiapi: decode entity %s: %w", id, err)
	}
	return toSnapshot(w), nil
}

func toSnapshot(w entityWire) *qscompile.EntitySnapshot {
	snap := &qscompile.EntitySnapshot{
		ID:           w.ID,
		Revision:     w.LastRevID,
		Type:         w.Type,
		Labels:       map[string]string{},
		Descriptions: map[string]string{},
		Aliases:      map[string][]string{},
		Sitelinks:    map[string]string{},
		Claims:       map[string][]qscompile.Claim{},
	}
	for lang, l := range w.Labels {
		snap.Labels[lang] = l.Value
	}
	for lang, d := range w.Descriptions {
		snap.Descriptions[lang] = d.Value
	}
	for lang, as := range w.Aliases {
		for _, a := range as {
			snap.Aliases[lang] = append(snap.Aliases[lang], a.Value)
		}
	}
	for site, s := range w.Sitelinks {
		snap.Sitelinks[site] = s.Title
	}
	for prop, claims := range w.Claims {
		for _, cw := range claims {
			snap.Claims[prop] = append(snap.Claims[prop], toClaim(cw))
		}
	}
	return snap
}

func toClaim(cw claimWire) qscompile.Claim {
	claim := qscompile.Claim{ID: cw.ID, MainSnak: toSnak(cw.MainSnak)}
	for _, snaks := range cw.Qualifiers {
		for _, s := range snaks {
			claim.Qualifiers = append(claim.Qualifiers, toSnak(s))
		}
	}
	for _, ref := range cw.References {
		var group []qscompile.Snak
		for _, snaks := range ref.Snaks {
			for _, s := range snaks {
				group = append(group, toSnak(s))
			}
		}
		claim.References = append(claim.References, group)
	}
	return claim
}

func toSnak(s snakWire) qscompile.Snak {
	snak := qscompile.Snak{Property: s.Property}
	if s.SnakType == "value" && len(s.DataValue) > 0 {
		if v, err := qsvalue.FromCanonical(s.DataValue); err == nil {
			snak.Value = v
		}
	}
	return snak
}
