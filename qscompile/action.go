// Package qscompile turns a parsed command (package qsparse) plus the
// current state of the entities it touches into a wire Action ready for the
// action runner to execute, resolving LAST references and short-circuiting
// edits that would have no effect.
package qscompile

import (
	"encoding/json"

	"github.com/wmde/qsbot/qsvalue"
)

// ActionKind names one of the Wikibase write API modules.
type ActionKind string

const (
	ActionEditEntity     ActionKind = "wbeditentity"
	ActionMergeItems     ActionKind = "wbmergeitems"
	ActionSetLabel       ActionKind = "wbsetlabel"
	ActionSetDescription ActionKind = "wbsetdescription"
	ActionSetAliases     ActionKind = "wbsetaliases"
	ActionSetSitelink    ActionKind = "wbsetsitelink"
	ActionCreateClaim    ActionKind = "wbcreateclaim"
	ActionRemoveClaims   ActionKind = "wbremoveclaims"
	ActionSetQualifier   ActionKind = "wbsetqualifier"
	ActionSetReference   ActionKind = "wbsetreference"
)

// Action is one wiki API call, or a no-op already satisfied by the current
// entity state (AlreadyDone).
type Action struct {
	Kind        ActionKind
	Params      map[string]string
	AlreadyDone bool
	Meta        string
	// UsesClaimID marks an action whose Params["claim"] must be filled in
	// by the executor at runtime, from the statement id produced by the
	// nearest preceding wbcreateclaim action in the same Compile result.
	// When that wbcreateclaim is AlreadyDone, Compile puts the matched
	// claim's id into Params["claim"] itself and leaves this false.
	UsesClaimID bool
}

// Snak is one property/value pair inside a claim, qualifier set, or
// reference.
type Snak struct {
	Property string
	Value    qsvalue.Value
}

// Claim is a statement as loaded from the wiki: a mainsnak plus its
// qualifiers and references, keyed by the statement id the wiki assigned it.
type Claim struct {
	ID         string
	MainSnak   Snak
	Qualifiers []Snak
	References [][]Snak
}

// EntitySnapshot is the subset of an entity's current state needed to make
// idempotency decisions: is this label/description/alias/sitelink/claim
// already present.
type EntitySnapshot struct {
	ID           string
	Revision     int64
	Type         string
	Labels       map[string]string
	Descriptions map[string]string
	Aliases      map[string][]string
	Sitelinks    map[string]string
	Claims       map[string][]Claim // keyed by property id, e.g. "P31"
}

// Lookup resolves an entity id to its current snapshot, or reports that it
// does not exist yet (nil, nil) — which the compiler treats as "nothing to
// be idempotent against".
type Lookup func(id string) (*EntitySnapshot, error)

// Context carries per-batch state the compiler needs beyond the command
// itself: the resolved LAST entity, a way to look up current entity state
// for idempotency checks, and the edit summary to attach.
type Context struct {
	LastRef qsvalue.EntityRef
	HasLast bool
	Lookup  Lookup
	Summary string
}

func paramsWithSummary(summary string, extra map[string]string) map[string]string {
	p := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		p[k] = v
	}
	if summary != "" {
		p["summary"] = summary
	}
	return p
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// every value reaching here was built by this package from typed
		// data; a marshal failure indicates a programming error.
		panic("qscompile: unmarshalable value: " + err.Error())
	}
	return string(b)
}
