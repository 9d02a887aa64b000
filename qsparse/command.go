// Package qsparse converts one line of QuickStatements textual syntax into a
// ParsedCommand. It is the only non-trivial grammar in the system; its
// output is the sole input to qscompress and qscompile.
package qsparse

import (
	"encoding/json"

	"github.com/wmde/qsbot/qsvalue"
)

// Modifier distinguishes an additive command from a removal.
type Modifier int

const (
	Add Modifier = iota
	Remove
)

func (m Modifier) String() string {
	if m == Remove {
		return "remove"
	}
	return "add"
}

// Command is the closed sum type over QuickStatements command kinds.
type Command interface {
	isCommand()
}

// Create starts a new entity, optionally pre-populated by the compressor
// with labels/descriptions/aliases/sitelinks/claims folded in from
// subsequent LAST-targeted commands.
type Create struct {
	EntityType string // "item" unless a CREATE variant names another type
	Data       json.RawMessage
}

// Merge merges one entity into another. Neither side may be LAST.
type Merge struct {
	From qsvalue.EntityRef
	To   qsvalue.EntityRef
}

// EditStatement adds or removes a statement (claim), and/or its qualifiers
// and references.
type EditStatement struct {
	Subject    qsvalue.EntityRef
	Property   qsvalue.EntityRef
	Value      qsvalue.Value
	Qualifiers []qsvalue.PropertyValue
	References []qsvalue.PropertyValue
	Modifier   Modifier
}

// SetLabel sets or removes a label in one language.
type SetLabel struct {
	Subject  qsvalue.EntityRef
	Language string
	Text     string
	Modifier Modifier
}

// SetDescription sets or removes a description in one language.
type SetDescription struct {
	Subject  qsvalue.EntityRef
	Language string
	Text     string
	Modifier Modifier
}

// SetAlias adds or removes an alias in one language.
type SetAlias struct {
	Subject  qsvalue.EntityRef
	Language string
	Text     string
	Modifier Modifier
}

// SetSitelink sets or clears a sitelink. Removal is expressed by an empty
// Title, matching the wire protocol's own convention.
type SetSitelink struct {
	Subject  qsvalue.EntityRef
	Site     string
	Title    string
	Modifier Modifier
}

func (Create) isCommand()         {}
func (Merge) isCommand()          {}
func (EditStatement) isCommand()  {}
func (SetLabel) isCommand()       {}
func (SetDescription) isCommand() {}
func (SetAlias) isCommand()       {}
func (SetSitelink) isCommand()    {}

// ParsedCommand wraps one Command plus the optional free-text comment
// extracted from a trailing /* ... */ block.
type ParsedCommand struct {
	Command Command
	Comment string
}
