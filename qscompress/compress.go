// Package qscompress folds a CREATE followed immediately by commands that
// target its LAST entity into the single wbeditentity payload, so a batch
// that creates an item and sets its labels/claims does so with one API call
// instead of N+1.
package qscompress

import (
	"encoding/json"

	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qsvalue"
)

// Fold scans cmds and merges any run of LAST-targeted, additive commands
// that immediately follows a Create into that Create's Data, re-examining
// the same output index after each successful merge so runs of arbitrary
// length collapse fully. A command that cannot be folded (wrong modifier,
// wrong subject, or a command kind with no place in the entity payload)
// stops the run; it and everything after it pass through unchanged.
func Fold(cmds []qsparse.ParsedCommand) []qsparse.ParsedCommand {
	out := make([]qsparse.ParsedCommand, 0, len(cmds))
	i := 0
	for i < len(cmds) {
		create, ok := cmds[i].Command.(qsparse.Create)
		if !ok {
			out = append(out, cmds[i])
			i++
			continue
		}
		payload := newPayload(create.Data)
		j := i + 1
		for j < len(cmds) && foldInto(payload, cmds[j].Command) {
			j++
		}
		data, err := payload.marshal()
		if err != nil {
			// a payload that fails to marshal is a bug in this package, not
			// bad input; fall back to leaving the run unfolded.
			out = append(out, cmds[i])
			i++
			continue
		}
		out = append(out, qsparse.ParsedCommand{Command: qsparse.Create{EntityType: create.EntityType, Data: data}, Comment: cmds[i].Comment})
		i = j
	}
	return out
}

// entityPayload accumulates the wbeditentity "data" object fields a folded
// run contributes.
type entityPayload struct {
	Labels       map[string]map[string]string   `json:"labels,omitempty"`
	Descriptions map[string]map[string]string   `json:"descriptions,omitempty"`
	Aliases      map[string][]map[string]string `json:"aliases,omitempty"`
	Sitelinks    map[string]map[string]string   `json:"sitelinks,omitempty"`
	Claims       map[string][]json.RawMessage   `json:"claims,omitempty"`
}

func newPayload(seed json.RawMessage) *entityPayload {
	p := &entityPayload{
		Labels:       map[string]map[string]string{},
		Descriptions: map[string]map[string]string{},
		Aliases:      map[string][]map[string]string{},
		Sitelinks:    map[string]map[string]string{},
		Claims:       map[string][]json.RawMessage{},
	}
	if len(seed) > 0 {
		_ = json.Unmarshal(seed, p)
	}
	return p
}

func (p *entityPayload) marshal() (json.RawMessage, error) {
	return json.Marshal(p)
}

// foldInto reports whether cmd was merged into payload; it mutates payload
// only when it returns true.
func foldInto(payload *entityPayload, cmd qsparse.Command) bool {
	switch c := cmd.(type) {
	case qsparse.SetLabel:
		if c.Modifier != qsparse.Add || !c.Subject.IsLast() {
			return false
		}
		payload.Labels[c.Language] = map[string]string{"language": c.Language, "value": c.Text}
		return true
	case qsparse.SetDescription:
		if c.Modifier != qsparse.Add || !c.Subject.IsLast() {
			return false
		}
		payload.Descriptions[c.Language] = map[string]string{"language": c.Language, "value": c.Text}
		return true
	case qsparse.SetAlias:
		if c.Modifier != qsparse.Add || !c.Subject.IsLast() {
			return false
		}
		payload.Aliases[c.Language] = append(payload.Aliases[c.Language], map[string]string{"language": c.Language, "value": c.Text})
		return true
	case qsparse.SetSitelink:
		if c.Modifier != qsparse.Add || !c.Subject.IsLast() {
			return false
		}
		payload.Sitelinks[c.Site] = map[string]string{"site": c.Site, "title": c.Title}
		return true
	case qsparse.EditStatement:
		if c.Modifier != qsparse.Add || !c.Subject.IsLast() {
			return false
		}
		newSnak, err := renderSnak(c.Property, c.Value)
		if err != nil {
			return false
		}
		qualifiers, err := renderSnaks(c.Qualifiers)
		if err != nil {
			return false
		}
		references, err := renderReferenceGroup(c.References)
		if err != nil {
			return false
		}

		prop := c.Property.Normalize().ID
		for i, existing := range payload.Claims[prop] {
			var shape claimShape
			if json.Unmarshal(existing, &shape) != nil {
				continue
			}
			if !snakEqual(shape.MainSnak, newSnak) {
				continue
			}
			// Fold onto the matching statement instead of duplicating it:
			// merge the new qualifiers in, and add the references as one
			// more snak group, per the compressor's merge rule.
			shape.Qualifiers = append(shape.Qualifiers, qualifiers...)
			if len(references) > 0 {
				shape.References = append(shape.References, references)
			}
			merged, err := json.Marshal(shape)
			if err != nil {
				return false
			}
			payload.Claims[prop][i] = merged
			return true
		}

		shape := claimShape{MainSnak: newSnak, Type: "statement", Rank: "normal", Qualifiers: qualifiers}
		if len(references) > 0 {
			shape.References = [][]snakShape{references}
		}
		claim, err := json.Marshal(shape)
		if err != nil {
			return false
		}
		payload.Claims[prop] = append(payload.Claims[prop], claim)
		return true
	default:
		return false
	}
}

type snakShape struct {
	Property  string          `json:"property"`
	SnakType  string          `json:"snaktype"`
	DataValue json.RawMessage `json:"datavalue"`
}

type claimShape struct {
	MainSnak   snakShape     `json:"mainsnak"`
	Type       string        `json:"type"`
	Rank       string        `json:"rank"`
	Qualifiers []snakShape   `json:"qualifiers,omitempty"`
	References [][]snakShape `json:"references,omitempty"`
}

func renderSnak(property qsvalue.EntityRef, value qsvalue.Value) (snakShape, error) {
	dv, err := qsvalue.ToCanonical(value)
	if err != nil {
		return snakShape{}, err
	}
	return snakShape{Property: property.Normalize().ID, SnakType: "value", DataValue: dv}, nil
}

func renderSnaks(pvs []qsvalue.PropertyValue) ([]snakShape, error) {
	out := make([]snakShape, 0, len(pvs))
	for _, pv := range pvs {
		s, err := renderSnak(pv.Property, pv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// renderReferenceGroup renders all of a command's references as a single
// snak group, matching wbsetreference's "one group per call" semantics.
func renderReferenceGroup(pvs []qsvalue.PropertyValue) ([]snakShape, error) {
	return renderSnaks(pvs)
}

func snakEqual(a, b snakShape) bool {
	return a.Property == b.Property && string(a.DataValue) == string(b.DataValue)
}
