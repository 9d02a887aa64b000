package qscompile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qserrors"
	"github.com/wmde/qsbot/qsvalue"
)

var rePropertyID = regexp.MustCompile(`^P\d+$`)

// Compile turns one parsed command into the ordered sequence of wire
// Actions needed to apply it, resolving LAST and skipping any step the
// current entity state already satisfies. A single EditStatement can expand
// into several actions (create the claim, then attach qualifiers and a
// reference) because the wiki API itself has no single call for that.
//
// Actions that depend on the statement id produced by an earlier action in
// the same returned slice have UsesClaimID set; the caller (the batch
// executor) is responsible for filling in Params["claim"] from the claim id
// the wiki returned for the nearest preceding non-AlreadyDone
// wbcreateclaim. When that step is itself AlreadyDone, the qualifier and
// reference actions already carry the matching claim's id (found during the
// idempotency check) in Params["claim"] and do not set UsesClaimID.
func Compile(cmd qsparse.Command, ctx *Context) ([]Action, error) {
	switch c := cmd.(type) {
	case qsparse.Create:
		return compileCreate(c, ctx)
	case qsparse.Merge:
		return compileMerge(c, ctx)
	case qsparse.SetLabel:
		return compileLabelFamily(ActionSetLabel, c.Subject, c.Language, c.Text, c.Modifier, ctx, lookupLabel)
	case qsparse.SetDescription:
		return compileLabelFamily(ActionSetDescription, c.Subject, c.Language, c.Text, c.Modifier, ctx, lookupDescription)
	case qsparse.SetAlias:
		return compileAlias(c, ctx)
	case qsparse.SetSitelink:
		return compileSitelink(c, ctx)
	case qsparse.EditStatement:
		return compileStatement(c, ctx)
	default:
		return nil, fmt.Errorf("qscompile: unknown command type %T", cmd)
	}
}

func resolveLast(ref qsvalue.EntityRef, ctx *Context) (qsvalue.EntityRef, error) {
	if !ref.IsLast() {
		return ref, nil
	}
	if !ctx.HasLast {
		return qsvalue.EntityRef{}, fmt.Errorf("%w: LAST used before any entity was created in this batch", qserrors.ErrResolution)
	}
	return ctx.LastRef, nil
}

func resolveValueLast(v qsvalue.Value, ctx *Context) (qsvalue.Value, error) {
	e, ok := v.(qsvalue.Entity)
	if !ok {
		return v, nil
	}
	ref, err := resolveLast(e.Ref, ctx)
	if err != nil {
		return nil, err
	}
	return qsvalue.Entity{Ref: ref}, nil
}

func compileCreate(c qsparse.Create, ctx *Context) ([]Action, error) {
	entityType := c.EntityType
	if entityType == "" {
		entityType = "item"
	}
	data := string(c.Data)
	if data == "" {
		data = "{}"
	}
	return []Action{{
		Kind: ActionEditEntity,
		Params: paramsWithSummary(ctx.Summary, map[string]string{
			"new":  entityType,
			"data": data,
		}),
	}}, nil
}

func compileMerge(c qsparse.Merge, ctx *Context) ([]Action, error) {
	from, err := resolveLast(c.From, ctx)
	if err != nil {
		return nil, err
	}
	to, err := resolveLast(c.To, ctx)
	if err != nil {
		return nil, err
	}
	if from.IsLast() || to.IsLast() {
		return nil, fmt.Errorf("%w: MERGE cannot reference LAST", qserrors.ErrResolution)
	}
	// The wire action's fromid/toid are crossed relative to the command's
	// own From/To fields: MERGE's second field is absorbed into the
	// first, so it is the wbmergeitems "fromid".
	return []Action{{
		Kind: ActionMergeItems,
		Params: paramsWithSummary(ctx.Summary, map[string]string{
			"fromid":          to.Normalize().ID,
			"toid":            from.Normalize().ID,
			"ignoreconflicts": "description",
			"type":            "item",
		}),
	}}, nil
}

func lookupLabel(snap *EntitySnapshot, lang string) (string, bool) {
	if snap == nil {
		return "", false
	}
	text, ok := snap.Labels[lang]
	return text, ok
}

func lookupDescription(snap *EntitySnapshot, lang string) (string, bool) {
	if snap == nil {
		return "", false
	}
	text, ok := snap.Descriptions[lang]
	return text, ok
}

func compileLabelFamily(
	kind ActionKind,
	subjectRef qsvalue.EntityRef,
	lang, text string,
	modifier qsparse.Modifier,
	ctx *Context,
	lookup func(*EntitySnapshot, string) (string, bool),
) ([]Action, error) {
	subject, err := resolveLast(subjectRef, ctx)
	if err != nil {
		return nil, err
	}
	snap, err := ctx.Lookup(subject.Normalize().ID)
	if err != nil {
		return nil, err
	}
	current, has := lookup(snap, lang)

	if modifier == qsparse.Remove {
		if !has {
			return []Action{{Kind: kind, AlreadyDone: true, Meta: "already absent"}}, nil
		}
		return []Action{{Kind: kind, Params: paramsWithSummary(ctx.Summary, map[string]string{
			"id": subject.Normalize().ID, "language": lang, "value": "",
		})}}, nil
	}

	if has && current == text {
		return []Action{{Kind: kind, AlreadyDone: true, Meta: "already set"}}, nil
	}
	return []Action{{Kind: kind, Params: paramsWithSummary(ctx.Summary, map[string]string{
		"id": subject.Normalize().ID, "language": lang, "value": text,
	})}}, nil
}

func compileAlias(c qsparse.SetAlias, ctx *Context) ([]Action, error) {
	subject, err := resolveLast(c.Subject, ctx)
	if err != nil {
		return nil, err
	}
	snap, err := ctx.Lookup(subject.Normalize().ID)
	if err != nil {
		return nil, err
	}
	var existing []string
	if snap != nil {
		existing = snap.Aliases[c.Language]
	}
	has := false
	for _, a := range existing {
		if a == c.Text {
			has = true
			break
		}
	}

	if c.Modifier == qsparse.Remove {
		if !has {
			return []Action{{Kind: ActionSetAliases, AlreadyDone: true, Meta: "already absent"}}, nil
		}
		return []Action{{Kind: ActionSetAliases, Params: paramsWithSummary(ctx.Summary, map[string]string{
			"id": subject.Normalize().ID, "language": c.Language, "remove": c.Text,
		})}}, nil
	}

	if has {
		return []Action{{Kind: ActionSetAliases, AlreadyDone: true, Meta: "already set"}}, nil
	}
	return []Action{{Kind: ActionSetAliases, Params: paramsWithSummary(ctx.Summary, map[string]string{
		"id": subject.Normalize().ID, "language": c.Language, "add": c.Text,
	})}}, nil
}

// normalizeSitelinkTitle makes space/underscore interchangeable, the one
// normalization the wiki itself applies to page titles.
func normalizeSitelinkTitle(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
}

func compileSitelink(c qsparse.SetSitelink, ctx *Context) ([]Action, error) {
	subject, err := resolveLast(c.Subject, ctx)
	if err != nil {
		return nil, err
	}
	snap, err := ctx.Lookup(subject.Normalize().ID)
	if err != nil {
		return nil, err
	}
	var current string
	var has bool
	if snap != nil {
		current, has = snap.Sitelinks[c.Site]
	}

	if c.Modifier == qsparse.Remove {
		if !has {
			return []Action{{Kind: ActionSetSitelink, AlreadyDone: true, Meta: "already absent"}}, nil
		}
		return []Action{{Kind: ActionSetSitelink, Params: paramsWithSummary(ctx.Summary, map[string]string{
			"id": subject.Normalize().ID, "linksite": c.Site, "linktitle": "",
		})}}, nil
	}

	if has && normalizeSitelinkTitle(current) == normalizeSitelinkTitle(c.Title) {
		return []Action{{Kind: ActionSetSitelink, AlreadyDone: true, Meta: "already set"}}, nil
	}
	return []Action{{Kind: ActionSetSitelink, Params: paramsWithSummary(ctx.Summary, map[string]string{
		"id": subject.Normalize().ID, "linksite": c.Site, "linktitle": c.Title,
	})}}, nil
}

func findMatchingClaim(snap *EntitySnapshot, property string, value qsvalue.Value) *Claim {
	if snap == nil {
		return nil
	}
	for i, claim := range snap.Claims[property] {
		if qsvalue.Equal(claim.MainSnak.Value, value) {
			return &snap.Claims[property][i]
		}
	}
	return nil
}

func snakListHasEqual(snaks []Snak, property string, value qsvalue.Value) bool {
	for _, s := range snaks {
		if s.Property == property && qsvalue.Equal(s.Value, value) {
			return true
		}
	}
	return false
}

func compileStatement(c qsparse.EditStatement, ctx *Context) ([]Action, error) {
	if !rePropertyID.MatchString(c.Property.Normalize().ID) {
		return nil, fmt.Errorf("%w: %q is not a valid property id", qserrors.ErrParse, c.Property.ID)
	}
	subject, err := resolveLast(c.Subject, ctx)
	if err != nil {
		return nil, err
	}
	value, err := resolveValueLast(c.Value, ctx)
	if err != nil {
		return nil, err
	}
	qualifiers := make([]qsvalue.PropertyValue, len(c.Qualifiers))
	for i, q := range c.Qualifiers {
		qv, err := resolveValueLast(q.Value, ctx)
		if err != nil {
			return nil, err
		}
		qualifiers[i] = qsvalue.PropertyValue{Property: q.Property, Value: qv}
	}
	references := make([]qsvalue.PropertyValue, len(c.References))
	for i, r := range c.References {
		rv, err := resolveValueLast(r.Value, ctx)
		if err != nil {
			return nil, err
		}
		references[i] = qsvalue.PropertyValue{Property: r.Property, Value: rv}
	}

	snap, err := ctx.Lookup(subject.Normalize().ID)
	if err != nil {
		return nil, err
	}
	property := c.Property.Normalize().ID
	existing := findMatchingClaim(snap, property, value)

	if c.Modifier == qsparse.Remove {
		if existing == nil {
			return []Action{{Kind: ActionRemoveClaims, AlreadyDone: true, Meta: "no matching claim"}}, nil
		}
		return []Action{{Kind: ActionRemoveClaims, Params: paramsWithSummary(ctx.Summary, map[string]string{
			"claim": existing.ID,
		})}}, nil
	}

	var actions []Action
	// wbcreateclaim's "value" param wants the datavalue's inner value only
	// (the "snaktype":"value" already fixed by the param above establishes
	// what kind of datavalue this is), not the {"type":...,"value":...}
	// envelope ToCanonical renders.
	claimValueJSON, err := qsvalue.InnerValue(value)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		actions = append(actions, Action{Kind: ActionCreateClaim, AlreadyDone: true, Meta: "claim already exists"})
	} else {
		actions = append(actions, Action{Kind: ActionCreateClaim, Params: paramsWithSummary(ctx.Summary, map[string]string{
			"entity":   subject.Normalize().ID,
			"property": property,
			"snaktype": "value",
			"value":    string(claimValueJSON),
		})})
	}

	for _, q := range qualifiers {
		qv, err := qsvalue.InnerValue(q.Value)
		if err != nil {
			return nil, err
		}
		if existing != nil && snakListHasEqual(existing.Qualifiers, q.Property.Normalize().ID, q.Value) {
			actions = append(actions, Action{Kind: ActionSetQualifier, AlreadyDone: true, Meta: "qualifier already present"})
			continue
		}
		qparams := paramsWithSummary(ctx.Summary, map[string]string{
			"property": q.Property.Normalize().ID,
			"snaktype": "value",
			"value":    string(qv),
		})
		if existing != nil {
			qparams["claim"] = existing.ID
		}
		actions = append(actions, Action{
			Kind:        ActionSetQualifier,
			UsesClaimID: existing == nil,
			Params:      qparams,
		})
	}

	if len(references) > 0 {
		already := existing != nil && referenceGroupPresent(existing.References, references)
		if already {
			actions = append(actions, Action{Kind: ActionSetReference, AlreadyDone: true, Meta: "reference already present"})
		} else {
			snaks := make(map[string][]string, len(references))
			for _, r := range references {
				rv, err := qsvalue.ToCanonical(r.Value)
				if err != nil {
					return nil, err
				}
				prop := r.Property.Normalize().ID
				snaks[prop] = append(snaks[prop], marshalSnakJSON(prop, rv))
			}
			rparams := paramsWithSummary(ctx.Summary, map[string]string{
				"snaks": marshalJSON(snaks),
			})
			if existing != nil {
				rparams["claim"] = existing.ID
			}
			actions = append(actions, Action{
				Kind:        ActionSetReference,
				UsesClaimID: existing == nil,
				Params:      rparams,
			})
		}
	}

	return actions, nil
}

func marshalSnakJSON(property string, value []byte) string {
	return fmt.Sprintf(`{"snaktype":"value","property":%q,"datavalue":%s}`, property, value)
}

func referenceGroupPresent(existingRefs [][]Snak, wanted []qsvalue.PropertyValue) bool {
	for _, group := range existingRefs {
		if len(group) != len(wanted) {
			continue
		}
		matched := true
		for _, w := range wanted {
			if !snakListHasEqual(group, w.Property.Normalize().ID, w.Value) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
