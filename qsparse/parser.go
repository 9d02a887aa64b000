package qsparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wmde/qsbot/qsvalue"
)

// Resolver looks up the entity id backing a bare page title, used when a
// subject or sitelink-adjacent field names a page rather than an entity id.
// The concrete implementation (package wikiapi) knows how to tell a Commons
// File-namespace title (resolved via prop=info to an M-prefixed MediaInfo
// id) from a Wikidata-linked title (resolved via prop=pageprops).
type Resolver interface {
	ResolveTitle(title string) (qsvalue.EntityRef, error)
}

var (
	reComment       = regexp.MustCompile(`^(.*)/\*\s*(.*?)\s*\*/(.*)$`)
	reLabelField    = regexp.MustCompile(`^ *([LDAS]) *([a-z_-]+) *$`)
	rePropertyField = regexp.MustCompile(`^[Pp](\d+)$`)
)

// ParseLine parses one non-blank, non-header line of a QuickStatements v2
// batch into a ParsedCommand. resolve is consulted only for bare page
// titles; entity ids and LAST never reach it.
func ParseLine(line string, resolve Resolver) (ParsedCommand, error) {
	body, comment := stripComment(line)
	body = strings.ReplaceAll(body, "||", "\t")
	rawFields := strings.Split(body, "\t")
	fields := make([]string, len(rawFields))
	for i, f := range rawFields {
		fields[i] = strings.TrimSpace(f)
	}
	if len(fields) == 0 || fields[0] == "" {
		return ParsedCommand{}, fmt.Errorf("qsparse: empty command line")
	}

	first := strings.ToUpper(fields[0])

	if first == "CREATE" && len(fields) == 1 {
		return ParsedCommand{Command: Create{EntityType: "item"}, Comment: comment}, nil
	}
	if first == "MERGE" {
		if len(fields) != 3 {
			return ParsedCommand{}, fmt.Errorf("qsparse: MERGE requires exactly two entity ids, got %d fields", len(fields)-1)
		}
		from, err := resolveSubject(fields[1], resolve)
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("qsparse: MERGE source: %w", err)
		}
		to, err := resolveSubject(fields[2], resolve)
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("qsparse: MERGE target: %w", err)
		}
		if from.IsLast() || to.IsLast() {
			return ParsedCommand{}, fmt.Errorf("qsparse: MERGE cannot use LAST")
		}
		return ParsedCommand{Command: Merge{From: from, To: to}, Comment: comment}, nil
	}

	if len(fields) < 3 {
		return ParsedCommand{}, fmt.Errorf("qsparse: command line has too few fields: %q", line)
	}

	subjectText := fields[0]
	modifier := Add
	if strings.HasPrefix(subjectText, "-") {
		modifier = Remove
		subjectText = strings.TrimSpace(strings.TrimPrefix(subjectText, "-"))
	}
	subject, err := resolveSubject(subjectText, resolve)
	if err != nil {
		return ParsedCommand{}, fmt.Errorf("qsparse: subject: %w", err)
	}

	if m := reLabelField.FindStringSubmatch(fields[1]); m != nil {
		kind, lang := m[1], m[2]
		valueText, err := unquote(fields[2])
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("qsparse: %s%s value: %w", kind, lang, err)
		}
		cmd, err := buildLabelFamily(kind, subject, lang, valueText, modifier)
		if err != nil {
			return ParsedCommand{}, err
		}
		return ParsedCommand{Command: cmd, Comment: comment}, nil
	}

	if m := rePropertyField.FindStringSubmatch(fields[1]); m != nil {
		property := qsvalue.EntityRef{Type: "property", ID: "P" + m[1]}
		value, err := ParseValue(fields[2])
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("qsparse: statement value: %w", err)
		}
		qualifiers, references, err := parseQualifiersAndReferences(fields[3:])
		if err != nil {
			return ParsedCommand{}, err
		}
		return ParsedCommand{Command: EditStatement{
			Subject:    subject,
			Property:   property,
			Value:      value,
			Qualifiers: qualifiers,
			References: references,
			Modifier:   modifier,
		}, Comment: comment}, nil
	}

	return ParsedCommand{}, fmt.Errorf("qsparse: unrecognized second field %q", fields[1])
}

func buildLabelFamily(kind string, subject qsvalue.EntityRef, lang, text string, modifier Modifier) (Command, error) {
	switch kind {
	case "L":
		return SetLabel{Subject: subject, Language: lang, Text: text, Modifier: modifier}, nil
	case "D":
		return SetDescription{Subject: subject, Language: lang, Text: text, Modifier: modifier}, nil
	case "A":
		return SetAlias{Subject: subject, Language: lang, Text: text, Modifier: modifier}, nil
	case "S":
		return SetSitelink{Subject: subject, Site: lang, Title: text, Modifier: modifier}, nil
	default:
		return nil, fmt.Errorf("qsparse: unreachable label-family kind %q", kind)
	}
}

func parseQualifiersAndReferences(rest []string) ([]qsvalue.PropertyValue, []qsvalue.PropertyValue, error) {
	var qualifiers, references []qsvalue.PropertyValue
	for i := 0; i+1 < len(rest); i += 2 {
		key, valText := rest[i], rest[i+1]
		if key == "" {
			continue
		}
		value, err := ParseValue(valText)
		if err != nil {
			return nil, nil, fmt.Errorf("qsparse: value for %q: %w", key, err)
		}
		switch key[0] {
		case 'P', 'p':
			m := rePropertyField.FindStringSubmatch(key)
			if m == nil {
				return nil, nil, fmt.Errorf("qsparse: bad qualifier property %q", key)
			}
			qualifiers = append(qualifiers, qsvalue.PropertyValue{
				Property: qsvalue.EntityRef{Type: "property", ID: "P" + m[1]},
				Value:    value,
			})
		case 'S', 's':
			propDigits := strings.TrimPrefix(strings.TrimPrefix(key, "S"), "s")
			references = append(references, qsvalue.PropertyValue{
				Property: qsvalue.EntityRef{Type: "property", ID: "P" + propDigits},
				Value:    value,
			})
		default:
			return nil, nil, fmt.Errorf("qsparse: unrecognized qualifier/reference key %q", key)
		}
	}
	return qualifiers, references, nil
}

func resolveSubject(text string, resolve Resolver) (qsvalue.EntityRef, error) {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, qsvalue.LastSentinel) || reEntityID.MatchString(text) {
		return qsvalue.EntityRef{ID: text}, nil
	}
	if resolve == nil {
		return qsvalue.EntityRef{}, fmt.Errorf("qsparse: %q is not an entity id and no title resolver was provided", text)
	}
	return resolve.ResolveTitle(text)
}

func unquote(field string) (string, error) {
	m := reString.FindStringSubmatch(field)
	if m == nil {
		return "", fmt.Errorf("expected a quoted string, got %q", field)
	}
	return m[1], nil
}

// stripComment extracts a trailing /* ... */ block, if present, as the
// command's comment, and returns the remainder of the line.
func stripComment(line string) (body, comment string) {
	if m := reComment.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1] + m[3]), m[2]
	}
	return strings.TrimSpace(line), ""
}
