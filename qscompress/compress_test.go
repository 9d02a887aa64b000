package qscompress

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qsvalue"
)

func TestFoldLabelIntoCreate(t *testing.T) {
	cmds := []qsparse.ParsedCommand{
		{Command: qsparse.Create{EntityType: "item"}},
		{Command: qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "LAST"}, Language: "en", Text: "Foo", Modifier: qsparse.Add}},
		{Command: qsparse.SetDescription{Subject: qsvalue.EntityRef{ID: "LAST"}, Language: "en", Text: "a thing", Modifier: qsparse.Add}},
	}
	out := Fold(cmds)
	require.Len(t, out, 1)
	create := out[0].Command.(qsparse.Create)
	require.Contains(t, string(create.Data), `"en":{"language":"en","value":"Foo"}`)
	require.Contains(t, string(create.Data), `"a thing"`)
}

func TestFoldStopsAtNonLastSubject(t *testing.T) {
	cmds := []qsparse.ParsedCommand{
		{Command: qsparse.Create{EntityType: "item"}},
		{Command: qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "Q9"}, Language: "en", Text: "Foo", Modifier: qsparse.Add}},
	}
	out := Fold(cmds)
	require.Len(t, out, 2)
	_, isCreate := out[0].Command.(qsparse.Create)
	require.True(t, isCreate)
	_, isLabel := out[1].Command.(qsparse.SetLabel)
	require.True(t, isLabel)
}

func TestFoldQualifiedStatementIntoCreate(t *testing.T) {
	cmds := []qsparse.ParsedCommand{
		{Command: qsparse.Create{EntityType: "item"}},
		{Command: qsparse.EditStatement{
			Subject:    qsvalue.EntityRef{ID: "LAST"},
			Property:   qsvalue.EntityRef{ID: "P31"},
			Value:      qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
			Qualifiers: []qsvalue.PropertyValue{{Property: qsvalue.EntityRef{ID: "P580"}, Value: qsvalue.String{Text: "x"}}},
			Modifier:   qsparse.Add,
		}},
	}
	out := Fold(cmds)
	require.Len(t, out, 1)
	create := out[0].Command.(qsparse.Create)
	require.Contains(t, string(create.Data), `"qualifiers"`)
	require.Contains(t, string(create.Data), `"P580"`)
}

func TestFoldMergesQualifiersAndReferencesIntoExistingClaim(t *testing.T) {
	cmds := []qsparse.ParsedCommand{
		{Command: qsparse.Create{EntityType: "item"}},
		{Command: qsparse.EditStatement{
			Subject: qsvalue.EntityRef{ID: "LAST"}, Property: qsvalue.EntityRef{ID: "P31"},
			Value: qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}}, Modifier: qsparse.Add,
		}},
		{Command: qsparse.EditStatement{
			Subject: qsvalue.EntityRef{ID: "LAST"}, Property: qsvalue.EntityRef{ID: "P31"},
			Value:      qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
			Qualifiers: []qsvalue.PropertyValue{{Property: qsvalue.EntityRef{ID: "P580"}, Value: qsvalue.String{Text: "x"}}},
			References: []qsvalue.PropertyValue{{Property: qsvalue.EntityRef{ID: "P854"}, Value: qsvalue.String{Text: "http://example.com"}}},
			Modifier:   qsparse.Add,
		}},
	}
	out := Fold(cmds)
	require.Len(t, out, 1)
	create := out[0].Command.(qsparse.Create)
	require.Equal(t, 1, countOccurrences(string(create.Data), `"property":"P31"`))
	require.Contains(t, string(create.Data), `"P580"`)
	require.Contains(t, string(create.Data), `"P854"`)
}

func TestFoldDedupsEqualClaims(t *testing.T) {
	cmds := []qsparse.ParsedCommand{
		{Command: qsparse.Create{EntityType: "item"}},
		{Command: qsparse.EditStatement{
			Subject: qsvalue.EntityRef{ID: "LAST"}, Property: qsvalue.EntityRef{ID: "P31"},
			Value: qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}}, Modifier: qsparse.Add,
		}},
		{Command: qsparse.EditStatement{
			Subject: qsvalue.EntityRef{ID: "LAST"}, Property: qsvalue.EntityRef{ID: "P31"},
			Value: qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}}, Modifier: qsparse.Add,
		}},
	}
	out := Fold(cmds)
	require.Len(t, out, 1)
	create := out[0].Command.(qsparse.Create)
	require.Equal(t, 1, countOccurrences(string(create.Data), `"property":"P31"`))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
