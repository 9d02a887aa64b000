package qsparse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmde/qsbot/qsvalue"
)

type stubResolver struct {
	titles map[string]qsvalue.EntityRef
}

func (s stubResolver) ResolveTitle(title string) (qsvalue.EntityRef, error) {
	ref, ok := s.titles[title]
	if !ok {
		return qsvalue.EntityRef{}, errNotFound(title)
	}
	return ref, nil
}

type errNotFound string

func (e errNotFound) Error() string { return "no such title: " + string(e) }

func TestParseCreate(t *testing.T) {
	pc, err := ParseLine("CREATE", nil)
	require.NoError(t, err)
	require.Equal(t, Create{EntityType: "item"}, pc.Command)
}

func TestParseMerge(t *testing.T) {
	pc, err := ParseLine("MERGE\tQ1\tQ2", nil)
	require.NoError(t, err)
	merge := pc.Command.(Merge)
	require.Equal(t, "Q1", merge.From.ID)
	require.Equal(t, "Q2", merge.To.ID)
}

func TestParseLabel(t *testing.T) {
	pc, err := ParseLine(`Q42||Len||"Douglas Adams"`, nil)
	require.NoError(t, err)
	label := pc.Command.(SetLabel)
	require.Equal(t, "Q42", label.Subject.ID)
	require.Equal(t, "en", label.Language)
	require.Equal(t, "Douglas Adams", label.Text)
	require.Equal(t, Add, label.Modifier)
}

func TestParseRemoveDescription(t *testing.T) {
	pc, err := ParseLine(`-Q42||Dde||"alter Begriff"`, nil)
	require.NoError(t, err)
	desc := pc.Command.(SetDescription)
	require.Equal(t, Remove, desc.Modifier)
	require.Equal(t, "de", desc.Language)
}

func TestParseStatementWithQualifierAndReference(t *testing.T) {
	pc, err := ParseLine(`Q42||P31||Q5||P580||+1979-01-01T00:00:00Z/9||S854||"https://example.org"`, nil)
	require.NoError(t, err)
	stmt := pc.Command.(EditStatement)
	require.Equal(t, "Q42", stmt.Subject.ID)
	require.Equal(t, "P31", stmt.Property.ID)
	require.Equal(t, qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}}, stmt.Value)
	require.Len(t, stmt.Qualifiers, 1)
	require.Equal(t, "P580", stmt.Qualifiers[0].Property.ID)
	require.Len(t, stmt.References, 1)
	require.Equal(t, "P854", stmt.References[0].Property.ID)
}

func TestParseCommentExtraction(t *testing.T) {
	pc, err := ParseLine(`Q42||Len||"Douglas Adams" /* imported from enwiki */`, nil)
	require.NoError(t, err)
	require.Equal(t, "imported from enwiki", pc.Comment)
	require.IsType(t, SetLabel{}, pc.Command)
}

func TestResolvesTitleThroughResolver(t *testing.T) {
	resolve := stubResolver{titles: map[string]qsvalue.EntityRef{
		"Some Page": {ID: "Q999"},
	}}
	pc, err := ParseLine(`Some Page||Len||"Label"`, resolve)
	require.NoError(t, err)
	label := pc.Command.(SetLabel)
	require.Equal(t, "Q999", label.Subject.ID)
}

func TestParseValueQuantityWithTolerance(t *testing.T) {
	v, err := ParseValue("12.5~0.5")
	require.NoError(t, err)
	q := v.(qsvalue.Quantity)
	require.Equal(t, 12.5, q.Amount)
	require.NotNil(t, q.Lower)
	require.NotNil(t, q.Upper)
	require.Equal(t, 12.0, *q.Lower)
	require.Equal(t, 13.0, *q.Upper)
}

func TestParseValueCoordinate(t *testing.T) {
	v, err := ParseValue("@51.5/-0.12")
	require.NoError(t, err)
	c := v.(qsvalue.GlobeCoordinate)
	require.InDelta(t, 51.5, c.Lat, 1e-9)
	require.InDelta(t, -0.12, c.Lon, 1e-9)
}

func TestParseValueTimeYearOnly(t *testing.T) {
	v, err := ParseValue("+1923Z")
	require.NoError(t, err)
	tv := v.(qsvalue.Time)
	require.Equal(t, "1923", tv.YearDigits)
	require.Equal(t, 9, tv.Precision)
}

func TestParseValueTimeFullDateDefaultsToYearPrecision(t *testing.T) {
	v, err := ParseValue("+2019-06-07T12:13:14Z")
	require.NoError(t, err)
	tv := v.(qsvalue.Time)
	require.Equal(t, 9, tv.Precision)
}

func TestParseValueMonolingual(t *testing.T) {
	v, err := ParseValue(`de:"Hauptstadt"`)
	require.NoError(t, err)
	m := v.(qsvalue.Monolingual)
	require.Equal(t, "de", m.Language)
	require.Equal(t, "Hauptstadt", m.Text)
}
