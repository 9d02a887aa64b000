package qscompile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qsvalue"
)

func emptyLookup(id string) (*EntitySnapshot, error) { return nil, nil }

func TestCompileCreate(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup}
	actions, err := Compile(qsparse.Create{EntityType: "item"}, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionEditEntity, actions[0].Kind)
	require.Equal(t, "item", actions[0].Params["new"])
}

func TestCompileSetLabelAlreadySet(t *testing.T) {
	ctx := &Context{
		Lookup: func(id string) (*EntitySnapshot, error) {
			return &EntitySnapshot{Labels: map[string]string{"en": "Douglas Adams"}}, nil
		},
	}
	cmd := qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "Q42"}, Language: "en", Text: "Douglas Adams", Modifier: qsparse.Add}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.True(t, actions[0].AlreadyDone)
}

func TestCompileSetLabelChanges(t *testing.T) {
	ctx := &Context{
		Lookup: func(id string) (*EntitySnapshot, error) {
			return &EntitySnapshot{Labels: map[string]string{"en": "Old Name"}}, nil
		},
	}
	cmd := qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "Q42"}, Language: "en", Text: "New Name", Modifier: qsparse.Add}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.False(t, actions[0].AlreadyDone)
	require.Equal(t, "New Name", actions[0].Params["value"])
}

func TestCompileLastResolution(t *testing.T) {
	ctx := &Context{
		Lookup:  emptyLookup,
		HasLast: true,
		LastRef: qsvalue.EntityRef{Type: "item", ID: "Q100"},
	}
	cmd := qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "LAST"}, Language: "en", Text: "Foo", Modifier: qsparse.Add}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Equal(t, "Q100", actions[0].Params["id"])
}

func TestCompileLastWithoutPriorCreateFails(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup}
	cmd := qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "LAST"}, Language: "en", Text: "Foo", Modifier: qsparse.Add}
	_, err := Compile(cmd, ctx)
	require.Error(t, err)
}

func TestCompileStatementNewClaim(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup, Summary: "batch #42"}
	cmd := qsparse.EditStatement{
		Subject:  qsvalue.EntityRef{ID: "Q42"},
		Property: qsvalue.EntityRef{ID: "P31"},
		Value:    qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
		Modifier: qsparse.Add,
	}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionCreateClaim, actions[0].Kind)
	require.Equal(t, "batch #42", actions[0].Params["summary"])
	require.False(t, actions[0].AlreadyDone)
	// wbcreateclaim's "value" carries the datavalue's inner value only,
	// not the {"type":...,"value":...} envelope.
	require.Equal(t, `{"entity-type":"item","id":"Q5"}`, actions[0].Params["value"])
}

func TestCompileMergeCrossesFromAndToIDs(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup}
	cmd := qsparse.Merge{From: qsvalue.EntityRef{ID: "Q123"}, To: qsvalue.EntityRef{ID: "Q456"}}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, ActionMergeItems, actions[0].Kind)
	require.Equal(t, "Q456", actions[0].Params["fromid"])
	require.Equal(t, "Q123", actions[0].Params["toid"])
	require.Equal(t, "description", actions[0].Params["ignoreconflicts"])
	require.Equal(t, "item", actions[0].Params["type"])
}

func TestCompileStatementAlreadyExists(t *testing.T) {
	ctx := &Context{
		Lookup: func(id string) (*EntitySnapshot, error) {
			return &EntitySnapshot{
				Claims: map[string][]Claim{
					"P31": {{
						ID:       "Q42$abc",
						MainSnak: Snak{Property: "P31", Value: qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}}},
					}},
				},
			}, nil
		},
	}
	cmd := qsparse.EditStatement{
		Subject:  qsvalue.EntityRef{ID: "Q42"},
		Property: qsvalue.EntityRef{ID: "P31"},
		Value:    qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
		Modifier: qsparse.Add,
	}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.True(t, actions[0].AlreadyDone)
}

func TestCompileStatementWithQualifierNeedsClaimID(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup}
	cmd := qsparse.EditStatement{
		Subject:  qsvalue.EntityRef{ID: "Q42"},
		Property: qsvalue.EntityRef{ID: "P31"},
		Value:    qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
		Qualifiers: []qsvalue.PropertyValue{
			{Property: qsvalue.EntityRef{ID: "P580"}, Value: qsvalue.Time{Sign: "+", YearDigits: "1979", Precision: 9, Calendar: qsvalue.GregorianCalendar}},
		},
		Modifier: qsparse.Add,
	}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, ActionCreateClaim, actions[0].Kind)
	require.Equal(t, ActionSetQualifier, actions[1].Kind)
	require.True(t, actions[1].UsesClaimID)
	// wbsetqualifier's "value" is likewise the unwrapped inner value.
	require.Equal(t, `{"time":"+1979-01-01T00:00:00Z","precision":9,"calendarmodel":"http://www.wikidata.org/entity/Q1985727","timezone":0,"before":0,"after":0}`, actions[1].Params["value"])
}

func TestCompileRemoveStatementNoMatch(t *testing.T) {
	ctx := &Context{Lookup: emptyLookup}
	cmd := qsparse.EditStatement{
		Subject:  qsvalue.EntityRef{ID: "Q42"},
		Property: qsvalue.EntityRef{ID: "P31"},
		Value:    qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
		Modifier: qsparse.Remove,
	}
	actions, err := Compile(cmd, ctx)
	require.NoError(t, err)
	require.True(t, actions[0].AlreadyDone)
}
