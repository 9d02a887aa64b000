package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wmde/qsbot/qscompile"
	"github.com/wmde/qsbot/qsparse"
	"github.com/wmde/qsbot/qsvalue"
	"github.com/wmde/qsbot/wikiapi"
)

type fakeAPI struct {
	entities       map[string]*qscompile.EntitySnapshot
	createdEntity  string
	executions     []string
	claimCounter   int
	blocked        bool
}

func (f *fakeAPI) LoadEntity(ctx context.Context, id string, knownRevision int64) (*qscompile.EntitySnapshot, error) {
	if snap, ok := f.entities[id]; ok {
		return snap, nil
	}
	return &qscompile.EntitySnapshot{ID: id}, nil
}

func (f *fakeAPI) Execute(ctx context.Context, action string, params map[string]string) (wikiapi.ExecuteResult, error) {
	f.executions = append(f.executions, action)
	if action == "wbeditentity" {
		f.createdEntity = "Q999"
		return wikiapi.ExecuteResult{Raw: []byte(`{"entity":{"id":"Q999"}}`), EntityID: "Q999"}, nil
	}
	if action == "wbcreateclaim" {
		f.claimCounter++
		return wikiapi.ExecuteResult{ClaimID: "Q999$claim1"}, nil
	}
	return wikiapi.ExecuteResult{}, nil
}

func (f *fakeAPI) IsUserBlocked(ctx context.Context, username string) (bool, error) {
	return f.blocked, nil
}

func TestExecuteCreateThenSetLabelUsingLast(t *testing.T) {
	api := &fakeAPI{entities: map[string]*qscompile.EntitySnapshot{}}
	batch := NewBatch(api, "TestBot", "batch #1", "", nil)

	result := batch.Execute(context.Background(), qsparse.ParsedCommand{Command: qsparse.Create{EntityType: "item"}})
	require.NoError(t, result.Err)
	require.Equal(t, "Q999", batch.LastEntityID())

	result = batch.Execute(context.Background(), qsparse.ParsedCommand{
		Command: qsparse.SetLabel{Subject: qsvalue.EntityRef{ID: "LAST"}, Language: "en", Text: "Foo", Modifier: qsparse.Add},
	})
	require.NoError(t, result.Err)
	require.Contains(t, api.executions, "wbsetlabel")
}

func TestExecuteStatementWithQualifierThreadsClaimID(t *testing.T) {
	api := &fakeAPI{entities: map[string]*qscompile.EntitySnapshot{}}
	batch := NewBatch(api, "TestBot", "batch #1", "", nil)

	result := batch.Execute(context.Background(), qsparse.ParsedCommand{
		Command: qsparse.EditStatement{
			Subject:  qsvalue.EntityRef{ID: "Q42"},
			Property: qsvalue.EntityRef{ID: "P31"},
			Value:    qsvalue.Entity{Ref: qsvalue.EntityRef{ID: "Q5"}},
			Qualifiers: []qsvalue.PropertyValue{
				{Property: qsvalue.EntityRef{ID: "P580"}, Value: qsvalue.String{Text: "x"}},
			},
			Modifier: qsparse.Add,
		},
	})
	require.NoError(t, result.Err)
	require.Equal(t, []string{"wbcreateclaim", "wbsetqualifier"}, api.executions)
}

func TestBlockedUserStopsExecution(t *testing.T) {
	api := &fakeAPI{entities: map[string]*qscompile.EntitySnapshot{}, blocked: true}
	batch := NewBatch(api, "TestBot", "batch #1", "", nil)
	var result CommandResult
	for i := 0; i < blockCheckInterval; i++ {
		result = batch.Execute(context.Background(), qsparse.ParsedCommand{Command: qsparse.Create{EntityType: "item"}})
	}
	require.Error(t, result.Err)
}
