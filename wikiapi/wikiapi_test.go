package wikiapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Site: "wikidata", APIURL: srv.URL})
}

func TestResolveTitleWikidataLink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{
				"pages": map[string]any{
					"1": map[string]any{
						"pageprops": map[string]any{"wikibase_item": "Q42"},
					},
				},
			},
		})
	})
	ref, err := c.ResolveTitle("Douglas Adams")
	require.NoError(t, err)
	require.Equal(t, "Q42", ref.ID)
	require.Equal(t, "item", ref.Type)
}

func TestExecuteSuccess(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("action") == "query" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{"tokens": map[string]any{"csrftoken": "abc+\\"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"claim": map[string]any{"id": "Q42$guid"},
		})
	})
	result, err := c.Execute(context.Background(), "wbcreateclaim", map[string]string{"entity": "Q42"})
	require.NoError(t, err)
	require.Equal(t, "Q42$guid", result.ClaimID)
	require.False(t, result.AlreadyExists)
}

func TestExecuteAlreadyExistsIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") == "query" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query": map[string]any{"tokens": map[string]any{"csrftoken": "abc+\\"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "modification-failed", "info": "The statement already has a qualifier for property P580"},
		})
	})
	result, err := c.Execute(context.Background(), "wbsetqualifier", map[string]string{"claim": "Q42$guid"})
	require.NoError(t, err)
	require.True(t, result.AlreadyExists)
}
