package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/recollsup/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		method, path string
		body         []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "recoll-history")
	ev := history.NewEvent(history.EventGaveUp, history.Record{RunID: "r1", Attempt: 3, Error: "exit code 2"})
	require.NoError(t, sink.Send(context.Background(), ev))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/recoll-history/_doc/"+ev.ID, path)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "gave_up", got["type"])
	rec := got["record"].(map[string]any)
	assert.Equal(t, "r1", rec["run_id"])
	assert.Equal(t, float64(3), rec["attempt"])
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index closed", http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.NewEvent(history.EventStart, history.Record{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "index closed")
}
