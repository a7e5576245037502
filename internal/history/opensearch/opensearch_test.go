package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librewallet/minerd/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotType   string
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	sink := New(srv.URL+"/", "minerd-history")
	started := time.Now().Add(-time.Minute).UTC()
	err := sink.Send(context.Background(), history.Event{
		Type:       history.EventStart,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			RunID:     "run-os",
			Name:      "miner",
			PID:       777,
			Command:   "/opt/xmrig",
			StartedAt: started,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/minerd-history/_doc", gotPath)
	assert.Equal(t, "application/json", gotType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &doc))
	assert.Equal(t, "start", doc["type"])
	assert.Equal(t, "run-os", doc["run_id"])
	assert.EqualValues(t, 777, doc["pid"])
	assert.Contains(t, doc, "@timestamp")
	assert.Contains(t, doc, "started_at")
	assert.NotContains(t, doc, "stopped_at")
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL, "idx").Send(context.Background(), history.Event{Type: history.EventStop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(url, "idx").Send(context.Background(), history.Event{Type: history.EventExit})
	assert.Error(t, err)
}
