package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librewallet/minerd/internal/history"
)

func sampleEvent(typ history.EventType, at time.Time) history.Event {
	return history.Event{
		Type:       typ,
		OccurredAt: at,
		Record: history.Record{
			RunID:     "run-1",
			Name:      "miner",
			PID:       4242,
			Command:   "/opt/xmrig -o pool:3333",
			Endpoint:  "pool:3333",
			StartedAt: at,
		},
	}
}

func TestSQLiteSink_FileRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, sink.Close()) }()

	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond)
	require.NoError(t, sink.Send(ctx, sampleEvent(history.EventStart, started)))

	stopped := started.Add(30 * time.Second)
	stop := sampleEvent(history.EventStop, stopped)
	stop.Record.StoppedAt = stopped
	stop.Record.ExitCode = -1
	stop.Record.Error = "signal: terminated"
	require.NoError(t, sink.Send(ctx, stop))

	events, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, history.EventStop, events[0].Type)
	assert.Equal(t, history.EventStart, events[1].Type)
	assert.True(t, events[0].OccurredAt.Equal(stopped))
	assert.True(t, events[0].Record.StoppedAt.Equal(stopped))
	assert.Equal(t, "signal: terminated", events[0].Record.Error)
	assert.Equal(t, -1, events[0].Record.ExitCode)
	assert.True(t, events[1].Record.StoppedAt.IsZero())
	assert.Empty(t, events[1].Record.Error)
	assert.Equal(t, "run-1", events[1].Record.RunID)
	assert.Equal(t, 4242, events[1].Record.PID)
}

func TestSQLiteSink_MemoryAndLimit(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Send(ctx, sampleEvent(history.EventExit, now.Add(time.Duration(i)*time.Second))))
	}

	events, err := sink.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("   ")
	assert.Error(t, err)
}

func TestSQLiteSink_ImplementsInterfaces(t *testing.T) {
	var _ history.Sink = (*Sink)(nil)
	var _ history.Reader = (*Sink)(nil)
}
