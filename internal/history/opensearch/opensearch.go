package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/librewallet/minerd/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) over its REST API.
// Each event is POSTed to baseURL/index/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document flattens an event into the shape stored in the index.
type document struct {
	Type       history.EventType `json:"type"`
	OccurredAt time.Time         `json:"@timestamp"`
	RunID      string            `json:"run_id"`
	Name       string            `json:"name"`
	PID        int               `json:"pid"`
	Command    string            `json:"command"`
	Endpoint   string            `json:"endpoint,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	StoppedAt  *time.Time        `json:"stopped_at,omitempty"`
	ExitCode   int               `json:"exit_code"`
	Error      string            `json:"error,omitempty"`
}

func toDocument(e history.Event) document {
	d := document{
		Type:       e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		RunID:      e.Record.RunID,
		Name:       e.Record.Name,
		PID:        e.Record.PID,
		Command:    e.Record.Command,
		Endpoint:   e.Record.Endpoint,
		ExitCode:   e.Record.ExitCode,
		Error:      e.Record.Error,
	}
	if t := e.Record.StartedAt; !t.IsZero() {
		d.StartedAt = &t
	}
	if t := e.Record.StoppedAt; !t.IsZero() {
		d.StoppedAt = &t
	}
	return d
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(toDocument(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
