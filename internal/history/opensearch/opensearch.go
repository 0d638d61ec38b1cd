package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/mcwarden/internal/history"
)

// Sink sends events to OpenSearch via HTTP.
// It constructs URL as: baseURL + "/" + index + "/_doc/" + event id and PUTs
// the JSON body, so a retried event overwrites rather than duplicates.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

type document struct {
	Type       history.EventType `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Name       string            `json:"name"`
	PID        int               `json:"pid"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	Players    int               `json:"players"`
	Detail     string            `json:"detail,omitempty"`
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	doc := document{
		Type:       e.Type,
		OccurredAt: e.OccurredAt.UTC(),
		Name:       e.Record.Name,
		PID:        e.Record.PID,
		Players:    e.Record.Players,
		Detail:     e.Record.Detail,
	}
	if !e.Record.StartedAt.IsZero() {
		t := e.Record.StartedAt.UTC()
		doc.StartedAt = &t
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc/%s", s.baseURL, s.index, e.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
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
