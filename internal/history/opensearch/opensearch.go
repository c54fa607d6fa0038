package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/respawn/internal/history"
)

// Sink sends events to OpenSearch via HTTP.
// It constructs URL as: baseURL + "/" + index + "/_doc" and POSTs JSON body.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, _ := json.Marshal(document(e))
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
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

// document flattens an event so null-wrapped columns index as plain
// fields instead of {Valid,String} objects.
func document(e history.Event) map[string]any {
	rec := e.Record
	doc := map[string]any{
		"event":       string(e.Type),
		"occurred_at": e.OccurredAt.UTC(),
		"name":        rec.Name,
		"pid":         rec.PID,
		"started_at":  rec.StartedAt.UTC(),
		"uniq":        rec.Key(),
		"running":     rec.Running,
	}
	if rec.EndedAt.Valid {
		doc["ended_at"] = rec.EndedAt.Time.UTC()
	}
	if rec.Outcome.Valid {
		doc["outcome"] = rec.Outcome.String
	}
	if rec.ExitCode.Valid {
		doc["exit_code"] = rec.ExitCode.Int64
	}
	if rec.Detail.Valid {
		doc["detail"] = rec.Detail.String
	}
	return doc
}
