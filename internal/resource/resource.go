// Package resource loads the business resource an event refers to, so
// templates can be rendered against its current representation.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Loader fetches one referenced resource. A loader failure is fatal to
// the whole dispatch invocation; the event bus retries later.
type Loader interface {
	Load(ctx context.Context, typeID, id string) (map[string]any, error)
}

// HTTPLoader reads resources from the commercetools HTTP API. The
// resource type id maps onto the API's plural collection segment
// ("order" -> /orders).
type HTTPLoader struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (l *HTTPLoader) Load(ctx context.Context, typeID, id string) (map[string]any, error) {
	url := fmt.Sprintf("%s/%ss/%s", l.BaseURL, typeID, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.Token)

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", typeID, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s %s: unexpected status %s", typeID, id, resp.Status)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", typeID, id, err)
	}
	return body, nil
}
