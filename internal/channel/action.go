package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPActionAdapter implements ActionAdapter's http_request and
// call_webhook kinds against arbitrary tenant-configured endpoints,
// following the same http.Client-with-timeout idiom the teacher uses for
// its own outbound calls (e.g. internal/channels/slack.go, internal/group/
// lfsclient.go). db_query/send_email/create_ticket/crm_update/run_script
// are intentionally not implemented here: they are operator-supplied
// extensions of this same port, wired per deployment.
type HTTPActionAdapter struct {
	client *http.Client
}

// NewHTTPActionAdapter builds an adapter bounding every call by timeout
// (spec §5: "every outbound HTTP call is bounded by the tenant's
// configured timeout, default 30s").
func NewHTTPActionAdapter(timeout time.Duration) *HTTPActionAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPActionAdapter{client: &http.Client{Timeout: timeout}}
}

func (a *HTTPActionAdapter) Run(ctx context.Context, kind string, params map[string]any) (ActionResult, error) {
	switch kind {
	case "http_request", "call_webhook":
		return a.runHTTP(ctx, params)
	default:
		return ActionResult{}, fmt.Errorf("channel: action kind %q is not implemented by HTTPActionAdapter", kind)
	}
}

func (a *HTTPActionAdapter) runHTTP(ctx context.Context, params map[string]any) (ActionResult, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return ActionResult{}, fmt.Errorf("channel: http_request requires a url parameter")
	}
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload, ok := params["body"]; ok {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return ActionResult{}, fmt.Errorf("channel: encode action body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return ActionResult{}, fmt.Errorf("channel: build action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := params["headers"].(map[string]string); ok {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("channel: action request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActionResult{}, fmt.Errorf("channel: read action response: %w", err)
	}

	result := ActionResult{StatusCode: resp.StatusCode}
	if len(raw) > 0 {
		var decoded map[string]any
		if json.Unmarshal(raw, &decoded) == nil {
			result.Body = decoded
		} else {
			result.Body = map[string]any{"raw": string(raw)}
		}
	}
	return result, nil
}
