package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/puzzlefed/puzzlefed/internal/httperr"
)

// PeerClient performs outbound federation calls. It works on the
// assumption that a request to a peer will fail, and reports the failure
// modes distinguishably: a well-formed upstream OAuth error body comes
// back verbatim as an *httperr.Error tagged as upstream, everything else
// as a plain transport error for the caller to wrap.
type PeerClient struct {
	h *http.Client
}

func NewPeerClient(h *http.Client) *PeerClient {
	if h == nil {
		h = &http.Client{
			Timeout: 8 * time.Second,
		}
	}
	return &PeerClient{h: h}
}

func (c *PeerClient) HTTPClient() *http.Client {
	return c.h
}

// Request sends a federation request and decodes the JSON body. A form
// body makes it a urlencoded POST; a bearer token is attached when given.
func (c *PeerClient) Request(ctx context.Context, method, rawURL string, form url.Values, bearer string) (map[string]any, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating federation request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not get response from peer: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read peer response: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("response not JSON: %s", truncate(string(b), 200))
	}

	if code, ok := m["error"].(string); ok && code != "" {
		desc, _ := m["error_description"].(string)
		return nil, httperr.New(resp.StatusCode, code, fmt.Sprintf("%s (Upstream - %s)", desc, rawURL))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer responded with status %d", resp.StatusCode)
	}

	return m, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
