// Package aegissdk is a minimal AEGIS HTTP API client.
package aegissdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL     string
	ArtifactID  string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, artifactID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		ArtifactID: artifactID,
		Timeout:    10 * time.Second,
	}
}

// Event is a governance log entry.
type Event struct {
	Seq             int64    `json:"seq"`
	EventID         string   `json:"event_id"`
	ArtifactID      string   `json:"artifact_id"`
	Type            string   `json:"type"`
	PeerID          string   `json:"peer_id,omitempty"`
	LensID          string   `json:"lens_id,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	AwarenessBefore *float64 `json:"awareness_before,omitempty"`
	AwarenessAfter  *float64 `json:"awareness_after,omitempty"`
	TS              string   `json:"ts"`
}

// DeferredLens pairs a lens with its deferral rationale.
type DeferredLens struct {
	LensID    string `json:"lens_id"`
	Rationale string `json:"rationale"`
}

// InclusionState mirrors the server's derived lock-eligibility snapshot.
type InclusionState struct {
	IntersectingPeers     []string       `json:"intersecting_peers"`
	IntersectingLenses    []string       `json:"intersecting_lenses"`
	AcknowledgedPeers     []string       `json:"acknowledged_peers"`
	AwarenessPercent      float64        `json:"awareness_percent"`
	RepresentedLenses     []string       `json:"represented_lenses"`
	DeferredLenses        []DeferredLens `json:"deferred_lenses"`
	MissingLenses         []string       `json:"missing_lenses"`
	AwarenessSatisfied    bool           `json:"awareness_satisfied"`
	SynthesisSatisfied    bool           `json:"synthesis_satisfied"`
	LockAvailable         bool           `json:"lock_available"`
	Reasons               []string       `json:"reasons"`
	DetectedShadowAffects []string       `json:"detected_shadow_affects"`
}

// Operation is the current state of a governed tool-call lineage.
type Operation struct {
	ID         string `json:"id"`
	LineageID  string `json:"lineage_id"`
	ArtifactID string `json:"artifact_id"`
	Status     string `json:"status"`
	Mode       string `json:"mode"`
}

// OperationResult is the outcome of an executed operation.
type OperationResult struct {
	CompletedAt    string         `json:"completed_at"`
	Outcome        string         `json:"outcome"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	AppendOnlyHash string         `json:"append_only_hash,omitempty"`
}

// Ledger is the flat audit record persisted on lock.
type Ledger struct {
	ArtifactID            string         `json:"artifact_id"`
	NotifiedPeers         []string       `json:"notified_peers"`
	AcknowledgedPeers     []string       `json:"acknowledged_peers"`
	RepresentedLenses     []string       `json:"represented_lenses"`
	DeferredLenses        []DeferredLens `json:"deferred_lenses"`
	MissingLenses         []string       `json:"missing_lenses"`
	Timestamp             string         `json:"timestamp"`
	AwarenessPercent      float64        `json:"awareness_percent"`
	DetectedShadowAffects []string       `json:"detected_shadow_affects"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AppendEvent records a governance event for the artifact.
func (c *Client) AppendEvent(ctx context.Context, evtType, peerID, lensID, rationale string) (Event, error) {
	body := map[string]any{
		"type":      evtType,
		"peer_id":   peerID,
		"lens_id":   lensID,
		"rationale": rationale,
	}
	var resp Event
	err := c.do(ctx, http.MethodPost, c.artifactPath("events"), body, &resp)
	return resp, err
}

// Inclusion recomputes and fetches the inclusion snapshot.
func (c *Client) Inclusion(ctx context.Context) (InclusionState, error) {
	var resp InclusionState
	err := c.do(ctx, http.MethodGet, c.artifactPath("inclusion"), nil, &resp)
	return resp, err
}

// Lock attempts to lock the artifact.
func (c *Client) Lock(ctx context.Context) (Ledger, error) {
	var resp struct {
		Locked bool   `json:"locked"`
		Ledger Ledger `json:"ledger"`
	}
	err := c.do(ctx, http.MethodPost, c.artifactPath("lock"), nil, &resp)
	return resp.Ledger, err
}

// ProposeOperation opens a governed read-only tool-call lineage.
func (c *Client) ProposeOperation(ctx context.Context, toolID, toolName, intent string, allow []string) (Operation, error) {
	body := map[string]any{
		"tool_id":   toolID,
		"tool_name": toolName,
		"intent":    intent,
		"allow":     allow,
	}
	var resp Operation
	err := c.do(ctx, http.MethodPost, c.artifactPath("operations"), body, &resp)
	return resp, err
}

// AcceptOperation accepts an execution request.
func (c *Client) AcceptOperation(ctx context.Context, opID string) (Operation, error) {
	var resp Operation
	endpoint := fmt.Sprintf("v0/operations/%s/accept", url.PathEscape(opID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &resp)
	return resp, err
}

// ExecuteOperation executes an accepted read-only tool call.
func (c *Client) ExecuteOperation(ctx context.Context, opID, path string) (OperationResult, error) {
	var resp OperationResult
	endpoint := fmt.Sprintf("v0/operations/%s/execute", url.PathEscape(opID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"path": path}, &resp)
	return resp, err
}

// Events returns the artifact's governance log in insertion order.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, c.artifactPath("events"), nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) artifactPath(p string) string {
	artifact := url.PathEscape(c.ArtifactID)
	return fmt.Sprintf("v0/artifacts/%s/%s", artifact, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
