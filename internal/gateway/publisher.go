package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calder-io/steward/internal/domain"
)

// Publisher is an HTTP client that reports gateway events back to the
// steward external API.
type Publisher struct {
	baseURL    string
	httpClient *http.Client
}

// NewPublisher creates a publisher for the given steward base URL.
func NewPublisher(baseURL string) *Publisher {
	return &Publisher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Publish emits one event through POST /v1/events.
func (p *Publisher) Publish(ctx context.Context, eventType domain.EventType, payload any) error {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	body, err := json.Marshal(domain.PublishEventRequest{Type: eventType, Payload: rawPayload})
	if err != nil {
		return fmt.Errorf("failed to marshal event request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("steward error: %s", errResp.Error)
		}
		return fmt.Errorf("steward returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
