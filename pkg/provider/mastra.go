package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const mastraProviderName = "mastra"

// AgentMessage is one turn of the conversation forwarded to the agent.
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MastraClient streams from a Mastra agent server.
type MastraClient struct {
	BaseURL string
	Agent   string
	client  *http.Client
}

func NewMastraClient(baseURL, agent string) *MastraClient {
	if strings.TrimSpace(agent) == "" {
		agent = "weatherAgent"
	}
	return &MastraClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Agent:   agent,
		client:  &http.Client{},
	}
}

// Stream opens the agent's event stream for the given conversation. The
// caller owns closing the returned body.
func (c *MastraClient) Stream(ctx context.Context, messages []AgentMessage) (io.ReadCloser, error) {
	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return nil, err
	}
	endpoint := c.BaseURL + "/api/agents/" + url.PathEscape(c.Agent) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeHTTPError(mastraProviderName, resp)
	}
	return resp.Body, nil
}
