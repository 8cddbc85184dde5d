package provider

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

const arkProviderName = "ark"

// ArkClient talks to a Volcengine-Ark style generation API: streaming image
// generation plus asynchronous content generation tasks (video) with a
// create/query/cancel lifecycle.
type ArkClient struct {
	BaseURL string
	APIKey  string

	// One-shot calls get a bounded client; streams live as long as their
	// request context.
	client    *http.Client
	streaming *http.Client
}

func NewArkClient(baseURL, apiKey string) *ArkClient {
	return &ArkClient{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:    strings.TrimSpace(apiKey),
		client:    &http.Client{Timeout: 60 * time.Second},
		streaming: &http.Client{},
	}
}

// ImageRequest is the create-image-task body. ImageURLs and Scale are only
// meaningful for image-to-image generation, where the listed images seed the
// generation. Stream is forced on by CreateImageStream.
type ImageRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	ImageURLs      []string `json:"image_urls,omitempty"`
	Scale          float64  `json:"scale,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	Steps          int      `json:"steps,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	GuidanceScale  float64  `json:"guidance_scale,omitempty"`
	NumImages      int      `json:"num_images,omitempty"`
	Stream         bool     `json:"stream"`
}

// VideoContent is one element of a video generation prompt.
type VideoContent struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *VideoImageURL `json:"image_url,omitempty"`
}

type VideoImageURL struct {
	URL string `json:"url"`
}

// VideoRequest is the create-video-task body.
type VideoRequest struct {
	Model           string         `json:"model"`
	Content         []VideoContent `json:"content"`
	CallbackURL     string         `json:"callback_url,omitempty"`
	ReturnLastFrame bool           `json:"return_last_frame,omitempty"`
}

// TaskContent carries the result URLs of a finished task.
type TaskContent struct {
	VideoURL     string   `json:"video_url,omitempty"`
	LastFrameURL string   `json:"last_frame_url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`
}

type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is one upstream generation job snapshot.
type Task struct {
	ID      string       `json:"id"`
	Status  string       `json:"status"`
	Content *TaskContent `json:"content,omitempty"`
	Error   *TaskError   `json:"error,omitempty"`
}

// ResultURLs returns the task's result URLs in discovery order with
// duplicates suppressed.
func (t Task) ResultURLs() []string {
	if t.Content == nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	add(t.Content.VideoURL)
	add(t.Content.ImageURL)
	for _, u := range t.Content.ImageURLs {
		add(u)
	}
	return out
}

// Terminal reports whether status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CreateImageStream starts a streaming image generation and returns the raw
// event-stream body. The caller owns closing it.
func (c *ArkClient) CreateImageStream(ctx context.Context, req ImageRequest) (io.ReadCloser, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeHTTPError(arkProviderName, resp)
	}
	return resp.Body, nil
}

// CreateTask submits an asynchronous generation job and returns the upstream
// assigned task id.
func (c *ArkClient) CreateTask(ctx context.Context, req VideoRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/contents/generations/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeHTTPError(arkProviderName, resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create task response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("upstream returned no task id")
	}
	return out.ID, nil
}

// QueryTask fetches the current snapshot of one task.
func (c *ArkClient) QueryTask(ctx context.Context, id string) (Task, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/contents/generations/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return Task{}, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Task{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Task{}, decodeHTTPError(arkProviderName, resp)
	}
	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("decode task response: %w", err)
	}
	return task, nil
}

// CancelTask issues the upstream delete. The upstream decides whether the
// task is still cancellable; its verdict is returned verbatim.
func (c *ArkClient) CancelTask(ctx context.Context, id string) (bool, string, error) {
	httpReq, err := c.newRequest(ctx, http.MethodDelete, "/contents/generations/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return false, "", err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, "", decodeHTTPError(arkProviderName, resp)
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// An empty 2xx body still means the delete went through.
		return true, "", nil
	}
	return out.Success, out.Message, nil
}

func (c *ArkClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	return req, nil
}
