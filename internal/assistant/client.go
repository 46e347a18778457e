// ABOUTME: Thin request layer for the remote assistant thread/run/message API
// ABOUTME: Returns raw JSON payloads; field extraction lives in Parser

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// StatusError is returned when the remote API answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: remote returned status %d: %s", e.Op, e.StatusCode, truncate(e.Body, 200))
}

// Message is a thread message payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	AssistantID string
	APIVersion  string // sent as the OpenAI-Beta header
	Timeout     time.Duration
	MaxRetries  int

	// HTTPClient replaces the retrying transport; used by tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues thread, message, run and file calls against the assistant API.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	apiVersion  string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Client. Unless opts.HTTPClient is set, requests go through a
// retrying transport that only replays idempotent calls and rate-limited requests.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "assistant")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = opts.MaxRetries
		rc.RetryWaitMin = 500 * time.Millisecond
		rc.RetryWaitMax = 5 * time.Second
		rc.Logger = logger
		rc.CheckRetry = retryIdempotent
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
		rc.HTTPClient.Timeout = opts.Timeout
		httpClient = rc.StandardClient()
	}

	return &Client{
		baseURL:     opts.BaseURL,
		apiKey:      opts.APIKey,
		assistantID: opts.AssistantID,
		apiVersion:  opts.APIVersion,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// retryIdempotent applies the default policy to GET and DELETE and to transport errors.
// Answered POSTs are only retried on 429, where the server has not processed the request.
func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Request != nil {
		switch resp.Request.Method {
		case http.MethodGet, http.MethodDelete:
		default:
			return resp.StatusCode == http.StatusTooManyRequests, nil
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// AssistantID returns the fixed assistant identity runs are started with.
func (c *Client) AssistantID() string {
	return c.assistantID
}

// CreateThread creates an empty thread.
func (c *Client) CreateThread(ctx context.Context) ([]byte, error) {
	return c.do(ctx, "create thread", http.MethodPost, "/threads", struct{}{})
}

// CreateThreadWithMessages creates a thread seeded with the given messages.
func (c *Client) CreateThreadWithMessages(ctx context.Context, messages []Message) ([]byte, error) {
	body := struct {
		Messages []Message `json:"messages"`
	}{Messages: messages}
	return c.do(ctx, "create seeded thread", http.MethodPost, "/threads", body)
}

// DeleteThread deletes a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) ([]byte, error) {
	return c.do(ctx, "delete thread", http.MethodDelete, "/threads/"+url.PathEscape(threadID), nil)
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID string, msg Message) ([]byte, error) {
	return c.do(ctx, "create message", http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", msg)
}

// ListMessages lists a thread's messages, most recent first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]byte, error) {
	return c.do(ctx, "list messages", http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages?order=desc&limit=100", nil)
}

// GetMessage fetches a single message.
func (c *Client) GetMessage(ctx context.Context, threadID, messageID string) ([]byte, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, "get message", http.MethodGet, path, nil)
}

// CreateRun starts a run of the configured assistant on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID string) ([]byte, error) {
	body := map[string]string{"assistant_id": c.assistantID}
	return c.do(ctx, "create run", http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", body)
}

// GetRun fetches a run, including its status.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) ([]byte, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	return c.do(ctx, "get run", http.MethodGet, path, nil)
}

// GetFile fetches file metadata, which includes the declared filename.
func (c *Client) GetFile(ctx context.Context, fileID string) ([]byte, error) {
	return c.do(ctx, "get file", http.MethodGet, "/files/"+url.PathEscape(fileID), nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	c.logger.Debug("assistant call",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
