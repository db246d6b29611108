package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkruglov/exam-ingest/internal/infrastructure/resilience"
)

// Client talks to an OpenAI-compatible vision chat endpoint. Calls are
// rate-limited to respect the backend's request budget and wrapped in
// the resilience executor for transport-level retry and circuit
// breaking; batch-level retry policy stays with the orchestrator.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(baseURL, apiKey, model string, requestsPerSecond float64, executor *resilience.Executor) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		executor:   executor,
	}
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func textPart(text string) contentPart {
	return contentPart{Type: "text", Text: text}
}

func imagePart(png []byte) contentPart {
	return contentPart{
		Type: "image_url",
		ImageURL: &imageURL{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		},
	}
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *responseSchema `json:"json_schema,omitempty"`
}

type responseSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// complete performs one chat completion pinned to a JSON schema and
// returns the raw message content.
func (c *Client) complete(ctx context.Context, operation, system string, user []contentPart, schemaName string, schema json.RawMessage) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []chatMessage{
			{Role: "system", Content: []contentPart{textPart(system)}},
			{Role: "user", Content: user},
		},
		"response_format": responseFormat{
			Type: "json_schema",
			JSONSchema: &responseSchema{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		},
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/chat/completions", payload, &response, operation)
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyVisionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choice list", operation)
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vision %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
