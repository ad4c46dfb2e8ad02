package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskmaster/internal/config"
)

// Sender is the transport contract the enrichment pipeline depends on.
// Send never fails: endpoint errors come back as sentinel text (see
// ErrorText) so callers always have something to degrade with.
type Sender interface {
	Send(ctx context.Context, req SendRequest) string
}

// SendRequest is one prompt for the model.
type SendRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// ErrorText wraps a failure reason in the sentinel format callers receive
// when every wire format has been exhausted.
func ErrorText(reason string) string {
	return fmt.Sprintf("[LLM Error: %s]", reason)
}

// IsErrorText reports whether s is transport sentinel text.
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, "[LLM Error:")
}

// wireFormat is one way of talking to the endpoint. Formats are tried in
// order; the first that yields text wins.
type wireFormat interface {
	Name() string
	Call(ctx context.Context, hc *http.Client, ep config.Endpoint, req SendRequest) (string, error)
}

// Client sends prompts to a configured model endpoint, hiding wire-format
// differences. It is stateless and safe for concurrent use.
type Client struct {
	endpoint config.Endpoint
	http     *http.Client
	formats  []wireFormat
	timeout  time.Duration
	logger   *zap.Logger
}

const defaultTimeout = 120 * time.Second

// NewClient builds a transport for one endpoint. The chat-completions format
// is primary with the generate format as fallback.
func NewClient(ep config.Endpoint, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := defaultTimeout
	if ep.TimeoutSeconds > 0 {
		timeout = time.Duration(ep.TimeoutSeconds) * time.Second
	}
	return &Client{
		endpoint: ep,
		http:     &http.Client{},
		formats:  []wireFormat{chatFormat{}, generateFormat{}},
		timeout:  timeout,
		logger:   logger,
	}
}

// Send tries each wire format in order, one outbound call per format, each
// with its own timeout. On exhaustion it returns sentinel error text.
func (c *Client) Send(ctx context.Context, req SendRequest) string {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrorText("empty prompt")
	}
	var lastErr error
	for _, f := range c.formats {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := f.Call(attemptCtx, c.http, c.endpoint, req)
		cancel()
		if err == nil {
			return text
		}
		lastErr = err
		c.logger.Warn("model call failed",
			zap.String("format", f.Name()),
			zap.String("model", c.endpoint.Model),
			zap.Error(err))
	}
	return ErrorText(lastErr.Error())
}

func postJSON(ctx context.Context, hc *http.Client, url, apiKey string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(data))
	}
	return data, nil
}

func truncateBody(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// chatFormat speaks the OpenAI-compatible chat-completions shape.
type chatFormat struct{}

func (chatFormat) Name() string { return "chat" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (chatFormat) Call(ctx context.Context, hc *http.Client, ep config.Endpoint, req SendRequest) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	payload := chatRequest{
		Model:       ep.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	data, err := postJSON(ctx, hc, strings.TrimRight(ep.BaseURL, "/")+"/v1/chat/completions", ep.APIKey, payload)
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat response")
	}
	return resp.Choices[0].Message.Content, nil
}

// generateFormat speaks the Ollama-style generate shape.
type generateFormat struct{}

func (generateFormat) Name() string { return "generate" }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (generateFormat) Call(ctx context.Context, hc *http.Client, ep config.Endpoint, req SendRequest) (string, error) {
	payload := generateRequest{
		Model:   ep.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: generateOptions{Temperature: req.Temperature},
	}
	data, err := postJSON(ctx, hc, strings.TrimRight(ep.BaseURL, "/")+"/api/generate", ep.APIKey, payload)
	if err != nil {
		return "", err
	}
	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal generate response: %w", err)
	}
	return resp.Response, nil
}
