package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig configures the OpenAI-compatible HTTP provider.
type HTTPConfig struct {
	Name    string        `mapstructure:"name"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Models  []string      `mapstructure:"models"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPProvider talks to any chat-completions compatible endpoint.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPProvider creates a provider for an OpenAI-compatible API.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Name == "" {
		cfg.Name = "openai-compatible"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the configured provider name.
func (p *HTTPProvider) Name() string { return p.cfg.Name }

// Models returns the configured model list.
func (p *HTTPProvider) Models() []string { return p.cfg.Models }

type wireChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *Usage       `json:"usage"`
	Error   *wireError   `json:"error"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Chat sends a chat completion request.
func (p *HTTPProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, NewProviderError(ErrCodeNetworkError, fmt.Sprintf("read response: %v", err), p.cfg.Name, true)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyHTTPError(resp, data)
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewProviderError(ErrCodeUnknown, fmt.Sprintf("decode response: %v", err), p.cfg.Name, false)
	}
	if wire.Error != nil {
		return nil, p.classifyAPIError(resp.StatusCode, wire.Error)
	}
	if len(wire.Choices) == 0 {
		return nil, NewProviderError(ErrCodeServiceUnavailable, "empty choices in response", p.cfg.Name, true)
	}

	return &ChatResponse{
		Content:      wire.Choices[0].Message.Content,
		Usage:        wire.Usage,
		FinishReason: wire.Choices[0].FinishReason,
	}, nil
}

func (p *HTTPProvider) classifyTransportError(err error) *ProviderError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(ErrCodeTimeout, err.Error(), p.cfg.Name, true)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrCodeTimeout, err.Error(), p.cfg.Name, true)
	}
	return NewProviderError(ErrCodeNetworkError, err.Error(), p.cfg.Name, true)
}

func (p *HTTPProvider) classifyHTTPError(resp *http.Response, body []byte) *ProviderError {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != nil {
		return p.classifyAPIError(resp.StatusCode, wire.Error)
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewProviderError(ErrCodeAuthFailed, msg, p.cfg.Name, false)
	case http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			retryAfter, _ = strconv.Atoi(v)
		}
		return NewProviderErrorWithRetryAfter(ErrCodeRateLimited, msg, p.cfg.Name, retryAfter)
	case http.StatusNotFound:
		return NewProviderError(ErrCodeModelNotFound, msg, p.cfg.Name, false)
	case http.StatusBadRequest:
		if isContextLengthBody(msg) {
			return NewProviderError(ErrCodeContextWindowExceeded, msg, p.cfg.Name, false)
		}
		return NewProviderError(ErrCodeInvalidRequest, msg, p.cfg.Name, false)
	default:
		if resp.StatusCode >= 500 {
			return NewProviderError(ErrCodeServiceUnavailable, msg, p.cfg.Name, true)
		}
		return NewProviderError(ErrCodeUnknown, msg, p.cfg.Name, false)
	}
}

func (p *HTTPProvider) classifyAPIError(status int, we *wireError) *ProviderError {
	code := ""
	if s, ok := we.Code.(string); ok {
		code = s
	}
	if code == "context_length_exceeded" || isContextLengthBody(we.Message) || isContextLengthBody(we.Type) {
		return NewProviderError(ErrCodeContextWindowExceeded, we.Message, p.cfg.Name, false)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrCodeRateLimited, we.Message, p.cfg.Name, false)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrCodeAuthFailed, we.Message, p.cfg.Name, false)
	case status >= 500:
		return NewProviderError(ErrCodeServiceUnavailable, we.Message, p.cfg.Name, true)
	default:
		return NewProviderError(ErrCodeInvalidRequest, we.Message, p.cfg.Name, false)
	}
}

// isContextLengthBody checks an error payload for context-limit markers.
func isContextLengthBody(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "context_length_exceeded") ||
		strings.Contains(l, "context length") ||
		strings.Contains(l, "context window") ||
		strings.Contains(l, "maximum context") ||
		strings.Contains(l, "too many tokens")
}
