package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultKimiBaseURL = "https://api.moonshot.cn/v1"
	defaultKimiModel   = "kimi-k2.5"
	kimiTemperature    = 0.95
	kimiMaxTokens      = 2048
)

// KimiConfig configures the Moonshot chat-completions endpoint.
type KimiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Kimi is the fallback provider: an OpenAI-compatible chat completions
// client for Moonshot.
type Kimi struct {
	cfg KimiConfig
}

// NewKimi builds the Moonshot client.
func NewKimi(cfg KimiConfig) *Kimi {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultKimiBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultKimiModel
	}
	return &Kimi{cfg: cfg}
}

func (k *Kimi) Name() string { return "kimi" }

type kimiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type kimiRequest struct {
	Model          string        `json:"model"`
	Messages       []kimiMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type kimiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (k *Kimi) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]kimiMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, kimiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.History {
		messages = append(messages, kimiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, kimiMessage{Role: "user", Content: req.Input})

	payload := kimiRequest{
		Model:       k.cfg.Model,
		Messages:    messages,
		Temperature: kimiTemperature,
		MaxTokens:   kimiMaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("kimi: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kimi: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := k.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode >= 500 {
		return "", &TransportError{Err: fmt.Errorf("kimi: status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kimi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed kimiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("kimi: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("kimi: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (k *Kimi) Available(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, k.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.cfg.APIKey)

	resp, err := k.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
