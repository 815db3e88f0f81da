package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultLocalBaseURL  = "http://localhost:11434/v1"
	DefaultLocalModel    = "llama3.1"
)

// Chat talks to an OpenAI-compatible chat completions endpoint. It serves
// both the alternate hosted backend and local servers.
type Chat struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// NewOpenAI returns the alternate hosted backend.
func NewOpenAI(apiKey, baseURL, model string, logger *zap.Logger) *Chat {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return newChat("openai", apiKey, baseURL, model, logger)
}

// NewLocal returns a backend for a locally hosted model. No API key is sent.
func NewLocal(baseURL, model string, logger *zap.Logger) *Chat {
	if baseURL == "" {
		baseURL = DefaultLocalBaseURL
	}
	if model == "" {
		model = DefaultLocalModel
	}
	return newChat("local", "", baseURL, model, logger)
}

func newChat(name, apiKey, baseURL, model string, logger *zap.Logger) *Chat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chat{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Chat) Propose(ctx context.Context, req Request) (Proposal, error) {
	prompt, err := RenderPrompt(req)
	if err != nil {
		return Proposal{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Proposal{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Proposal{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Proposal{}, classify(ctx, c.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Proposal{}, classify(ctx, c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Proposal{}, fmt.Errorf("%s: %w: status %d", c.name, ErrUnavailable, resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Proposal{}, fmt.Errorf("%s: %w: %v", c.name, ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return Proposal{}, fmt.Errorf("%s: %w: no choices returned", c.name, ErrMalformedResponse)
	}

	content := out.Choices[0].Message.Content
	c.logger.Debug("chat reply", zap.String("backend", c.name), zap.String("text", content))
	return ParseProposal(content)
}

func (c *Chat) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
