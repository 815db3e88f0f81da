package oracle

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is the primary hosted backend.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Gemini, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0.2)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &Gemini{
		client: client,
		model:  m,
		logger: logger,
	}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Propose(ctx context.Context, req Request) (Proposal, error) {
	prompt, err := RenderPrompt(req)
	if err != nil {
		return Proposal{}, err
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Proposal{}, classify(ctx, "gemini", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Proposal{}, fmt.Errorf("%w: no content returned from Gemini", ErrMalformedResponse)
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return Proposal{}, fmt.Errorf("%w: unexpected response type from Gemini", ErrMalformedResponse)
	}

	g.logger.Debug("gemini reply", zap.String("text", string(text)))
	return ParseProposal(string(text))
}
