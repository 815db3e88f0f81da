package oracle

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/tatianab/overworld-agent/internal/config"
)

// Backend is an Oracle that holds resources until closed.
type Backend interface {
	Oracle
	io.Closer
}

var (
	_ Backend = (*Gemini)(nil)
	_ Backend = (*Chat)(nil)
)

// New builds the backend selected by cfg.Oracle.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Oracle {
	case config.OracleGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	case config.OracleOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger), nil
	case config.OracleLocal:
		return NewLocal(cfg.LocalBaseURL, cfg.LocalModel, logger), nil
	}
	return nil, fmt.Errorf("unknown oracle backend %q", cfg.Oracle)
}
