package llm

import (
	"context"
	"fmt"

	"github.com/dgallion1/deckgen/internal/config"
)

// NewFromConfig builds the completion client for the configured provider.
// The returned func releases the client and is never nil on success.
func NewFromConfig(ctx context.Context, cfg config.Config) (Streamer, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case config.ProviderClaude:
		c := NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
