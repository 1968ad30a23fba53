package pipeline

import (
	"fmt"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/model/gemini"
	"github.com/kadirpekel/scout/pkg/model/openai"
)

// NewModel builds the configured provider's model.
func NewModel(cfg config.LLMConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(gemini.Config{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
	case config.ProviderOpenAI:
		client, err := openai.New(openai.Config{
			APIKey:      cfg.OpenAIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "":
		return nil, fmt.Errorf("no LLM provider configured: set GOOGLE_API_KEY or OPENAI_KEY")
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
