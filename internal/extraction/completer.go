package extraction

import (
	"context"
	"fmt"

	"procurement/internal/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer - единственная внешняя зависимость адаптера: текст запроса -> текст ответа модели.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LangChainCompleter вызывает любую llms.Model из langchaingo
type LangChainCompleter struct {
	model       llms.Model
	temperature float64
}

func NewLangChainCompleter(model llms.Model, temperature float64) *LangChainCompleter {
	return &LangChainCompleter{model: model, temperature: temperature}
}

// NewOpenAICompleter собирает клиент OpenAI (или совместимого API при заданном base_url)
func NewOpenAICompleter(cfg config.LLMConfig) (*LangChainCompleter, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewLangChainCompleter(llm, cfg.Temperature), nil
}

func (c *LangChainCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
}
