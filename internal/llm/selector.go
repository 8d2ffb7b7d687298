package llm

import (
	"fmt"

	"vrmchat/internal/config"
)

// GeminiSelectorBase splits the selector space: values below it resolve to
// OpenAI models, values at or above it to Gemini models.
const GeminiSelectorBase = 100

var openAIModels = map[int]string{
	1:  "gpt-3.5-turbo",
	10: "gpt-4",
	11: "gpt-4-turbo",
	12: "gpt-4.5-preview",
	20: "gpt-4o",
	21: "gpt-4o-mini",
}

var geminiModels = map[int]string{
	100: "gemini-1.5-flash-001",
	101: "gemini-1.5-pro-001",
	110: "gemini-1.5-flash-002",
	111: "gemini-1.5-pro-002",
	131: "gemini-2.0-flash-exp",
}

const (
	defaultOpenAIModel = "gpt-3.5-turbo"
	defaultGeminiModel = "gemini-1.5-flash"
)

// IsGeminiSelector reports which provider family a selector belongs to.
func IsGeminiSelector(selector int) bool {
	return selector >= GeminiSelectorBase
}

// ModelForSelector resolves a numeric selector to a concrete model name.
// Unknown selectors fall back to the family default.
func ModelForSelector(selector int) string {
	if IsGeminiSelector(selector) {
		if name, ok := geminiModels[selector]; ok {
			return name
		}
		return defaultGeminiModel
	}
	if name, ok := openAIModels[selector]; ok {
		return name
	}
	return defaultOpenAIModel
}

// Factory hands out the Client for a selector. Clients are constructed once
// and shared; they are safe for concurrent use.
type Factory struct {
	openai *OpenAIClient
	gemini *GeminiClient
}

func NewFactory(cfg config.LLMConfig) *Factory {
	return &Factory{
		openai: NewOpenAIClient(cfg.OpenAIAPIKey),
		gemini: NewGeminiClient(cfg.GcloudProject, cfg.GcloudLocation),
	}
}

// ClientFor returns the backend for the selector.
func (f *Factory) ClientFor(selector int) (Client, error) {
	if IsGeminiSelector(selector) {
		if f.gemini == nil {
			return nil, fmt.Errorf("gemini backend is not configured")
		}
		return f.gemini, nil
	}
	if f.openai == nil {
		return nil, fmt.Errorf("openai backend is not configured")
	}
	return f.openai, nil
}
