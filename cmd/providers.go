package cmd

import (
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// providerConfigs flattens cfg.Providers into the name-keyed map
// providers.NewRegistry expects, dropping any provider with no API key.
func providerConfigs(cfg *config.Config) map[string]providers.ProviderConfig {
	named := map[string]config.ProviderConfig{
		"anthropic":  cfg.Providers.Anthropic,
		"openai":     cfg.Providers.OpenAI,
		"openrouter": cfg.Providers.OpenRouter,
		"groq":       cfg.Providers.Groq,
		"gemini":     cfg.Providers.Gemini,
		"deepseek":   cfg.Providers.DeepSeek,
		"mistral":    cfg.Providers.Mistral,
		"xai":        cfg.Providers.XAI,
		"minimax":    cfg.Providers.MiniMax,
		"cohere":     cfg.Providers.Cohere,
		"perplexity": cfg.Providers.Perplexity,
	}
	out := make(map[string]providers.ProviderConfig, len(named))
	for name, pc := range named {
		if pc.APIKey == "" {
			continue
		}
		out[name] = providers.ProviderConfig{APIKey: pc.APIKey, APIBase: pc.APIBase}
	}
	return out
}
