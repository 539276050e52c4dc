package providers

import "fmt"

// openAICompatDefaults holds the OpenAI-compatible endpoint and fallback
// model for every provider built through NewOpenAIProvider.
var openAICompatDefaults = map[string]struct {
	apiBase string
	model   string
}{
	"openai":     {"https://api.openai.com/v1", "gpt-4o"},
	"openrouter": {"https://openrouter.ai/api/v1", "anthropic/claude-sonnet-4.5"},
	"groq":       {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile"},
	"gemini":     {"https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash"},
	"deepseek":   {"https://api.deepseek.com/v1", "deepseek-chat"},
	"mistral":    {"https://api.mistral.ai/v1", "mistral-large-latest"},
	"xai":        {"https://api.x.ai/v1", "grok-2-latest"},
	"minimax":    {"https://api.minimax.io/v1", "abab6.5s-chat"},
	"cohere":     {"https://api.cohere.ai/compatibility/v1", "command-r-plus"},
	"perplexity": {"https://api.perplexity.ai", "sonar"},
}

// ProviderConfig is the subset of a single provider's settings the registry
// needs to construct a client. Matches internal/config.ProviderConfig.
type ProviderConfig struct {
	APIKey  string
	APIBase string
}

// Registry holds every configured LLM provider, looked up by name.
type Registry struct {
	providers map[string]Provider
	order     []string // first-configured-wins order, used to pick a default
}

// NewRegistry builds a Registry from a name→config map. Only providers with
// a non-empty APIKey are instantiated; dashscope and anthropic get their
// dedicated clients, every other name is treated as OpenAI-compatible.
func NewRegistry(configs map[string]ProviderConfig) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, name := range []string{"anthropic", "openai", "openrouter", "groq", "gemini", "deepseek", "mistral", "xai", "minimax", "cohere", "perplexity", "dashscope"} {
		cfg, ok := configs[name]
		if !ok || cfg.APIKey == "" {
			continue
		}
		r.providers[name] = buildProvider(name, cfg)
		r.order = append(r.order, name)
	}
	return r
}

func buildProvider(name string, cfg ProviderConfig) Provider {
	switch name {
	case "anthropic":
		opts := []AnthropicOption{}
		if cfg.APIBase != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.APIBase))
		}
		return NewAnthropicProvider(cfg.APIKey, opts...)
	case "dashscope":
		return NewDashScopeProvider(cfg.APIKey, cfg.APIBase, "")
	default:
		d := openAICompatDefaults[name]
		apiBase := cfg.APIBase
		if apiBase == "" {
			apiBase = d.apiBase
		}
		return NewOpenAIProvider(name, cfg.APIKey, apiBase, d.model)
	}
}

// Get returns the named provider, or an error if it was never configured.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// Default returns the first provider configured, in registry-build order.
// Used when neither an agent config nor a request specifies a provider.
func (r *Registry) Default() (Provider, error) {
	if len(r.order) == 0 {
		return nil, fmt.Errorf("no provider configured")
	}
	return r.providers[r.order[0]], nil
}

// Names returns every configured provider name, in registry-build order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
