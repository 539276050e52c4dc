package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// wizardProviders lists the providers offered in the setup wizard, in the
// same preference order runServe's provider registry falls back through.
var wizardProviders = []string{
	"anthropic", "openai", "openrouter", "groq", "gemini",
	"deepseek", "mistral", "xai", "minimax", "cohere", "perplexity",
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run setup: pick a provider, enter its API key, choose a workspace",
		Run: func(cmd *cobra.Command, args []string) {
			runWizard()
		},
	}
}

// runWizard walks the operator through the one-time config.json needed
// before `goclaw serve` can start: a provider, its API key, and a workspace
// directory. It never touches the owner claim itself — that happens on
// first login via POST /api/setup/bootstrap, not here.
func runWizard() {
	path := resolveConfigPath()
	cfg := config.Default()
	if existing, err := config.Load(path); err == nil {
		cfg = existing
	}

	var provider string
	var apiKey string
	workspace := cfg.Agents.Defaults.Workspace

	options := make([]huh.Option[string], len(wizardProviders))
	for i, name := range wizardProviders {
		options[i] = huh.NewOption(name, name)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which model provider should goclaw use?").
				Options(options...).
				Value(&provider),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("an API key is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Workspace directory").
				Value(&workspace),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "setup cancelled:", err)
		os.Exit(1)
	}

	setProviderKey(cfg, provider, apiKey)
	cfg.Agents.Defaults.Workspace = workspace
	if cfg.Agents.Defaults.Provider == "" {
		cfg.Agents.Defaults.Provider = provider
	}

	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to save config:", err)
		os.Exit(1)
	}
	fmt.Printf("Saved %s. Run `goclaw serve`, then open the setup link it logs to claim ownership.\n", path)
}

// setProviderKey writes apiKey into cfg.Providers' field matching name.
func setProviderKey(cfg *config.Config, name, apiKey string) {
	pc := config.ProviderConfig{APIKey: apiKey}
	switch name {
	case "anthropic":
		cfg.Providers.Anthropic = pc
	case "openai":
		cfg.Providers.OpenAI = pc
	case "openrouter":
		cfg.Providers.OpenRouter = pc
	case "groq":
		cfg.Providers.Groq = pc
	case "gemini":
		cfg.Providers.Gemini = pc
	case "deepseek":
		cfg.Providers.DeepSeek = pc
	case "mistral":
		cfg.Providers.Mistral = pc
	case "xai":
		cfg.Providers.XAI = pc
	case "minimax":
		cfg.Providers.MiniMax = pc
	case "cohere":
		cfg.Providers.Cohere = pc
	case "perplexity":
		cfg.Providers.Perplexity = pc
	}
}
