package engine

import "os"

// DefaultConfig is the shop deployment: an intent router in front of the
// product search and order agents, plus the help desk orchestrator and the
// writer/reviewer workflow, all on one Azure OpenAI deployment read from
// AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and
// AZURE_AI_MODEL_DEPLOYMENT_NAME.
func DefaultConfig() Config {
	return Config{
		Providers: []ProviderConfig{{
			Name:       "azure",
			Kind:       "azure-openai",
			BaseURL:    os.Getenv("AZURE_OPENAI_ENDPOINT"),
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Deployment: os.Getenv("AZURE_AI_MODEL_DEPLOYMENT_NAME"),
			Retry:      RetryConfig{MaxRetries: 2, Timeout: "60s"},
		}},
		Agents: []AgentConfig{
			{
				Name: "order-orchestrator",
				Kind: KindRouter,
				Router: RouterConfig{
					Preference: "product-search",
					Forward:    true,
				},
			},
			{Name: "product-search", Kind: KindProductSearch},
			{Name: "order-agent", Kind: KindOrder},
			{Name: "helpdesk", Kind: KindHelpdesk},
			{Name: "writer-reviewer", Kind: KindWriter},
		},
		EntryAgent: "order-orchestrator",
		Server: ServerConfig{
			Addr:            ":8088",
			RequestTimeout:  "2m",
			ShutdownTimeout: "10s",
		},
	}
}
