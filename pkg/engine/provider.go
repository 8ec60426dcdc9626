package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/providers/openai"
)

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["azure-openai"] = newAzureOpenAI
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	a := openai.New(baseURL, cfg.APIKey, cfg.Model)
	applyModelSettings(a, cfg)

	return a, nil
}

func newAzureOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = cfg.Model
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url (resource endpoint) is required")
	}
	if deployment == "" {
		return nil, fmt.Errorf("deployment is required")
	}

	a := openai.NewAzure(cfg.BaseURL, cfg.APIKey, deployment, cfg.APIVersion)
	applyModelSettings(a, cfg)

	return a, nil
}

func applyModelSettings(a *openai.Adapter, cfg ProviderConfig) {
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}
	a.JSONMode = cfg.JSONMode
}

// buildCompleter creates a Completer from a ProviderConfig using the registered
// factory for its Kind, wrapped with a RetryCompleter.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	opts := modeladapter.RetryOpts{MaxRetries: cfg.Retry.MaxRetries}
	for _, d := range []struct {
		field string
		value string
		dest  *time.Duration
	}{
		{"base_delay", cfg.Retry.BaseDelay, &opts.BaseDelay},
		{"max_delay", cfg.Retry.MaxDelay, &opts.MaxDelay},
		{"timeout", cfg.Retry.Timeout, &opts.Timeout},
	} {
		v, err := parseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.field, d.value, err)
		}
		*d.dest = v
	}

	return modeladapter.NewRetryCompleter(c, opts), nil
}
