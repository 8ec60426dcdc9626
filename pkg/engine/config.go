package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent kinds.
const (
	KindConversation  = "conversation"
	KindRouter        = "router"
	KindProductSearch = "product-search"
	KindOrder         = "order"
	KindHelpdesk      = "helpdesk"
	KindWriter        = "writer"
	KindSequential    = "sequential"
)

var agentKinds = map[string]struct{}{
	KindConversation:  {},
	KindRouter:        {},
	KindProductSearch: {},
	KindOrder:         {},
	KindHelpdesk:      {},
	KindWriter:        {},
	KindSequential:    {},
}

// Config is the top-level engine configuration.
type Config struct {
	Providers  []ProviderConfig `yaml:"providers"`
	MCPServers []MCPConfig      `yaml:"mcp_servers"`
	Agents     []AgentConfig    `yaml:"agents"`
	EntryAgent string           `yaml:"entry_agent"`
	Server     ServerConfig     `yaml:"server"`
}

// RetryConfig controls retries of transient model failures.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries"` // Retries after the first attempt (default 2, negative disables).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
	MaxDelay   string `yaml:"max_delay"`   // Upper bound for one backoff.
	Timeout    string `yaml:"timeout"`     // Per-attempt timeout.
}

// ProviderConfig describes an LLM provider instance.
type ProviderConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	// BaseURL is the API root, or the resource endpoint for azure-openai.
	BaseURL     string      `yaml:"base_url"`
	APIKey      string      `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string      `yaml:"model"`
	Deployment  string      `yaml:"deployment"`  // azure-openai only; defaults to Model.
	APIVersion  string      `yaml:"api_version"` // azure-openai only.
	Temperature float64     `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
	// JSONMode requests JSON object responses for agents whose answer is
	// structured. Free-text agents of the same provider are unaffected.
	JSONMode bool        `yaml:"json_mode"`
	Retry    RetryConfig `yaml:"retry"`
}

// MCPConfig describes an MCP server to import tools from. Exactly one of
// Command and URL is set.
type MCPConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// RouterConfig holds router agent settings.
type RouterConfig struct {
	Preference         string `yaml:"preference"`
	ResolveNone        bool   `yaml:"resolve_none"`
	ProductSearchAgent string `yaml:"product_search_agent"`
	OrderAgent         string `yaml:"order_agent"`
	// Forward runs the chosen agent after routing.
	Forward bool `yaml:"forward"`
}

// AgentToolConfig exposes a previously declared agent as a tool.
type AgentToolConfig struct {
	Agent          string `yaml:"agent"`
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	ArgName        string `yaml:"arg_name"`
	ArgDescription string `yaml:"arg_description"`
}

// AgentConfig describes an agent to register.
type AgentConfig struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"` // Defaults to conversation.
	Description  string `yaml:"description"`
	Instructions string `yaml:"instructions"`
	Provider     string `yaml:"provider"` // Defaults to the first provider.
	// Toolboxes are MCP server names or built-in toolboxes (order, hr).
	Toolboxes     []string          `yaml:"toolboxes"`
	AgentTools    []AgentToolConfig `yaml:"agent_tools"`
	Steps         []string          `yaml:"steps"` // sequential only.
	MaxTurns      int               `yaml:"max_turns"`
	ParallelTools bool              `yaml:"parallel_tools"`
	JSONOutput    bool              `yaml:"json_output"` // conversation only: require a JSON answer.
	Router        RouterConfig      `yaml:"router"`
}

// ServerConfig holds HTTP host settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	RequestTimeout  string `yaml:"request_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so API keys can live in the environment (or a .env file)
// rather than in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig expands environment references in data and parses it.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	return c.validate(nil)
}

// validate is Validate with additional toolbox names agents may reference.
func (c Config) validate(extraToolboxes []string) error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("engine: config: at least one provider is required")
	}

	providerNames := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("engine: config: provider name is required")
		}
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
		if _, ok := getFactory(p.Kind); !ok {
			return fmt.Errorf("engine: config: provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if _, dup := providerNames[p.Name]; dup {
			return fmt.Errorf("engine: config: duplicate provider name %q", p.Name)
		}
		for field, d := range map[string]string{
			"base_delay": p.Retry.BaseDelay,
			"max_delay":  p.Retry.MaxDelay,
			"timeout":    p.Retry.Timeout,
		} {
			if _, err := parseDuration(d); err != nil {
				return fmt.Errorf("engine: config: provider %q: invalid %s %q: %w", p.Name, field, d, err)
			}
		}
		providerNames[p.Name] = struct{}{}
	}

	toolboxNames := make(map[string]struct{}, len(c.MCPServers)+len(builtinToolboxNames))
	for name := range builtinToolboxNames {
		toolboxNames[name] = struct{}{}
	}
	for _, name := range extraToolboxes {
		toolboxNames[name] = struct{}{}
	}

	for _, m := range c.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mcp server name is required")
		}
		if (m.Command == "") == (m.URL == "") {
			return fmt.Errorf("engine: config: mcp server %q: exactly one of command and url is required", m.Name)
		}
		if _, dup := toolboxNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate toolbox name %q", m.Name)
		}
		toolboxNames[m.Name] = struct{}{}
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("engine: config: at least one agent is required")
	}

	agentNames := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if err := a.validate(providerNames, toolboxNames, agentNames); err != nil {
			return err
		}
		agentNames[a.Name] = struct{}{}
	}

	if c.EntryAgent != "" {
		if _, ok := agentNames[c.EntryAgent]; !ok {
			return fmt.Errorf("engine: config: entry_agent %q not found in agents", c.EntryAgent)
		}
	}

	for field, d := range map[string]string{
		"request_timeout":  c.Server.RequestTimeout,
		"shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("engine: config: server: invalid %s %q: %w", field, d, err)
		}
	}

	return nil
}

// validate checks one agent. earlier holds the agents declared before it,
// which are the only ones it may reference as steps or tools.
func (a AgentConfig) validate(providers, toolboxes, earlier map[string]struct{}) error {
	if a.Name == "" {
		return fmt.Errorf("engine: config: agent name is required")
	}
	if _, dup := earlier[a.Name]; dup {
		return fmt.Errorf("engine: config: duplicate agent name %q", a.Name)
	}
	if _, ok := agentKinds[a.kind()]; !ok {
		return fmt.Errorf("engine: config: agent %q: unknown kind %q", a.Name, a.Kind)
	}
	if _, ok := providers[a.Provider]; a.Provider != "" && !ok {
		return fmt.Errorf("engine: config: agent %q: unknown provider %q", a.Name, a.Provider)
	}
	if a.MaxTurns < 0 {
		return fmt.Errorf("engine: config: agent %q: max_turns must not be negative", a.Name)
	}

	for _, tb := range a.Toolboxes {
		if _, ok := toolboxes[tb]; !ok {
			return fmt.Errorf("engine: config: agent %q: unknown toolbox %q", a.Name, tb)
		}
	}

	for _, at := range a.AgentTools {
		if _, ok := earlier[at.Agent]; !ok {
			return fmt.Errorf("engine: config: agent %q: agent tool %q must name an agent declared before it", a.Name, at.Agent)
		}
	}

	if a.kind() == KindSequential {
		if len(a.Steps) == 0 {
			return fmt.Errorf("engine: config: agent %q: sequential agent needs steps", a.Name)
		}
		for _, s := range a.Steps {
			if _, ok := earlier[s]; !ok {
				return fmt.Errorf("engine: config: agent %q: step %q must name an agent declared before it", a.Name, s)
			}
		}
	}

	if a.kind() == KindRouter {
		switch a.Router.Preference {
		case "", "product-search", "order-agent":
		default:
			return fmt.Errorf("engine: config: agent %q: invalid router preference %q", a.Name, a.Router.Preference)
		}
	}

	return nil
}

func (a AgentConfig) kind() string {
	if a.Kind == "" {
		return KindConversation
	}
	return a.Kind
}

// parseDuration parses d, treating the empty string as zero.
func parseDuration(d string) (time.Duration, error) {
	if d == "" {
		return 0, nil
	}
	return time.ParseDuration(d)
}

// Timeouts returns the parsed request and shutdown timeouts. Unset values
// are zero.
func (s ServerConfig) Timeouts() (request, shutdown time.Duration, err error) {
	if request, err = parseDuration(s.RequestTimeout); err != nil {
		return 0, 0, fmt.Errorf("engine: server: request_timeout: %w", err)
	}
	if shutdown, err = parseDuration(s.ShutdownTimeout); err != nil {
		return 0, 0, fmt.Errorf("engine: server: shutdown_timeout: %w", err)
	}
	return request, shutdown, nil
}
