// Package config loads the application configuration from YAML.
//
// String values may reference environment variables as ${VAR} or
// ${VAR:-default}. Variables from .env.local and .env in the working
// directory are loaded first and never override the process environment.
// Sections left empty fall back to Default, which describes the
// storyteller graph.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/core"
)

// Config is the root configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Tools         ToolsConfig         `yaml:"tools"`
	MCPServers    []MCPServerConfig   `yaml:"mcp_servers"`
	Entry         string              `yaml:"entry"`
	Agents        []AgentConfig       `yaml:"agents"`
	Edges         []EdgeConfig        `yaml:"edges"`
	Chat          ChatConfig          `yaml:"chat"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Output        OutputConfig        `yaml:"output"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai or anthropic
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
}

// OrchestrationConfig bounds runs.
type OrchestrationConfig struct {
	MaxDepth             int           `yaml:"max_depth"`
	Timeout              time.Duration `yaml:"timeout"`
	ReturnMode           string        `yaml:"return_mode"` // implicit or explicit
	ContentPolicyRetries int           `yaml:"content_policy_retries"`
	SystemPrompt         string        `yaml:"system_prompt"`
	MaxConcurrentRuns    int           `yaml:"max_concurrent_runs"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	Tavily    TavilyConfig    `yaml:"tavily"`
	Purchases PurchasesConfig `yaml:"purchases"`
	Scripts   ScriptsConfig   `yaml:"scripts"`
	Images    ImagesConfig    `yaml:"images"`
}

// TavilyConfig configures the Wookieepedia search.
type TavilyConfig struct {
	APIKey   string        `yaml:"api_key"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// PurchasesConfig configures the purchase database.
type PurchasesConfig struct {
	Path string `yaml:"path"`
	Seed bool   `yaml:"seed"`
}

// ScriptsConfig configures the script vector store.
type ScriptsConfig struct {
	Backend        string `yaml:"backend"` // memory, chromem or pinecone
	Path           string `yaml:"path"`
	Collection     string `yaml:"collection"`
	Dir            string `yaml:"dir"`
	EmbeddingModel string `yaml:"embedding_model"`
	PineconeAPIKey string `yaml:"pinecone_api_key"`
	IndexName      string `yaml:"index_name"`
	Namespace      string `yaml:"namespace"`
}

// ImagesConfig configures cover image generation.
type ImagesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// MCPServerConfig launches an external MCP tool server over stdio.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Filter  []string          `yaml:"filter"`
}

// AgentConfig declares one agent of the handoff graph.
type AgentConfig struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Instructions string     `yaml:"instructions"`
	Policy       string     `yaml:"policy"` // none, auto or required:<tool>
	Tools        []string   `yaml:"tools"`
	LLM          *LLMConfig `yaml:"llm,omitempty"`
}

// EdgeConfig declares a legal handoff.
type EdgeConfig struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Rationale string `yaml:"rationale"`
}

// ChatConfig configures the single agent chat mode.
type ChatConfig struct {
	Instructions string   `yaml:"instructions"`
	Tools        []string `yaml:"tools"`
}

// SessionsConfig selects the transcript store.
type SessionsConfig struct {
	Store string `yaml:"store"` // memory or sqlite
	Path  string `yaml:"path"`
}

// OutputConfig configures result publishing.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration at path. An empty path returns Default.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands environment references, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{}
	if len(root.Content) > 0 {
		expandNode(&root)
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies that would only
// surface at run time otherwise.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unsupported provider %q", c.LLM.Provider))
	}
	switch c.Orchestration.ReturnMode {
	case "implicit", "explicit":
	default:
		errs = append(errs, fmt.Errorf("orchestration.return_mode: must be implicit or explicit, got %q", c.Orchestration.ReturnMode))
	}
	switch c.Tools.Scripts.Backend {
	case "", "memory", "chromem", "pinecone":
	default:
		errs = append(errs, fmt.Errorf("tools.scripts.backend: unsupported backend %q", c.Tools.Scripts.Backend))
	}
	switch c.Sessions.Store {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("sessions.store: unsupported store %q", c.Sessions.Store))
	}

	names := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
			continue
		}
		if names[a.Name] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate agent %s", i, a.Name))
		}
		names[a.Name] = true
		if _, err := core.ParsePolicy(a.Policy); err != nil {
			errs = append(errs, fmt.Errorf("agents[%d].policy: %w", i, err))
		}
	}
	if !names[c.Entry] {
		errs = append(errs, fmt.Errorf("entry: unknown agent %q", c.Entry))
	}
	for i, e := range c.Edges {
		if !names[e.From] || !names[e.To] {
			errs = append(errs, fmt.Errorf("edges[%d]: %s -> %s references an unknown agent", i, e.From, e.To))
		}
	}
	for i, s := range c.MCPServers {
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("mcp_servers[%d]: command is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
