// Package agentrelay wires the orchestration engine to its configuration.
// Most applications interact with this package by:
//  1. Loading a config.Config (config.Load) or starting from config.Default
//  2. Creating an App via New, which builds the completion models, the tool
//     catalog (built-in toolbox plus MCP servers), the handoff graph, the
//     engine and a runner persisting transcripts
//  3. Calling Story for the storyteller flow or Chat for conversational turns
//
// Every component can also be assembled by hand from the engine, handoff,
// agent and tool packages; App only removes the boilerplate.
package agentrelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/artifact"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/model"
	anthropicmodel "github.com/hupe1980/agentrelay/model/anthropic"
	openaimodel "github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/tool/mcptool"
	"github.com/hupe1980/agentrelay/toolbox"
)

// ChatAgent is the name of the single agent answering in chat mode.
const ChatAgent = "StarWarsCopilot"

// Options configures App construction.
type Options struct {
	// Model replaces the configured completion provider for every agent,
	// for example with a model.ScriptedModel.
	Model model.Model
	// Providers are registered in addition to the toolbox and MCP servers.
	Providers []tool.Provider
	// Callbacks are passed to the engines.
	Callbacks []engine.Callback
	// Logger overrides the logger built from the logging section.
	Logger logging.Logger
}

// App is a fully wired relay.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Catalog   *tool.Catalog
	Toolbox   *toolbox.Toolbox
	Engine    *engine.Engine
	Runner    *runner.Runner
	Publisher *artifact.Publisher

	opts    Options
	llm     model.Model
	store   session.Store
	chat    *runner.Runner
	closers []func() error
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger := opts.Logger
	if logger == nil {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logger = logging.NewSlogLogger(level, cfg.Logging.Format, false)
	}

	app := &App{Config: cfg, Logger: logger, opts: opts}
	if err := app.build(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	a.llm = a.opts.Model
	if a.llm == nil {
		llm, err := NewModel(cfg.LLM)
		if err != nil {
			return err
		}
		a.llm = llm
	}

	tb, err := OpenToolbox(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Toolbox = tb
	a.closers = append(a.closers, tb.Close)

	providers := []tool.Provider{tb.Provider()}
	for _, s := range cfg.MCPServers {
		p, err := mcptool.New(mcptool.Config{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			Filter:  s.Filter,
			Logger:  a.Logger,
		})
		if err != nil {
			return err
		}
		providers = append(providers, p)
		a.closers = append(a.closers, p.Close)
	}
	providers = append(providers, a.opts.Providers...)

	a.Catalog = tool.NewCatalog(func(o *tool.CatalogOptions) { o.Logger = a.Logger })
	if err := a.Catalog.RegisterAll(ctx, providers...); err != nil {
		return err
	}

	graph, err := a.buildGraph()
	if err != nil {
		return err
	}

	a.Engine, err = engine.New(graph, a.Catalog, a.engineOptions)
	if err != nil {
		return err
	}

	a.store, err = a.sessionStore()
	if err != nil {
		return err
	}
	a.Runner = runner.New(a.Engine, a.runnerOptions)

	out, err := artifact.NewFileStore(cfg.Output.Dir)
	if err != nil {
		return err
	}
	a.Publisher = artifact.NewPublisher(out, func(o *artifact.PublisherOptions) { o.Logger = a.Logger })
	return nil
}

func (a *App) engineOptions(o *engine.Options) {
	oc := a.Config.Orchestration
	o.MaxDepth = oc.MaxDepth
	o.Timeout = oc.Timeout
	o.MaxContentPolicyRetries = oc.ContentPolicyRetries
	if oc.SystemPrompt != "" {
		o.SystemPrompt = oc.SystemPrompt
	}
	if oc.ReturnMode == "explicit" {
		o.ReturnMode = engine.ReturnExplicit
	}
	o.Callbacks = a.opts.Callbacks
	o.Logger = a.Logger
}

func (a *App) runnerOptions(o *runner.Options) {
	o.MaxConcurrentRuns = a.Config.Orchestration.MaxConcurrentRuns
	o.Store = a.store
	o.Logger = a.Logger
}

func (a *App) buildGraph() (*handoff.Graph, error) {
	g := handoff.New(a.Config.Entry)
	for _, ac := range a.Config.Agents {
		ag, err := a.buildAgent(ac)
		if err != nil {
			return nil, err
		}
		if err := g.AddAgent(ag); err != nil {
			return nil, err
		}
	}
	for _, e := range a.Config.Edges {
		if err := g.AddEdge(e.From, e.To, e.Rationale); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (a *App) buildAgent(ac config.AgentConfig) (*agent.Agent, error) {
	policy, err := core.ParsePolicy(ac.Policy)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	llm := a.llm
	if ac.LLM != nil && a.opts.Model == nil {
		override := *ac.LLM
		if override.Provider == "" {
			override.Provider = a.Config.LLM.Provider
		}
		if override.APIKey == "" {
			override.APIKey = a.Config.LLM.APIKey
		}
		if llm, err = NewModel(override); err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
		}
	}

	instruction, err := agent.ParseInstruction(ac.Instructions)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", ac.Name, err)
	}

	return agent.New(ac.Name, llm, a.Catalog, func(o *agent.Options) {
		o.Description = ac.Description
		if !instruction.IsZero() {
			o.Instruction = instruction
		}
		o.Policy = policy
		o.Tools = ac.Tools
		o.Logger = a.Logger
	})
}

// OpenToolbox opens the built-in tools configured in cfg. Closing the
// toolbox also closes the script store.
func OpenToolbox(ctx context.Context, cfg *config.Config, logger logging.Logger) (*toolbox.Toolbox, error) {
	scripts, err := NewScriptStore(cfg)
	if err != nil {
		return nil, err
	}
	return toolbox.Open(ctx, func(o *toolbox.Options) {
		o.TavilyAPIKey = cfg.Tools.Tavily.APIKey
		o.SearchCacheTTL = cfg.Tools.Tavily.CacheTTL
		o.PurchasesDB = cfg.Tools.Purchases.Path
		o.SeedPurchases = cfg.Tools.Purchases.Seed
		o.Scripts = scripts
		o.Images = cfg.Tools.Images.Enabled
		o.ImageModel = cfg.Tools.Images.Model
		o.OpenAIAPIKey = cfg.Tools.Images.APIKey
		o.OpenAIBaseURL = cfg.Tools.Images.BaseURL
		o.Logger = logger
	})
}

// NewScriptStore creates the vector store holding the movie scripts. It
// returns nil when no backend is configured. Remote backends embed with the
// OpenAI embeddings API.
func NewScriptStore(cfg *config.Config) (memory.Store, error) {
	sc := cfg.Tools.Scripts
	embedder := func() memory.Embedder {
		return memory.NewOpenAIEmbedder(func(o *memory.OpenAIEmbedderOptions) {
			if sc.EmbeddingModel != "" {
				o.Model = sc.EmbeddingModel
			}
			if cfg.LLM.Provider == "openai" {
				o.APIKey = cfg.LLM.APIKey
				o.BaseURL = cfg.LLM.BaseURL
			}
		})
	}

	switch sc.Backend {
	case "":
		return nil, nil
	case "memory":
		return memory.NewInMemoryStore(), nil
	case "chromem":
		return memory.NewChromemStore(embedder(), func(o *memory.ChromemOptions) {
			o.Collection = sc.Collection
			o.Path = sc.Path
		})
	case "pinecone":
		return memory.NewPineconeStore(embedder(), func(o *memory.PineconeOptions) {
			o.APIKey = sc.PineconeAPIKey
			o.IndexName = sc.IndexName
			o.Namespace = sc.Namespace
		})
	default:
		return nil, fmt.Errorf("unsupported script store %q", sc.Backend)
	}
}

func (a *App) sessionStore() (session.Store, error) {
	if a.Config.Sessions.Store != "sqlite" {
		return session.NewInMemoryStore(), nil
	}
	s, err := session.OpenSQLite(a.Config.Sessions.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// Story runs the storyteller graph for a customer and publishes the result
// into the output directory.
func (a *App) Story(ctx context.Context, customer string) (*engine.Run, artifact.Publication, error) {
	run, err := a.Runner.Run(ctx, runner.Request{Input: customer})
	if err != nil {
		return run, artifact.Publication{}, err
	}
	pub, err := a.Publisher.Publish(ctx, *run.Result)
	return run, pub, err
}

// ChatRunner returns a runner for single agent conversations. The agent
// uses the Auto policy over the chat tools (every catalog tool unless
// configured) and any answer ends a turn. Runs continue their session.
func (a *App) ChatRunner() (*runner.Runner, error) {
	if a.chat != nil {
		return a.chat, nil
	}

	tools := a.Config.Chat.Tools
	if len(tools) == 0 {
		tools = a.Catalog.Names()
	}
	ag, err := agent.New(ChatAgent, a.llm, a.Catalog, func(o *agent.Options) {
		o.Description = "Answers questions about Star Wars."
		o.Instruction = agent.NewInstructionFromText(a.Config.Chat.Instructions)
		o.Policy = core.Auto()
		o.Tools = tools
		o.Logger = a.Logger
	})
	if err != nil {
		return nil, err
	}
	g := handoff.New(ChatAgent)
	if err := g.AddAgent(ag); err != nil {
		return nil, err
	}
	e, err := engine.New(g, a.Catalog, func(o *engine.Options) {
		a.engineOptions(o)
		o.Completion = engine.AcceptText
	})
	if err != nil {
		return nil, err
	}
	a.chat = runner.New(e, a.runnerOptions)
	return a.chat, nil
}

// Chat answers one user turn of sessionID.
func (a *App) Chat(ctx context.Context, sessionID, input string) (string, error) {
	r, err := a.ChatRunner()
	if err != nil {
		return "", err
	}
	run, err := r.Run(ctx, runner.Request{SessionID: sessionID, Input: input, Continue: true})
	if err != nil {
		return "", err
	}
	return run.Result.Body, nil
}

// Close releases every resource opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewModel creates the completion model described by cfg.
func NewModel(cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
