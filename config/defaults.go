package config

import (
	"time"
)

// Agent names of the storyteller graph.
const (
	SupervisorAgent          = "SupervisorAgent"
	PurchaseDetailsAgent     = "PurchaseDetailsAgent"
	WookiepediaResearchAgent = "WookiepediaResearchAgent"
	ImageGenerationAgent     = "ImageGenerationAgent"
)

const supervisorInstructions = `You are an agent designed to supervise the creation of a custom Star Wars story for a store customer who has purchased figurines from our store.

When given a customer name, you will retrieve the list of figurines they purchased and use that information to create a personalized story with artwork.
To research the characters and lore of the purchased figurines, and to generate the story, you can use other agents as necessary.

When you have generated the story and image you will return the text of the story. It is important that you generate an image URL that is relevant to the story, as this will be used to create a visual representation of the story.

The story should:
- Be at least 2000 words long
- Include detail, dialogue, and action to make the story engaging
- Have a beginning, middle, and end, and be written in a style that is consistent with the Star Wars universe

Return the result as a JSON object in the following format:
{
    "title": "A Star Wars Adventure",
    "story": "Once upon a time in a galaxy far, far away...",
    "imageUrl": "https://example.com/image.png"
}`

const purchaseInstructions = `You are an agent designed to retrieve the purchase details for a specific customer.

When given a customer name, you will retrieve the list of figurines they purchased.`

const wookiepediaInstructions = `You are an agent designed to retrieve information from Wookiepedia about Star Wars characters.

When given a character name you will search Wookiepedia and return relevant information.`

const imageInstructions = `You are an agent designed to generate an image based on a set of Star Wars characters.

When given a set of figurines of Star Wars characters, you will create an image that represents them.
You will return the URL of the generated image as JSON in the format:
{
    "imageUrl": "https://example.com/image.png"
}

If a tool responds asking you to call it again, follow the instructions and make the call again.`

const chatInstructions = `You are a helpful assistant that knows everything about Star Wars.
You are a fan of the original trilogy and speak like Yoda whenever you can.
Use the available tools to look up facts, figurine purchases and movie quotes before you answer.`

// DefaultAgents returns the storyteller agents.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name:         SupervisorAgent,
			Description:  "This agent supervises the creation of a custom Star Wars story based on the figurines purchased by the customer.",
			Instructions: supervisorInstructions,
			Policy:       "none",
		},
		{
			Name:         PurchaseDetailsAgent,
			Description:  "This agent retrieves the purchase details for a specific customer.",
			Instructions: purchaseInstructions,
			Policy:       "required:StarWarsPurchaseTool",
			Tools:        []string{"StarWarsPurchaseTool"},
		},
		{
			Name:         WookiepediaResearchAgent,
			Description:  "This agent retrieves information from Wookiepedia about Star Wars characters.",
			Instructions: wookiepediaInstructions,
			Policy:       "required:WookiepediaTool",
			Tools:        []string{"WookiepediaTool"},
		},
		{
			Name:         ImageGenerationAgent,
			Description:  "This agent generates an image based on a set of figurines of Star Wars characters.",
			Instructions: imageInstructions,
			Policy:       "required:GenerateStarWarsImageTool",
			Tools:        []string{"GenerateStarWarsImageTool"},
		},
	}
}

// DefaultEdges returns the supervisor's handoff edges.
func DefaultEdges() []EdgeConfig {
	return []EdgeConfig{
		{From: SupervisorAgent, To: PurchaseDetailsAgent, Rationale: "Transfer to this agent to get details of the purchased figurines"},
		{From: SupervisorAgent, To: WookiepediaResearchAgent, Rationale: "Transfer to this agent to research the characters and lore of the purchased figurines"},
		{From: SupervisorAgent, To: ImageGenerationAgent, Rationale: "Transfer to this agent to generate an image based on the purchased figurines"},
	}
}

// Default returns the storyteller configuration.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.Model = "claude-3-5-sonnet-20241022"
		default:
			c.LLM.Model = "gpt-4o-mini"
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}

	if c.Orchestration.MaxDepth == 0 {
		c.Orchestration.MaxDepth = 32
	}
	if c.Orchestration.Timeout == 0 {
		c.Orchestration.Timeout = 5 * time.Minute
	}
	if c.Orchestration.ReturnMode == "" {
		c.Orchestration.ReturnMode = "implicit"
	}
	if c.Orchestration.ContentPolicyRetries == 0 {
		c.Orchestration.ContentPolicyRetries = 3
	}
	if c.Orchestration.MaxConcurrentRuns == 0 {
		c.Orchestration.MaxConcurrentRuns = 10
	}

	if c.Tools.Tavily.CacheTTL == 0 {
		c.Tools.Tavily.CacheTTL = time.Hour
	}
	if c.Tools.Scripts.Collection == "" {
		c.Tools.Scripts.Collection = "movie-scripts"
	}
	if c.Tools.Scripts.IndexName == "" {
		c.Tools.Scripts.IndexName = "movie-scripts"
	}
	if c.Tools.Scripts.Namespace == "" {
		c.Tools.Scripts.Namespace = "star-wars"
	}

	if len(c.Agents) == 0 {
		c.Agents = DefaultAgents()
		if len(c.Edges) == 0 {
			c.Edges = DefaultEdges()
		}
	}
	if c.Entry == "" && len(c.Agents) > 0 {
		c.Entry = c.Agents[0].Name
	}

	if c.Chat.Instructions == "" {
		c.Chat.Instructions = chatInstructions
	}

	if c.Sessions.Store == "" {
		c.Sessions.Store = "memory"
	}
	if c.Sessions.Store == "sqlite" && c.Sessions.Path == "" {
		c.Sessions.Path = "agentrelay.db"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
