// Package imagegen implements the GenerateStarWarsImageTool on top of the
// OpenAI Images API.
package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentrelay/logging"
	oai "github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/tool"
)

// Name is the tool name exposed to agents.
const Name = "GenerateStarWarsImageTool"

const description = "A tool for generating images based on Star Wars. This tool takes a description " +
	"of the required image and returns a URL to the generated image."

const contentPolicyCode = "content_policy_violation"

// RetryGuidance is returned to the agent when the provider refuses a prompt.
const RetryGuidance = `A content error occurred while generating the image.
Please retry this tool with an adjusted prompt, such as changing named characters to very detailed
descriptions of the characters. Include details like race, gender, age, dress style, distinguishing features
(e.g., 'an old, small, green Jedi Master with pointy ears, a tuft of white hair and wrinkles' instead of 'Yoda').
If the description contains anything sexual or violent, replace with a more PG version of the description.`

const promptTemplate = `Generate a cartoon style image based on the following description or story:
"%s"

The image should be in the style of a parody of the original Star Wars trilogy, looking like a movie from the 1970s or 1980s.
Make the image high quality, hyper real, with vivid colors and a cinematic feel from an animated movie.

This image is designed to be the used on front cover of a book that matches the given description or story.`

// Prompt wraps description into the cover art prompt.
func Prompt(description string) string {
	return fmt.Sprintf(promptTemplate, description)
}

// Options configures the tool.
type Options struct {
	// Model is the image model.
	Model string
	// Size is the requested image size.
	Size string
	// APIKey overrides OPENAI_API_KEY.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption
	// Logger provides structured logging.
	Logger logging.Logger
}

// Tool generates cover images.
type Tool struct {
	client openai.Client
	opts   Options
	logger logging.Logger
}

// New creates the tool.
func New(optFns ...func(o *Options)) *Tool {
	opts := Options{
		Model: openai.ImageModelDallE3,
		Size:  string(openai.ImageGenerateParamsSize1024x1024),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	reqOpts := append(oai.ClientOptions(opts.APIKey, opts.BaseURL), opts.RequestOptions...)
	return &Tool{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "The description of the Star Wars image to generate.",
			},
		},
		"required": []string{"description"},
	}
}

// Call implements tool.Tool. It returns {"imageUrl": "..."}.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	desc := strings.TrimSpace(tool.StringArg(args, "description"))
	if desc == "" {
		return "", tool.NewToolError(Name, "Description cannot be empty.", tool.CodeValidation)
	}

	url, err := t.Generate(ctx, desc)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]string{"imageUrl": url})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Generate renders the cover image for desc and returns its URL.
func (t *Tool) Generate(ctx context.Context, desc string) (string, error) {
	resp, err := t.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         Prompt(desc),
		Model:          t.opts.Model,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(t.opts.Size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		if isContentPolicy(err) {
			t.logger.Warn("imagegen.content_policy", "model", t.opts.Model)
			return "", tool.ContentPolicyError(Name, RetryGuidance)
		}
		return "", fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("generate image: response contained no image URL")
	}
	return resp.Data[0].URL, nil
}

func isContentPolicy(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Code == contentPolicyCode {
		return true
	}
	return strings.Contains(err.Error(), contentPolicyCode)
}
