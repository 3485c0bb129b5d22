package knowledge

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionRequest is one synchronous chat completion.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// Generator produces text from a system and user prompt.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Ready() bool
}

// NoopGenerator stands in when no API key is configured.
type NoopGenerator struct{}

func (n *NoopGenerator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return "", errors.New("generation provider not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator returns a NoopGenerator when the API key is empty.
func NewOpenAIGenerator(opts OpenAIOptions, model string) Generator {
	if strings.TrimSpace(opts.APIKey) == "" {
		return &NoopGenerator{}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: newOpenAIClient(opts),
		model:  model,
	}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response empty")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
