package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
)

// DefaultSystemPrompt instructs the model to stay within the supplied context.
const DefaultSystemPrompt = "You answer questions about the user's documents. Use only the provided context; if it does not contain the answer, say you don't know."

// Config configures an OpenAI-compatible chat completion backend (OpenAI,
// Groq, Ollama and others).
type Config struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
}

// Client implements domain.Completer over the chat completions API.
type Client struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
	system      string
}

// NewClient creates a completion client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		return nil, errors.New("completion model not configured")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 2 * time.Minute
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Client{
		client:      goopenai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		system:      system,
	}, nil
}

// Complete sends prior turns as chat messages followed by prompt.
func (c *Client) Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    Messages(c.system, prompt, history),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("empty completion")
	}
	return answer, nil
}

// Messages lays out the system prompt, the prior turns and the new prompt.
func Messages(system, prompt string, history []domain.Turn) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2+2*len(history))
	if system != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range history {
		msgs = append(msgs,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: t.Question},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})
}
