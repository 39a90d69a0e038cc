package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"

	"repairscribe/internal/config"
	"repairscribe/internal/models"
)

const temperature float32 = 0.1

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System string
	Prompt string
}

// Completion is the model's answer.
type Completion struct {
	Content string
	Usage   *models.TokenUsage
}

// Completer sends a prompt to a text-generation model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ErrProviderStatus carries an HTTP status reported by a model provider.
type ErrProviderStatus struct {
	StatusCode int
	Message    string
}

func (e *ErrProviderStatus) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
}

// ChatCompleter adapts an eino chat model to Completer.
type ChatCompleter struct {
	chat model.BaseChatModel
	name string
}

func NewChatCompleter(name string, chat model.BaseChatModel) *ChatCompleter {
	return &ChatCompleter{chat: chat, name: name}
}

func (c *ChatCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.Prompt),
	}
	resp, err := c.chat.Generate(ctx, msgs, model.WithTemperature(temperature))
	if err != nil {
		if status := providerStatus(err); status != nil {
			return nil, status
		}
		return nil, fmt.Errorf("%s generate: %w", c.name, err)
	}
	out := &Completion{Content: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		u := resp.ResponseMeta.Usage
		out.Usage = &models.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// providerStatus extracts the HTTP status reported by the provider SDKs the
// chat models are built on.
func providerStatus(err error) *ErrProviderStatus {
	var (
		openaiAPIErr *goopenai.APIError
		openaiReqErr *goopenai.RequestError
		claudeErr    *anthropic.Error
		geminiErr    genai.APIError
	)
	switch {
	case errors.As(err, &openaiAPIErr):
		return &ErrProviderStatus{StatusCode: openaiAPIErr.HTTPStatusCode, Message: openaiAPIErr.Message}
	case errors.As(err, &openaiReqErr):
		return &ErrProviderStatus{StatusCode: openaiReqErr.HTTPStatusCode, Message: openaiReqErr.Error()}
	case errors.As(err, &claudeErr):
		return &ErrProviderStatus{StatusCode: claudeErr.StatusCode, Message: http.StatusText(claudeErr.StatusCode)}
	case errors.As(err, &geminiErr):
		return &ErrProviderStatus{StatusCode: geminiErr.Code, Message: geminiErr.Message}
	}
	return nil
}

// NewCompleter builds the chat model for provider and wraps it.
func NewCompleter(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (*ChatCompleter, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		temp := temperature
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     provCfg.BaseURL,
			Model:       modelName,
			APIKey:      provCfg.APIKey,
			Temperature: &temp,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      provCfg.APIKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: provCfg.BaseURL},
		})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, geminiConfig(client, modelName))
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4096,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return NewChatCompleter(provider, chatModel), nil
}

// geminiConfig asks Gemini for a JSON object response. The field set differs
// per request, so the schema only pins the top-level type.
func geminiConfig(client *genai.Client, modelName string) *gemini.Config {
	return &gemini.Config{
		Client:             client,
		Model:              modelName,
		ResponseJSONSchema: &jsonschema.Schema{Type: "object"},
	}
}
