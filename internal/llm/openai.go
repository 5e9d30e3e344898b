// Summary: OpenAI-compatible chat client over github.com/openai/openai-go; serves OpenAI,
// Azure OpenAI (deployment endpoints) and GitHub Copilot (OpenAI-shaped API).
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"ghosttext/internal/logging"
)

// openAIClient implements Client and Streamer against a Chat Completions API.
type openAIClient struct {
	client             openai.Client
	name               string
	defaultModel       string
	defaultTemperature *float64
	chatLogger         *logging.ChatLogger
}

// newOpenAI constructs an OpenAI client using explicit configuration values.
func newOpenAI(baseURL, model, apiKey string, defaultTemp *float64) Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4.1"
	}
	return newOpenAICompatible("openai", model, defaultTemp,
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
}

// newAzure targets an Azure OpenAI resource; the deployment name doubles as the model.
func newAzure(endpoint, deployment, apiVersion, apiKey string, defaultTemp *float64) Client {
	if strings.TrimSpace(apiVersion) == "" {
		apiVersion = "2024-06-01"
	}
	if strings.TrimSpace(deployment) == "" {
		deployment = "gpt-4.1"
	}
	return newOpenAICompatible("azure", deployment, defaultTemp,
		azure.WithEndpoint(strings.TrimSpace(endpoint), apiVersion),
		azure.WithAPIKey(apiKey),
	)
}

// newCopilot targets GitHub Copilot's OpenAI-shaped chat endpoint.
func newCopilot(baseURL, model, apiKey string, defaultTemp *float64) Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.githubcopilot.com"
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4.1"
	}
	return newOpenAICompatible("copilot", model, defaultTemp,
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHeader("Copilot-Integration-Id", "vscode-chat"),
	)
}

func newOpenAICompatible(name, model string, defaultTemp *float64, opts ...option.RequestOption) *openAIClient {
	base := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
		option.WithMaxRetries(1),
	}
	return &openAIClient{
		client:             openai.NewClient(append(base, opts...)...),
		name:               name,
		defaultModel:       model,
		defaultTemperature: defaultTemp,
		chatLogger:         logging.NewChatLogger(name),
	}
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message, opts ...RequestOption) (string, error) {
	o := resolve(c.defaultModel, c.defaultTemperature, opts)
	start := time.Now()
	c.chatLogger.LogStart(false, o.Model, o.Temperature, o.MaxTokens, o.Stop, toLogMessages(messages))
	resp, err := c.client.Chat.Completions.New(ctx, buildOAChatParams(o, messages))
	if err != nil {
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := errors.New(c.name + ": no choices returned")
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	content := resp.Choices[0].Message.Content
	c.chatLogger.LogSuccess(resp.Choices[0].FinishReason, content, start)
	return content, nil
}

// ChatStream delivers content deltas as they arrive.
func (c *openAIClient) ChatStream(ctx context.Context, messages []Message, onDelta func(string), opts ...RequestOption) error {
	o := resolve(c.defaultModel, c.defaultTemperature, opts)
	start := time.Now()
	c.chatLogger.LogStart(true, o.Model, o.Temperature, o.MaxTokens, o.Stop, toLogMessages(messages))
	stream := c.client.Chat.Completions.NewStreaming(ctx, buildOAChatParams(o, messages))
	defer stream.Close()
	size := 0
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if s := chunk.Choices[0].Delta.Content; s != "" {
			size += len(s)
			onDelta(s)
		}
	}
	if err := stream.Err(); err != nil {
		c.chatLogger.LogError("stream", err, start)
		return err
	}
	logging.Logf("llm/"+c.name+" ", "stream end size=%d duration=%s", size, time.Since(start))
	return nil
}

// Provider metadata
func (c *openAIClient) Name() string         { return c.name }
func (c *openAIClient) DefaultModel() string { return c.defaultModel }

func buildOAChatParams(o Options, messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{Model: o.Model}
	params.Messages = make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	if o.Temperature != 0 {
		params.Temperature = openai.Float(o.Temperature)
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.MaxTokens))
	}
	if len(o.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: o.Stop}
	}
	return params
}
