// Summary: Anthropic Messages API client over github.com/anthropics/anthropic-sdk-go.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ghosttext/internal/logging"
)

// Messages API requires max_tokens; used when the request sets none.
const anthropicDefaultMaxTokens = 1024

type anthropicClient struct {
	client             anthropic.Client
	defaultModel       string
	defaultTemperature *float64
	chatLogger         *logging.ChatLogger
}

func newAnthropic(baseURL, model, apiKey string, defaultTemp *float64) Client {
	if strings.TrimSpace(model) == "" {
		model = "claude-sonnet-4-5"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
		option.WithMaxRetries(1),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicClient{
		client:             anthropic.NewClient(opts...),
		defaultModel:       model,
		defaultTemperature: defaultTemp,
		chatLogger:         logging.NewChatLogger("anthropic"),
	}
}

func (c *anthropicClient) Chat(ctx context.Context, messages []Message, opts ...RequestOption) (string, error) {
	o := resolve(c.defaultModel, c.defaultTemperature, opts)
	start := time.Now()
	c.chatLogger.LogStart(false, o.Model, o.Temperature, o.MaxTokens, o.Stop, toLogMessages(messages))
	resp, err := c.client.Messages.New(ctx, buildAnthropicParams(o, messages))
	if err != nil {
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		err := errors.New("anthropic: no text content returned")
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	c.chatLogger.LogSuccess(string(resp.StopReason), b.String(), start)
	return b.String(), nil
}

func (c *anthropicClient) Name() string         { return "anthropic" }
func (c *anthropicClient) DefaultModel() string { return c.defaultModel }

func buildAnthropicParams(o Options, messages []Message) anthropic.MessageNewParams {
	system, rest := splitSystem(messages)
	maxTokens := int64(o.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.Model),
		MaxTokens: maxTokens,
	}
	for _, m := range rest {
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if o.Temperature != 0 {
		params.Temperature = anthropic.Float(o.Temperature)
	}
	if len(o.Stop) > 0 {
		params.StopSequences = append([]string{}, o.Stop...)
	}
	return params
}
