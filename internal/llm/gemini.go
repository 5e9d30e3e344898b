// Summary: Gemini client over google.golang.org/genai (Gemini API backend).
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ghosttext/internal/logging"
)

type geminiClient struct {
	apiKey             string
	baseURL            string
	defaultModel       string
	defaultTemperature *float64
	chatLogger         *logging.ChatLogger
}

func newGemini(baseURL, model, apiKey string, defaultTemp *float64) Client {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiClient{
		apiKey:             apiKey,
		baseURL:            strings.TrimSpace(baseURL),
		defaultModel:       model,
		defaultTemperature: defaultTemp,
		chatLogger:         logging.NewChatLogger("gemini"),
	}
}

// newClient is per request; genai clients are cheap and bound to ctx.
func (c *geminiClient) newClient(ctx context.Context) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
	if c.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	return genai.NewClient(ctx, cc)
}

func (c *geminiClient) Chat(ctx context.Context, messages []Message, opts ...RequestOption) (string, error) {
	o := resolve(c.defaultModel, c.defaultTemperature, opts)
	start := time.Now()
	c.chatLogger.LogStart(false, o.Model, o.Temperature, o.MaxTokens, o.Stop, toLogMessages(messages))
	client, err := c.newClient(ctx)
	if err != nil {
		c.chatLogger.LogError("client", err, start)
		return "", err
	}
	contents, config := buildGeminiRequest(o, messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: no user content provided")
	}
	resp, err := client.Models.GenerateContent(ctx, o.Model, contents, config)
	if err != nil {
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		err := errors.New("gemini: empty content")
		c.chatLogger.LogError("chat", err, start)
		return "", err
	}
	finish := ""
	if len(resp.Candidates) > 0 {
		finish = string(resp.Candidates[0].FinishReason)
	}
	c.chatLogger.LogSuccess(finish, text, start)
	return text, nil
}

func (c *geminiClient) Name() string         { return "gemini" }
func (c *geminiClient) DefaultModel() string { return c.defaultModel }

func buildGeminiRequest(o Options, messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if o.Temperature != 0 {
		t := float32(o.Temperature)
		config.Temperature = &t
	}
	if o.MaxTokens > 0 {
		config.MaxOutputTokens = int32(o.MaxTokens)
	}
	if len(o.Stop) > 0 {
		config.StopSequences = append([]string{}, o.Stop...)
	}
	return contents, config
}
