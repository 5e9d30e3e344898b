// Summary: LLM client interface, request options and the provider factory (OpenAI, Azure,
// Copilot, Anthropic, Gemini, Ollama).
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ghosttext/internal/logging"
)

// ErrMissingAPIKey is returned when the selected provider needs a key that is not set.
var ErrMissingAPIKey = errors.New("llm: missing API key")

// requestTimeout bounds a single provider HTTP exchange.
const requestTimeout = 30 * time.Second

// Message represents a chat-style prompt message.
type Message struct {
	Role    string
	Content string
}

// Client is a minimal LLM provider interface.
type Client interface {
	// Chat sends chat messages and returns the assistant text.
	Chat(ctx context.Context, messages []Message, opts ...RequestOption) (string, error)
	Name() string
	DefaultModel() string
}

// Streamer is implemented by clients that can deliver the reply incrementally.
type Streamer interface {
	ChatStream(ctx context.Context, messages []Message, onDelta func(string), opts ...RequestOption) error
}

// Options for a request. Providers may ignore unsupported fields.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// RequestOption mutates Options.
type RequestOption func(*Options)

func WithModel(model string) RequestOption    { return func(o *Options) { o.Model = model } }
func WithTemperature(t float64) RequestOption { return func(o *Options) { o.Temperature = t } }
func WithMaxTokens(n int) RequestOption       { return func(o *Options) { o.MaxTokens = n } }
func WithStop(stop ...string) RequestOption {
	return func(o *Options) { o.Stop = append([]string{}, stop...) }
}

// resolve applies opts over the client defaults. A zero temperature falls
// back to defaultTemp when one is configured.
func resolve(defaultModel string, defaultTemp *float64, opts []RequestOption) Options {
	o := Options{Model: defaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.Temperature == 0 && defaultTemp != nil {
		o.Temperature = *defaultTemp
	}
	return o
}

// Config selects and configures a provider.
type Config struct {
	Provider string

	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature *float64

	AzureEndpoint    string
	AzureDeployment  string
	AzureAPIVersion  string
	AzureTemperature *float64

	CopilotBaseURL     string
	CopilotModel       string
	CopilotTemperature *float64

	AnthropicBaseURL     string
	AnthropicModel       string
	AnthropicTemperature *float64

	GeminiBaseURL     string
	GeminiModel       string
	GeminiTemperature *float64

	OllamaBaseURL     string
	OllamaModel       string
	OllamaTemperature *float64
}

// Keys carries provider API keys, usually read from the environment.
type Keys struct {
	OpenAI    string
	Azure     string
	Copilot   string
	Anthropic string
	Gemini    string
}

// KeysFromEnv reads API keys, preferring GHOSTTEXT_* variables over the
// provider's conventional ones.
func KeysFromEnv() Keys {
	return Keys{
		OpenAI:    firstEnv("GHOSTTEXT_OPENAI_API_KEY", "OPENAI_API_KEY"),
		Azure:     firstEnv("GHOSTTEXT_AZURE_OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"),
		Copilot:   firstEnv("GHOSTTEXT_COPILOT_API_KEY", "COPILOT_API_KEY"),
		Anthropic: firstEnv("GHOSTTEXT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
		Gemini:    firstEnv("GHOSTTEXT_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// NewFromConfig builds the client named by cfg.Provider (default "openai").
func NewFromConfig(cfg Config, keys Keys) (Client, error) {
	p := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch p {
	case "", "openai":
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrMissingAPIKey)
		}
		return newOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIModel, keys.OpenAI, cfg.OpenAITemperature), nil
	case "azure":
		if keys.Azure == "" {
			return nil, fmt.Errorf("azure: %w (set AZURE_OPENAI_API_KEY)", ErrMissingAPIKey)
		}
		if strings.TrimSpace(cfg.AzureEndpoint) == "" {
			return nil, errors.New("azure: azure_endpoint is not configured")
		}
		return newAzure(cfg.AzureEndpoint, cfg.AzureDeployment, cfg.AzureAPIVersion, keys.Azure, cfg.AzureTemperature), nil
	case "copilot":
		if keys.Copilot == "" {
			return nil, fmt.Errorf("copilot: %w (set COPILOT_API_KEY)", ErrMissingAPIKey)
		}
		return newCopilot(cfg.CopilotBaseURL, cfg.CopilotModel, keys.Copilot, cfg.CopilotTemperature), nil
	case "anthropic":
		if keys.Anthropic == "" {
			return nil, fmt.Errorf("anthropic: %w (set ANTHROPIC_API_KEY)", ErrMissingAPIKey)
		}
		return newAnthropic(cfg.AnthropicBaseURL, cfg.AnthropicModel, keys.Anthropic, cfg.AnthropicTemperature), nil
	case "gemini":
		if keys.Gemini == "" {
			return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrMissingAPIKey)
		}
		return newGemini(cfg.GeminiBaseURL, cfg.GeminiModel, keys.Gemini, cfg.GeminiTemperature), nil
	case "ollama":
		return newOllama(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaTemperature), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func splitSystem(messages []Message) (system string, rest []Message) {
	var sys []string
	for _, m := range messages {
		if m.Role == "system" {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

func toLogMessages(messages []Message) []logging.LogMessage {
	out := make([]logging.LogMessage, len(messages))
	for i, m := range messages {
		out[i] = logging.LogMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
