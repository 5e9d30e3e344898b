// Summary: Application configuration model and loader; reads config.{json,yaml,toml} from the
// ghosttext config dir through viper, applies GHOSTTEXT_* env overrides and watches for edits.
package appconfig

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"ghosttext/internal/llm"
	"ghosttext/internal/textctx"
)

// EnvPrefix prefixes environment overrides, e.g. GHOSTTEXT_PROVIDER.
const EnvPrefix = "GHOSTTEXT"

// App holds user-configurable settings.
type App struct {
	MaxTokens       int `mapstructure:"max_tokens"`
	LogPreviewLimit int `mapstructure:"log_preview_limit"`
	// Single knob for suggestion requests; overrides provider temperatures.
	CodingTemperature *float64 `mapstructure:"coding_temperature"`

	// Inline suggestion pacing and context budget
	DebounceMs           int `mapstructure:"debounce_ms"`
	MinRequestIntervalMs int `mapstructure:"min_request_interval_ms"`
	ContextMaxLines      int `mapstructure:"context_max_lines"`
	ContextMaxChars      int `mapstructure:"context_max_chars"`

	TriggerCharacters []string `mapstructure:"trigger_characters"`
	Provider          string   `mapstructure:"provider"`

	// Provider-specific options; nil temperatures mean provider default
	OpenAIBaseURL        string   `mapstructure:"openai_base_url"`
	OpenAIModel          string   `mapstructure:"openai_model"`
	OpenAITemperature    *float64 `mapstructure:"openai_temperature"`
	AzureEndpoint        string   `mapstructure:"azure_endpoint"`
	AzureDeployment      string   `mapstructure:"azure_deployment"`
	AzureAPIVersion      string   `mapstructure:"azure_api_version"`
	AzureTemperature     *float64 `mapstructure:"azure_temperature"`
	CopilotBaseURL       string   `mapstructure:"copilot_base_url"`
	CopilotModel         string   `mapstructure:"copilot_model"`
	CopilotTemperature   *float64 `mapstructure:"copilot_temperature"`
	AnthropicBaseURL     string   `mapstructure:"anthropic_base_url"`
	AnthropicModel       string   `mapstructure:"anthropic_model"`
	AnthropicTemperature *float64 `mapstructure:"anthropic_temperature"`
	GeminiBaseURL        string   `mapstructure:"gemini_base_url"`
	GeminiModel          string   `mapstructure:"gemini_model"`
	GeminiTemperature    *float64 `mapstructure:"gemini_temperature"`
	OllamaBaseURL        string   `mapstructure:"ollama_base_url"`
	OllamaModel          string   `mapstructure:"ollama_model"`
	OllamaTemperature    *float64 `mapstructure:"ollama_temperature"`
}

// keys are bound to GHOSTTEXT_<KEY> so env overrides reach Unmarshal.
var keys = []string{
	"max_tokens", "log_preview_limit", "coding_temperature",
	"debounce_ms", "min_request_interval_ms", "context_max_lines", "context_max_chars",
	"trigger_characters", "provider",
	"openai_base_url", "openai_model", "openai_temperature",
	"azure_endpoint", "azure_deployment", "azure_api_version", "azure_temperature",
	"copilot_base_url", "copilot_model", "copilot_temperature",
	"anthropic_base_url", "anthropic_model", "anthropic_temperature",
	"gemini_base_url", "gemini_model", "gemini_temperature",
	"ollama_base_url", "ollama_model", "ollama_temperature",
}

// Constructor: defaults for App (kept first among functions)
func newDefaultConfig() App {
	// Coding-friendly default temperature across providers
	t := 0.2
	return App{
		MaxTokens:          4000,
		LogPreviewLimit:    100,
		CodingTemperature:  &t,
		DebounceMs:         150,
		ContextMaxLines:    textctx.DefaultMaxLines,
		ContextMaxChars:    textctx.DefaultMaxChars,
		OpenAITemperature:  &t,
		OllamaTemperature:  &t,
		CopilotTemperature: &t,
	}
}

// Defaults returns the built-in configuration.
func Defaults() App { return newDefaultConfig() }

// Load reads configuration from the default config dir and merges it with
// defaults. Errors are logged and yield defaults.
func Load(logger *log.Logger) App {
	cfg := newDefaultConfig()
	if logger == nil {
		return cfg // Return defaults if no logger is provided (e.g. in tests)
	}
	dir, err := ConfigDir()
	if err != nil {
		logger.Printf("%v", err)
		return cfg
	}
	cfg, err = NewLoader(dir, logger).Load()
	if err != nil {
		logger.Printf("%v", err)
		return newDefaultConfig()
	}
	return cfg
}

// Loader reads one config dir. It is not safe for concurrent Load calls.
type Loader struct {
	v      *viper.Viper
	dir    string
	logger *log.Logger
}

// NewLoader prepares a viper instance for config.{json,yaml,toml} in dir.
func NewLoader(dir string, logger *log.Logger) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return &Loader{v: v, dir: dir, logger: logger}
}

// Load reads the config file (a missing file is fine) and env overrides.
func (l *Loader) Load() (App, error) {
	cfg := newDefaultConfig()
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("invalid config in %s: %w", l.dir, err)
		}
	}
	var fileCfg App
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return cfg, fmt.Errorf("cannot decode config: %w", err)
	}
	cfg.mergeWith(&fileCfg)
	if l.v.IsSet("log_preview_limit") && fileCfg.LogPreviewLimit >= 0 {
		cfg.LogPreviewLimit = fileCfg.LogPreviewLimit
	}
	return cfg, nil
}

// File returns the config file in use, or "" when none was found.
func (l *Loader) File() string { return l.v.ConfigFileUsed() }

// Watch calls fn with the reloaded config whenever the config file is
// written. It reports false when there is no file to watch.
func (l *Loader) Watch(fn func(App)) bool {
	if l.File() == "" {
		return false
	}
	l.v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.Load()
		if err != nil {
			if l.logger != nil {
				l.logger.Printf("config reload %s: %v", ev.Name, err)
			}
			return
		}
		if l.logger != nil {
			l.logger.Printf("config reloaded from %s", ev.Name)
		}
		fn(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Debounce returns the suggestion debounce delay.
func (a App) Debounce() time.Duration { return time.Duration(a.DebounceMs) * time.Millisecond }

// MinRequestInterval returns the minimum spacing between suggestion requests.
func (a App) MinRequestInterval() time.Duration {
	return time.Duration(a.MinRequestIntervalMs) * time.Millisecond
}

// Extractor returns the context budget for suggestions.
func (a App) Extractor() textctx.Extractor {
	return textctx.Extractor{MaxLines: a.ContextMaxLines, MaxChars: a.ContextMaxChars}
}

// LLMConfig maps provider settings onto llm.Config.
func (a App) LLMConfig() llm.Config {
	return llm.Config{
		Provider:             a.Provider,
		OpenAIBaseURL:        a.OpenAIBaseURL,
		OpenAIModel:          a.OpenAIModel,
		OpenAITemperature:    a.OpenAITemperature,
		AzureEndpoint:        a.AzureEndpoint,
		AzureDeployment:      a.AzureDeployment,
		AzureAPIVersion:      a.AzureAPIVersion,
		AzureTemperature:     a.AzureTemperature,
		CopilotBaseURL:       a.CopilotBaseURL,
		CopilotModel:         a.CopilotModel,
		CopilotTemperature:   a.CopilotTemperature,
		AnthropicBaseURL:     a.AnthropicBaseURL,
		AnthropicModel:       a.AnthropicModel,
		AnthropicTemperature: a.AnthropicTemperature,
		GeminiBaseURL:        a.GeminiBaseURL,
		GeminiModel:          a.GeminiModel,
		GeminiTemperature:    a.GeminiTemperature,
		OllamaBaseURL:        a.OllamaBaseURL,
		OllamaModel:          a.OllamaModel,
		OllamaTemperature:    a.OllamaTemperature,
	}
}

// RequestOptions are the per-request settings shared by both backends.
func (a App) RequestOptions() []llm.RequestOption {
	var opts []llm.RequestOption
	if a.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(a.MaxTokens))
	}
	if a.CodingTemperature != nil {
		opts = append(opts, llm.WithTemperature(*a.CodingTemperature))
	}
	return opts
}

// Private helpers
func (a *App) mergeWith(other *App) {
	a.mergeBasics(other)
	a.mergeProviderFields(other)
}

// mergeBasics merges general (non-provider) fields.
func (a *App) mergeBasics(other *App) {
	if other.MaxTokens > 0 {
		a.MaxTokens = other.MaxTokens
	}
	if other.CodingTemperature != nil { // allow explicit 0.0
		a.CodingTemperature = other.CodingTemperature
	}
	if other.DebounceMs > 0 {
		a.DebounceMs = other.DebounceMs
	}
	if other.MinRequestIntervalMs > 0 {
		a.MinRequestIntervalMs = other.MinRequestIntervalMs
	}
	if other.ContextMaxLines > 0 {
		a.ContextMaxLines = other.ContextMaxLines
	}
	if other.ContextMaxChars > 0 {
		a.ContextMaxChars = other.ContextMaxChars
	}
	if len(other.TriggerCharacters) > 0 {
		a.TriggerCharacters = slices.Clone(other.TriggerCharacters)
	}
	if s := strings.TrimSpace(other.Provider); s != "" {
		a.Provider = s
	}
}

// mergeProviderFields merges per-provider configuration.
func (a *App) mergeProviderFields(other *App) {
	mergeString(&a.OpenAIBaseURL, other.OpenAIBaseURL)
	mergeString(&a.OpenAIModel, other.OpenAIModel)
	mergeTemp(&a.OpenAITemperature, other.OpenAITemperature)
	mergeString(&a.AzureEndpoint, other.AzureEndpoint)
	mergeString(&a.AzureDeployment, other.AzureDeployment)
	mergeString(&a.AzureAPIVersion, other.AzureAPIVersion)
	mergeTemp(&a.AzureTemperature, other.AzureTemperature)
	mergeString(&a.CopilotBaseURL, other.CopilotBaseURL)
	mergeString(&a.CopilotModel, other.CopilotModel)
	mergeTemp(&a.CopilotTemperature, other.CopilotTemperature)
	mergeString(&a.AnthropicBaseURL, other.AnthropicBaseURL)
	mergeString(&a.AnthropicModel, other.AnthropicModel)
	mergeTemp(&a.AnthropicTemperature, other.AnthropicTemperature)
	mergeString(&a.GeminiBaseURL, other.GeminiBaseURL)
	mergeString(&a.GeminiModel, other.GeminiModel)
	mergeTemp(&a.GeminiTemperature, other.GeminiTemperature)
	mergeString(&a.OllamaBaseURL, other.OllamaBaseURL)
	mergeString(&a.OllamaModel, other.OllamaModel)
	mergeTemp(&a.OllamaTemperature, other.OllamaTemperature)
}

func mergeString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func mergeTemp(dst **float64, v *float64) {
	if v != nil { // allow explicit 0.0
		*dst = v
	}
}

// ConfigDir respects the XDG Base Directory Specification.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "ghosttext"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ghosttext"), nil
}
