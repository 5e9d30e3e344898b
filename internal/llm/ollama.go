// Summary: Ollama client against a local server over plain net/http; chat and streaming via /api/chat.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ghosttext/internal/logging"
)

// ollamaClient implements Client against a local Ollama server.
type ollamaClient struct {
	httpClient         *http.Client
	baseURL            string
	defaultModel       string
	chatLogger         *logging.ChatLogger
	defaultTemperature *float64
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  any             `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func newOllama(baseURL, model string, defaultTemp *float64) Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(model) == "" {
		model = "qwen2.5-coder:7b"
	}
	return ollamaClient{
		httpClient:         &http.Client{Timeout: requestTimeout},
		baseURL:            strings.TrimRight(baseURL, "/"),
		defaultModel:       model,
		chatLogger:         logging.NewChatLogger("ollama"),
		defaultTemperature: defaultTemp,
	}
}

func (c ollamaClient) Chat(ctx context.Context, messages []Message, opts ...RequestOption) (string, error) {
	resp, start, err := c.post(ctx, false, messages, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.fail(start, "decode", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", c.fail(start, "chat", errors.New("ollama: empty content"))
	}
	c.chatLogger.LogSuccess("stop", out.Message.Content, start)
	return out.Message.Content, nil
}

func (c ollamaClient) Name() string         { return "ollama" }
func (c ollamaClient) DefaultModel() string { return c.defaultModel }

// ChatStream reads the NDJSON event stream until an event reports done.
func (c ollamaClient) ChatStream(ctx context.Context, messages []Message, onDelta func(string), opts ...RequestOption) error {
	resp, start, err := c.post(ctx, true, messages, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var ev ollamaChatResponse
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return c.fail(start, "decode stream", err)
		}
		if strings.TrimSpace(ev.Error) != "" {
			return c.fail(start, "stream event", fmt.Errorf("ollama stream error: %s", ev.Error))
		}
		if s := ev.Message.Content; strings.TrimSpace(s) != "" {
			onDelta(s)
		}
		if ev.Done {
			break
		}
	}
	logging.Logf("llm/ollama ", "stream end duration=%s", time.Since(start))
	return nil
}

// post sends one /api/chat request and returns the 2xx response.
func (c ollamaClient) post(ctx context.Context, stream bool, messages []Message, opts []RequestOption) (*http.Response, time.Time, error) {
	o := resolve(c.defaultModel, c.defaultTemperature, opts)
	start := time.Now()
	c.chatLogger.LogStart(stream, o.Model, o.Temperature, o.MaxTokens, o.Stop, toLogMessages(messages))
	body, err := json.Marshal(buildOllamaRequest(o, messages, stream))
	if err != nil {
		return nil, start, err
	}
	endpoint := c.baseURL + "/api/chat"
	logging.Logf("llm/ollama ", "POST %s stream=%t", endpoint, stream)
	resp, err := c.doJSON(ctx, endpoint, body)
	if err != nil {
		return nil, start, c.fail(start, "http", err)
	}
	if err := handleOllamaNon2xx(resp, start); err != nil {
		resp.Body.Close()
		return nil, start, err
	}
	return resp, start, nil
}

func (c ollamaClient) fail(start time.Time, what string, err error) error {
	logging.Logf("llm/ollama ", "%s%s error after %s: %v%s", logging.AnsiRed, what, time.Since(start), err, logging.AnsiBase)
	return err
}

// buildOllamaRequest maps resolved options onto the request's options map.
func buildOllamaRequest(o Options, messages []Message, stream bool) ollamaChatRequest {
	req := ollamaChatRequest{Model: o.Model, Stream: stream}
	req.Messages = make([]ollamaMessage, len(messages))
	for i, m := range messages {
		req.Messages[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}
	optsMap := map[string]any{}
	if o.Temperature != 0 {
		optsMap["temperature"] = o.Temperature
	}
	if o.MaxTokens > 0 {
		optsMap["num_predict"] = o.MaxTokens
	}
	if len(o.Stop) > 0 {
		optsMap["stop"] = o.Stop
	}
	if len(optsMap) > 0 {
		req.Options = optsMap
	}
	return req
}

func (c ollamaClient) doJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func handleOllamaNon2xx(resp *http.Response, start time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var apiErr ollamaChatResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	if strings.TrimSpace(apiErr.Error) != "" {
		logging.Logf("llm/ollama ", "%sapi error status=%d msg=%s duration=%s%s", logging.AnsiRed, resp.StatusCode, apiErr.Error, time.Since(start), logging.AnsiBase)
		return fmt.Errorf("ollama error: %s (status %d)", apiErr.Error, resp.StatusCode)
	}
	logging.Logf("llm/ollama ", "%shttp non-2xx status=%d duration=%s%s", logging.AnsiRed, resp.StatusCode, time.Since(start), logging.AnsiBase)
	return fmt.Errorf("ollama http error: status %d", resp.StatusCode)
}
