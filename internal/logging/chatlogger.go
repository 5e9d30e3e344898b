package logging

import "time"

// LogMessage is the role/content pair previewed in request logs.
type LogMessage struct {
	Role    string
	Content string
}

// ChatLogger logs one provider's requests with a shared "llm/<provider> " prefix.
type ChatLogger struct {
	Provider string
}

// NewChatLogger creates a new ChatLogger for a given provider.
func NewChatLogger(provider string) *ChatLogger {
	return &ChatLogger{Provider: provider}
}

func (cl *ChatLogger) prefix() string { return "llm/" + cl.Provider + " " }

// LogStart logs the beginning of a chat or stream interaction.
func (cl *ChatLogger) LogStart(stream bool, model string, temp float64, maxTokens int, stop []string, messages []LogMessage) {
	chatOrStream := "chat"
	if stream {
		chatOrStream = "stream"
	}
	Logf(cl.prefix(), "%s start model=%s temp=%.2f max_tokens=%d stop=%d messages=%d",
		chatOrStream, model, temp, maxTokens, len(stop), len(messages))
	for i, m := range messages {
		// Sending context (cyan)
		Logf(cl.prefix(), "msg[%d] role=%s size=%d preview=%s%s%s",
			i, m.Role, len(m.Content), AnsiCyan, PreviewForLog(m.Content), AnsiBase)
	}
}

// LogSuccess logs a completed reply (green preview).
func (cl *ChatLogger) LogSuccess(finish, content string, start time.Time) {
	Logf(cl.prefix(), "success finish=%s size=%d preview=%s%s%s duration=%s",
		finish, len(content), AnsiGreen, PreviewForLog(content), AnsiBase, time.Since(start))
}

// LogError logs a failed request in red.
func (cl *ChatLogger) LogError(stage string, err error, start time.Time) {
	Logf(cl.prefix(), "%s%s error after %s: %v%s", AnsiRed, stage, time.Since(start), err, AnsiBase)
}
