// Summary: Feature coordinator; keeps inline chat and inline suggestions mutually exclusive.
package feature

// Coordinator holds the two feature flags shared by the inline chat and the
// inline suggestion controllers. At most one flag is set at any time.
//
// It has no locks: every call must come from the dispatch loop, which is the
// only goroutine that mutates feature state.
type Coordinator struct {
	inlineChatActive  bool
	suggestionRunning bool
}

// NewCoordinator returns a coordinator with both features idle.
func NewCoordinator() *Coordinator { return &Coordinator{} }

// TryBeginInlineChat marks inline chat active. It returns false, changing
// nothing, when inline chat is already active or a suggestion is running.
func (c *Coordinator) TryBeginInlineChat() bool {
	if c.inlineChatActive || c.suggestionRunning {
		return false
	}
	c.inlineChatActive = true
	return true
}

// EndInlineChat releases the inline chat flag.
func (c *Coordinator) EndInlineChat() { c.inlineChatActive = false }

// TryBeginSuggestion marks a suggestion running. It returns false, changing
// nothing, when a suggestion is already running or inline chat is active.
func (c *Coordinator) TryBeginSuggestion() bool {
	if c.suggestionRunning || c.inlineChatActive {
		return false
	}
	c.suggestionRunning = true
	return true
}

// EndSuggestion releases the suggestion flag.
func (c *Coordinator) EndSuggestion() { c.suggestionRunning = false }

func (c *Coordinator) InlineChatActive() bool  { return c.inlineChatActive }
func (c *Coordinator) SuggestionRunning() bool { return c.suggestionRunning }
