package chat

import (
	"fmt"
	"strings"
)

// SuggestionSystemPrompt steers the model towards bare code continuations.
const SuggestionSystemPrompt = "You are a terse code completion engine. Return only the code to insert at the cursor, " +
	"no surrounding prose or backticks. Only continue from the cursor; never repeat text already present " +
	"before the cursor (e.g., if 'name :=' is already typed, only return the right-hand side expression). " +
	"Prefer completing a single statement or a single block."

// InlineChatSystemPrompt asks for a whole-file rewrite.
const InlineChatSystemPrompt = "You are a precise code editor. Apply the user's instruction to the provided file and " +
	"return the complete updated file content only, with no explanations and no Markdown fences."

// SuggestionPrompt wraps the text before the caret.
func SuggestionPrompt(context string) string {
	return "Continue the following code from the end of the text. Return only the continuation.\n\n" + context
}

// InlineChatPrompt combines an instruction with the full buffer text.
func InlineChatPrompt(instruction, buffer string) string {
	return fmt.Sprintf("Instruction: %s\n\nFile content:\n%s", strings.TrimSpace(instruction), buffer)
}
