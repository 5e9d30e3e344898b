// Summary: LSP protocol types used by the server (requests, responses, params, capabilities)
// plus the ghosttext-specific command and server-to-client payloads.
package lsp

import "encoding/json"

// JSON-RPC 2.0 structures (minimal)
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Error   *RespError      `json:"error"`
}

type RespError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// incoming is any message read from the client: a request, a notification
// or a response to a server-initiated request.
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RespError      `json:"error,omitempty"`
}

// JSON-RPC error codes
const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeInternalError  = -32603
	codeRequestFailed  = -32803
)

// LSP responses (subset)
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync   any                `json:"textDocumentSync,omitempty"`
	CompletionProvider *CompletionOptions `json:"completionProvider,omitempty"`
	// bool | CodeActionOptions
	CodeActionProvider     any                    `json:"codeActionProvider,omitempty"`
	ExecuteCommandProvider *ExecuteCommandOptions `json:"executeCommandProvider,omitempty"`
}

type CompletionOptions struct {
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type ExecuteCommandOptions struct {
	Commands []string `json:"commands"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type CompletionItem struct {
	Label            string    `json:"label"`
	Kind             int       `json:"kind,omitempty"`
	Detail           string    `json:"detail,omitempty"`
	InsertText       string    `json:"insertText,omitempty"`
	InsertTextFormat int       `json:"insertTextFormat,omitempty"`
	FilterText       string    `json:"filterText,omitempty"`
	TextEdit         *TextEdit `json:"textEdit,omitempty"`
	SortText         string    `json:"sortText,omitempty"`
	Documentation    string    `json:"documentation,omitempty"`
	Command          *Command  `json:"command,omitempty"`
}

// Code action options
type CodeActionOptions struct {
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// LSP param types (subset)
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId,omitempty"`
	Version    int    `json:"version,omitempty"`
	Text       string `json:"text"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version,omitempty"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength int    `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      json.RawMessage        `json:"context,omitempty"`
}

// Code actions
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      json.RawMessage        `json:"context,omitempty"`
}

type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes,omitempty"`
}

// ApplyWorkspaceEditParams is the client request payload for workspace/applyEdit.
type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

type CodeAction struct {
	Title   string   `json:"title"`
	Kind    string   `json:"kind,omitempty"`
	Command *Command `json:"command,omitempty"`
}

type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// Range defines a text range in a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit represents a textual edit applicable to a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// window/showMessage and window/logMessage
type MessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

const (
	messageError   = 1
	messageWarning = 2
	messageInfo    = 3
)

// --- ghosttext extensions ---

// CommandArgs is the single argument object of every ghosttext.* command.
type CommandArgs struct {
	URI         string    `json:"uri"`
	Position    *Position `json:"position,omitempty"`
	Instruction string    `json:"instruction,omitempty"`
	Delta       float64   `json:"delta,omitempty"`
	// Step is "in", "out" or "reset" for ghosttext.inlineChat.zoom; it wins over Delta.
	Step        string    `json:"step,omitempty"`
}

// CaretMovedParams is sent by the client as ghosttext/caretMoved.
type CaretMovedParams struct {
	URI      string   `json:"uri"`
	Position Position `json:"position"`
}

// StatusResult answers ghosttext.status.
type StatusResult struct {
	Busy             bool `json:"busy"`
	HasActiveSession bool `json:"hasActiveSession"`
	TriggerEnabled   bool `json:"triggerEnabled"`
	InlineChatActive bool `json:"inlineChatActive"`
	// set while a finished suggestion awaits Tab
	PendingSuggestion bool `json:"pendingSuggestion"`
}

// ShowProposalParams asks the client to render ghost text.
type ShowProposalParams struct {
	URI        string   `json:"uri"`
	ProposalID string   `json:"proposalId"`
	Range      Range    `json:"range"`
	Text       string   `json:"text"`
	CaretAfter Position `json:"caretAfter"`
}

// ShowProposalResult is the client's reply when it displays the proposal;
// a null reply means it declined.
type ShowProposalResult struct {
	SessionID string `json:"sessionId"`
}

type HideProposalParams struct {
	URI        string `json:"uri"`
	SessionID  string `json:"sessionId"`
	ProposalID string `json:"proposalId,omitempty"`
}

type InlineChatInputParams struct {
	URI      string   `json:"uri"`
	Position Position `json:"position"`
}

type InlineChatEnabledParams struct {
	URI     string `json:"uri"`
	Enabled bool   `json:"enabled"`
}

type InlineChatDiffParams struct {
	URI  string  `json:"uri"`
	Diff any     `json:"diff"`
	Zoom float64 `json:"zoom"`
}

type InlineChatCloseParams struct {
	URI string `json:"uri"`
}
