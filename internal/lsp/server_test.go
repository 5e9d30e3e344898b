// Summary: End-to-end tests driving the server over in-memory pipes with a scripted client.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"ghosttext/internal/chat"
	"ghosttext/internal/dispatch"
)

const testURI = "file:///work/main.go"

// testClient plays the editor side: it answers server requests and queues
// everything the server sends.
type testClient struct {
	t  *testing.T
	w  io.Writer
	mu sync.Mutex
	id int

	declineProposal bool
	applied         bool
	dropApply       bool
	// beforeApply runs before a workspace/applyEdit reply is sent.
	beforeApply func()

	msgs  chan incoming
	resps chan incoming
}

type harness struct {
	srv    *Server
	client *testClient
	runErr error
	done   chan struct{}
}

func newHarness(t *testing.T, backend chat.Backend, opts ServerOptions) *harness {
	t.Helper()
	loop := dispatch.NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()
	opts.Loop = loop
	opts.Backend = backend
	if opts.Debounce == 0 {
		opts.Debounce = -1
	}
	srv := NewServer(serverRead, serverWrite, log.New(io.Discard, "", 0), opts)
	c := &testClient{
		t:       t,
		w:       clientWrite,
		applied: true,
		msgs:    make(chan incoming, 256),
		resps:   make(chan incoming, 16),
	}
	h := &harness{srv: srv, client: c, done: make(chan struct{})}
	go func() {
		h.runErr = srv.Run()
		close(h.done)
	}()
	go c.readLoop(clientRead)
	t.Cleanup(func() {
		_ = clientWrite.Close()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("server did not stop")
		}
		_ = serverWrite.Close()
		cancel()
	})
	return h
}

func (c *testClient) readLoop(r io.Reader) {
	frames := &Server{in: bufio.NewReader(r)}
	for {
		body, err := frames.readMessage()
		if err != nil {
			return
		}
		var msg incoming
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}
		switch {
		case msg.Method == "":
			c.resps <- msg
			continue
		case len(msg.ID) != 0:
			go c.answer(msg)
		}
		select {
		case c.msgs <- msg:
		default:
		}
	}
}

func (c *testClient) decline() {
	c.mu.Lock()
	c.declineProposal = true
	c.mu.Unlock()
}

func (c *testClient) answer(msg incoming) {
	c.mu.Lock()
	decline, applied, beforeApply, dropApply := c.declineProposal, c.applied, c.beforeApply, c.dropApply
	c.mu.Unlock()
	var result any
	switch msg.Method {
	case "ghosttext/showProposal":
		if !decline {
			result = ShowProposalResult{SessionID: "client-session"}
		}
	case "workspace/applyEdit":
		if dropApply {
			return
		}
		if beforeApply != nil {
			beforeApply()
		}
		result = ApplyWorkspaceEditResult{Applied: applied}
	}
	c.send(Response{JSONRPC: "2.0", ID: msg.ID, Result: result})
}

func (c *testClient) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Errorf("marshal: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		c.t.Errorf("write: %v", err)
	}
}

func (c *testClient) notify(method string, params any) {
	b, _ := json.Marshal(params)
	c.send(Request{JSONRPC: "2.0", Method: method, Params: b})
}

func (c *testClient) request(method string, params any) incoming {
	c.t.Helper()
	c.mu.Lock()
	c.id++
	id := c.id
	c.mu.Unlock()
	b, _ := json.Marshal(params)
	idRaw, _ := json.Marshal(id)
	c.send(Request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: b})
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-c.resps:
			if string(msg.ID) == string(idRaw) {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("no response to %s", method)
		}
	}
}

func (c *testClient) command(name string, args CommandArgs) incoming {
	c.t.Helper()
	return c.request("workspace/executeCommand", map[string]any{"command": name, "arguments": []any{args}})
}

// waitFor returns the next server message with the given method.
func (c *testClient) waitFor(method string) incoming {
	c.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-c.msgs:
			if msg.Method == method {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", method)
		}
	}
}

func (c *testClient) status() StatusResult {
	c.t.Helper()
	resp := c.command(cmdStatus, CommandArgs{URI: testURI})
	var st StatusResult
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		c.t.Fatalf("status: %v", err)
	}
	return st
}

func (c *testClient) waitStatus(what string, ok func(StatusResult) bool) StatusResult {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := c.status()
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("status never became %s: %+v", what, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *testClient) open(text string) {
	c.notify("textDocument/didOpen", DidOpenTextDocumentParams{TextDocument: TextDocumentItem{URI: testURI, LanguageID: "go", Text: text}})
}

func reply(text string) chat.Backend {
	return chat.BackendFunc(func(ctx context.Context, prompt string) (string, error) { return text, nil })
}

func TestServer_Initialize(t *testing.T) {
	h := newHarness(t, reply("x"), ServerOptions{ClientLabel: "openai:gpt-4.1"})
	resp := h.client.request("initialize", map[string]any{"processId": 1})
	var res InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ServerInfo == nil || res.ServerInfo.Name != "ghosttext" {
		t.Fatalf("serverInfo got %+v", res.ServerInfo)
	}
	if !strings.Contains(res.ServerInfo.Version, "openai:gpt-4.1") {
		t.Fatalf("version should carry the client label: %q", res.ServerInfo.Version)
	}
	if res.Capabilities.ExecuteCommandProvider == nil || len(res.Capabilities.ExecuteCommandProvider.Commands) != len(allCommands) {
		t.Fatalf("commands got %+v", res.Capabilities.ExecuteCommandProvider)
	}
	if res.Capabilities.CompletionProvider == nil || len(res.Capabilities.CompletionProvider.TriggerCharacters) == 0 {
		t.Fatalf("completion provider missing trigger characters")
	}
}

func TestServer_UnknownMethod(t *testing.T) {
	h := newHarness(t, reply("x"), ServerOptions{})
	resp := h.client.request("textDocument/hover", map[string]any{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("want method not found, got %+v", resp.Error)
	}
}

func TestServer_CommandOnUnknownDocument(t *testing.T) {
	h := newHarness(t, reply("x"), ServerOptions{})
	resp := h.client.command(cmdSuggest, CommandArgs{URI: "file:///missing.go"})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("want invalid params, got %+v", resp.Error)
	}
}

func TestServer_DisabledWithoutBackend(t *testing.T) {
	h := newHarness(t, nil, ServerOptions{})
	h.client.open("x := ")
	resp := h.client.command(cmdSuggest, CommandArgs{URI: testURI})
	if resp.Error == nil || !strings.Contains(resp.Error.Message, "disabled") {
		t.Fatalf("want disabled error, got %+v", resp.Error)
	}
	if st := h.client.status(); st.Busy || st.TriggerEnabled {
		t.Fatalf("status got %+v", st)
	}
}

func TestServer_SuggestionShownAndAccepted(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	if resp := c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos}); resp.Error != nil {
		t.Fatalf("suggest: %+v", resp.Error)
	}
	msg := c.waitFor("ghosttext/showProposal")
	var p ShowProposalParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Text != "compute()" || p.Range.Start != pos {
		t.Fatalf("proposal got %+v", p)
	}
	if p.CaretAfter != (Position{Line: 0, Character: 14}) {
		t.Fatalf("caretAfter got %+v", p.CaretAfter)
	}
	st := c.waitStatus("displaying", func(s StatusResult) bool { return s.HasActiveSession })
	if !st.Busy || st.TriggerEnabled || !st.PendingSuggestion {
		t.Fatalf("status while displaying: %+v", st)
	}

	if resp := c.command(cmdAccept, CommandArgs{URI: testURI}); resp.Error != nil {
		t.Fatalf("accept: %+v", resp.Error)
	}
	st = c.status()
	if st.Busy || st.HasActiveSession || !st.TriggerEnabled {
		t.Fatalf("status after accept: %+v", st)
	}
	if got := h.srv.getDocument(testURI).currentText(); got != "x := " {
		t.Fatalf("accept must not edit the buffer, got %q", got)
	}
}

func TestServer_DeclinedProposalInsertedOnTab(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.decline()
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitFor("ghosttext/showProposal")
	st := c.waitStatus("pending", func(s StatusResult) bool { return s.PendingSuggestion })
	if st.HasActiveSession {
		t.Fatalf("declined proposal must not be active: %+v", st)
	}

	resp := c.command(cmdTab, CommandArgs{URI: testURI, Position: &pos})
	if resp.Error != nil {
		t.Fatalf("tab: %+v", resp.Error)
	}
	edit := c.waitFor("workspace/applyEdit")
	var p ApplyWorkspaceEditParams
	if err := json.Unmarshal(edit.Params, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	edits := p.Edit.Changes[testURI]
	if len(edits) != 1 || edits[0].NewText != "compute()" || edits[0].Range.Start != pos {
		t.Fatalf("edits got %+v", edits)
	}
	if got := h.srv.getDocument(testURI).currentText(); got != "x := compute()" {
		t.Fatalf("document got %q", got)
	}
	if st := c.status(); st.Busy {
		t.Fatalf("still busy after insert: %+v", st)
	}
}

func TestServer_FallbackInsertKeepsConcurrentKeystroke(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.decline()
	c.mu.Lock()
	c.beforeApply = func() {
		// the editor applies the insert and the user types one more character
		// before the applyEdit reply goes out
		c.notify("textDocument/didChange", DidChangeTextDocumentParams{
			TextDocument:   VersionedTextDocumentIdentifier{URI: testURI, Version: 3},
			ContentChanges: []TextDocumentContentChangeEvent{{Text: "x := compute()!"}},
		})
	}
	c.mu.Unlock()
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitFor("ghosttext/showProposal")
	c.waitStatus("pending", func(s StatusResult) bool { return s.PendingSuggestion })

	if resp := c.command(cmdTab, CommandArgs{URI: testURI, Position: &pos}); resp.Error != nil {
		t.Fatalf("tab: %+v", resp.Error)
	}
	d := h.srv.getDocument(testURI)
	if got := d.currentText(); got != "x := compute()!" {
		t.Fatalf("document got %q", got)
	}
	if snap := d.Snapshot(); snap.Caret != len("x := compute()") {
		t.Fatalf("caret got %d", snap.Caret)
	}
}

func TestServer_UnansweredEditReleasesLoop(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{EditTimeout: 50 * time.Millisecond})
	c := h.client
	c.decline()
	c.mu.Lock()
	c.dropApply = true
	c.mu.Unlock()
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitFor("ghosttext/showProposal")
	c.waitStatus("pending", func(s StatusResult) bool { return s.PendingSuggestion })

	start := time.Now()
	resp := c.command(cmdTab, CommandArgs{URI: testURI, Position: &pos})
	if resp.Error == nil {
		t.Fatalf("tab should report the unanswered edit")
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("tab held for %v", d)
	}
	if got := h.srv.getDocument(testURI).currentText(); got != "x := " {
		t.Fatalf("document got %q", got)
	}
	if st := c.status(); st.Busy || st.PendingSuggestion {
		t.Fatalf("session should be finished: %+v", st)
	}
}

func TestServer_TabWithoutSuggestionIsNoop(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	h.client.open("x := ")
	if resp := h.client.command(cmdTab, CommandArgs{URI: testURI}); resp.Error != nil {
		t.Fatalf("tab: %+v", resp.Error)
	}
	if got := h.srv.getDocument(testURI).currentText(); got != "x := " {
		t.Fatalf("document changed: %q", got)
	}
}

func TestServer_CompletionServesPendingSuggestion(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.decline()
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitStatus("pending", func(s StatusResult) bool { return s.PendingSuggestion })

	resp := c.request("textDocument/completion", CompletionParams{TextDocument: TextDocumentIdentifier{URI: testURI}, Position: pos})
	var list CompletionList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items got %+v", list.Items)
	}
	it := list.Items[0]
	if it.TextEdit == nil || it.TextEdit.NewText != "compute()" {
		t.Fatalf("item text edit got %+v", it.TextEdit)
	}
	if it.Command == nil || it.Command.Command != cmdAccept {
		t.Fatalf("item command got %+v", it.Command)
	}
}

func TestServer_CompletionReportsBusy(t *testing.T) {
	release := make(chan struct{})
	blocking := chat.BackendFunc(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "later()", nil
	})
	h := newHarness(t, blocking, ServerOptions{ClientLabel: "ollama:qwen"})
	defer close(release)
	c := h.client
	c.open("call")
	pos := Position{Line: 0, Character: 4}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitStatus("busy", func(s StatusResult) bool { return s.Busy })

	resp := c.request("textDocument/completion", CompletionParams{TextDocument: TextDocumentIdentifier{URI: testURI}, Position: pos})
	var list CompletionList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !list.IsIncomplete || len(list.Items) != 1 || !strings.Contains(list.Items[0].Label, "busy") {
		t.Fatalf("completion got %+v", list)
	}
	if !strings.Contains(list.Items[0].Label, "ollama:qwen") {
		t.Fatalf("busy label should name the client: %q", list.Items[0].Label)
	}
}

func TestServer_CompletionTriggersSuggestion(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	resp := c.request("textDocument/completion", CompletionParams{TextDocument: TextDocumentIdentifier{URI: testURI}, Position: pos})
	var list CompletionList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !list.IsIncomplete || len(list.Items) != 0 {
		t.Fatalf("first completion got %+v", list)
	}
	c.waitFor("ghosttext/showProposal")
}

func TestServer_EditDismissesProposal(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.open("x := ")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitStatus("displaying", func(s StatusResult) bool { return s.HasActiveSession })

	c.notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: testURI, Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "x := y"}},
	})
	hide := c.waitFor("ghosttext/hideProposal")
	var p HideProposalParams
	if err := json.Unmarshal(hide.Params, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.SessionID != "client-session" {
		t.Fatalf("hide got %+v", p)
	}
	c.waitStatus("idle", func(s StatusResult) bool { return !s.Busy })
}

func TestServer_CaretMoveDismissesProposal(t *testing.T) {
	h := newHarness(t, reply("compute()"), ServerOptions{})
	c := h.client
	c.open("x := \nnext")
	pos := Position{Line: 0, Character: 5}
	c.command(cmdSuggest, CommandArgs{URI: testURI, Position: &pos})
	c.waitStatus("displaying", func(s StatusResult) bool { return s.HasActiveSession })

	c.notify("ghosttext/caretMoved", CaretMovedParams{URI: testURI, Position: Position{Line: 1, Character: 0}})
	c.waitFor("ghosttext/hideProposal")
	c.waitStatus("idle", func(s StatusResult) bool { return !s.Busy })
}

func TestServer_InlineChatRoundTrip(t *testing.T) {
	var prompts []string
	var mu sync.Mutex
	chatBackend := chat.BackendFunc(func(ctx context.Context, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return "```go\nx := 2\n```", nil
	})
	h := newHarness(t, reply("unused"), ServerOptions{ChatBackend: chatBackend})
	c := h.client
	c.open("x := 1\n")
	pos := Position{Line: 0, Character: 0}

	if resp := c.command(cmdInlineChatToggle, CommandArgs{URI: testURI, Position: &pos}); resp.Error != nil {
		t.Fatalf("toggle: %+v", resp.Error)
	}
	c.waitFor("ghosttext/inlineChat/showInput")
	if st := c.status(); !st.InlineChatActive {
		t.Fatalf("status with chat open: %+v", st)
	}

	if resp := c.command(cmdInlineChatSend, CommandArgs{URI: testURI, Instruction: "bump x"}); resp.Error != nil {
		t.Fatalf("send: %+v", resp.Error)
	}
	enabled := c.waitFor("ghosttext/inlineChat/setInputEnabled")
	var ep InlineChatEnabledParams
	_ = json.Unmarshal(enabled.Params, &ep)
	if ep.Enabled {
		t.Fatalf("input should be disabled while sending")
	}
	msg := c.waitFor("ghosttext/inlineChat/showDiff")
	var dp struct {
		URI  string `json:"uri"`
		Diff struct {
			Unified string `json:"unified"`
			Added   int    `json:"added"`
			Removed int    `json:"removed"`
		} `json:"diff"`
		Zoom float64 `json:"zoom"`
	}
	if err := json.Unmarshal(msg.Params, &dp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dp.Diff.Added != 1 || dp.Diff.Removed != 1 || !strings.Contains(dp.Diff.Unified, "+x := 2") {
		t.Fatalf("diff got %+v", dp.Diff)
	}
	if dp.Zoom != 1.0 {
		t.Fatalf("zoom got %v", dp.Zoom)
	}

	zoom := c.command(cmdInlineChatZoom, CommandArgs{URI: testURI, Delta: 0.1})
	var z map[string]float64
	if err := json.Unmarshal(zoom.Result, &z); err != nil || z["zoom"] != 1.1 {
		t.Fatalf("zoom result got %s (%v)", zoom.Result, err)
	}
	for _, step := range []struct {
		name string
		want float64
	}{{"in", 1.2}, {"out", 1.1}, {"reset", 1.0}} {
		resp := c.command(cmdInlineChatZoom, CommandArgs{URI: testURI, Step: step.name})
		z = nil
		if err := json.Unmarshal(resp.Result, &z); err != nil || z["zoom"] != step.want {
			t.Fatalf("zoom %s got %s (%v)", step.name, resp.Result, err)
		}
	}

	if resp := c.command(cmdInlineChatAccept, CommandArgs{URI: testURI}); resp.Error != nil {
		t.Fatalf("accept: %+v", resp.Error)
	}
	c.waitFor("workspace/applyEdit")
	c.waitFor("ghosttext/inlineChat/close")
	if got := h.srv.getDocument(testURI).currentText(); got != "x := 2" {
		t.Fatalf("document got %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "bump x") || !strings.Contains(prompts[0], "x := 1") {
		t.Fatalf("prompts got %q", prompts)
	}
}

func TestServer_CodeActionOffersInlineChat(t *testing.T) {
	h := newHarness(t, reply("x"), ServerOptions{})
	h.client.open("a\nb\n")
	resp := h.client.request("textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: testURI},
		Range:        Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 1}},
	})
	var actions []CodeAction
	if err := json.Unmarshal(resp.Result, &actions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(actions) != 1 || actions[0].Command == nil || actions[0].Command.Command != cmdInlineChatToggle {
		t.Fatalf("actions got %+v", actions)
	}
}

func TestServer_ExitStopsRun(t *testing.T) {
	h := newHarness(t, reply("x"), ServerOptions{})
	h.client.request("shutdown", nil)
	h.client.notify("exit", nil)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after exit")
	}
	if h.runErr != nil {
		t.Fatalf("Run returned %v", h.runErr)
	}
}
