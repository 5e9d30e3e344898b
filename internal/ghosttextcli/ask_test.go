// Summary: Tests for "ghosttext ask" input handling, streaming and client errors.
package ghosttextcli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ghosttext/internal/appconfig"
	"ghosttext/internal/llm"
)

func TestReadInput_CombinesArgsAndStdin(t *testing.T) {
	got, err := readInput(strings.NewReader("  body text \n"), []string{"summarise", "this"})
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	if got != "summarise this:\n\nbody text" {
		t.Fatalf("got %q", got)
	}
	got, err = readInput(strings.NewReader(""), []string{"only", "args"})
	if err != nil || got != "only args" {
		t.Fatalf("args only got %q err=%v", got, err)
	}
	got, err = readInput(strings.NewReader("only stdin"), nil)
	if err != nil || got != "only stdin" {
		t.Fatalf("stdin only got %q err=%v", got, err)
	}
	if _, err := readInput(strings.NewReader(""), nil); !errors.Is(err, errNoInput) {
		t.Fatalf("want errNoInput, got %v", err)
	}
}

func TestBuildMessages_ExplainSwitchesSystemPrompt(t *testing.T) {
	short := buildMessages("list files")
	long := buildMessages("please EXPLAIN rsync flags")
	if short[0].Content == long[0].Content {
		t.Fatalf("explain should change the system prompt")
	}
	if !strings.Contains(long[0].Content, "explanation") {
		t.Fatalf("explain prompt got %q", long[0].Content)
	}
	if short[1].Role != "user" || short[1].Content != "list files" {
		t.Fatalf("user message got %+v", short[1])
	}
}

func TestRunAsk_NonStreaming(t *testing.T) {
	fc := &fakeClient{name: "fake", model: "m1", resp: "ls -la"}
	var out, errw bytes.Buffer
	if err := RunAsk(context.Background(), []string{"list", "files"}, strings.NewReader(""), &out, &errw, fc); err != nil {
		t.Fatalf("RunAsk: %v", err)
	}
	if out.String() != "ls -la" {
		t.Fatalf("stdout got %q", out.String())
	}
	if !strings.Contains(errw.String(), "provider=fake model=m1") || !strings.Contains(errw.String(), "done provider=fake") {
		t.Fatalf("stderr summary got %q", errw.String())
	}
	if len(fc.gotMsgs) != 2 || fc.gotMsgs[1].Content != "list files" {
		t.Fatalf("messages got %+v", fc.gotMsgs)
	}
}

func TestRunAsk_Streaming(t *testing.T) {
	fs := &fakeStreamer{fakeClient: fakeClient{name: "fake", model: "m1"}, chunks: []string{"a", "b", "c"}}
	var out, errw bytes.Buffer
	if err := RunAsk(context.Background(), []string{"go"}, strings.NewReader(""), &out, &errw, fs); err != nil {
		t.Fatalf("RunAsk: %v", err)
	}
	if out.String() != "abc" {
		t.Fatalf("stdout got %q", out.String())
	}
	if len(fs.sMsgs) != 2 || fs.calls != 0 {
		t.Fatalf("streamer should be used: sMsgs=%d calls=%d", len(fs.sMsgs), fs.calls)
	}
	if !strings.Contains(errw.String(), "out_bytes=3") {
		t.Fatalf("summary got %q", errw.String())
	}
}

func TestRunAsk_ClientError(t *testing.T) {
	fc := &fakeClient{name: "fake", model: "m1", err: errors.New("quota")}
	var out, errw bytes.Buffer
	err := RunAsk(context.Background(), []string{"x"}, strings.NewReader(""), &out, &errw, fc)
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("want quota error, got %v", err)
	}
}

func TestExecute_AskThroughCobra(t *testing.T) {
	var tio testIO
	fc := &fakeClient{name: "fake", model: "m1", resp: "pong"}
	if err := Execute(context.Background(), []string{"ask", "ping"}, testOptions(&tio, "", fc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tio.stdout.String() != "pong" {
		t.Fatalf("stdout got %q", tio.stdout.String())
	}
}

func TestExecute_AskWithoutClientFails(t *testing.T) {
	var tio testIO
	opts := testOptions(&tio, "", nil)
	opts.NewClient = func(appconfig.App) (llm.Client, error) { return nil, llm.ErrMissingAPIKey }
	err := Execute(context.Background(), []string{"ask", "ping"}, opts)
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Fatalf("want missing key error, got %v", err)
	}
	if !strings.Contains(tio.stderr.String(), "LLM disabled") {
		t.Fatalf("stderr got %q", tio.stderr.String())
	}
}
