// Summary: Test helpers for ghosttext CLI tests (fake LLM clients/streamers and options).
package ghosttextcli

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"ghosttext/internal/appconfig"
	"ghosttext/internal/llm"
)

// fakeClient implements llm.Client for tests.
type fakeClient struct {
	name  string
	model string
	resp  string
	err   error

	mu      sync.Mutex
	gotMsgs []llm.Message
	calls   int
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, opts ...llm.RequestOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotMsgs = append([]llm.Message{}, messages...)
	return f.resp, f.err
}
func (f *fakeClient) Name() string         { return f.name }
func (f *fakeClient) DefaultModel() string { return f.model }

// fakeStreamer implements llm.Streamer over fakeClient.
type fakeStreamer struct {
	fakeClient
	chunks []string
	sMsgs  []llm.Message
}

func (s *fakeStreamer) ChatStream(ctx context.Context, messages []llm.Message, onDelta func(string), opts ...llm.RequestOption) error {
	s.sMsgs = append([]llm.Message{}, messages...)
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

// testIO collects the CLI output streams.
type testIO struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// testOptions wires a fake client, default config and the given stdin.
func testOptions(tio *testIO, stdin string, client llm.Client) Options {
	return Options{
		Stdin:      bytes.NewBufferString(stdin),
		Stdout:     &tio.stdout,
		Stderr:     &tio.stderr,
		LoadConfig: func(*log.Logger) appconfig.App { return appconfig.Defaults() },
		NewClient:  func(appconfig.App) (llm.Client, error) { return client, nil },
		Serve: func(string, io.Reader, io.Writer, io.Writer) error {
			return nil
		},
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(b)
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }
