// Summary: Chat backend used by inline suggestions and inline chat: one prompt in, one
// complete reply out, over an llm.Client with a small reply cache and traffic stats.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ghosttext/internal/llm"
	"ghosttext/internal/logging"
)

// Backend returns a complete reply for prompt. There is no streaming and no
// partial result; errors cover transport, auth and rate-limit failures.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

func (f BackendFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

const cacheSize = 10

// Stats counts backend traffic since construction.
type Stats struct {
	Requests  int64
	Responses int64
	CacheHits int64
	SentBytes int64
	RecvBytes int64
	Started   time.Time
}

// LLMBackend sends each prompt as a user message after a fixed system prompt.
type LLMBackend struct {
	client llm.Client
	system string
	opts   []llm.RequestOption

	mu    sync.Mutex
	cache map[string]string
	order []string
	stats Stats
}

// NewLLMBackend wraps client. opts are applied to every request.
func NewLLMBackend(client llm.Client, system string, opts ...llm.RequestOption) (*LLMBackend, error) {
	if client == nil {
		return nil, errors.New("chat: nil llm client")
	}
	return &LLMBackend{
		client: client,
		system: system,
		opts:   opts,
		cache:  make(map[string]string),
		stats:  Stats{Started: time.Now()},
	}, nil
}

// Complete returns a cached reply for a repeated prompt, otherwise asks the model.
func (b *LLMBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if v, ok := b.cacheGet(prompt); ok {
		logging.Logf("chat ", "cache hit size=%d", len(v))
		return v, nil
	}
	msgs := make([]llm.Message, 0, 2)
	if strings.TrimSpace(b.system) != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: b.system})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: prompt})
	b.countSent(len(b.system) + len(prompt))
	out, err := b.client.Chat(ctx, msgs, b.opts...)
	if err != nil {
		return "", err
	}
	b.countRecv(len(out))
	b.cachePut(prompt, out)
	b.logStats()
	return out, nil
}

// Stats returns a copy of the traffic counters.
func (b *LLMBackend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *LLMBackend) countSent(n int) {
	b.mu.Lock()
	b.stats.Requests++
	b.stats.SentBytes += int64(n)
	b.mu.Unlock()
}

func (b *LLMBackend) countRecv(n int) {
	b.mu.Lock()
	b.stats.Responses++
	b.stats.RecvBytes += int64(n)
	b.mu.Unlock()
}

func (b *LLMBackend) logStats() {
	s := b.Stats()
	mins := time.Since(s.Started).Minutes()
	if mins <= 0 {
		mins = 0.001
	}
	avgSent, avgRecv := int64(0), int64(0)
	if s.Requests > 0 {
		avgSent = s.SentBytes / s.Requests
	}
	if s.Responses > 0 {
		avgRecv = s.RecvBytes / s.Responses
	}
	logging.Logf("chat ", "llm stats provider=%s reqs=%d hits=%d avg_sent=%d avg_recv=%d rpm=%.2f",
		b.client.Name(), s.Requests, s.CacheHits, avgSent, avgRecv, float64(s.Requests)/mins)
}

// --- small reply cache (last ~10 entries) ---

func (b *LLMBackend) cacheGet(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.cache[key]
	if !ok {
		return "", false
	}
	b.stats.CacheHits++
	b.touchLocked(key)
	return v, true
}

func (b *LLMBackend) cachePut(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.cache[key]; exists {
		b.cache[key] = value
		b.touchLocked(key)
		return
	}
	b.cache[key] = value
	b.order = append(b.order, key)
	if len(b.order) > cacheSize {
		old := b.order[0]
		b.order = b.order[1:]
		delete(b.cache, old)
	}
}

// touchLocked marks key most recent; b.mu must be held.
func (b *LLMBackend) touchLocked(key string) {
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
	b.order = append(b.order, key)
}
