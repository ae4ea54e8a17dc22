// Package speech is a two-level caching client over a text-to-speech backend.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/bookvoice/internal/blobstore"
	"github.com/dgallion1/bookvoice/internal/contenthash"
	"github.com/dgallion1/bookvoice/internal/metrics"
	"github.com/dgallion1/bookvoice/internal/retry"
)

// emptySentinel is hashed in place of whitespace-only text.
const emptySentinel = "__EMPTY__"

// Defaults for Options fields left zero.
const (
	DefaultMaxAttempts = 8
	DefaultBaseDelay   = 5 * time.Second
)

// Options tunes the client.
type Options struct {
	Language     string
	MaxAttempts  int
	BaseDelay    time.Duration
	InitialDelay time.Duration // wait before the first backend call of a miss
}

// SynthesisError is returned when audio could not be produced.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// RateLimitError signals the backend refused the call for rate reasons.
type RateLimitError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRateLimited reports whether err is a rate-limit refusal from the backend.
// Transport errors never are, whatever their message says.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Key returns the cache key for text. Whitespace-only text shares one key.
func Key(text string) string {
	if strings.TrimSpace(text) == "" {
		return contenthash.String(emptySentinel)
	}
	return contenthash.String(text)
}

// Client synthesizes speech through a memory cache backed by a blob store.
type Client struct {
	backend Backend
	store   blobstore.Store
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	memory map[string][]byte
	flight singleflight.Group
}

func NewClient(backend Backend, store blobstore.Store, opts Options, log *slog.Logger, m *metrics.Metrics) *Client {
	if opts.Language == "" {
		opts.Language = "hi"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	return &Client{
		backend: backend,
		store:   store,
		opts:    opts,
		log:     log.With("component", "speech"),
		metrics: m,
		memory:  make(map[string][]byte),
	}
}

// Synthesize returns MP3 audio for text, from cache when possible.
// Whitespace-only text yields a short silence without calling the backend.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := Key(text)
	if data, ok := c.Lookup(ctx, key); ok {
		return data, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		if data, ok := c.Lookup(shared, key); ok {
			return data, nil
		}

		var data []byte
		if strings.TrimSpace(text) == "" {
			data = Silence()
		} else {
			var err error
			data, err = c.synthesize(shared, text)
			if err != nil {
				return nil, &SynthesisError{Err: err}
			}
		}

		c.remember(key, data)
		if err := c.store.Put(shared, key, data); err != nil {
			c.log.Warn("audio store write failed", "key", key, "error", err)
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CachedAudio returns audio for text only if it is already cached.
func (c *Client) CachedAudio(ctx context.Context, text string) ([]byte, bool) {
	return c.Lookup(ctx, Key(text))
}

// Lookup checks memory, then the blob store, promoting store hits to memory.
func (c *Client) Lookup(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	data, ok := c.memory[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheLookup(metrics.Speech, true)
		return data, true
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			c.log.Warn("audio store read failed", "key", key, "error", err)
		}
		c.metrics.CacheLookup(metrics.Speech, false)
		return nil, false
	}
	c.metrics.CacheLookup(metrics.Speech, true)
	c.remember(key, data)
	return data, true
}

func (c *Client) remember(key string, data []byte) {
	c.mu.Lock()
	c.memory[key] = data
	c.mu.Unlock()
}

func (c *Client) synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.opts.InitialDelay > 0 {
		select {
		case <-time.After(c.opts.InitialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var audio []byte
	policy := retry.Policy{
		MaxAttempts: c.opts.MaxAttempts,
		Backoff:     retry.Exponential(c.opts.BaseDelay, 0),
		Retryable:   IsRateLimited,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.metrics.Retry(metrics.Speech)
			c.log.Warn("speech backend rate limited", "attempt", attempt+1, "wait", wait, "error", err)
		},
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		data, err := c.backend.Synthesize(ctx, text, c.opts.Language)
		c.metrics.BackendCall(metrics.Speech, time.Since(start), err)
		if err != nil {
			return err
		}
		audio = data
		return nil
	})
	return audio, err
}
