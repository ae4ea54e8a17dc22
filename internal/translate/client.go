// Package translate is a caching client over a machine-translation backend.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/bookvoice/internal/contenthash"
	"github.com/dgallion1/bookvoice/internal/metrics"
	"github.com/dgallion1/bookvoice/internal/retry"
)

// Defaults for Options fields left zero.
const (
	DefaultChunkChars  = 4500
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Options tunes the client.
type Options struct {
	SourceLanguage string // ISO code or AutoDetect
	TargetLanguage string
	MaxAttempts    int
	BaseDelay      time.Duration
	ChunkChars     int
}

// TranslationError is returned when a text could not be translated within
// the retry budget.
type TranslationError struct {
	Err error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation failed: %v", e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Client translates text through a persistent content-addressed cache.
type Client struct {
	backend Backend
	store   *FileStore
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
	flight  singleflight.Group
}

func NewClient(backend Backend, store *FileStore, opts Options, log *slog.Logger, m *metrics.Metrics) *Client {
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "en"
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "hi"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = DefaultChunkChars
	}
	return &Client{
		backend: backend,
		store:   store,
		opts:    opts,
		log:     log.With("component", "translate"),
		metrics: m,
	}
}

// TargetLanguage returns the configured target language code.
func (c *Client) TargetLanguage() string {
	return c.opts.TargetLanguage
}

// Translate returns the translation of text. Whitespace-only text yields ""
// without touching the cache or backend.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	key := contenthash.String(text)
	if v, ok := c.store.Get(key); ok {
		c.metrics.CacheLookup(metrics.Translation, true)
		return v, nil
	}
	c.metrics.CacheLookup(metrics.Translation, false)

	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		translated, err := c.translateText(shared, text)
		if err != nil {
			return "", err
		}
		if err := c.store.Put(key, translated); err != nil {
			c.log.Warn("translation cache write failed", "error", err)
		}
		return translated, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) translateText(ctx context.Context, text string) (string, error) {
	source := c.opts.SourceLanguage
	if source == AutoDetect {
		source = DetectLanguage(text)
	}

	if utf8.RuneCountInString(text) <= c.opts.ChunkChars {
		return c.translateChunk(ctx, text, source)
	}

	chunks := splitChunks(text, c.opts.ChunkChars)
	c.log.Info("translating long text in chunks", "chunks", len(chunks))
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		out, err := c.translateChunk(ctx, chunk, source)
		if err != nil {
			return "", fmt.Errorf("chunk %d: %w", i, err)
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, " "), nil
}

func (c *Client) translateChunk(ctx context.Context, text, source string) (string, error) {
	var out string
	policy := retry.Policy{
		MaxAttempts: c.opts.MaxAttempts,
		Backoff:     retry.Exponential(c.opts.BaseDelay, 0),
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.metrics.Retry(metrics.Translation)
			c.log.Warn("retryable translation error", "attempt", attempt+1, "wait", wait, "error", err)
		},
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		res, err := c.backend.Translate(ctx, text, source, c.opts.TargetLanguage)
		c.metrics.BackendCall(metrics.Translation, time.Since(start), err)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return "", &TranslationError{Err: err}
	}
	return out, nil
}

// splitChunks groups words into chunks of at most limit characters, counting
// one separator per word. A single word longer than limit forms its own chunk.
func splitChunks(text string, limit int) []string {
	var chunks []string
	var current []string
	size := 0
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word) + 1
		if size+n > limit && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			size = 0
		}
		current = append(current, word)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
