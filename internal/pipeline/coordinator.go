// Package pipeline turns a loaded document into translated, narrated pages on
// demand and prefetches the pages a reader is likely to request next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/bookvoice/internal/metrics"
	"github.com/dgallion1/bookvoice/internal/parser"
	"github.com/dgallion1/bookvoice/internal/speech"
)

// PageState is the outcome of processing one page.
type PageState string

const (
	StateCompleted PageState = "completed"
	StateError     PageState = "error"
)

// SourcePlaceholder replaces the raw text of an empty page.
const SourcePlaceholder = "Empty page"

// emptyPagePlaceholders maps a target language to its "empty page" text.
var emptyPagePlaceholders = map[string]string{
	"hi": "खाली पृष्ठ",
	"en": "Empty page",
	"es": "Página vacía",
	"fr": "Page vide",
	"de": "Leere Seite",
	"bn": "খালি পৃষ্ঠা",
	"mr": "रिकामे पान",
}

// PlaceholderFor returns the empty-page text for a target language.
func PlaceholderFor(lang string) string {
	if p, ok := emptyPagePlaceholders[lang]; ok {
		return p
	}
	return SourcePlaceholder
}

var (
	// ErrNoDocument is returned when no document has been loaded.
	ErrNoDocument = errors.New("no document loaded")
	// ErrAudioNotFound is returned when a page has no retrievable audio.
	ErrAudioNotFound = errors.New("audio not available")
)

// RangeError is returned for a page index outside [0, Total).
type RangeError struct {
	Index int
	Total int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("page %d out of range (total: %d)", e.Index, e.Total)
}

// PageResult is the processed form of one page.
type PageResult struct {
	Index          int       `json:"page_num"`
	RawText        string    `json:"original_text,omitempty"`
	TranslatedText string    `json:"translated_text,omitempty"`
	AudioKey       string    `json:"audio_key,omitempty"`
	State          PageState `json:"status"`
	Error          string    `json:"error,omitempty"`
}

// Status summarizes progress through the loaded document.
type Status struct {
	TotalPages     int `json:"total_pages"`
	ProcessedPages int `json:"processed_pages"`
	CurrentPage    int `json:"current_page"`
}

// Translator translates page text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Synthesizer produces and looks up narration audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Lookup(ctx context.Context, key string) ([]byte, bool)
}

// Options tunes a Coordinator.
type Options struct {
	TargetLanguage    string
	MaxWordsPerPage   int
	FallbackPdftotext bool
	PrefetchWindow    int
}

// document is the per-load state. A new Load replaces it wholesale, so work
// still holding an old document writes into a map nobody reads.
type document struct {
	gen     uint64
	path    string
	source  parser.Source
	total   int
	results map[int]*PageResult
	current int
}

// Coordinator owns one loaded document and its page results.
type Coordinator struct {
	translator Translator
	speech     Synthesizer
	prefetcher *Prefetcher
	opts       Options
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	doc    *document
	gen    uint64
	flight singleflight.Group
}

// NewCoordinator wires a coordinator. prefetcher may be nil, in which case
// GetPageWithPrefetch behaves like GetPage.
func NewCoordinator(tr Translator, sp Synthesizer, pf *Prefetcher, opts Options, log *slog.Logger, m *metrics.Metrics) *Coordinator {
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "hi"
	}
	if opts.PrefetchWindow < 0 {
		opts.PrefetchWindow = 0
	}
	return &Coordinator{
		translator: tr,
		speech:     sp,
		prefetcher: pf,
		opts:       opts,
		log:        log,
		metrics:    m,
	}
}

// Load opens the document at path, replacing any previously loaded one, and
// returns its page count (always at least 1).
func (c *Coordinator) Load(ctx context.Context, path string) (int, error) {
	doc, err := parser.Detect(path)
	if err != nil {
		return 0, err
	}
	src, err := parser.Open(doc, parser.Options{
		MaxWordsPerPage:   c.opts.MaxWordsPerPage,
		FallbackPdftotext: c.opts.FallbackPdftotext,
	})
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	total := max(src.Pages(), 1)

	c.mu.Lock()
	c.gen++
	c.doc = &document{
		gen:     c.gen,
		path:    path,
		source:  src,
		total:   total,
		results: make(map[int]*PageResult),
	}
	gen := c.gen
	c.mu.Unlock()

	c.log.Info("document loaded", "path", path, "format", doc.Format, "total_pages", total, "generation", gen)
	return total, nil
}

// Unload drops the current document. Queued prefetch work for it is skipped.
func (c *Coordinator) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.doc = nil
}

// Loaded returns the path of the loaded document, if any.
func (c *Coordinator) Loaded() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return "", false
	}
	return c.doc.path, true
}

func (c *Coordinator) current() (*document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, ErrNoDocument
	}
	return c.doc, nil
}

// GetPage returns the processed page i, running the pipeline synchronously on
// a cache miss. Processing failures come back as a StateError result with a
// nil error; the returned error is reserved for range and load problems.
func (c *Coordinator) GetPage(ctx context.Context, i int) (*PageResult, error) {
	d, err := c.current()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= d.total {
		return nil, &RangeError{Index: i, Total: d.total}
	}
	return c.page(ctx, d, i), nil
}

// GetPageWithPrefetch is GetPage plus recording i as the reader's position
// and queueing the next pages for background processing. It never waits on
// the prefetch.
func (c *Coordinator) GetPageWithPrefetch(ctx context.Context, i int) (*PageResult, error) {
	res, err := c.GetPage(ctx, i)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	d := c.doc
	if d != nil && d.gen == c.gen {
		d.current = i
	}
	c.mu.Unlock()
	if d == nil {
		return res, nil
	}

	start := i + 1
	end := min(start+c.opts.PrefetchWindow, d.total)
	if start < end && c.prefetcher != nil {
		pages := make([]int, 0, end-start)
		for p := start; p < end; p++ {
			pages = append(pages, p)
		}
		if !c.prefetcher.Submit(prefetchJob{coord: c, doc: d, pages: pages}) {
			c.log.Warn("prefetch queue full, dropping job", "from_page", start, "to_page", end-1)
		}
	}
	return res, nil
}

// Status reports page counts for the loaded document.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return Status{}
	}
	return Status{
		TotalPages:     c.doc.total,
		ProcessedPages: len(c.doc.results),
		CurrentPage:    c.doc.current,
	}
}

// Audio returns the narration for page i, processing the page first if needed.
func (c *Coordinator) Audio(ctx context.Context, i int) ([]byte, error) {
	res, err := c.GetPage(ctx, i)
	if err != nil {
		return nil, err
	}
	if res.State != StateCompleted || res.AudioKey == "" {
		return nil, ErrAudioNotFound
	}
	data, ok := c.speech.Lookup(ctx, res.AudioKey)
	if !ok {
		return nil, ErrAudioNotFound
	}
	return data, nil
}

func (c *Coordinator) cached(d *document, i int) (*PageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := d.results[i]
	return r, ok
}

// page returns the cached result for i or computes it. Concurrent callers for
// the same page of the same load share one computation.
func (c *Coordinator) page(ctx context.Context, d *document, i int) *PageResult {
	if r, ok := c.cached(d, i); ok {
		return r
	}

	// The shared work outlives any one caller; a caller that gives up only
	// stops waiting.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(fmt.Sprintf("%d:%d", d.gen, i), func() (any, error) {
		if r, ok := c.cached(d, i); ok {
			return r, nil
		}
		r := c.process(shared, d, i)
		if r.State != StateCompleted {
			return r, nil
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := d.results[i]; ok {
			return existing, nil
		}
		d.results[i] = r
		return r, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*PageResult)
	case <-ctx.Done():
		return &PageResult{
			Index: i,
			State: StateError,
			Error: fmt.Sprintf("error processing page %d: %v", i, ctx.Err()),
		}
	}
}

// process runs extract, translate and synthesize for one page.
func (c *Coordinator) process(ctx context.Context, d *document, i int) *PageResult {
	log := c.log.With("page", i, "generation", d.gen)
	fail := func(stage string, err error) *PageResult {
		log.Error("page processing failed", "stage", stage, "error", err)
		c.metrics.PageProcessed(metrics.OutcomeError)
		return &PageResult{
			Index: i,
			State: StateError,
			Error: fmt.Sprintf("error processing page %d: %s: %v", i, stage, err),
		}
	}

	raw, err := d.source.Page(i)
	if err != nil {
		return fail("extract", err)
	}

	var translated string
	outcome := metrics.OutcomeCompleted
	if strings.TrimSpace(raw) == "" {
		log.Info("empty page, using placeholder")
		raw = SourcePlaceholder
		translated = PlaceholderFor(c.opts.TargetLanguage)
		outcome = metrics.OutcomePlaceholder
	} else {
		log.Debug("translating page", "chars", len(raw))
		translated, err = c.translator.Translate(ctx, raw)
		if err != nil {
			return fail("translate", err)
		}
		if strings.TrimSpace(translated) == "" {
			return fail("translate", errors.New("translation returned empty text"))
		}
	}

	if _, err := c.speech.Synthesize(ctx, translated); err != nil {
		return fail("synthesize", err)
	}

	c.metrics.PageProcessed(outcome)
	log.Info("page processed", "translated_chars", len(translated))
	return &PageResult{
		Index:          i,
		RawText:        raw,
		TranslatedText: translated,
		AudioKey:       speech.Key(translated),
		State:          StateCompleted,
	}
}

// prefetch processes job.pages in order, pausing between pages that needed
// work. It stops as soon as the job's load is no longer current.
func (c *Coordinator) prefetch(ctx context.Context, job prefetchJob, delay time.Duration) {
	for n, i := range job.pages {
		if !c.isCurrent(job.doc) {
			c.log.Debug("skipping stale prefetch", "generation", job.doc.gen)
			return
		}
		if _, ok := c.cached(job.doc, i); ok {
			continue
		}

		r := c.page(ctx, job.doc, i)
		if r.State == StateError {
			c.log.Warn("prefetch failed", "page", i, "error", r.Error)
		}

		if n < len(job.pages)-1 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Coordinator) isCurrent(d *document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc == d && c.gen == d.gen
}
