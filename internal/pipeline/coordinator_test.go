package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/bookvoice/internal/speech"
)

type fakeTranslator struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // remaining failures per text
	block    func(text string) bool
	release  chan struct{}
}

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		release:  make(chan struct{}),
	}
}

func (f *fakeTranslator) Translate(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.calls[text]++
	block := f.block != nil && f.block(text)
	f.mu.Unlock()

	if block {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[text] > 0 {
		f.failures[text]--
		return "", errors.New("backend unavailable")
	}
	return "T(" + text + ")", nil
}

func (f *fakeTranslator) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeTranslator) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeSpeech struct {
	mu    sync.Mutex
	audio map[string][]byte
	fail  bool
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{audio: make(map[string][]byte)}
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, &speech.SynthesisError{Err: errors.New("tts down")}
	}
	data := []byte("mp3:" + text)
	f.audio[speech.Key(text)] = data
	return data, nil
}

func (f *fakeSpeech) Lookup(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.audio[key]
	return d, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBook(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fourPages yields one page per paragraph at a budget of 3 words.
const fourPages = "alpha one two\n\nbeta three four\n\ngamma five six\n\ndelta seven eight"

func newTestCoordinator(tr Translator, sp Synthesizer, pf *Prefetcher) *Coordinator {
	return NewCoordinator(tr, sp, pf, Options{
		TargetLanguage:  "hi",
		MaxWordsPerPage: 3,
		PrefetchWindow:  3,
	}, testLogger(), nil)
}

func TestCoordinator_EmptyTextDocument(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCoordinator(tr, newFakeSpeech(), nil)

	total, err := c.Load(context.Background(), writeBook(t, "empty.txt", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 page, got %d", total)
	}

	res, err := c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted {
		t.Fatalf("expected completed, got %q (%s)", res.State, res.Error)
	}
	if res.TranslatedText != "खाली पृष्ठ" {
		t.Errorf("expected Hindi placeholder, got %q", res.TranslatedText)
	}
	if res.RawText != SourcePlaceholder {
		t.Errorf("expected source placeholder, got %q", res.RawText)
	}
	if res.AudioKey == "" {
		t.Error("expected audio key for placeholder page")
	}
	if tr.total() != 0 {
		t.Errorf("expected translation to be skipped, got %d calls", tr.total())
	}
}

func TestCoordinator_GetPageIsIdempotent(t *testing.T) {
	tr := newFakeTranslator()
	c := newTestCoordinator(tr, newFakeSpeech(), nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	first, err := c.GetPage(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetPage(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if first.TranslatedText != "T(beta three four)" {
		t.Errorf("unexpected translation %q", first.TranslatedText)
	}
	if first.TranslatedText != second.TranslatedText || first.AudioKey != second.AudioKey {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
	if n := tr.count("beta three four"); n != 1 {
		t.Errorf("expected 1 translation call, got %d", n)
	}
	if st := c.Status(); st.ProcessedPages != 1 || st.TotalPages != 4 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestCoordinator_RangeAndNoDocument(t *testing.T) {
	c := newTestCoordinator(newFakeTranslator(), newFakeSpeech(), nil)

	if _, err := c.GetPage(context.Background(), 0); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}

	total, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages))
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{-1, total, total + 5} {
		_, err := c.GetPage(context.Background(), i)
		var re *RangeError
		if !errors.As(err, &re) {
			t.Fatalf("page %d: expected RangeError, got %v", i, err)
		}
		if re.Total != total {
			t.Errorf("expected total %d in error, got %d", total, re.Total)
		}
	}
}

func TestCoordinator_UnsupportedFormat(t *testing.T) {
	c := newTestCoordinator(newFakeTranslator(), newFakeSpeech(), nil)
	if _, err := c.Load(context.Background(), writeBook(t, "sheet.xlsx", "x")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestCoordinator_FailedPageIsNotCached(t *testing.T) {
	tr := newFakeTranslator()
	tr.failures["alpha one two"] = 1
	c := newTestCoordinator(tr, newFakeSpeech(), nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	res, err := c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("page failures must not surface as errors: %v", err)
	}
	if res.State != StateError || res.Error == "" {
		t.Fatalf("expected error result, got %+v", res)
	}
	if c.Status().ProcessedPages != 0 {
		t.Errorf("expected failed page to stay uncached")
	}

	res, err = c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted {
		t.Fatalf("expected retry on next request to succeed, got %+v", res)
	}
}

func TestCoordinator_SynthesisFailureIsolated(t *testing.T) {
	sp := newFakeSpeech()
	sp.fail = true
	c := newTestCoordinator(newFakeTranslator(), sp, nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	res, err := c.GetPage(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateError || !strings.Contains(res.Error, "synthesize") {
		t.Errorf("expected synthesis error result, got %+v", res)
	}
}

func TestCoordinator_Audio(t *testing.T) {
	sp := newFakeSpeech()
	c := newTestCoordinator(newFakeTranslator(), sp, nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	audio, err := c.Audio(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "mp3:T(delta seven eight)" {
		t.Errorf("unexpected audio %q", audio)
	}

	sp.fail = true
	if _, err := c.Audio(context.Background(), 0); !errors.Is(err, ErrAudioNotFound) {
		t.Errorf("expected ErrAudioNotFound for failed page, got %v", err)
	}
}

func TestCoordinator_ReloadResetsState(t *testing.T) {
	c := newTestCoordinator(newFakeTranslator(), newFakeSpeech(), nil)
	if _, err := c.Load(context.Background(), writeBook(t, "a.txt", fourPages)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetPage(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	total, err := c.Load(context.Background(), writeBook(t, "b.txt", "just one page here"))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("expected 1 page, got %d", total)
	}
	if st := c.Status(); st.ProcessedPages != 0 || st.CurrentPage != 0 {
		t.Errorf("expected fresh status after reload, got %+v", st)
	}

	c.Unload()
	if _, ok := c.Loaded(); ok {
		t.Error("expected no document after Unload")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCoordinator_PrefetchDoesNotBlock(t *testing.T) {
	tr := newFakeTranslator()
	tr.block = func(text string) bool { return !strings.HasPrefix(text, "alpha") }

	pf := NewPrefetcher(2, 16, 0, testLogger(), nil)
	pf.Start(context.Background())
	defer pf.Stop()

	c := newTestCoordinator(tr, newFakeSpeech(), pf)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	done := make(chan *PageResult, 1)
	go func() {
		res, _ := c.GetPageWithPrefetch(context.Background(), 0)
		done <- res
	}()

	select {
	case res := <-done:
		if res == nil || res.State != StateCompleted {
			t.Fatalf("unexpected result %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetPageWithPrefetch waited on prefetch")
	}

	if c.Status().CurrentPage != 0 {
		t.Errorf("expected current page 0")
	}

	close(tr.release)
	waitFor(t, 2*time.Second, func() bool { return c.Status().ProcessedPages == 4 })
}

func TestCoordinator_PrefetchWindowClipped(t *testing.T) {
	tr := newFakeTranslator()
	pf := NewPrefetcher(1, 16, 0, testLogger(), nil)
	pf.Start(context.Background())
	defer pf.Stop()

	c := newTestCoordinator(tr, newFakeSpeech(), pf)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	if _, err := c.GetPageWithPrefetch(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return c.Status().ProcessedPages == 2 })
	if c.Status().CurrentPage != 2 {
		t.Errorf("expected current page 2, got %d", c.Status().CurrentPage)
	}
	if tr.count("alpha one two") != 0 || tr.count("beta three four") != 0 {
		t.Error("expected earlier pages to be left alone")
	}
}

func TestCoordinator_StalePrefetchDiscarded(t *testing.T) {
	tr := newFakeTranslator()
	tr.block = func(text string) bool { return strings.HasPrefix(text, "beta") }

	pf := NewPrefetcher(1, 16, 0, testLogger(), nil)
	pf.Start(context.Background())
	defer pf.Stop()

	c := newTestCoordinator(tr, newFakeSpeech(), pf)
	if _, err := c.Load(context.Background(), writeBook(t, "a.txt", fourPages)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetPageWithPrefetch(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	// Worker is now stuck on page 1 of the first load.
	waitFor(t, 2*time.Second, func() bool { return tr.count("beta three four") == 1 })

	if _, err := c.Load(context.Background(), writeBook(t, "b.txt", "other book entirely")); err != nil {
		t.Fatal(err)
	}
	close(tr.release)

	time.Sleep(50 * time.Millisecond)
	if st := c.Status(); st.ProcessedPages != 0 || st.TotalPages != 1 {
		t.Errorf("expected stale prefetch results to be discarded, got %+v", st)
	}
	if tr.count("gamma five six") != 0 {
		t.Error("expected remaining stale pages to be skipped")
	}
}

func TestPrefetcher_SubmitDropsWhenFull(t *testing.T) {
	pf := NewPrefetcher(1, 1, 0, testLogger(), nil)
	c := newTestCoordinator(newFakeTranslator(), newFakeSpeech(), pf)

	job := prefetchJob{coord: c, doc: &document{}, pages: []int{0}}
	if !pf.Submit(job) {
		t.Fatal("expected first submit to be accepted")
	}
	if pf.Submit(job) {
		t.Fatal("expected submit on a full queue to be dropped")
	}
	if pf.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", pf.QueueDepth())
	}

	pf.Stop()
	if pf.Submit(job) {
		t.Error("expected submit after stop to be dropped")
	}
}

func TestPlaceholderFor(t *testing.T) {
	if PlaceholderFor("hi") != "खाली पृष्ठ" {
		t.Errorf("unexpected Hindi placeholder %q", PlaceholderFor("hi"))
	}
	if PlaceholderFor("xx") != SourcePlaceholder {
		t.Errorf("expected fallback placeholder, got %q", PlaceholderFor("xx"))
	}
}

// flakySource fails Page for the first failN calls.
type flakySource struct {
	mu    sync.Mutex
	failN int
	text  string
}

func (s *flakySource) Pages() int { return 1 }

func (s *flakySource) Page(i int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return "", errors.New("extract pdf page 1: zlib: invalid header")
	}
	return s.text, nil
}

func TestCoordinator_ExtractFailureIsRetryableNotPlaceholder(t *testing.T) {
	tr := newFakeTranslator()
	sp := newFakeSpeech()
	c := newTestCoordinator(tr, sp, nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", "stub")); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.doc.source = &flakySource{failN: 1, text: "real words"}
	c.mu.Unlock()

	res, err := c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateError || !strings.Contains(res.Error, "extract") {
		t.Fatalf("expected extract error result, got %+v", res)
	}
	if res.TranslatedText == PlaceholderFor("hi") {
		t.Errorf("extract failure must not become the empty-page placeholder")
	}
	if c.Status().ProcessedPages != 0 {
		t.Errorf("expected failed extraction to stay uncached")
	}

	res, err = c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted || res.TranslatedText != "T(real words)" {
		t.Fatalf("expected retry to succeed, got %+v", res)
	}
}

func TestCoordinator_CanceledCallerDoesNotFailSharedPage(t *testing.T) {
	tr := newFakeTranslator()
	tr.block = func(text string) bool { return text == "alpha one two" }
	c := newTestCoordinator(tr, newFakeSpeech(), nil)
	if _, err := c.Load(context.Background(), writeBook(t, "book.txt", fourPages)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *PageResult, 1)
	go func() {
		res, _ := c.GetPage(ctx, 0)
		first <- res
	}()
	waitFor(t, time.Second, func() bool { return tr.count("alpha one two") == 1 })

	cancel()
	if res := <-first; res.State != StateError {
		t.Fatalf("expected canceled caller to get an error result, got %+v", res)
	}

	close(tr.release)
	res, err := c.GetPage(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateCompleted {
		t.Fatalf("expected shared work to complete, got %+v", res)
	}
	if n := tr.count("alpha one two"); n != 1 {
		t.Errorf("expected one translation call, got %d", n)
	}
}
