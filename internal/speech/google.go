package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultGoogleURL is the public text-to-speech endpoint.
const DefaultGoogleURL = "https://translate.google.com/translate_tts"

// maxPieceChars is the longest text the endpoint accepts per request.
const maxPieceChars = 200

// Backend turns text into MP3 audio. Implementations do not retry.
type Backend interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// GoogleBackend calls translate_tts once per ≤200 character piece and
// concatenates the MP3 bodies.
type GoogleBackend struct {
	baseURL    string
	httpClient *http.Client
}

func NewGoogleBackend(baseURL string, httpClient *http.Client) *GoogleBackend {
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleBackend{baseURL: baseURL, httpClient: httpClient}
}

func (g *GoogleBackend) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	pieces := splitPieces(text, maxPieceChars)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("no text to synthesize")
	}

	var audio bytes.Buffer
	for i, piece := range pieces {
		data, err := g.fetch(ctx, piece, lang, i, len(pieces))
		if err != nil {
			return nil, err
		}
		audio.Write(data)
	}
	return audio.Bytes(), nil
}

func (g *GoogleBackend) fetch(ctx context.Context, text, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(text)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode != http.StatusOK && rateLimitBody(body)) {
		return nil, &RateLimitError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("tts api returned no audio")
	}
	return body, nil
}

// splitPieces groups words into pieces of at most limit runes. Words longer
// than limit are cut.
func splitPieces(text string, limit int) []string {
	var pieces []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > limit {
			flush()
			r := []rune(word)
			pieces = append(pieces, string(r[:limit]))
			word = string(r[limit:])
		}
		n := utf8.RuneCountInString(word)
		if curLen > 0 && curLen+1+n > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return pieces
}

// rateLimitBody recognizes throttling pages served with a non-429 status.
func rateLimitBody(body []byte) bool {
	msg := strings.ToLower(string(body))
	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
