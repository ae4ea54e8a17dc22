package translate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultGoogleURL is the public single-shot translation endpoint.
const DefaultGoogleURL = "https://translate.googleapis.com/translate_a/single"

// HTTPConfig configures the outbound HTTP client explicitly instead of
// patching process-wide transport defaults.
type HTTPConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	Proxy              string // optional proxy URL
}

// NewHTTPClient builds an *http.Client from cfg.
func NewHTTPClient(cfg HTTPConfig) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// Backend translates one chunk of text. Implementations do not retry.
type Backend interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GoogleBackend calls the gtx translation endpoint.
type GoogleBackend struct {
	baseURL    string
	httpClient *http.Client
}

func NewGoogleBackend(baseURL string, httpClient *http.Client) *GoogleBackend {
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleBackend{baseURL: baseURL, httpClient: httpClient}
}

func (g *GoogleBackend) Translate(ctx context.Context, text, source, target string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return parseGoogleResponse(body)
}

// parseGoogleResponse concatenates the translated segments of a response of
// the form [[["seg", "src", ...], ...], ...].
func parseGoogleResponse(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty response from translate api")
	}

	var segments [][]any
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("decode segments: %w", err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			sb.WriteString(s)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no translated segments in response")
	}
	return sb.String(), nil
}

// RetryableError indicates a transient backend failure.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
