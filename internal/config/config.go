package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

type Config struct {
	Port string

	// Auth (optional; empty disables bearer auth)
	APIKey string

	// Storage
	UploadDir      string
	CacheDir       string
	MaxUploadBytes int64

	// Pagination
	MaxWordsPerPage int

	// Prefetch
	PrefetchWindow    int
	PrefetchWorkers   int
	PrefetchQueueSize int
	PrefetchDelay     time.Duration

	// Sessions
	SessionTTL time.Duration

	// Translation backend
	SourceLanguage       string
	TargetLanguage       string
	TranslateURL         string
	TranslateTimeout     time.Duration
	TranslateMaxAttempts int
	TranslateBaseDelay   time.Duration
	TranslateChunkChars  int
	InsecureSkipVerify   bool
	HTTPProxy            string

	// Speech backend
	TTSURL          string
	TTSTimeout      time.Duration
	TTSMaxAttempts  int
	TTSBaseDelay    time.Duration
	TTSInitialDelay time.Duration

	// Audio store: "disk" or "nats"
	AudioStore string
	NatsURL    string
	NatsBucket string

	// PDF
	PDFFallbackPdftotext bool

	// Render marks the hosted deployment (ephemeral filesystem, stricter upstream rate limits).
	Render bool
}

// Load reads configuration from the environment. A .env file in the working
// directory (or ENV_FILE) is applied first without overriding set variables.
func Load() Config {
	envFile := envOr("ENV_FILE", ".env")
	_ = godotenv.Load(envFile)

	render := os.Getenv("RENDER") != ""

	uploadDir, cacheDir := "books", "cache"
	prefetchDelay := 1500 * time.Millisecond
	var ttsInitialDelay time.Duration
	if render {
		uploadDir, cacheDir = "/tmp/books", "/tmp/cache"
		prefetchDelay = 4 * time.Second
		ttsInitialDelay = 3 * time.Second
	}

	cfg := Config{
		Port:   envOr("PORT", "5000"),
		APIKey: os.Getenv("API_KEY"),

		UploadDir:      envOr("UPLOAD_FOLDER", uploadDir),
		CacheDir:       envOr("CACHE_FOLDER", cacheDir),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		MaxWordsPerPage: envInt("MAX_WORDS_PER_PAGE", 250),

		PrefetchWindow:    envInt("PREFETCH_WINDOW", 3),
		PrefetchWorkers:   envInt("PREFETCH_WORKERS", 2),
		PrefetchQueueSize: envInt("PREFETCH_QUEUE_SIZE", 16),
		PrefetchDelay:     envDuration("PREFETCH_DELAY", prefetchDelay),

		SessionTTL: envDuration("SESSION_TTL", 1*time.Hour),

		SourceLanguage:       envOr("SOURCE_LANGUAGE", "en"),
		TargetLanguage:       envOr("TARGET_LANGUAGE", "hi"),
		TranslateURL:         envOr("TRANSLATE_URL", "https://translate.googleapis.com/translate_a/single"),
		TranslateTimeout:     envDuration("TRANSLATE_TIMEOUT", 10*time.Second),
		TranslateMaxAttempts: envInt("TRANSLATE_MAX_ATTEMPTS", 3),
		TranslateBaseDelay:   envDuration("TRANSLATE_BASE_DELAY", 1*time.Second),
		TranslateChunkChars:  envInt("TRANSLATE_CHUNK_CHARS", 4500),
		InsecureSkipVerify:   envBool("TRANSLATE_INSECURE_SKIP_VERIFY", false),
		HTTPProxy:            os.Getenv("TRANSLATE_PROXY"),

		TTSURL:          envOr("TTS_URL", "https://translate.google.com/translate_tts"),
		TTSTimeout:      envDuration("TTS_TIMEOUT", 30*time.Second),
		TTSMaxAttempts:  envInt("TTS_MAX_ATTEMPTS", 8),
		TTSBaseDelay:    envDuration("TTS_BASE_DELAY", 5*time.Second),
		TTSInitialDelay: envDuration("TTS_INITIAL_DELAY", ttsInitialDelay),

		AudioStore: envOr("AUDIO_STORE", "disk"),
		NatsURL:    envOr("NATS_URL", "nats://127.0.0.1:4222"),
		NatsBucket: envOr("NATS_AUDIO_BUCKET", "bookvoice-audio"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		Render: render,
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxWordsPerPage <= 0 {
		cfg.MaxWordsPerPage = 250
	}
	if cfg.PrefetchWindow < 0 {
		cfg.PrefetchWindow = 3
	}
	if cfg.PrefetchWorkers <= 0 {
		cfg.PrefetchWorkers = 2
	}
	if cfg.PrefetchQueueSize <= 0 {
		cfg.PrefetchQueueSize = 16
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}
	if cfg.TranslateMaxAttempts <= 0 {
		cfg.TranslateMaxAttempts = 3
	}
	if cfg.TranslateChunkChars <= 0 {
		cfg.TranslateChunkChars = 4500
	}
	if cfg.TTSMaxAttempts <= 0 {
		cfg.TTSMaxAttempts = 8
	}

	return cfg
}

func (c Config) Validate() error {
	if _, err := language.Parse(c.TargetLanguage); err != nil {
		return fmt.Errorf("TARGET_LANGUAGE %q: %w", c.TargetLanguage, err)
	}
	if c.SourceLanguage != "auto" {
		if _, err := language.Parse(c.SourceLanguage); err != nil {
			return fmt.Errorf("SOURCE_LANGUAGE %q: %w", c.SourceLanguage, err)
		}
	}
	switch c.AudioStore {
	case "disk", "nats":
	default:
		return fmt.Errorf("AUDIO_STORE must be disk or nats, got %q", c.AudioStore)
	}
	if c.UploadDir == "" || c.CacheDir == "" {
		return fmt.Errorf("UPLOAD_FOLDER and CACHE_FOLDER are required")
	}
	return nil
}

// TranslationCachePath is the JSON file holding the translation cache.
func (c Config) TranslationCachePath() string {
	return filepath.Join(c.CacheDir, "translations.json")
}

// AudioCacheDir is the directory holding the disk audio cache.
func (c Config) AudioCacheDir() string {
	return filepath.Join(c.CacheDir, "audio")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
