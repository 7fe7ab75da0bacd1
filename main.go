package main

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/redis/go-redis/v9"

	"zap-server/internal/bolt11"
	"zap-server/internal/cache"
	"zap-server/internal/nips"
	"zap-server/internal/scoreboard"
	"zap-server/internal/zaps"
)

// Request body size limits
const (
	maxBodySize = 32 * 1024 // 32KB for POST requests
)

// limitBody wraps an HTTP handler to limit request body size
func limitBody(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// securityHeaders wraps an HTTP handler to add security headers
func securityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Content Security Policy - only same-origin resources; the QR
		// image is served from this process
		csp := "default-src 'self'; " +
			"img-src 'self' data:; " +
			"style-src 'self' 'unsafe-inline'; " +
			"script-src 'self'"
		w.Header().Set("Content-Security-Policy", csp)

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")

		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Referrer policy - don't leak full URLs to external sites
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

// buildScoreboard picks the relay scoreboard backend: Redis when configured,
// otherwise in-process memory.
func buildScoreboard(cfg *Config) scoreboard.Store {
	if cfg.RedisURL == "" {
		slog.Info("using in-memory relay scoreboard")
		return scoreboard.NewMemory()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL, falling back to in-memory scoreboard", "error", err)
		return scoreboard.NewMemory()
	}

	slog.Info("using redis relay scoreboard", "addr", opts.Addr)
	return scoreboard.NewRedis(redis.NewClient(opts), "zap:relay:")
}

// buildSigner loads the configured signing key, or generates an ephemeral
// one so the server still works out of the box.
func buildSigner(cfg *Config) *LocalSigner {
	keyHex := cfg.SignerKeyHex
	if keyHex == "" {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			slog.Error("could not generate signing key", "error", err)
			os.Exit(1)
		}
		keyHex = hex.EncodeToString(key.Serialize())
		slog.Warn("ZAP_SIGNER_KEY not set, generated an ephemeral signing key")
	}

	signer, err := NewLocalSigner(keyHex)
	if err != nil {
		slog.Error("invalid ZAP_SIGNER_KEY", "error", err)
		os.Exit(1)
	}

	npub, err := nips.EncodePubkey(signer.PublicKey)
	if err == nil {
		slog.Info("zap requests will be signed as", "npub", npub)
	}
	return signer
}

func main() {
	InitLogger()
	appConfig = LoadConfig()

	scores := buildScoreboard(appConfig)
	relayFetcher = NewRelayFetcher(scores)
	payInfoCache := cache.NewMemory(1000, time.Minute)

	zapPipeline = &zaps.Pipeline{
		Resolver:     NewProfileIdentityResolver(relayFetcher, payInfoCache),
		Ranker:       scores,
		Signer:       buildSigner(appConfig),
		Submitter:    zaps.LNURLSubmitter{},
		DecodeAmount: bolt11.DecodeAmountMsats,
	}

	mux := http.NewServeMux()

	// Root path redirects to the zap form, everything else 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/zap", http.StatusFound)
		} else {
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/zap", securityHeaders(limitBody(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			zapFormHandler(w, r)
		case http.MethodPost:
			zapSubmitHandler(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}, maxBodySize)))
	mux.HandleFunc("/zap/qr", securityHeaders(zapQRHandler))
	mux.HandleFunc("/zaps", securityHeaders(zapReceiptsHandler))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/metrics", metricsHandler)

	addr := ":" + appConfig.Port
	slog.Info("starting zap server", "addr", addr)
	if err := http.ListenAndServe(addr, RequestLoggingMiddleware(mux)); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
