package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/units"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loggerchronicles/chronicles_sdk_go/internal/devseed"
	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles"
	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles/mock"
)

type failConfig struct {
	rate float64
	code int
}

const requestIDHeader = "X-Request-ID"

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	seed := flag.String("seed", "", "path to a YAML or JSON seed file")
	apiKey := flag.String("api-key", "", "require this X-API-Key on every request")
	apiVersion := flag.String("api-version", chronicles.DefaultAPIVersion, "API version segment to serve")
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	maxUpload := flag.String("max-upload", "32MiB", "largest accepted backup body, 0 disables the limit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(*debug)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	limit, err := parseSize(*maxUpload)
	if err != nil {
		logger.Fatal("parse max-upload flag", zap.Error(err))
	}
	failCfg, err := parseFailConfig(*fail)
	if err != nil {
		logger.Fatal("parse fail flag", zap.Error(err))
	}

	svc := mock.New(
		mock.WithAPIKey(*apiKey),
		mock.WithAPIVersion(*apiVersion),
		mock.WithMaxUploadSize(limit),
		mock.WithLogger(logger),
	)
	if *seed != "" {
		entries, err := devseed.LoadSeed(*seed)
		if err != nil {
			logger.Fatal("load seed", zap.Error(err))
		}
		if err := svc.Seed(entries); err != nil {
			logger.Fatal("apply seed", zap.Error(err))
		}
		logger.Info("seed applied", zap.String("file", *seed), zap.Int("files", len(entries)))
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           withMiddleware(logger, *latency, failCfg, rand.Float64, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("chronicles-sandbox listening",
		zap.String("addr", *addr),
		zap.Int64("max_upload", limit),
		zap.Duration("latency", *latency),
		zap.Float64("fail_rate", failCfg.rate))
	printExports(*addr, *apiKey, *apiVersion)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func printExports(addr, apiKey, apiVersion string) {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Println()
	fmt.Println("export CHRONICLES_RUNTIME_MODE=http")
	fmt.Printf("export CHRONICLES_API_URL=http://%s\n", host)
	if apiKey != "" {
		fmt.Printf("export CHRONICLES_API_KEY=%s\n", apiKey)
	}
	if apiVersion != chronicles.DefaultAPIVersion {
		fmt.Printf("export CHRONICLES_API_VERSION=%s\n", apiVersion)
	}
	fmt.Println()
}

func newLogger(debug bool) *zap.Logger {
	atom := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		atom.SetLevel(zap.DebugLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// withMiddleware tags every request with an ID, then applies the configured
// latency and failure injection before handing over to next.
func withMiddleware(logger *zap.Logger, delay time.Duration, failCfg failConfig, roll func() float64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		log := logger.With(
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.EscapedPath()))

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failCfg.rate > 0 && roll() < failCfg.rate {
			status := failCfg.code
			if status == 0 {
				status = http.StatusInternalServerError
			}
			log.Info("failure injected", zap.Int("status", status))
			http.Error(w, "failure injected", status)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request served", zap.Duration("elapsed", time.Since(start)))
	})
}

func parseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	n, err := units.ParseBase2Bytes(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", raw)
	}
	return int64(n), nil
}

func parseFailConfig(raw string) (failConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return failConfig{}, nil
	}
	cfg := failConfig{code: http.StatusInternalServerError}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyVal := strings.SplitN(part, "=", 2)
		if len(keyVal) != 2 {
			return failConfig{}, errors.Errorf("invalid fail segment %q", part)
		}
		val := strings.TrimSpace(keyVal[1])
		switch strings.TrimSpace(keyVal[0]) {
		case "rate":
			rate, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return failConfig{}, errors.Wrap(err, "fail rate")
			}
			if rate < 0 || rate > 1 {
				return failConfig{}, errors.Errorf("fail rate %v outside [0,1]", rate)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(val)
			if err != nil {
				return failConfig{}, errors.Wrap(err, "fail code")
			}
			if code < 100 || code > 599 {
				return failConfig{}, errors.Errorf("fail code %d is not an HTTP status", code)
			}
			cfg.code = code
		default:
			return failConfig{}, errors.Errorf("unknown fail key %q", keyVal[0])
		}
	}
	return cfg, nil
}
