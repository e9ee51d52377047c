package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/waliduser3737-spec/api-photo-project/pkg/adapters"
	"github.com/waliduser3737-spec/api-photo-project/pkg/auth"
	"github.com/waliduser3737-spec/api-photo-project/pkg/config"
	"github.com/waliduser3737-spec/api-photo-project/pkg/generator"
	"github.com/waliduser3737-spec/api-photo-project/pkg/metrics"
	"github.com/waliduser3737-spec/api-photo-project/pkg/poller"
	"github.com/waliduser3737-spec/api-photo-project/pkg/server"
	"github.com/waliduser3737-spec/api-photo-project/pkg/source"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("サーバーが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	fetcher := httpkit.New(cfg.Fetch.Timeout)

	builderOpts := []source.Option{
		source.WithHTTPClient(fetcher),
		source.WithMaxImageBytes(cfg.Fetch.MaxImageBytes),
	}
	if cfg.Cache.MaxBytes > 0 {
		cache, err := source.NewRistrettoCache(cfg.Cache.MaxBytes)
		if err != nil {
			return fmt.Errorf("キャッシュの初期化に失敗しました: %w", err)
		}
		defer cache.Close()
		builderOpts = append(builderOpts, source.WithCache(cache, cfg.Cache.TTL))
	}
	reader, closeReader, err := source.NewObjectReader(ctx, cfg.Fetch.ObjectStorage)
	if err != nil {
		return err
	}
	defer closeReader()
	if reader != nil {
		builderOpts = append(builderOpts, source.WithRemoteReader(reader))
		slog.Info("オブジェクトストレージ参照を有効にしました", "stores", cfg.Fetch.ObjectStorage)
	}
	builder := source.NewBuilder(builderOpts...)

	registry, err := adapters.NewRegistry(cfg.Providers, adapters.Deps{
		HTTPClient: &http.Client{},
		Poller: &poller.Poller{
			Interval:    cfg.Poll.Interval,
			MaxAttempts: cfg.Poll.MaxAttempts,
			OnTick:      collector.ObservePoll,
		},
		Fetcher: fetcher,
	})
	if err != nil {
		return err
	}

	svc, err := generator.NewService(registry, builder, cfg.DefaultProvider, generator.WithRecorder(collector))
	if err != nil {
		return err
	}

	verifier, err := auth.NewStaticVerifier(cfg.Users)
	if err != nil {
		return err
	}
	if len(cfg.Users) == 0 {
		slog.Warn("ユーザーが設定されていないため、ログインは常に失敗します")
	}

	srv, err := server.NewServer(server.Config{
		Addr:           cfg.Server.Addr,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Generator:      svc,
		Verifier:       verifier,
		LoginRecorder:  collector,
	})
	if err != nil {
		return err
	}

	slog.Info("プロバイダーを登録しました", "providers", registry.Names(), "default", cfg.DefaultProvider)

	return srv.Start(ctx)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
