// Package server は生成 API とログイン API の HTTP 入口です。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waliduser3737-spec/api-photo-project/pkg/auth"
	"github.com/waliduser3737-spec/api-photo-project/pkg/generator"
)

const (
	DefaultAddr           = ":8080"
	DefaultRequestTimeout = 100 * time.Second
	DefaultMaxBodyBytes   = 32 << 20
)

// LoginRecorder はログイン試行のメトリクスを記録します。
type LoginRecorder interface {
	ObserveLogin(success bool)
}

// Config は Server の依存関係と設定です。
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Generator      generator.ImageGenerator
	Verifier       auth.Verifier
	LoginRecorder  LoginRecorder
	// MetricsHandler が nil の場合は既定のレジストリを公開します。
	MetricsHandler http.Handler
}

// Server は gin のルーターを保持します。
type Server struct {
	addr           string
	router         *gin.Engine
	generator      generator.ImageGenerator
	verifier       auth.Verifier
	loginRecorder  LoginRecorder
	requestTimeout time.Duration
	maxBodyBytes   int64
}

// NewServer はルーティングを構成した Server を返します。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("server requires an image generator")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server requires a credential verifier")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	s := &Server{
		addr:           cfg.Addr,
		generator:      cfg.Generator,
		verifier:       cfg.Verifier,
		loginRecorder:  cfg.LoginRecorder,
		requestTimeout: cfg.RequestTimeout,
		maxBodyBytes:   cfg.MaxBodyBytes,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), requestLogger())
	router.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	for _, path := range []string{"/api/generate", "/.netlify/functions/generate"} {
		router.POST(path, s.handleGenerate)
	}
	for _, path := range []string{"/api/login", "/.netlify/functions/login"} {
		router.POST(path, s.handleLogin)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))

	s.router = router
	return s, nil
}

// Handler はテストや外部のサーバーに組み込むための http.Handler を返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr は待ち受けアドレスを返します。
func (s *Server) Addr() string {
	return s.addr
}

// Start は ctx がキャンセルされるまで HTTP サーバーを動かします。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.InfoContext(ctx, "HTTP サーバーを起動しました", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("HTTP サーバーを停止します")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.DebugContext(c.Request.Context(), "HTTP リクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"elapsed", time.Since(start),
		)
	}
}
