// Package config はサーバーとプロバイダーの設定を読み込みます。
//
// 優先順位は 環境変数 (PHOTO_ 接頭辞) > 設定ファイル (YAML) > 既定値 です。
// .env が存在する場合は最初に読み込みます。
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix は環境変数による上書きの接頭辞です (例: PHOTO_SERVER_ADDR)。
const EnvPrefix = "PHOTO"

// プロバイダー種別
const (
	KindReplicate   = "replicate"
	KindFlux        = "flux"
	KindHuggingFace = "huggingface"
	KindStability   = "stability"
	KindGemini      = "gemini"
)

// KnownKinds は対応しているプロバイダー種別の一覧です。
var KnownKinds = []string{KindReplicate, KindFlux, KindHuggingFace, KindStability, KindGemini}

// オブジェクトストレージの種別 (fetch.object_storage)
const (
	ObjectStoreGCS = "gcs"
	ObjectStoreS3  = "s3"
)

// KnownObjectStores は参照画像の読み出しに対応しているオブジェクトストレージです。
var KnownObjectStores = []string{ObjectStoreGCS, ObjectStoreS3}

type Config struct {
	Server          ServerConfig     `mapstructure:"server"`
	Log             LogConfig        `mapstructure:"log"`
	Poll            PollConfig       `mapstructure:"poll"`
	Cache           CacheConfig      `mapstructure:"cache"`
	Fetch           FetchConfig      `mapstructure:"fetch"`
	DefaultProvider string           `mapstructure:"default_provider"`
	Providers       []ProviderConfig `mapstructure:"providers"`
	Users           []UserConfig     `mapstructure:"users"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxBodyBytes はリクエストボディの上限です。base64 画像を 2 枚含められる大きさにします。
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// CacheConfig は URL 参照画像のキャッシュ設定です。MaxBytes が 0 の場合は無効です。
type CacheConfig struct {
	MaxBytes int64         `mapstructure:"max_bytes"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// FetchConfig は参照画像の取得設定です。
// ObjectStorage に gcs / s3 を並べると gs:// / s3:// の参照を受け付けます。空なら無効です。
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxImageBytes int           `mapstructure:"max_image_bytes"`
	ObjectStorage []string      `mapstructure:"object_storage"`
}

// ProviderConfig はプロバイダー 1 件分の設定です。
// 同じ種別を異なる名前で複数登録できます。
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// Version は Replicate のモデルバージョンです。空の場合は Model のエンドポイントを使います。
	Version string `mapstructure:"version"`
	// Wait は Replicate の同期待ち (Prefer: wait) を有効にします。
	Wait bool `mapstructure:"wait"`
	// Variant は Hugging Face のペイロード形式です (image-inputs / prompt-inputs)。
	Variant string `mapstructure:"variant"`
	// Accept は応答形式の指定です (Stability: application/json または image/*)。
	Accept string `mapstructure:"accept"`
	// InlineResults は URL 出力を取得して data URI に変換します。
	InlineResults bool          `mapstructure:"inline_results"`
	GuidanceScale float64       `mapstructure:"guidance_scale"`
	Steps         int           `mapstructure:"steps"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// UserConfig はログイン可能なユーザーです。パスワードは argon2id のハッシュで保持します。
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Load は設定を読み込みます。path が空の場合はカレントディレクトリと ./configs の
// config.yaml を探し、見つからなければ既定値と環境変数だけで構成します。
func Load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗しました: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 100*time.Second)
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("poll.interval", 1500*time.Millisecond)
	v.SetDefault("poll.max_attempts", 60)
	v.SetDefault("cache.max_bytes", 64<<20)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_image_bytes", 10<<20)
	v.SetDefault("fetch.object_storage", []string{})
	v.SetDefault("default_provider", "")
}

// applyDefaults はファイルにも環境変数にも無い値を補います。
func applyDefaults(cfg *Config) {
	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{{Name: KindReplicate, Kind: KindReplicate}}
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Name == "" {
			p.Name = p.Kind
		}
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = cfg.Providers[0].Name
	}
	stores := cfg.Fetch.ObjectStorage[:0]
	for _, s := range cfg.Fetch.ObjectStorage {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !slices.Contains(stores, s) {
			stores = append(stores, s)
		}
	}
	cfg.Fetch.ObjectStorage = stores
	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = 60
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 1500 * time.Millisecond
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 100 * time.Second
	}
}

// Validate は設定の整合性を検査します。
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("provider name is required")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if !isKnownKind(p.Kind) {
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	if _, ok := seen[c.DefaultProvider]; !ok {
		return fmt.Errorf("default provider %q is not configured", c.DefaultProvider)
	}
	for _, s := range c.Fetch.ObjectStorage {
		if !slices.Contains(KnownObjectStores, s) {
			return fmt.Errorf("fetch.object_storage: unknown store %q", s)
		}
	}
	for _, u := range c.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return errors.New("users require both username and password_hash")
		}
	}
	return nil
}

func isKnownKind(kind string) bool {
	return slices.Contains(KnownKinds, kind)
}
