package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Configはリモートストア（APIサーバ）の設定
type Config struct {
	Port string // サーバーポート（8080）

	StoreDriver string // postgres / memory

	JWTSecret string // JWT署名シークレット

	GoEnv string // dev/prod
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

// LoadDotEnv は .env があれば読む（無ければ何もしない）
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:        getenv("PORT", "8080"),
		StoreDriver: getenv("STORE_DRIVER", DriverPostgres),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GoEnv:       getenv("GO_ENV", "prod"),
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be %s or %s", DriverPostgres, DriverMemory)
	}

	return cfg, nil
}

// ClientConfig はストアフロント側（マージ調整役・CLI）の設定
type ClientConfig struct {
	APIBaseURL     string        // リモートAPIのURL
	RequestTimeout time.Duration // 1リクエストの上限

	MergeMaxAttempts     int           // マージの試行回数
	MergeInitialInterval time.Duration // リトライ間隔の初期値
	MergeMaxInterval     time.Duration

	StatePath string // セッションIDなどの保存先
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:           "http://localhost:8080",
		RequestTimeout:       10 * time.Second,
		MergeMaxAttempts:     3,
		MergeInitialInterval: 500 * time.Millisecond,
		MergeMaxInterval:     5 * time.Second,
		StatePath:            ".storefront/state.yaml",
	}
}

// viperのキー（環境変数は STOREFRONT_ + 大文字）
const (
	KeyAPIURL          = "api_url"
	KeyState           = "state"
	KeyTimeout         = "timeout"
	KeyMergeAttempts   = "merge_attempts"
	KeyMergeBackoff    = "merge_backoff"
	KeyMergeMaxBackoff = "merge_max_backoff"
)

// LoadClient は v（フラグや設定ファイルを束ねたもの）と STOREFRONT_* 環境変数から読む。
// v が nil なら環境変数と既定値だけ。
func LoadClient(v *viper.Viper) (ClientConfig, error) {
	if v == nil {
		v = viper.New()
	}
	def := DefaultClientConfig()
	v.SetEnvPrefix("STOREFRONT")
	v.AutomaticEnv()
	v.SetDefault(KeyAPIURL, def.APIBaseURL)
	v.SetDefault(KeyState, def.StatePath)
	v.SetDefault(KeyTimeout, def.RequestTimeout)
	v.SetDefault(KeyMergeAttempts, def.MergeMaxAttempts)
	v.SetDefault(KeyMergeBackoff, def.MergeInitialInterval)
	v.SetDefault(KeyMergeMaxBackoff, def.MergeMaxInterval)

	cfg := ClientConfig{
		APIBaseURL:           v.GetString(KeyAPIURL),
		RequestTimeout:       v.GetDuration(KeyTimeout),
		MergeMaxAttempts:     v.GetInt(KeyMergeAttempts),
		MergeInitialInterval: v.GetDuration(KeyMergeBackoff),
		MergeMaxInterval:     v.GetDuration(KeyMergeMaxBackoff),
		StatePath:            v.GetString(KeyState),
	}

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ClientConfig) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("STOREFRONT_API_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("STOREFRONT_TIMEOUT must be positive")
	}
	if c.MergeMaxAttempts < 1 {
		return fmt.Errorf("STOREFRONT_MERGE_ATTEMPTS must be >= 1")
	}
	if c.MergeInitialInterval <= 0 || c.MergeMaxInterval < c.MergeInitialInterval {
		return fmt.Errorf("STOREFRONT_MERGE_BACKOFF must be positive and <= STOREFRONT_MERGE_MAX_BACKOFF")
	}
	if c.StatePath == "" {
		return fmt.Errorf("STOREFRONT_STATE is required")
	}
	return nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
