// config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"lobby-ledger/services"
	"lobby-ledger/utils"

	"github.com/asaskevich/govalidator"
	"github.com/joho/godotenv"
)

const (
	DefaultListenAddr      = ":5200"
	DefaultMaxPlayers      = 5
	DefaultTicketPrice     = int64(50_000_000_000_000_000) // 0.05 native units
	DefaultRelayInterval   = 10 * time.Second
	DefaultArchiveInterval = 5 * time.Minute
)

type Config struct {
	DatabaseURL      string
	ListenAddr       string
	GameServiceToken string
	AllowedOrigins   string

	Lobby services.LobbyConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RelayInterval time.Duration

	Archive         utils.ObjectStoreConfig
	ArchiveInterval time.Duration
}

// RedisEnabled reports whether events are published to Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// ArchiveEnabled reports whether settled rounds are uploaded.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	var errs []error

	cfg := &Config{
		DatabaseURL:      getenv("DATABASE_URL"),
		ListenAddr:       withDefault(getenv("LISTEN_ADDR"), DefaultListenAddr),
		GameServiceToken: getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:   withDefault(getenv("ALLOWED_ORIGINS"), "http://localhost:3000"),
		Lobby: services.LobbyConfig{
			Name:              withDefault(getenv("LOBBY_NAME"), "lobby"),
			PayoutDestination: getenv("PAYOUT_DESTINATION"),
			EscrowAccount:     getenv("ESCROW_ACCOUNT"),
		},
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		Archive: utils.ObjectStoreConfig{
			Endpoint:        getenv("R2_ENDPOINT"),
			Region:          getenv("R2_REGION"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
		},
	}
	if cfg.Archive.Endpoint == "" {
		if account := getenv("CLOUDFLARE_ACCOUNT_ID"); account != "" {
			cfg.Archive.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", account)
		}
	}

	var err error
	if cfg.Lobby.MaxPlayers, err = intVar(getenv, "MAX_PLAYERS", DefaultMaxPlayers); err != nil {
		errs = append(errs, err)
	}
	if cfg.Lobby.TicketPrice, err = int64Var(getenv, "TICKET_PRICE", DefaultTicketPrice); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = intVar(getenv, "REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RelayInterval, err = durationVar(getenv, "RELAY_INTERVAL", DefaultRelayInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.ArchiveInterval, err = durationVar(getenv, "ARCHIVE_INTERVAL", DefaultArchiveInterval); err != nil {
		errs = append(errs, err)
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.GameServiceToken == "" {
		errs = append(errs, errors.New("GAME_SERVICE_TOKEN is required"))
	}
	if err := c.Lobby.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RedisAddr != "" && !govalidator.IsDialString(c.RedisAddr) {
		errs = append(errs, fmt.Errorf("REDIS_ADDR %q is not host:port", c.RedisAddr))
	}
	if c.Archive.Endpoint != "" && !govalidator.IsURL(c.Archive.Endpoint) {
		errs = append(errs, fmt.Errorf("R2_ENDPOINT %q is not a URL", c.Archive.Endpoint))
	}
	if c.ArchiveEnabled() && (c.Archive.AccessKeyID == "" || c.Archive.AccessKeySecret == "") {
		errs = append(errs, errors.New("R2_ACCESS_KEY_ID and R2_ACCESS_KEY_SECRET are required when R2_BUCKET_NAME is set"))
	}
	return errors.Join(errs...)
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func int64Var(getenv func(string) string, key string, def int64) (int64, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer amount in minor units: %w", key, err)
	}
	return n, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
