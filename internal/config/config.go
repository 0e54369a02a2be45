package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ServerURL string
	HealthURL string
	WSOrigin  string

	// InitData is the identity provider credential sent verbatim in auth.
	InitData string
	// DebugUID is used only when InitData is empty; zero means "pick one at random".
	DebugUID int64

	TickInterval      time.Duration
	ReconnectInterval time.Duration
	ResignConfirm     time.Duration
	PendingMoveTTL    time.Duration
	LowTimeThreshold  time.Duration

	MessagesDir string
}

const (
	defaultTickInterval      = 100 * time.Millisecond
	defaultReconnectInterval = 3 * time.Second
	defaultResignConfirm     = 3 * time.Second
	defaultPendingMoveTTL    = 5 * time.Second
	defaultLowTimeThreshold  = 20 * time.Second
)

// Defaults returns a config with every tunable set; ServerURL stays empty.
func Defaults() *AppConfig {
	return &AppConfig{
		TickInterval:      defaultTickInterval,
		ReconnectInterval: defaultReconnectInterval,
		ResignConfirm:     defaultResignConfirm,
		PendingMoveTTL:    defaultPendingMoveTTL,
		LowTimeThreshold:  defaultLowTimeThreshold,
	}
}

func Load() (*AppConfig, error) {
	cfg := Defaults()

	cfg.ServerURL = strings.TrimSpace(os.Getenv("CHESS_SERVER_URL"))
	cfg.HealthURL = strings.TrimSpace(os.Getenv("CHESS_HEALTH_URL"))
	cfg.WSOrigin = strings.TrimSpace(os.Getenv("CHESS_WS_ORIGIN"))
	cfg.InitData = strings.TrimSpace(os.Getenv("CHESS_INIT_DATA"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("CHESS_MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("CHESS_DEBUG_UID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.DebugUID = n
		}
	}

	cfg.TickInterval = envMillis("CHESS_TICK_MS", cfg.TickInterval)
	cfg.ReconnectInterval = envMillis("CHESS_RECONNECT_MS", cfg.ReconnectInterval)
	cfg.ResignConfirm = envMillis("CHESS_RESIGN_CONFIRM_MS", cfg.ResignConfirm)
	cfg.PendingMoveTTL = envMillis("CHESS_PENDING_MOVE_MS", cfg.PendingMoveTTL)
	cfg.LowTimeThreshold = envMillis("CHESS_LOW_TIME_MS", cfg.LowTimeThreshold)

	if cfg.ServerURL == "" {
		return nil, errors.New("CHESS_SERVER_URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = DeriveHealthURL(cfg.ServerURL)
	}
	return cfg, nil
}

// Validate checks the server URL scheme and that the tick fits the display precision.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("parse CHESS_SERVER_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported CHESS_SERVER_URL scheme: %s", u.Scheme)
	}
	// Tenths are shown under the low-time threshold, so a coarser tick would skip digits.
	if c.TickInterval > 100*time.Millisecond {
		return fmt.Errorf("CHESS_TICK_MS must be <= 100, got %d", c.TickInterval.Milliseconds())
	}
	return nil
}

// DeriveHealthURL maps ws(s)://host/ws to http(s)://host/health.
func DeriveHealthURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/health"
}

func envMillis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
