// Package config loads modbot settings from the environment, an optional .env
// file, and a tokens.json credentials file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/whisper/modbot/internal/scoring"
)

// ErrConfiguration wraps every configuration problem. It is fatal at startup.
var ErrConfiguration = errors.New("config: invalid configuration")

// Transports.
const (
	TransportNATS = "nats"
	TransportWS   = "ws"
)

// Config holds every startup parameter.
type Config struct {
	Env      string
	LogLevel string

	ChatToken      string
	PerspectiveKey string
	TokensPath     string

	Transport        string
	NATSURL          string
	NATSPrefix       string
	BridgeListenAddr string

	RedisAddr   string
	DatabaseURL string
	MetricsAddr string

	ScoringURL     string
	ScoringTimeout time.Duration
	HelloTimeout   time.Duration
	Workers        int
	GroupNum       string // overrides the number parsed from the bot name
}

// tokens is the credentials file layout.
type tokens struct {
	Discord     string `json:"discord"`
	Perspective string `json:"perspective"`
}

// Load reads the environment and returns a validated configuration. A .env
// file in the working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrConfiguration, err)
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ChatToken:        getEnv("CHAT_TOKEN", ""),
		PerspectiveKey:   getEnv("PERSPECTIVE_KEY", ""),
		TokensPath:       getEnv("TOKENS_PATH", "tokens.json"),
		Transport:        getEnv("TRANSPORT", TransportNATS),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		NATSPrefix:       getEnv("NATS_PREFIX", "bridge"),
		BridgeListenAddr: getEnv("BRIDGE_LISTEN_ADDR", ":8090"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9102"),
		ScoringURL:       getEnv("SCORING_URL", scoring.DefaultURL),
		GroupNum:         getEnv("GROUP_NUM", ""),
	}

	var err error
	if cfg.ScoringTimeout, err = parseDuration("SCORING_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.HelloTimeout, err = parseDuration("HELLO_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = parsePositiveInt("WORKERS", "16"); err != nil {
		return nil, err
	}

	if err := cfg.loadTokens(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTokens fills missing credentials from the tokens file. A missing file
// is only an error when a credential is still unset.
func (c *Config) loadTokens() error {
	if c.ChatToken != "" && c.PerspectiveKey != "" {
		return nil
	}
	data, err := os.ReadFile(c.TokensPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfiguration, c.TokensPath, err)
	}

	var t tokens
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfiguration, c.TokensPath, err)
	}
	if c.ChatToken == "" {
		c.ChatToken = t.Discord
	}
	if c.PerspectiveKey == "" {
		c.PerspectiveKey = t.Perspective
	}
	return nil
}

func (c *Config) validate() error {
	if c.ChatToken == "" {
		return fmt.Errorf("%w: CHAT_TOKEN is required (or \"discord\" in %s)", ErrConfiguration, c.TokensPath)
	}
	if c.PerspectiveKey == "" {
		return fmt.Errorf("%w: PERSPECTIVE_KEY is required (or \"perspective\" in %s)", ErrConfiguration, c.TokensPath)
	}
	if c.Transport != TransportNATS && c.Transport != TransportWS {
		return fmt.Errorf("%w: TRANSPORT must be %q or %q, got %q", ErrConfiguration, TransportNATS, TransportWS, c.Transport)
	}
	if c.GroupNum != "" {
		if _, err := strconv.Atoi(c.GroupNum); err != nil {
			return fmt.Errorf("%w: GROUP_NUM must be a number, got %q", ErrConfiguration, c.GroupNum)
		}
	}
	return nil
}

var botName = regexp.MustCompile(`[gG]roup (\d+) [bB]ot`)

// Group returns the group number that names the monitored and moderator
// channels. GROUP_NUM wins; otherwise it is parsed from the bot's display
// name, e.g. "Group 14 Bot".
func (c *Config) Group(botDisplayName string) (string, error) {
	if c.GroupNum != "" {
		return c.GroupNum, nil
	}
	m := botName.FindStringSubmatch(botDisplayName)
	if m == nil {
		return "", fmt.Errorf("%w: bot name %q does not contain \"Group # Bot\"; set GROUP_NUM", ErrConfiguration, botDisplayName)
	}
	return m[1], nil
}

// Public lists the non-secret settings in display order.
func (c *Config) Public() [][2]string {
	return [][2]string{
		{"APP_ENV", c.Env},
		{"LOG_LEVEL", c.LogLevel},
		{"TOKENS_PATH", c.TokensPath},
		{"TRANSPORT", c.Transport},
		{"NATS_URL", c.NATSURL},
		{"NATS_PREFIX", c.NATSPrefix},
		{"BRIDGE_LISTEN_ADDR", c.BridgeListenAddr},
		{"REDIS_ADDR", orNone(c.RedisAddr, "(in-memory)")},
		{"DATABASE_URL", orNone(redactURL(c.DatabaseURL), "(audit disabled)")},
		{"METRICS_ADDR", c.MetricsAddr},
		{"SCORING_URL", c.ScoringURL},
		{"SCORING_TIMEOUT", c.ScoringTimeout.String()},
		{"HELLO_TIMEOUT", c.HelloTimeout.String()},
		{"WORKERS", strconv.Itoa(c.Workers)},
		{"GROUP_NUM", orNone(c.GroupNum, "(from bot name)")},
	}
}

// getEnv returns the environment variable or a default.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	v := getEnv(key, fallback)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConfiguration, key, err)
	}
	return d, nil
}

func parsePositiveInt(key, fallback string) (int, error) {
	v := getEnv(key, fallback)
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrConfiguration, key, v)
	}
	return n, nil
}

func orNone(v, none string) string {
	if v == "" {
		return none
	}
	return v
}

// redactURL hides the password in a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparsable)"
	}
	return u.Redacted()
}
