package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	yaml "gopkg.in/yaml.v3"
)

const (
	appDir              = "ascii-chess"
	defaultMinRating    = 1350
	defaultMaxRating    = 2850
	defaultThinkTime    = 500 * time.Millisecond
	defaultSessionTTL   = 7 * 24 * time.Hour
	defaultHistoryLimit = 10
	defaultPlayerName   = "Player"
)

type AppConfig struct {
	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string

	StockfishPath string
	ThinkTime     time.Duration
	MinRating     int
	MaxRating     int
	EngineThreads int
	EngineHashMB  int
	AutoInstall   bool

	AsciiOnly  bool
	PlayerName string

	RedisURL    string
	DatabaseURL string

	SpectateAddr string

	DebugCommands bool
	SessionTTL    time.Duration
	HistoryLimit  int

	DataDir     string
	ExportDir   string
	MessagesDir string
}

// fileConfig mirrors the YAML layout. Nil fields keep the previous layer.
type fileConfig struct {
	Engine struct {
		Path        *string `yaml:"path"`
		ThinkTime   *string `yaml:"think_time"`
		MinRating   *int    `yaml:"min_rating"`
		MaxRating   *int    `yaml:"max_rating"`
		Threads     *int    `yaml:"threads"`
		HashMB      *int    `yaml:"hash_mb"`
		AutoInstall *bool   `yaml:"auto_install"`
	} `yaml:"engine"`
	Display struct {
		AsciiOnly   *bool   `yaml:"ascii_only"`
		MessagesDir *string `yaml:"messages_dir"`
	} `yaml:"display"`
	Player        *string `yaml:"player"`
	RedisURL      *string `yaml:"redis_url"`
	DatabaseURL   *string `yaml:"database_url"`
	SpectateAddr  *string `yaml:"spectate_addr"`
	DebugCommands *bool   `yaml:"debug_commands"`
	SessionTTL    *string `yaml:"session_ttl"`
	HistoryLimit  *int    `yaml:"history_limit"`
	DataDir       *string `yaml:"data_dir"`
	ExportDir     *string `yaml:"export_dir"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *AppConfig {
	player := strings.TrimSpace(os.Getenv("USER"))
	if player == "" {
		player = defaultPlayerName
	}
	return &AppConfig{
		ThinkTime:     defaultThinkTime,
		MinRating:     defaultMinRating,
		MaxRating:     defaultMaxRating,
		AutoInstall:   true,
		PlayerName:    player,
		DebugCommands: true,
		SessionTTL:    defaultSessionTTL,
		HistoryLimit:  defaultHistoryLimit,
		DataDir:       filepath.Join(xdg.DataHome, appDir),
	}
}

// DefaultConfigPath is $XDG_CONFIG_HOME/ascii-chess/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.yaml")
}

// Load layers defaults, the optional YAML file and the environment. Flags
// are applied by the caller afterwards.
func Load() (*AppConfig, error) {
	cfg := Defaults()

	path := strings.TrimSpace(os.Getenv("CHESS_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.StockfishPath, fc.Engine.Path)
	if fc.Engine.ThinkTime != nil {
		d, err := parseSeconds(*fc.Engine.ThinkTime)
		if err != nil {
			return fmt.Errorf("config engine.think_time: %w", err)
		}
		c.ThinkTime = d
	}
	setInt(&c.MinRating, fc.Engine.MinRating)
	setInt(&c.MaxRating, fc.Engine.MaxRating)
	setInt(&c.EngineThreads, fc.Engine.Threads)
	setInt(&c.EngineHashMB, fc.Engine.HashMB)
	setBool(&c.AutoInstall, fc.Engine.AutoInstall)
	setBool(&c.AsciiOnly, fc.Display.AsciiOnly)
	setString(&c.MessagesDir, fc.Display.MessagesDir)
	setString(&c.PlayerName, fc.Player)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.SpectateAddr, fc.SpectateAddr)
	setBool(&c.DebugCommands, fc.DebugCommands)
	if fc.SessionTTL != nil {
		d, err := parseSeconds(*fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("config session_ttl: %w", err)
		}
		c.SessionTTL = d
	}
	setInt(&c.HistoryLimit, fc.HistoryLimit)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.ExportDir, fc.ExportDir)
	c.ConfigFile = path
	return nil
}

func (c *AppConfig) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		c.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_THINK_TIME")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("CHESS_THINK_TIME: %w", err)
		}
		c.ThinkTime = d
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_MIN_RATING")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHESS_MIN_RATING: %w", err)
		}
		c.MinRating = n
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_MAX_RATING")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHESS_MAX_RATING: %w", err)
		}
		c.MaxRating = n
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_ASCII_ONLY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AsciiOnly = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_AUTO_INSTALL")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoInstall = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_PLAYER")); v != "" {
		c.PlayerName = v
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		c.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_SPECTATE_ADDR")); v != "" {
		c.SpectateAddr = v
	}

	if v := strings.TrimSpace(os.Getenv("CHESS_DEBUG_COMMANDS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DebugCommands = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_SESSION_TTL")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("CHESS_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HistoryLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_EXPORT_DIR")); v != "" {
		c.ExportDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_MESSAGES_DIR")); v != "" {
		c.MessagesDir = v
	}
	return nil
}

// Validate checks the combined configuration after flags are applied.
func (c *AppConfig) Validate() error {
	if c.MinRating < 1 {
		return fmt.Errorf("min rating must be positive, got %d", c.MinRating)
	}
	if c.MinRating > c.MaxRating {
		return fmt.Errorf("min rating %d exceeds max rating %d", c.MinRating, c.MaxRating)
	}
	if c.ThinkTime <= 0 {
		return fmt.Errorf("think time must be positive, got %s", c.ThinkTime)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data directory is required")
	}
	if err := checkScheme("REDIS_URL", c.RedisURL, "redis", "rediss", "unix"); err != nil {
		return err
	}
	if err := checkScheme("DATABASE_URL", c.DatabaseURL, "postgres", "postgresql"); err != nil {
		return err
	}
	return nil
}

func checkScheme(name, raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported scheme %q", name, u.Scheme)
}

// parseSeconds accepts a Go duration ("750ms") or plain seconds ("0.5").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
