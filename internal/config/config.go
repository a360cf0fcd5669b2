package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"livechat/internal/chat"
	"livechat/internal/store"
	"livechat/internal/websocket"
	"livechat/pkg/database"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "LIVECHAT_"

// Config is the full server configuration.
type Config struct {
	Environment string           `json:"environment"`
	Log         *LogConfig       `json:"log"`
	HTTP        *HTTPConfig      `json:"http"`
	WebSocket   *WebSocketConfig `json:"websocket"`
	Store       *StoreConfig     `json:"store"`
	Chat        *ChatConfig      `json:"chat"`
}

type LogConfig struct {
	Level string `json:"level"`
	// Pretty switches to the zerolog console writer.
	Pretty bool `json:"pretty"`
}

type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

type StoreConfig struct {
	Driver         string        `json:"driver"`
	Path           string        `json:"path"`
	RedisURL       string        `json:"redis_url"`
	RedisKeyPrefix string        `json:"redis_key_prefix"`
	Timeout        time.Duration `json:"timeout"`
}

type ChatConfig struct {
	HistoryLimit     int           `json:"history_limit"`
	RateLimit        int           `json:"rate_limit"`
	RateWindow       time.Duration `json:"rate_window"`
	TypingTimeout    time.Duration `json:"typing_timeout"`
	MaxMessageLength int           `json:"max_message_length"`
	MaxPseudoLength  int           `json:"max_pseudo_length"`
	BannedWords      []string      `json:"banned_words"`
}

func DefaultConfig() *Config {
	ws := websocket.DefaultConfig()
	ch := chat.DefaultConfig()
	return &Config{
		Environment: "development",
		Log: &LogConfig{
			Level:  "info",
			Pretty: false,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   ws.PingInterval,
			ReadTimeout:    ws.PongWait,
			WriteTimeout:   ws.WriteTimeout,
			BufferSize:     ws.SendBuffer,
			MaxMessageSize: ws.MaxMessageSize,
		},
		Store: &StoreConfig{
			Driver:         store.DriverSQLite,
			Path:           database.DefaultConfig().DatabasePath,
			RedisKeyPrefix: "livechat",
			Timeout:        ch.StoreTimeout,
		},
		Chat: &ChatConfig{
			HistoryLimit:     ch.HistoryLimit,
			RateLimit:        ch.RateLimit,
			RateWindow:       ch.RateWindow,
			TypingTimeout:    ch.TypingTimeout,
			MaxMessageLength: ch.MaxMessageLength,
			MaxPseudoLength:  ch.MaxPseudoLength,
		},
	}
}

func (c *Config) Validate() error {
	if c.Log == nil || c.HTTP == nil || c.WebSocket == nil || c.Store == nil || c.Chat == nil {
		return errors.New("every configuration section is required")
	}

	// port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if err := c.WebSocketConfig().Validate(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverGorm:
		if c.Store.Path == "" {
			return fmt.Errorf("store path cannot be empty for driver %s", c.Store.Driver)
		}
	case store.DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis URL is required for driver %s", c.Store.Driver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownDriver, c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if err := c.ChatConfig().Validate(); err != nil {
		return fmt.Errorf("invalid chat configuration: %w", err)
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// SetListenAddr overrides host and port from a host:port string.
func (c *Config) SetListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid listen port %q: %w", port, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	c.HTTP.Host = host
	c.HTTP.Port = p
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) WebSocketConfig() websocket.Config {
	return websocket.Config{
		PingInterval:   c.WebSocket.PingInterval,
		PongWait:       c.WebSocket.ReadTimeout,
		WriteTimeout:   c.WebSocket.WriteTimeout,
		SendBuffer:     c.WebSocket.BufferSize,
		MaxMessageSize: c.WebSocket.MaxMessageSize,
		AllowedOrigins: c.HTTP.AllowedOrigins,
	}
}

func (c *Config) ChatConfig() chat.Config {
	cfg := chat.DefaultConfig()
	cfg.HistoryLimit = c.Chat.HistoryLimit
	cfg.RateLimit = c.Chat.RateLimit
	cfg.RateWindow = c.Chat.RateWindow
	cfg.TypingTimeout = c.Chat.TypingTimeout
	cfg.MaxMessageLength = c.Chat.MaxMessageLength
	cfg.MaxPseudoLength = c.Chat.MaxPseudoLength
	cfg.StoreTimeout = c.Store.Timeout
	return cfg
}

func (c *Config) StoreOptions() store.Options {
	sqlite := database.DefaultConfig()
	sqlite.DatabasePath = c.Store.Path
	return store.Options{
		Driver:         c.Store.Driver,
		Retention:      c.Chat.HistoryLimit,
		SQLite:         sqlite,
		RedisURL:       c.Store.RedisURL,
		RedisKeyPrefix: c.Store.RedisKeyPrefix,
	}
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing default file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies LIVECHAT_* variables on top of the defaults.
// Malformed values are reported rather than ignored.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	e := &envReader{}

	e.str("ENVIRONMENT", &cfg.Environment)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.boolean("LOG_PRETTY", &cfg.Log.Pretty)

	e.str("HTTP_HOST", &cfg.HTTP.Host)
	e.integer("HTTP_PORT", &cfg.HTTP.Port)
	e.duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	e.duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	e.duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	e.list("HTTP_ALLOWED_ORIGINS", &cfg.HTTP.AllowedOrigins)

	e.duration("WEBSOCKET_PING_INTERVAL", &cfg.WebSocket.PingInterval)
	e.duration("WEBSOCKET_READ_TIMEOUT", &cfg.WebSocket.ReadTimeout)
	e.duration("WEBSOCKET_WRITE_TIMEOUT", &cfg.WebSocket.WriteTimeout)
	e.integer("WEBSOCKET_BUFFER_SIZE", &cfg.WebSocket.BufferSize)
	e.int64("WEBSOCKET_MAX_MESSAGE_SIZE", &cfg.WebSocket.MaxMessageSize)

	e.str("STORE_DRIVER", &cfg.Store.Driver)
	e.str("STORE_PATH", &cfg.Store.Path)
	e.str("STORE_REDIS_URL", &cfg.Store.RedisURL)
	e.str("STORE_REDIS_KEY_PREFIX", &cfg.Store.RedisKeyPrefix)
	e.duration("STORE_TIMEOUT", &cfg.Store.Timeout)

	e.integer("CHAT_HISTORY_LIMIT", &cfg.Chat.HistoryLimit)
	e.integer("CHAT_RATE_LIMIT", &cfg.Chat.RateLimit)
	e.duration("CHAT_RATE_WINDOW", &cfg.Chat.RateWindow)
	e.duration("CHAT_TYPING_TIMEOUT", &cfg.Chat.TypingTimeout)
	e.integer("CHAT_MAX_MESSAGE_LENGTH", &cfg.Chat.MaxMessageLength)
	e.integer("CHAT_MAX_PSEUDO_LENGTH", &cfg.Chat.MaxPseudoLength)
	e.list("CHAT_BANNED_WORDS", &cfg.Chat.BannedWords)

	return errors.Join(e.errs...)
}

type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, value, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

// ConfigFile mirrors Config with durations as strings ("30s").
type ConfigFile struct {
	Environment string               `json:"environment"`
	Log         *LogConfig           `json:"log"`
	HTTP        *HTTPConfigFile      `json:"http"`
	WebSocket   *WebSocketConfigFile `json:"websocket"`
	Store       *StoreConfigFile     `json:"store"`
	Chat        *ChatConfigFile      `json:"chat"`
}

type HTTPConfigFile struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	BufferSize     int    `json:"buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
}

type StoreConfigFile struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	RedisURL       string `json:"redis_url"`
	RedisKeyPrefix string `json:"redis_key_prefix"`
	Timeout        string `json:"timeout"`
}

type ChatConfigFile struct {
	HistoryLimit     int      `json:"history_limit"`
	RateLimit        int      `json:"rate_limit"`
	RateWindow       string   `json:"rate_window"`
	TypingTimeout    string   `json:"typing_timeout"`
	MaxMessageLength int      `json:"max_message_length"`
	MaxPseudoLength  int      `json:"max_pseudo_length"`
	BannedWords      []string `json:"banned_words"`
}

// LoadFromFile applies a JSON config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f ConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var errs []error
	dur := func(field, raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", field, raw, err))
			return
		}
		*dst = d
	}
	setStr := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(v int, dst *int) {
		if v > 0 {
			*dst = v
		}
	}

	setStr(f.Environment, &cfg.Environment)

	if f.Log != nil {
		setStr(f.Log.Level, &cfg.Log.Level)
		cfg.Log.Pretty = f.Log.Pretty
	}

	if f.HTTP != nil {
		setStr(f.HTTP.Host, &cfg.HTTP.Host)
		setInt(f.HTTP.Port, &cfg.HTTP.Port)
		dur("http.read_timeout", f.HTTP.ReadTimeout, &cfg.HTTP.ReadTimeout)
		dur("http.write_timeout", f.HTTP.WriteTimeout, &cfg.HTTP.WriteTimeout)
		dur("http.shutdown_timeout", f.HTTP.ShutdownTimeout, &cfg.HTTP.ShutdownTimeout)
		if len(f.HTTP.AllowedOrigins) > 0 {
			cfg.HTTP.AllowedOrigins = f.HTTP.AllowedOrigins
		}
	}

	if f.WebSocket != nil {
		dur("websocket.ping_interval", f.WebSocket.PingInterval, &cfg.WebSocket.PingInterval)
		dur("websocket.read_timeout", f.WebSocket.ReadTimeout, &cfg.WebSocket.ReadTimeout)
		dur("websocket.write_timeout", f.WebSocket.WriteTimeout, &cfg.WebSocket.WriteTimeout)
		setInt(f.WebSocket.BufferSize, &cfg.WebSocket.BufferSize)
		if f.WebSocket.MaxMessageSize > 0 {
			cfg.WebSocket.MaxMessageSize = f.WebSocket.MaxMessageSize
		}
	}

	if f.Store != nil {
		setStr(f.Store.Driver, &cfg.Store.Driver)
		setStr(f.Store.Path, &cfg.Store.Path)
		setStr(f.Store.RedisURL, &cfg.Store.RedisURL)
		setStr(f.Store.RedisKeyPrefix, &cfg.Store.RedisKeyPrefix)
		dur("store.timeout", f.Store.Timeout, &cfg.Store.Timeout)
	}

	if f.Chat != nil {
		setInt(f.Chat.HistoryLimit, &cfg.Chat.HistoryLimit)
		setInt(f.Chat.RateLimit, &cfg.Chat.RateLimit)
		dur("chat.rate_window", f.Chat.RateWindow, &cfg.Chat.RateWindow)
		dur("chat.typing_timeout", f.Chat.TypingTimeout, &cfg.Chat.TypingTimeout)
		setInt(f.Chat.MaxMessageLength, &cfg.Chat.MaxMessageLength)
		setInt(f.Chat.MaxPseudoLength, &cfg.Chat.MaxPseudoLength)
		if len(f.Chat.BannedWords) > 0 {
			cfg.Chat.BannedWords = f.Chat.BannedWords
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config file %s: %w", path, errors.Join(errs...))
	}
	return nil
}

// Load resolves the configuration: defaults, then LIVECHAT_* environment,
// then the JSON file when path is set. The result is validated.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
