package config

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config aggregates client and server settings.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	AI     AIConfig     `yaml:"ai"`
}

// ClientConfig configures the agentlink client.
type ClientConfig struct {
	BaseURL          string        `yaml:"base_url"`
	HeartbeatURL     string        `yaml:"heartbeat_url"`
	HeartbeatDelay   time.Duration `yaml:"heartbeat_delay"`
	// HeartbeatTimeout closes a heartbeat connection that has been silent
	// this long. It should exceed the server ping interval.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	EventsMaxRetries uint64        `yaml:"events_max_retries"`
	HistoryLimit     int           `yaml:"history_limit"`
	LogLevel         string        `yaml:"log_level"`
	PrettyLogs       bool          `yaml:"pretty_logs"`
}

// ServerConfig configures the reference agent server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	PingInterval time.Duration `yaml:"ping_interval"`
	RedisAddr    string        `yaml:"redis_addr"`
	AgentName    string        `yaml:"agent_name"`
	LogLevel     string        `yaml:"log_level"`
}

// AIConfig describes the Ark chat model used by the server.
type AIConfig struct {
	APIKey       string   `yaml:"api_key"`
	AccessKey    string   `yaml:"access_key"`
	SecretKey    string   `yaml:"secret_key"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	Region       string   `yaml:"region"`
	Temperature  *float64 `yaml:"temperature"`
	TopP         *float64 `yaml:"top_p"`
	MaxTokens    *int     `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Client: ClientConfig{
			BaseURL:          "http://localhost:8000",
			HeartbeatDelay:   5 * time.Second,
			HeartbeatTimeout: 70 * time.Second,
			HistoryLimit:     10,
			LogLevel:         "warn",
			PrettyLogs:       true,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			PingInterval: 30 * time.Second,
			AgentName:    "Agent",
			LogLevel:     "info",
		},
		AI: AIConfig{
			BaseURL:      "https://ark.cn-beijing.volces.com/api/v3",
			Region:       "cn-beijing",
			SystemPrompt: "You are a helpful assistant.",
		},
	}
}

// Load reads configuration from the environment on top of Defaults.
func Load() (*Config, error) {
	return load(Defaults())
}

// LoadFile reads a YAML file on top of Defaults, then applies the environment.
// Environment variables take precedence over the file.
func LoadFile(path string) (*Config, error) {
	base := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}
	return load(base)
}

func load(base Config) (*Config, error) {
	client, err := loadClientConfig(base.Client)
	if err != nil {
		return nil, err
	}
	server, err := loadServerConfig(base.Server)
	if err != nil {
		return nil, err
	}
	ai, err := loadAIConfig(base.AI)
	if err != nil {
		return nil, err
	}
	return &Config{Client: client, Server: server, AI: ai}, nil
}

func loadClientConfig(base ClientConfig) (ClientConfig, error) {
	cfg := base
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("AGENTLINK_BASE_URL", base.BaseURL), "/")
	cfg.LogLevel = getEnvOrDefault("AGENTLINK_LOG_LEVEL", base.LogLevel)

	pretty, err := parseBoolEnv("AGENTLINK_PRETTY_LOGS", base.PrettyLogs)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.PrettyLogs = pretty

	delay, err := parseDurationEnv("AGENTLINK_HEARTBEAT_DELAY", base.HeartbeatDelay)
	if err != nil {
		return ClientConfig{}, err
	}
	if delay <= 0 {
		return ClientConfig{}, errors.Errorf("invalid AGENTLINK_HEARTBEAT_DELAY value %s: must be positive", delay)
	}
	cfg.HeartbeatDelay = delay

	timeout, err := parseDurationEnv("AGENTLINK_HEARTBEAT_TIMEOUT", base.HeartbeatTimeout)
	if err != nil {
		return ClientConfig{}, err
	}
	if timeout < 0 {
		return ClientConfig{}, errors.Errorf("invalid AGENTLINK_HEARTBEAT_TIMEOUT value %s: must not be negative", timeout)
	}
	cfg.HeartbeatTimeout = timeout

	retries, err := parseOptionalIntEnv("AGENTLINK_EVENTS_MAX_RETRIES")
	if err != nil {
		return ClientConfig{}, err
	}
	if retries != nil {
		if *retries < 0 {
			return ClientConfig{}, errors.Errorf("invalid AGENTLINK_EVENTS_MAX_RETRIES value %d", *retries)
		}
		cfg.EventsMaxRetries = uint64(*retries)
	}

	limit, err := parseOptionalIntEnv("AGENTLINK_HISTORY_LIMIT")
	if err != nil {
		return ClientConfig{}, err
	}
	if limit != nil {
		cfg.HistoryLimit = *limit
	}

	cfg.HeartbeatURL = getEnvOrDefault("AGENTLINK_HEARTBEAT_URL", base.HeartbeatURL)
	if cfg.HeartbeatURL == "" {
		cfg.HeartbeatURL, err = HeartbeatURLFor(cfg.BaseURL)
		if err != nil {
			return ClientConfig{}, err
		}
	}
	return cfg, nil
}

// HeartbeatURLFor derives the websocket endpoint from an http(s) base URL.
func HeartbeatURLFor(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid base URL %q", baseURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Errorf("base URL %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func loadServerConfig(base ServerConfig) (ServerConfig, error) {
	cfg := base
	port := getEnvOrDefault("PORT", base.Addr)
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, errors.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// ":8000" or "127.0.0.1:8000" are taken as-is.
		cfg.Addr = port
	default:
		cfg.Addr = ":" + port
	}

	interval, err := parseDurationEnv("AGENTD_PING_INTERVAL", base.PingInterval)
	if err != nil {
		return ServerConfig{}, err
	}
	if interval <= 0 {
		return ServerConfig{}, errors.Errorf("invalid AGENTD_PING_INTERVAL value %s: must be positive", interval)
	}
	cfg.PingInterval = interval

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", base.RedisAddr)
	cfg.AgentName = getEnvOrDefault("AGENTD_AGENT_NAME", base.AgentName)
	cfg.LogLevel = getEnvOrDefault("AGENTD_LOG_LEVEL", base.LogLevel)
	return cfg, nil
}

// Enabled reports whether the Ark credentials and model are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates the Ark chat model described by c.
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create ark chat model")
	}
	return cm, nil
}

func loadAIConfig(base AIConfig) (AIConfig, error) {
	cfg := base

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature != nil {
		cfg.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	if topP != nil {
		cfg.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens != nil {
		cfg.MaxTokens = maxTokens
	}

	cfg.APIKey = getEnvOrDefault("ARK_API_KEY", base.APIKey)
	cfg.AccessKey = getEnvOrDefault("ARK_ACCESS_KEY", base.AccessKey)
	cfg.SecretKey = getEnvOrDefault("ARK_SECRET_KEY", base.SecretKey)
	cfg.Model = getEnvOrDefault("Model", base.Model)
	cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", base.BaseURL)
	cfg.Region = getEnvOrDefault("ARK_REGION", base.Region)
	cfg.SystemPrompt = getEnvOrDefault("AGENTD_SYSTEM_PROMPT", base.SystemPrompt)
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s value %q", key, raw)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// Bare integers are milliseconds.
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s value %q", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}
