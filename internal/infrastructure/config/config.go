package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minHeaderLimit is the shortest header name buffer that can hold
// "content-length".
const minHeaderLimit = 14

// Config is the root configuration structure for the WebThing server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	TCP       TCPConfig       `yaml:"tcp"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Actions   ActionsConfig   `yaml:"actions"`
	Events    EventsConfig    `yaml:"events"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Things    []ThingConfig   `yaml:"things"`
}

// ServerConfig identifies the adapter on the network.
type ServerConfig struct {
	// Name is the adapter host name; requests for "<name>.local" pass host validation.
	Name string `yaml:"name"`

	// IP is the adapter's address literal, also accepted as a Host value.
	IP string `yaml:"ip"`

	// ValidateHost rejects requests whose Host header is not name.local,
	// the IP or localhost. Disable only on trusted networks.
	ValidateHost bool `yaml:"validate_host"`

	// BaseURL is the WebSocket base advertised in descriptions, e.g.
	// "ws://lamp.local:8080". Empty omits the alternate link.
	BaseURL string `yaml:"base_url"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	Timeouts    APITimeoutConfig `yaml:"timeouts"`
	MaxBodySize int              `yaml:"max_body_size"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live-update channel settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// TCPConfig contains settings for the byte-polling transport.
type TCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// PollTimeoutMS is how long one poll waits for a byte before
	// reporting "no data".
	PollTimeoutMS int `yaml:"poll_timeout_ms"`

	// RetryCeiling is the number of consecutive empty polls after which
	// the client is dropped.
	RetryCeiling int `yaml:"retry_ceiling"`

	// ByteBudget caps the polls performed in one scheduler tick.
	ByteBudget int `yaml:"byte_budget"`

	Limits ParserLimitsConfig `yaml:"limits"`
}

// ParserLimitsConfig holds the fixed buffer capacities of the request parser.
type ParserLimitsConfig struct {
	Method int `yaml:"method"`
	URI    int `yaml:"uri"`
	Host   int `yaml:"host"`
	Header int `yaml:"header"`
	Body   int `yaml:"body"`
}

// SchedulerConfig contains the cooperative tick loop settings.
type SchedulerConfig struct {
	TickIntervalMS int `yaml:"tick_interval_ms"`
}

// ActionsConfig contains action execution settings.
type ActionsConfig struct {
	// Workers bounds concurrently running action tasks.
	// 0 runs executors inline inside the request.
	Workers int `yaml:"workers"`
}

// EventsConfig contains event queue settings.
type EventsConfig struct {
	// Capacity is the per-device event ring size.
	Capacity int `yaml:"capacity"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls the SQLite change journal.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ThingConfig declares one device.
type ThingConfig struct {
	ID          string           `yaml:"id"`
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Types       []string         `yaml:"types"`
	Properties  []PropertyConfig `yaml:"properties"`
	Actions     []ActionConfig   `yaml:"actions"`
	Events      []EventConfig    `yaml:"events"`
}

// PropertyConfig declares one property.
type PropertyConfig struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	SemanticType string   `yaml:"semantic_type"`
	Type         string   `yaml:"type"`
	Unit         string   `yaml:"unit"`
	ReadOnly     bool     `yaml:"read_only"`
	Minimum      float64  `yaml:"minimum"`
	Maximum      float64  `yaml:"maximum"`
	MultipleOf   float64  `yaml:"multiple_of"`
	Enum         []string `yaml:"enum"`
	Initial      any      `yaml:"initial"`
}

// ActionConfig declares one action and binds it to a named executor.
type ActionConfig struct {
	ID           string         `yaml:"id"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	SemanticType string         `yaml:"semantic_type"`
	Input        map[string]any `yaml:"input"`
	Executor     string         `yaml:"executor"`
	Params       map[string]any `yaml:"params"`
}

// EventConfig declares one event.
type EventConfig struct {
	ID           string  `yaml:"id"`
	Title        string  `yaml:"title"`
	Description  string  `yaml:"description"`
	SemanticType string  `yaml:"semantic_type"`
	Type         string  `yaml:"type"`
	Unit         string  `yaml:"unit"`
	Minimum      float64 `yaml:"minimum"`
	Maximum      float64 `yaml:"maximum"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WEBTHING_SECTION_KEY
// For example: WEBTHING_SERVER_NAME, WEBTHING_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	// Host validation compares lower-case names.
	cfg.Server.Name = strings.ToLower(cfg.Server.Name)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:         "webthing",
			ValidateHost: true,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodySize: 512,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		TCP: TCPConfig{
			Enabled:       false,
			Host:          "0.0.0.0",
			Port:          8081,
			PollTimeoutMS: 1,
			RetryCeiling:  5000,
			ByteBudget:    1024,
			Limits: ParserLimitsConfig{
				Method: 8,
				URI:    256,
				Host:   64,
				Header: 32,
				Body:   512,
			},
		},
		Scheduler: SchedulerConfig{
			TickIntervalMS: 10,
		},
		Actions: ActionsConfig{
			Workers: 4,
		},
		Events: EventsConfig{
			Capacity: 32,
		},
		Database: DatabaseConfig{
			Path:        "./data/webthing.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:       false,
			RetentionDays: 7,
			PruneSchedule: "0 0 3 * * *",
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			TopicPrefix: "webthing",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "webthing-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WEBTHING_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WEBTHING_SERVER_NAME"); v != "" {
		cfg.Server.Name = v
	}
	if v := os.Getenv("WEBTHING_SERVER_IP"); v != "" {
		cfg.Server.IP = v
	}
	if v := os.Getenv("WEBTHING_SERVER_VALIDATE_HOST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.ValidateHost = b
		}
	}

	// API
	if v := os.Getenv("WEBTHING_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("WEBTHING_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("WEBTHING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("WEBTHING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WEBTHING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WEBTHING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WEBTHING_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Name == "" {
		errs = append(errs, "server.name is required")
	}

	if !c.API.Enabled && !c.TCP.Enabled {
		errs = append(errs, "at least one of api.enabled or tcp.enabled must be true")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodySize < 1 {
		errs = append(errs, "api.max_body_size must be positive")
	}

	if c.TCP.Enabled {
		if c.TCP.Port < 1 || c.TCP.Port > 65535 {
			errs = append(errs, "tcp.port must be between 1 and 65535")
		}
		if c.API.Enabled && c.TCP.Port == c.API.Port && c.TCP.Host == c.API.Host {
			errs = append(errs, "tcp.port must differ from api.port")
		}
		l := c.TCP.Limits
		if l.Method < 1 || l.URI < 1 || l.Host < 1 || l.Header < 1 || l.Body < 1 {
			errs = append(errs, "tcp.limits must all be positive")
		}
		if l.Header > 0 && l.Header < minHeaderLimit {
			errs = append(errs, fmt.Sprintf("tcp.limits.header must be at least %d", minHeaderLimit))
		}
		if c.TCP.RetryCeiling < 1 {
			errs = append(errs, "tcp.retry_ceiling must be positive")
		}
	}

	if c.Scheduler.TickIntervalMS < 1 {
		errs = append(errs, "scheduler.tick_interval_ms must be positive")
	}
	if c.Actions.Workers < 0 {
		errs = append(errs, "actions.workers must not be negative")
	}
	if c.Events.Capacity < 1 {
		errs = append(errs, "events.capacity must be positive")
	}

	if c.History.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when history is enabled")
		}
		if c.History.RetentionDays < 1 {
			errs = append(errs, "history.retention_days must be positive")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.validateThings()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateThings checks ids are present and unique.
func (c *Config) validateThings() []string {
	var errs []string
	if len(c.Things) == 0 {
		return []string{"at least one thing must be declared"}
	}
	seen := make(map[string]bool)
	for i, t := range c.Things {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("things[%d].id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("things[%d].id %q is duplicated", i, t.ID))
		}
		seen[t.ID] = true
		if strings.ContainsAny(t.ID, "/?# ") {
			errs = append(errs, fmt.Sprintf("things[%d].id %q must not contain '/', '?', '#' or spaces", i, t.ID))
		}
		for j, a := range t.Actions {
			if a.Executor == "" {
				errs = append(errs, fmt.Sprintf("things[%d].actions[%d].executor is required", i, j))
			}
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetTickInterval returns the scheduler tick interval as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalMS) * time.Millisecond
}

// GetPollTimeout returns the TCP poll timeout as a Duration.
func (c *Config) GetPollTimeout() time.Duration {
	return time.Duration(c.TCP.PollTimeoutMS) * time.Millisecond
}

// GetRetention returns the history retention as a Duration.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
