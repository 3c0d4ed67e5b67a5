package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  name: "LED-Lamp"
  ip: "192.168.1.40"
api:
  port: 8080
tcp:
  enabled: true
  port: 8081
things:
  - id: lamp
    title: "My Lamp"
    types: [OnOffSwitch, Light]
    properties:
      - id: "on"
        type: boolean
      - id: brightness
        type: integer
        minimum: 0
        maximum: 100
    actions:
      - id: fade
        executor: fade
        input:
          type: object
          properties:
            brightness:
              type: integer
        params:
          property: brightness
    events:
      - id: overheated
        type: number
        unit: degree celsius
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Name != "led-lamp" {
		t.Errorf("Server.Name = %q, want %q", cfg.Server.Name, "led-lamp")
	}
	if !cfg.Server.ValidateHost {
		t.Error("Server.ValidateHost should default to true")
	}
	if !cfg.TCP.Enabled || cfg.TCP.Port != 8081 {
		t.Errorf("TCP = %+v, want enabled on 8081", cfg.TCP)
	}
	if cfg.TCP.Limits.Body != 512 {
		t.Errorf("TCP.Limits.Body = %d, want default 512", cfg.TCP.Limits.Body)
	}
	if len(cfg.Things) != 1 {
		t.Fatalf("len(Things) = %d, want 1", len(cfg.Things))
	}

	lamp := cfg.Things[0]
	if len(lamp.Properties) != 2 || lamp.Properties[0].ID != "on" {
		t.Errorf("Properties = %+v", lamp.Properties)
	}
	if lamp.Properties[1].Maximum != 100 {
		t.Errorf("brightness maximum = %v, want 100", lamp.Properties[1].Maximum)
	}
	if lamp.Actions[0].Params["property"] != "brightness" {
		t.Errorf("fade params = %v", lamp.Actions[0].Params)
	}
	if lamp.Actions[0].Input["type"] != "object" {
		t.Errorf("fade input = %v", lamp.Actions[0].Input)
	}
	if lamp.Events[0].Unit != "degree celsius" {
		t.Errorf("event unit = %q", lamp.Events[0].Unit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
server:
  name: "lamp"
things: []
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "at least one thing") {
		t.Errorf("Load() error = %v, want mention of things", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Things = []ThingConfig{{ID: "lamp"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing server name",
			mutate:  func(c *Config) { c.Server.Name = "" },
			wantErr: "server.name",
		},
		{
			name: "no transport",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.TCP.Enabled = false
			},
			wantErr: "api.enabled or tcp.enabled",
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name: "tcp port clash",
			mutate: func(c *Config) {
				c.TCP.Enabled = true
				c.TCP.Host = c.API.Host
				c.TCP.Port = c.API.Port
			},
			wantErr: "tcp.port must differ",
		},
		{
			name: "zero parser limit",
			mutate: func(c *Config) {
				c.TCP.Enabled = true
				c.TCP.Limits.Body = 0
			},
			wantErr: "tcp.limits",
		},
		{
			name: "header limit below content-length",
			mutate: func(c *Config) {
				c.TCP.Enabled = true
				c.TCP.Limits.Header = 8
			},
			wantErr: "tcp.limits.header",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Actions.Workers = -1 },
			wantErr: "actions.workers",
		},
		{
			name:    "zero event capacity",
			mutate:  func(c *Config) { c.Events.Capacity = 0 },
			wantErr: "events.capacity",
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:    "influx without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "history without retention",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.History.RetentionDays = 0
			},
			wantErr: "history.retention_days",
		},
		{
			name: "duplicate thing id",
			mutate: func(c *Config) {
				c.Things = append(c.Things, ThingConfig{ID: "lamp"})
			},
			wantErr: "duplicated",
		},
		{
			name:    "thing id with slash",
			mutate:  func(c *Config) { c.Things[0].ID = "a/b" },
			wantErr: "must not contain",
		},
		{
			name: "action without executor",
			mutate: func(c *Config) {
				c.Things[0].Actions = []ActionConfig{{ID: "fade"}}
			},
			wantErr: "executor is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetDurations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Scheduler: SchedulerConfig{TickIntervalMS: 10},
		TCP:       TCPConfig{PollTimeoutMS: 2},
		History:   HistoryConfig{RetentionDays: 7},
	}

	if got := cfg.API.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetTickInterval(); got != 10*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 10ms", got)
	}
	if got := cfg.GetPollTimeout(); got != 2*time.Millisecond {
		t.Errorf("GetPollTimeout() = %v, want 2ms", got)
	}
	if got := cfg.GetRetention(); got != 7*24*time.Hour {
		t.Errorf("GetRetention() = %v, want 168h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("WEBTHING_SERVER_NAME", "porch-light")
	t.Setenv("WEBTHING_SERVER_IP", "10.0.0.7")
	t.Setenv("WEBTHING_SERVER_VALIDATE_HOST", "false")
	t.Setenv("WEBTHING_API_HOST", "192.168.1.1")
	t.Setenv("WEBTHING_API_PORT", "9090")
	t.Setenv("WEBTHING_DATABASE_PATH", "/custom/path.db")
	t.Setenv("WEBTHING_MQTT_HOST", "mqtt.example.com")
	t.Setenv("WEBTHING_MQTT_USERNAME", "testuser")
	t.Setenv("WEBTHING_MQTT_PASSWORD", "testpass")
	t.Setenv("WEBTHING_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Server.Name != "porch-light" {
		t.Errorf("Server.Name = %q, want %q", cfg.Server.Name, "porch-light")
	}
	if cfg.Server.IP != "10.0.0.7" {
		t.Errorf("Server.IP = %q, want %q", cfg.Server.IP, "10.0.0.7")
	}
	if cfg.Server.ValidateHost {
		t.Error("Server.ValidateHost = true, want false")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Name == "" {
		t.Error("defaultConfig should have non-empty Server.Name")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.TCP.RetryCeiling != 5000 {
		t.Errorf("defaultConfig TCP.RetryCeiling = %d, want 5000", cfg.TCP.RetryCeiling)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Events.Capacity < 1 {
		t.Errorf("defaultConfig Events.Capacity = %d, want positive", cfg.Events.Capacity)
	}
}
