// Package config loads the server configuration from defaults, YAML files and
// environment variables.
//
// Configuration hierarchy (lowest to highest priority):
//
//	1. Defaults in code
//	2. config/base.yaml
//	3. config/<environment>.yaml
//	4. config/local.yaml (development only)
//	5. SKETCHROOM_* environment variables (and PORT)
package config

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "sketchroom-backend/pkg/errors"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete server configuration.
type Config struct {
	Environment Environment `yaml:"environment" env:"ENVIRONMENT"`
	Server      Server      `yaml:"server" envPrefix:"SERVER_"`
	WebSocket   WebSocket   `yaml:"websocket" envPrefix:"WS_"`
	Drawing     Drawing     `yaml:"drawing" envPrefix:"DRAWING_"`
	Logging     Logging     `yaml:"logging" envPrefix:"LOG_"`
	Metrics     Metrics     `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing     Tracing     `yaml:"tracing" envPrefix:"TRACING_"`
	Events      Events      `yaml:"events" envPrefix:"EVENTS_"`
	Discovery   Discovery   `yaml:"discovery" envPrefix:"MDNS_"`

	// LoadedFrom lists the sources applied, in order.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	// StaticDir is served at / when set.
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocket configures the realtime transport.
type WebSocket struct {
	MaxConnections    int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	SendBufferSize    int           `yaml:"send_buffer_size" env:"SEND_BUFFER_SIZE"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
	WriteWait         time.Duration `yaml:"write_wait" env:"WRITE_WAIT"`
	PongWait          time.Duration `yaml:"pong_wait" env:"PONG_WAIT"`
	PingPeriod        time.Duration `yaml:"ping_period" env:"PING_PERIOD"`
	FramesPerSecond   int           `yaml:"frames_per_second" env:"FRAMES_PER_SECOND"`
	MaxDecodeFailures int           `yaml:"max_decode_failures" env:"MAX_DECODE_FAILURES"`
	HealthInterval    time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`
}

// Drawing configures room behavior.
type Drawing struct {
	DefaultRoom         string        `yaml:"default_room" env:"DEFAULT_ROOM"`
	DefaultDisplayName  string        `yaml:"default_display_name" env:"DEFAULT_DISPLAY_NAME"`
	MaxDisplayNameRunes int           `yaml:"max_display_name_runes" env:"MAX_DISPLAY_NAME_RUNES"`
	MaxRoomIDRunes      int           `yaml:"max_room_id_runes" env:"MAX_ROOM_ID_RUNES"`
	MaxLogLength        int           `yaml:"max_log_length" env:"MAX_LOG_LENGTH"`
	UndoDebounce        time.Duration `yaml:"undo_debounce" env:"UNDO_DEBOUNCE"`
	Palette             []string      `yaml:"palette" env:"PALETTE" envSeparator:","`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Path      string `yaml:"path" env:"PATH"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"INSECURE"`
	SampleRate  float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Events configures activity publishing to EventBridge.
type Events struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	EventBusName   string        `yaml:"event_bus_name" env:"BUS_NAME"`
	Source         string        `yaml:"source" env:"SOURCE"`
	Region         string        `yaml:"region" env:"REGION"`
	QueueSize      int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	BatchSize      int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FlushInterval  time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// Discovery configures mDNS advertisement on the local network.
type Discovery struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Service  string `yaml:"service" env:"SERVICE"`
	Instance string `yaml:"instance" env:"INSTANCE"`
	Domain   string `yaml:"domain" env:"DOMAIN"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Environment {
	case Development, Staging, Production:
	default:
		add("environment %q is not one of development, staging, production", c.Environment)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	ws := c.WebSocket
	if ws.MaxConnections <= 0 {
		add("websocket.max_connections must be positive")
	}
	if ws.SendBufferSize <= 0 {
		add("websocket.send_buffer_size must be positive")
	}
	if ws.MaxMessageBytes <= 0 {
		add("websocket.max_message_bytes must be positive")
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 || ws.PingPeriod <= 0 {
		add("websocket timeouts must be positive")
	}
	if ws.PingPeriod >= ws.PongWait {
		add("websocket.ping_period must be shorter than websocket.pong_wait")
	}
	if ws.FramesPerSecond <= 0 {
		add("websocket.frames_per_second must be positive")
	}
	if ws.MaxDecodeFailures <= 0 {
		add("websocket.max_decode_failures must be positive")
	}

	d := c.Drawing
	if strings.TrimSpace(d.DefaultRoom) == "" {
		add("drawing.default_room cannot be empty")
	}
	if d.MaxLogLength <= 0 {
		add("drawing.max_log_length must be positive")
	}
	if d.UndoDebounce < 0 {
		add("drawing.undo_debounce cannot be negative")
	}
	if len(d.Palette) == 0 {
		add("drawing.palette cannot be empty")
	}
	if d.MaxDisplayNameRunes <= 0 || d.MaxRoomIDRunes <= 0 {
		add("drawing rune limits must be positive")
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		add("logging.format must be json or console")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		add("tracing.endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		add("tracing.sample_rate must be between 0 and 1")
	}

	if c.Events.Enabled {
		if c.Events.EventBusName == "" {
			add("events.event_bus_name is required when events are enabled")
		}
		if c.Events.QueueSize <= 0 {
			add("events.queue_size must be positive")
		}
		if c.Events.BatchSize <= 0 || c.Events.BatchSize > 10 {
			add("events.batch_size must be between 1 and 10")
		}
	}

	if c.Discovery.Enabled && c.Discovery.Service == "" {
		add("discovery.service is required when discovery is enabled")
	}

	if len(problems) > 0 {
		return pkgerrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

// Default returns the configuration used when no files or variables are set.
func Default(env Environment) *Config {
	if env == "" {
		env = Development
	}
	return &Config{
		Environment: env,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: WebSocket{
			MaxConnections:    1000,
			SendBufferSize:    256,
			MaxMessageBytes:   64 * 1024,
			WriteWait:         10 * time.Second,
			PongWait:          60 * time.Second,
			PingPeriod:        54 * time.Second,
			FramesPerSecond:   240,
			MaxDecodeFailures: 3,
			HealthInterval:    30 * time.Second,
		},
		Drawing: Drawing{
			DefaultRoom:         "main",
			DefaultDisplayName:  "Anonymous",
			MaxDisplayNameRunes: 64,
			MaxRoomIDRunes:      128,
			MaxLogLength:        2000,
			UndoDebounce:        300 * time.Millisecond,
			Palette: []string{
				"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
				"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080",
			},
		},
		Logging: Logging{
			Level: "info",
		},
		Metrics: Metrics{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "sketchroom",
		},
		Tracing: Tracing{
			ServiceName: "sketchroom",
			Insecure:    true,
			SampleRate:  0.1,
		},
		Events: Events{
			Source:         "sketchroom.rooms",
			QueueSize:      1024,
			BatchSize:      10,
			FlushInterval:  time.Second,
			PublishTimeout: 5 * time.Second,
			MaxRetries:     3,
		},
		Discovery: Discovery{
			Service: "_sketchroom._tcp",
			Domain:  "local.",
		},
	}
}

// applyEnvironmentDefaults adjusts values that depend on the environment
// after every source has been applied.
func (c *Config) applyEnvironmentDefaults() {
	switch c.Environment {
	case Development:
		if c.Logging.Format == "" {
			c.Logging.Format = "console"
		}
		if c.Tracing.SampleRate == 0 {
			c.Tracing.SampleRate = 1
		}
	case Production:
		c.Logging.Format = "json"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
