// Package config resolves the bridge configuration.
//
// Values are layered, later layers winning: built-in defaults, the YAML file
// named by --config, environment variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgth/SpatialVisualizer/internal/monitoring"
)

// maxFileSize bounds the configuration file.
const maxFileSize = 1 << 20

// Config is the complete bridge configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OSC      OSCConfig      `yaml:"osc"`
	Renderer RendererConfig `yaml:"renderer"`
	Liveness LivenessConfig `yaml:"liveness"`
	Fanout   FanoutConfig   `yaml:"fanout"`
	Layouts  LayoutsConfig  `yaml:"layouts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig is the HTTP and WebSocket listener.
type ServerConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"` // empty disables static files
}

// OSCConfig is the UDP socket the renderer sends to.
type OSCConfig struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"` // 0 picks an ephemeral port
	RcvBuf      int    `yaml:"rcv_buf"`
	SendQueue   int    `yaml:"send_queue"`
	EngineQueue int    `yaml:"engine_queue"`
}

// RendererConfig is where registration, heartbeats and control messages go.
type RendererConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LivenessConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// FanoutConfig sizes the per-observer send buffer.
type FanoutConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

type LayoutsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Address: "0.0.0.0", Port: 3000, StaticDir: "public"},
		OSC:      OSCConfig{Address: "0.0.0.0", Port: 9000, RcvBuf: 4 << 20, SendQueue: 256, EngineQueue: 1024},
		Renderer: RendererConfig{Host: "127.0.0.1", Port: 9001},
		Liveness: LivenessConfig{Interval: 5 * time.Second, Timeout: 10 * time.Second},
		Fanout:   FanoutConfig{SendBuffer: 256},
		Layouts:  LayoutsConfig{Dir: "layouts", Watch: true},
		Logging:  LoggingConfig{Level: "info", Format: monitoring.FormatConsole},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	clean := filepath.Clean(path)
	switch ext := strings.ToLower(filepath.Ext(clean)); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", clean, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", clean, err)
	}
	return nil
}

// HTTPAddr is the host:port the HTTP server listens on.
func (c *Config) HTTPAddr() string { return joinHostPort(c.Server.Address, c.Server.Port) }

// OSCAddr is the host:port the OSC socket binds.
func (c *Config) OSCAddr() string { return joinHostPort(c.OSC.Address, c.OSC.Port) }

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.OSC.Validate(); err != nil {
		return fmt.Errorf("osc config: %w", err)
	}
	if err := c.Renderer.Validate(); err != nil {
		return fmt.Errorf("renderer config: %w", err)
	}
	if err := c.Liveness.Validate(); err != nil {
		return fmt.Errorf("liveness config: %w", err)
	}
	if err := c.Fanout.Validate(); err != nil {
		return fmt.Errorf("fanout config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

func (o *OSCConfig) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", o.Port)
	}
	if o.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if o.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf cannot be negative, got %d", o.RcvBuf)
	}
	if o.SendQueue < 1 {
		return fmt.Errorf("send_queue must be at least 1, got %d", o.SendQueue)
	}
	if o.EngineQueue < 1 {
		return fmt.Errorf("engine_queue must be at least 1, got %d", o.EngineQueue)
	}
	return nil
}

func (r *RendererConfig) Validate() error {
	if r.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", r.Port)
	}
	return nil
}

func (l *LivenessConfig) Validate() error {
	if l.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", l.Interval)
	}
	if l.Timeout < l.Interval {
		return fmt.Errorf("timeout (%s) must not be shorter than interval (%s)", l.Timeout, l.Interval)
	}
	return nil
}

func (f *FanoutConfig) Validate() error {
	if f.SendBuffer < 1 {
		return fmt.Errorf("send_buffer must be at least 1, got %d", f.SendBuffer)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if _, err := monitoring.ParseLevel(l.Level); err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case "", monitoring.FormatConsole, monitoring.FormatJSON:
		return nil
	}
	return fmt.Errorf("format must be %q or %q, got %q", monitoring.FormatConsole, monitoring.FormatJSON, l.Format)
}

// Options returns the logger options for this section.
func (l LoggingConfig) Options() monitoring.Options {
	return monitoring.Options{Level: l.Level, Format: l.Format}
}
