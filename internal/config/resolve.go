package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// setting binds one value to its environment variable and flag.
type setting struct {
	env  string
	flag string
	// set parses a textual value into cfg.
	set func(cfg *Config, v string) error
	// copy moves the flag value from src into dst.
	copy func(dst, src *Config)
}

func stringSetting(env, flag string, field func(*Config) *string) setting {
	return setting{
		env:  env,
		flag: flag,
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	}
}

func intSetting(env, flag string, field func(*Config) *int) setting {
	return setting{
		env:  env,
		flag: flag,
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = n
			return nil
		},
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	}
}

func durationSetting(env, flag string, field func(*Config) *time.Duration) setting {
	return setting{
		env:  env,
		flag: flag,
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	}
}

var settings = []setting{
	intSetting("PORT", "http-port", func(c *Config) *int { return &c.Server.Port }),
	stringSetting("HTTP_ADDRESS", "http-address", func(c *Config) *string { return &c.Server.Address }),
	stringSetting("STATIC_DIR", "static-dir", func(c *Config) *string { return &c.Server.StaticDir }),
	intSetting("OSC_PORT", "osc-port", func(c *Config) *int { return &c.OSC.Port }),
	stringSetting("OSC_ADDRESS", "osc-address", func(c *Config) *string { return &c.OSC.Address }),
	stringSetting("RENDERER_HOST", "renderer-host", func(c *Config) *string { return &c.Renderer.Host }),
	intSetting("RENDERER_PORT", "renderer-port", func(c *Config) *int { return &c.Renderer.Port }),
	durationSetting("HEARTBEAT_INTERVAL", "heartbeat-interval", func(c *Config) *time.Duration { return &c.Liveness.Interval }),
	durationSetting("HEARTBEAT_TIMEOUT", "heartbeat-timeout", func(c *Config) *time.Duration { return &c.Liveness.Timeout }),
	stringSetting("LAYOUTS_DIR", "layouts-dir", func(c *Config) *string { return &c.Layouts.Dir }),
	stringSetting("LOG_LEVEL", "log-level", func(c *Config) *string { return &c.Logging.Level }),
	stringSetting("LOG_FORMAT", "log-format", func(c *Config) *string { return &c.Logging.Format }),
}

// ApplyEnv overlays the environment variables that are set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	for _, s := range settings {
		v, ok := lookup(s.env)
		if !ok || v == "" {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", s.env, v, err)
		}
	}
	return nil
}

// Flags holds the parsed command line.
type Flags struct {
	fs         *pflag.FlagSet
	values     *Config
	ConfigPath string
	NoWatch    bool
	Version    bool
}

// NewFlags registers every setting on fs. Defaults shown in help are the
// built-in ones.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: Default()}
	v := f.values

	fs.StringVarP(&f.ConfigPath, "config", "c", "", "YAML configuration file")
	fs.IntVar(&v.Server.Port, "http-port", v.Server.Port, "HTTP and WebSocket port")
	fs.StringVar(&v.Server.Address, "http-address", v.Server.Address, "HTTP bind address")
	fs.StringVar(&v.Server.StaticDir, "static-dir", v.Server.StaticDir, "directory of front-end files (empty disables)")
	fs.IntVar(&v.OSC.Port, "osc-port", v.OSC.Port, "OSC receive port (0 picks an ephemeral port)")
	fs.StringVar(&v.OSC.Address, "osc-address", v.OSC.Address, "OSC bind address")
	fs.StringVar(&v.Renderer.Host, "renderer-host", v.Renderer.Host, "renderer host")
	fs.IntVar(&v.Renderer.Port, "renderer-port", v.Renderer.Port, "renderer OSC port")
	fs.DurationVar(&v.Liveness.Interval, "heartbeat-interval", v.Liveness.Interval, "heartbeat interval")
	fs.DurationVar(&v.Liveness.Timeout, "heartbeat-timeout", v.Liveness.Timeout, "re-register after this long without an ack")
	fs.StringVar(&v.Layouts.Dir, "layouts-dir", v.Layouts.Dir, "directory of speaker layout files")
	fs.BoolVar(&f.NoWatch, "no-watch", false, "do not reload layouts when files change")
	fs.StringVar(&v.Logging.Level, "log-level", v.Logging.Level, "log level: debug, info, warn, error")
	fs.StringVar(&v.Logging.Format, "log-format", v.Logging.Format, "log format: console or json")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")
	return f
}

// apply copies the flags given on the command line into cfg.
func (f *Flags) apply(cfg *Config) {
	for _, s := range settings {
		if f.fs.Changed(s.flag) {
			s.copy(cfg, f.values)
		}
	}
	if f.NoWatch {
		cfg.Layouts.Watch = false
	}
}

// Resolve builds the configuration from defaults, the file named by
// --config, the environment and the already-parsed flags, then validates it.
func Resolve(f *Flags, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if f.ConfigPath != "" {
		if err := LoadFile(cfg, f.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
