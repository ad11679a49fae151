package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func parseFlags(t *testing.T, args ...string) *Flags {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := NewFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:3000", cfg.HTTPAddr())
	assert.Equal(t, "0.0.0.0:9000", cfg.OSCAddr())
}

func TestResolve_DefaultsOnly(t *testing.T) {
	cfg, err := Resolve(parseFlags(t), env(nil))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := writeConfig(t, "bridge.yaml", `
server:
  port: 4000
  static_dir: ""
renderer:
  host: renderer.local
  port: 7000
liveness:
  interval: 2s
  timeout: 6s
logging:
  level: debug
`)
	f := parseFlags(t, "--config", path, "--renderer-port", "7100", "--no-watch")
	cfg, err := Resolve(f, env(map[string]string{
		"PORT":          "5000",
		"RENDERER_PORT": "7050",
		"LOG_FORMAT":    "json",
		"OSC_PORT":      "",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port, "env beats file")
	assert.Equal(t, "", cfg.Server.StaticDir, "file beats default")
	assert.Equal(t, "renderer.local", cfg.Renderer.Host)
	assert.Equal(t, 7100, cfg.Renderer.Port, "flag beats env")
	assert.Equal(t, 9000, cfg.OSC.Port, "empty env is ignored")
	assert.Equal(t, 2*time.Second, cfg.Liveness.Interval)
	assert.Equal(t, 6*time.Second, cfg.Liveness.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Layouts.Watch)
}

func TestResolve_Errors(t *testing.T) {
	_, err := Resolve(parseFlags(t), env(map[string]string{"PORT": "http"}))
	assert.ErrorContains(t, err, "PORT")

	_, err = Resolve(parseFlags(t), env(map[string]string{"HEARTBEAT_INTERVAL": "soon"}))
	assert.Error(t, err)

	_, err = Resolve(parseFlags(t, "--heartbeat-timeout", "1s"), env(nil))
	assert.ErrorContains(t, err, "liveness config")

	_, err = Resolve(parseFlags(t, "--config", writeConfig(t, "c.json", "{}")), env(nil))
	assert.ErrorContains(t, err, "extension")

	_, err = Resolve(parseFlags(t, "--config", writeConfig(t, "c.yaml", "server: [")), env(nil))
	assert.Error(t, err)

	_, err = Resolve(parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")), env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port", func(c *Config) { c.Server.Port = 0 }},
		{"http address", func(c *Config) { c.Server.Address = "" }},
		{"osc port", func(c *Config) { c.OSC.Port = 70000 }},
		{"send queue", func(c *Config) { c.OSC.SendQueue = 0 }},
		{"renderer host", func(c *Config) { c.Renderer.Host = "" }},
		{"interval", func(c *Config) { c.Liveness.Interval = 0 }},
		{"send buffer", func(c *Config) { c.Fanout.SendBuffer = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	ephemeral := Default()
	ephemeral.OSC.Port = 0
	assert.NoError(t, ephemeral.Validate())
}

func TestJoinHostPort(t *testing.T) {
	assert.Equal(t, "[::1]:3000", joinHostPort("::1", 3000))
	assert.Equal(t, "localhost:0", joinHostPort("localhost", 0))
}
