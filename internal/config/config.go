// Package config handles mcpprobe configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Command-line flags bound with BindFlag
//  2. Environment variables (MCPPROBE_*)
//  3. Config file (~/.config/mcpprobe/config.yaml, honoring XDG_CONFIG_HOME)
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/musher-dev/mcpprobe/internal/paths"
)

// Configuration keys.
const (
	KeyCommand          = "server.command"
	KeyDir              = "server.dir"
	KeyEnv              = "server.env"
	KeyTransport        = "server.transport"
	KeyServerName       = "server.name"
	KeyServerFile       = "server.file"
	KeyReady            = "markers.ready"
	KeyResult           = "markers.result"
	KeyRegex            = "markers.regex"
	KeyTool             = "request.tool"
	KeyArgs             = "request.args"
	KeyID               = "request.id"
	KeyTimeout          = "timeout"
	KeyShutdownDeadline = "shutdown_deadline"
	KeyDecode           = "decode"
	KeyCloseInput       = "close_input"
)

const (
	// DefaultCommand launches the sample weather server.
	DefaultCommand = "dotnet run --project WeatherMcpServer"
	// DefaultTransport attaches the server over plain pipes.
	DefaultTransport = "pipe"
	// DefaultReadyMarker is printed by the server once it accepts input.
	DefaultReadyMarker = "Application started."
	// DefaultResultMarker opens the result field of a JSON-RPC response.
	DefaultResultMarker = `"result":`
	// DefaultTool is the tool called by a default run.
	DefaultTool = "get_weather_alerts"
	// DefaultRequestID is the JSON-RPC correlation id.
	DefaultRequestID = 1
	// DefaultTimeout bounds each blocking wait on the server.
	DefaultTimeout = 60 * time.Second
	// DefaultShutdownDeadline is the grace period between SIGTERM and SIGKILL.
	DefaultShutdownDeadline = 2 * time.Second
)

// DefaultArgs are the tool arguments of a default run, as name=value pairs.
var DefaultArgs = []string{"city=Moscow"}

const configFileName = "config.yaml"

// Setting documents one configuration key.
type Setting struct {
	Key         string
	Description string
	List        bool
}

// settings lists every key mcpprobe reads, in display order.
var settings = []Setting{
	{Key: KeyCommand, Description: "Server command line"},
	{Key: KeyDir, Description: "Working directory for the server"},
	{Key: KeyEnv, Description: "Environment passed to the server (NAME or NAME=value)", List: true},
	{Key: KeyTransport, Description: "How to attach to the server: pipe or pty"},
	{Key: KeyServerName, Description: "Server to launch from server.file instead of server.command"},
	{Key: KeyServerFile, Description: "MCP client configuration declaring servers (.mcp.json or config.toml)"},
	{Key: KeyReady, Description: "Marker the server prints once it accepts input"},
	{Key: KeyResult, Description: "Marker that starts the server's reply"},
	{Key: KeyRegex, Description: "Treat markers as regular expressions"},
	{Key: KeyTool, Description: "Tool to call"},
	{Key: KeyArgs, Description: "Tool arguments (name=value)", List: true},
	{Key: KeyID, Description: "JSON-RPC request id"},
	{Key: KeyTimeout, Description: "Bound on each wait for the server"},
	{Key: KeyShutdownDeadline, Description: "Grace period between SIGTERM and SIGKILL"},
	{Key: KeyDecode, Description: "Decode the reply as a JSON-RPC response"},
	{Key: KeyCloseInput, Description: "Close the server's input once the result marker is seen"},
}

// Settings returns the documented configuration keys.
func Settings() []Setting {
	return append([]Setting(nil), settings...)
}

// LookupSetting returns the documentation for key.
func LookupSetting(key string) (Setting, bool) {
	for _, s := range settings {
		if s.Key == key {
			return s, true
		}
	}

	return Setting{}, false
}

// Config holds the mcpprobe configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault(KeyCommand, DefaultCommand)
	v.SetDefault(KeyDir, "")
	v.SetDefault(KeyEnv, []string{})
	v.SetDefault(KeyTransport, DefaultTransport)
	v.SetDefault(KeyServerName, "")
	v.SetDefault(KeyServerFile, DefaultServersFile)
	v.SetDefault(KeyReady, DefaultReadyMarker)
	v.SetDefault(KeyResult, DefaultResultMarker)
	v.SetDefault(KeyRegex, false)
	v.SetDefault(KeyTool, DefaultTool)
	v.SetDefault(KeyArgs, DefaultArgs)
	v.SetDefault(KeyID, DefaultRequestID)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyShutdownDeadline, DefaultShutdownDeadline)
	v.SetDefault(KeyDecode, false)
	v.SetDefault(KeyCloseInput, true)

	if configDir, err := paths.ConfigRoot(); err == nil {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MCPPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// BindFlag makes flag override key when it is set on the command line.
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag is nil", key)
	}

	return c.v.BindPFlag(key, flag)
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// IsKnown reports whether key has a value from any source.
func (c *Config) IsKnown(key string) bool {
	return c.v.IsSet(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value any) error {
	c.v.Set(key, value)

	configDir, err := paths.ConfigRoot()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	return c.v.WriteConfigAs(filepath.Join(configDir, configFileName))
}

// File returns the path of the config file in use, or where Set writes it.
func (c *Config) File() string {
	if used := c.v.ConfigFileUsed(); used != "" {
		return used
	}

	configDir, err := paths.ConfigRoot()
	if err != nil {
		return ""
	}

	return filepath.Join(configDir, configFileName)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]any {
	return c.v.AllSettings()
}

// Keys returns every configuration key in sorted order.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)

	return keys
}

// Value returns the value of key for display. Durations are rendered in
// their string form whatever representation the source used.
func (c *Config) Value(key string) any {
	switch key {
	case KeyTimeout, KeyShutdownDeadline:
		return c.v.GetDuration(key).String()
	default:
		return c.v.Get(key)
	}
}

// Effective returns all configuration as a nested map ready for encoding.
func (c *Config) Effective() map[string]any {
	m := normalize(c.v.AllSettings())
	m[KeyTimeout] = c.Value(KeyTimeout)
	m[KeyShutdownDeadline] = c.Value(KeyShutdownDeadline)

	return m
}

func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))

	for key, value := range m {
		switch v := value.(type) {
		case map[string]any:
			out[key] = normalize(v)
		case time.Duration:
			out[key] = v.String()
		default:
			out[key] = v
		}
	}

	return out
}

// Timeout returns the per-wait timeout.
func (c *Config) Timeout() time.Duration {
	return c.v.GetDuration(KeyTimeout)
}

// ShutdownDeadline returns the SIGTERM grace period.
func (c *Config) ShutdownDeadline() time.Duration {
	return c.v.GetDuration(KeyShutdownDeadline)
}

// Transport returns the configured transport name.
func (c *Config) Transport() string {
	return strings.ToLower(strings.TrimSpace(c.v.GetString(KeyTransport)))
}
