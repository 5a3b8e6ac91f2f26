package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultServersFile is the MCP client configuration read for server.name.
const DefaultServersFile = ".mcp.json"

// ErrServerNotFound is returned when a servers file has no entry of the requested name.
var ErrServerNotFound = errors.New("server not found")

// ServerDef is a stdio MCP server declared in an MCP client configuration.
type ServerDef struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
}

// Argv returns the command followed by its arguments.
func (d *ServerDef) Argv() []string {
	return append([]string{d.Command}, d.Args...)
}

// Environ returns Env as sorted NAME=value pairs.
func (d *ServerDef) Environ() []string {
	names := make([]string, 0, len(d.Env))
	for name := range d.Env {
		names = append(names, name)
	}

	sort.Strings(names)

	env := make([]string, 0, len(names))
	for _, name := range names {
		env = append(env, name+"="+d.Env[name])
	}

	return env
}

// jsonServersFile covers the mcpServers layout of .mcp.json and Claude
// Desktop, and the servers layout of VS Code's mcp.json.
type jsonServersFile struct {
	MCPServers map[string]fileServer `json:"mcpServers"`
	Servers    map[string]fileServer `json:"servers"`
}

// tomlServersFile covers the mcp_servers tables of a Codex config.toml.
type tomlServersFile struct {
	MCPServers map[string]fileServer `toml:"mcp_servers"`
}

type fileServer struct {
	Type    string            `json:"type,omitempty" toml:"type,omitempty"`
	Command string            `json:"command,omitempty" toml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" toml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" toml:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty" toml:"cwd,omitempty"`
	URL     string            `json:"url,omitempty" toml:"url,omitempty"`
}

// LoadServers reads the stdio servers declared in an MCP client
// configuration. Files ending in .toml use the Codex layout; anything else
// is read as JSON. Remote (url-only) entries are skipped.
func LoadServers(path string) (map[string]*ServerDef, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator configuration
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}

	var entries map[string]fileServer

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var file tomlServersFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		entries = file.MCPServers
	} else {
		var file jsonServersFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		entries = file.MCPServers
		if len(entries) == 0 {
			entries = file.Servers
		}
	}

	servers := make(map[string]*ServerDef, len(entries))

	for name, entry := range entries {
		if strings.TrimSpace(entry.Command) == "" {
			continue
		}

		servers[name] = &ServerDef{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			Cwd:     entry.Cwd,
		}
	}

	return servers, nil
}

// LookupServer returns the stdio server called name in the file at path.
func LookupServer(path, name string) (*ServerDef, error) {
	if path == "" {
		path = DefaultServersFile
	}

	servers, err := LoadServers(path)
	if err != nil {
		return nil, err
	}

	def, ok := servers[name]
	if !ok {
		names := make([]string, 0, len(servers))
		for n := range servers {
			names = append(names, n)
		}

		sort.Strings(names)

		available := "none"
		if len(names) > 0 {
			available = strings.Join(names, ", ")
		}

		return nil, fmt.Errorf("%w: no stdio server %q in %s (available: %s)", ErrServerNotFound, name, path, available)
	}

	return def, nil
}
