package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

const claudeServers = `{
  "mcpServers": {
    "weather": {
      "command": "dotnet",
      "args": ["run", "--project", "WeatherMcpServer"],
      "env": {"WEATHER_UNITS": "metric", "API_REGION": "eu"}
    },
    "docs": {
      "type": "http",
      "url": "https://example.com/mcp"
    }
  }
}`

const vscodeServers = `{
  "servers": {
    "weather": {"type": "stdio", "command": "node", "args": ["build/index.js"]}
  }
}`

const codexServers = `[mcp_servers.weather]
command = "uvx"
args = ["weather-mcp"]
cwd = "/srv/weather"

[mcp_servers.weather.env]
WEATHER_UNITS = "imperial"
`

func writeServersFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoadServers_Layouts(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantArgv []string
		wantEnv  []string
		wantCwd  string
	}{
		{
			name:     "claude json",
			file:     ".mcp.json",
			content:  claudeServers,
			wantArgv: []string{"dotnet", "run", "--project", "WeatherMcpServer"},
			wantEnv:  []string{"API_REGION=eu", "WEATHER_UNITS=metric"},
		},
		{
			name:     "vscode json",
			file:     "mcp.json",
			content:  vscodeServers,
			wantArgv: []string{"node", "build/index.js"},
			wantEnv:  []string{},
		},
		{
			name:     "codex toml",
			file:     "config.toml",
			content:  codexServers,
			wantArgv: []string{"uvx", "weather-mcp"},
			wantEnv:  []string{"WEATHER_UNITS=imperial"},
			wantCwd:  "/srv/weather",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := LookupServer(writeServersFile(t, tt.file, tt.content), "weather")
			if err != nil {
				t.Fatalf("LookupServer() error = %v", err)
			}

			if !reflect.DeepEqual(def.Argv(), tt.wantArgv) {
				t.Errorf("Argv() = %v, want %v", def.Argv(), tt.wantArgv)
			}

			if !reflect.DeepEqual(def.Environ(), tt.wantEnv) {
				t.Errorf("Environ() = %v, want %v", def.Environ(), tt.wantEnv)
			}

			if def.Cwd != tt.wantCwd {
				t.Errorf("Cwd = %q, want %q", def.Cwd, tt.wantCwd)
			}
		})
	}
}

func TestLookupServer_SkipsRemoteEntries(t *testing.T) {
	path := writeServersFile(t, ".mcp.json", claudeServers)

	_, err := LookupServer(path, "docs")
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("LookupServer(docs) error = %v, want ErrServerNotFound", err)
	}

	if !strings.Contains(err.Error(), "available: weather") {
		t.Errorf("error = %q, want the stdio servers listed", err)
	}
}

func TestLoadServers_Errors(t *testing.T) {
	if _, err := LoadServers(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadServers(missing) should fail")
	}

	if _, err := LoadServers(writeServersFile(t, "bad.json", "{")); err == nil {
		t.Error("LoadServers(invalid json) should fail")
	}

	if _, err := LoadServers(writeServersFile(t, "bad.toml", "[mcp_servers")); err == nil {
		t.Error("LoadServers(invalid toml) should fail")
	}
}

func TestProbe_FromServersFile(t *testing.T) {
	isolate(t)
	t.Setenv("MCPPROBE_SERVER_FILE", writeServersFile(t, "config.toml", codexServers))
	t.Setenv("MCPPROBE_SERVER_NAME", "weather")
	t.Setenv("MCPPROBE_SERVER_ENV", "PATH")

	p, err := Load().Probe()
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if !reflect.DeepEqual(p.Command, []string{"uvx", "weather-mcp"}) {
		t.Errorf("Command = %v", p.Command)
	}

	if p.Dir != "/srv/weather" {
		t.Errorf("Dir = %q, want the server's cwd", p.Dir)
	}

	if !slices.Contains(p.Env, "WEATHER_UNITS=imperial") || !slices.Contains(p.Env, "PATH="+os.Getenv("PATH")) {
		t.Errorf("Env = %v, want passthrough plus server env", p.Env)
	}
}

func TestProbe_UnknownServer(t *testing.T) {
	isolate(t)
	t.Setenv("MCPPROBE_SERVER_FILE", writeServersFile(t, ".mcp.json", claudeServers))
	t.Setenv("MCPPROBE_SERVER_NAME", "nope")

	if _, err := Load().Probe(); !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("Probe() error = %v, want ErrServerNotFound", err)
	}
}

func TestLayerEnv(t *testing.T) {
	if got := layerEnv(nil, nil); got != nil {
		t.Errorf("layerEnv(nil, nil) = %v, want nil (inherit)", got)
	}

	got := layerEnv([]string{"A=1"}, []string{"B=2"})
	if !reflect.DeepEqual(got, []string{"A=1", "B=2"}) {
		t.Errorf("layerEnv = %v", got)
	}

	t.Setenv("MCPPROBE_LAYER_TEST", "x")

	if got := layerEnv(nil, []string{"B=2"}); !slices.Contains(got, "MCPPROBE_LAYER_TEST=x") || got[len(got)-1] != "B=2" {
		t.Errorf("layerEnv(nil, extra) should start from the inherited environment, got %d entries", len(got))
	}
}
