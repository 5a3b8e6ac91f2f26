package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Probe is the resolved, validated configuration of one round trip.
type Probe struct {
	Command          []string
	Dir              string
	Env              []string
	Transport        string
	ReadyMarker      string
	ResultMarker     string
	Regex            bool
	Tool             string
	Arguments        map[string]any
	RequestID        int64
	Timeout          time.Duration
	ShutdownDeadline time.Duration
	Decode           bool
	CloseInput       bool
}

// Probe resolves the current configuration into a Probe. When server.name
// is set, the command comes from that entry in server.file and the entry's
// environment is layered over server.env.
func (c *Config) Probe() (*Probe, error) {
	args, err := ParseArgs(c.v.GetStringSlice(KeyArgs))
	if err != nil {
		return nil, err
	}

	p := &Probe{
		Dir:              c.v.GetString(KeyDir),
		Env:              ResolveEnv(c.v.GetStringSlice(KeyEnv), os.Environ()),
		Transport:        c.Transport(),
		ReadyMarker:      c.v.GetString(KeyReady),
		ResultMarker:     c.v.GetString(KeyResult),
		Regex:            c.v.GetBool(KeyRegex),
		Tool:             strings.TrimSpace(c.v.GetString(KeyTool)),
		Arguments:        args,
		RequestID:        c.v.GetInt64(KeyID),
		Timeout:          c.Timeout(),
		ShutdownDeadline: c.ShutdownDeadline(),
		Decode:           c.v.GetBool(KeyDecode),
		CloseInput:       c.v.GetBool(KeyCloseInput),
	}

	if name := strings.TrimSpace(c.v.GetString(KeyServerName)); name != "" {
		def, lookupErr := LookupServer(c.v.GetString(KeyServerFile), name)
		if lookupErr != nil {
			return nil, lookupErr
		}

		p.Command = def.Argv()
		p.Env = layerEnv(p.Env, def.Environ())

		if p.Dir == "" {
			p.Dir = def.Cwd
		}
	} else {
		p.Command, err = SplitCommand(c.v.GetString(KeyCommand))
		if err != nil {
			return nil, err
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// layerEnv appends extra to base. A nil base stands for the inherited
// environment, so it is materialized first.
func layerEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}

	if base == nil {
		base = os.Environ()
	}

	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)

	return append(env, extra...)
}

// Validate checks the probe for values that cannot produce a round trip.
func (p *Probe) Validate() error {
	switch {
	case len(p.Command) == 0:
		return fmt.Errorf("%s is empty", KeyCommand)
	case p.Transport != "pipe" && p.Transport != "pty":
		return fmt.Errorf("%s must be pipe or pty, got %q", KeyTransport, p.Transport)
	case p.ReadyMarker == "":
		return fmt.Errorf("%s is empty", KeyReady)
	case p.ResultMarker == "":
		return fmt.Errorf("%s is empty", KeyResult)
	case p.Tool == "":
		return fmt.Errorf("%s is empty", KeyTool)
	case p.Timeout <= 0:
		return fmt.Errorf("%s must be positive, got %s", KeyTimeout, p.Timeout)
	case p.ShutdownDeadline < 0:
		return fmt.Errorf("%s cannot be negative, got %s", KeyShutdownDeadline, p.ShutdownDeadline)
	}

	return nil
}

// SplitCommand splits a shell-style command line into argv. Environment
// references such as $HOME are expanded.
func SplitCommand(line string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true

	argv, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", KeyCommand, err)
	}

	if len(argv) == 0 {
		return nil, fmt.Errorf("%s is empty", KeyCommand)
	}

	return argv, nil
}

// ParseArgs turns name=value pairs into tool arguments. Values are strings;
// a later pair overrides an earlier one with the same name.
func ParseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q: want name=value", pair)
		}

		args[name] = value
	}

	return args, nil
}

// ResolveEnv builds the child environment from a passthrough list. An empty
// list returns nil, which inherits the caller's environment unchanged. A bare
// NAME copies that variable from environ if present; NAME=value sets it.
func ResolveEnv(passthrough, environ []string) []string {
	if len(passthrough) == 0 {
		return nil
	}

	lookup := make(map[string]string, len(environ))
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok {
			lookup[name] = value
		}
	}

	env := make([]string, 0, len(passthrough))

	for _, entry := range passthrough {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "=") {
			env = append(env, entry)
			continue
		}

		if value, ok := lookup[entry]; ok {
			env = append(env, entry+"="+value)
		}
	}

	return env
}
