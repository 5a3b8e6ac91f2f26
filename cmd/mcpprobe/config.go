package main

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/musher-dev/mcpprobe/internal/config"
	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
	"github.com/musher-dev/mcpprobe/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify mcpprobe configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display the effective value of every configuration key, after defaults,
the config file and MCPPROBE_* environment variables are applied.`,
		Example: `  mcpprobe config list
  mcpprobe config list --format yaml > ~/.config/mcpprobe/config.yaml
  mcpprobe config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			if out.JSON {
				return out.PrintJSON(cfg.Effective())
			}

			switch strings.ToLower(format) {
			case "", "text":
			case "yaml":
				data, err := yaml.Marshal(cfg.Effective())
				if err != nil {
					return clierrors.ConfigFailed("encode config", err)
				}

				out.Print("%s", data)

				return nil
			case "toml":
				data, err := toml.Marshal(cfg.Effective())
				if err != nil {
					return clierrors.ConfigFailed("encode config", err)
				}

				out.Print("%s", data)

				return nil
			case "json":
				return out.PrintJSON(cfg.Effective())
			default:
				return clierrors.InvalidFlag("format", fmt.Errorf("unknown format %q (want text, yaml, toml or json)", format))
			}

			out.Muted("Config file: %s", cfg.File())
			out.Println()

			for _, key := range cfg.Keys() {
				out.Print("%s = %v\n", key, cfg.Value(key))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, yaml, toml, json")

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  mcpprobe config get server.command`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]
			cfg := config.Load()
			value := cfg.Value(key)

			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to the given value. The value is persisted to the config file.
List settings (server.env, request.args) take a comma-separated value.`,
		Example: `  mcpprobe config set server.command "node build/index.js"
  mcpprobe config set request.args city=Berlin,countryCode=DE
  mcpprobe config set timeout 2m`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}

			keys := make([]string, 0)
			for _, s := range config.Settings() {
				keys = append(keys, s.Key+"\t"+s.Description)
			}

			return keys, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			setting, ok := config.LookupSetting(key)
			if !ok {
				return clierrors.New(clierrors.ExitConfig, fmt.Sprintf("Unknown configuration key: %s", key)).
					WithHint("Run 'mcpprobe config list' to see available keys")
			}

			cfg := config.Load()

			var stored any = value
			if setting.List {
				stored = splitList(value)
			}

			if err := cfg.Set(key, stored); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}

	return items
}
