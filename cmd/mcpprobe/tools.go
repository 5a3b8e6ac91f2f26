package main

import (
	"github.com/spf13/cobra"

	clierrors "github.com/musher-dev/mcpprobe/internal/errors"
	"github.com/musher-dev/mcpprobe/internal/output"
	"github.com/musher-dev/mcpprobe/internal/protocol"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [name]",
		Short: "List the tools of the sample weather server",
		Long: `List the tools exposed by the sample weather server along with their
arguments. Pass a tool name to show only that tool. Any other tool name can
still be used with 'mcpprobe run --tool'; it is sent unchanged.`,
		Example: `  mcpprobe tools
  mcpprobe tools get_weather_forecast
  mcpprobe tools --json`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: protocol.ToolNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			specs := make([]*protocol.ToolSpec, 0)

			if len(args) == 1 {
				spec, ok := protocol.GetTool(args[0])
				if !ok {
					return clierrors.UnknownTool(args[0], protocol.ToolNames())
				}

				specs = append(specs, spec)
			} else {
				for _, name := range protocol.ToolNames() {
					spec, _ := protocol.GetTool(name)
					specs = append(specs, spec)
				}
			}

			if out.JSON {
				return out.PrintJSON(specs)
			}

			for i, spec := range specs {
				if i > 0 {
					out.Println()
				}

				out.Print("%s\n", spec.Name)
				out.Print("  %s\n", spec.Description)

				for _, arg := range spec.Arguments {
					required := ""
					if arg.Required {
						required = " (required)"
					}

					out.Print("    %-12s %s%s\n", arg.Name, arg.Description, required)
				}
			}

			return nil
		},
	}
}
