package protocol

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed tools/*.yaml
var toolsFS embed.FS

// ToolSpec describes a tool exposed by the reference weather server.
type ToolSpec struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Arguments   []ArgSpec `yaml:"arguments"`
}

// ArgSpec describes one named tool argument.
type ArgSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// toolSpecs is loaded at package init time from embedded YAML files.
var toolSpecs = mustLoadTools(toolsFS)

func mustLoadTools(fsys embed.FS) map[string]*ToolSpec {
	entries, err := fsys.ReadDir("tools")
	if err != nil {
		panic(fmt.Sprintf("protocol: read tools dir: %v", err))
	}

	specs := make(map[string]*ToolSpec, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, readErr := fsys.ReadFile("tools/" + entry.Name())
		if readErr != nil {
			panic(fmt.Sprintf("protocol: read tool file %s: %v", entry.Name(), readErr))
		}

		var spec ToolSpec
		if unmarshalErr := yaml.Unmarshal(data, &spec); unmarshalErr != nil {
			panic(fmt.Sprintf("protocol: unmarshal tool %s: %v", entry.Name(), unmarshalErr))
		}

		if spec.Name == "" {
			panic(fmt.Sprintf("protocol: tool %s: name is required", entry.Name()))
		}

		if _, dup := specs[spec.Name]; dup {
			panic(fmt.Sprintf("protocol: duplicate tool name %q in %s", spec.Name, entry.Name()))
		}

		specs[spec.Name] = &spec
	}

	return specs
}

// GetTool returns the ToolSpec for a known tool.
func GetTool(name string) (*ToolSpec, bool) {
	spec, ok := toolSpecs[name]
	return spec, ok
}

// ToolNames returns all known tool names in sorted order.
func ToolNames() []string {
	names := make([]string, 0, len(toolSpecs))
	for name := range toolSpecs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// MissingArguments returns the required arguments of spec absent from args.
func (spec *ToolSpec) MissingArguments(args map[string]any) []string {
	var missing []string

	for _, arg := range spec.Arguments {
		if !arg.Required {
			continue
		}

		if _, ok := args[arg.Name]; !ok {
			missing = append(missing, arg.Name)
		}
	}

	return missing
}
