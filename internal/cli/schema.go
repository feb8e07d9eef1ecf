// Package cli holds helpers shared by the botstudiod commands.
package cli

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema is the machine-readable description of a command tree, used
// by deployment tooling to discover the operator commands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Runnable    bool            `json:"runnable"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// Describe builds the schema of cmd and its visible subcommands.
func Describe(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Path:        cmd.CommandPath(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Runnable:    cmd.Runnable(),
		Flags:       describeFlags(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, Describe(sub))
	}

	return schema
}

func describeFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" || f.Hidden {
			return
		}
		flags = append(flags, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    isRequired(f),
		})
	})

	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags
}

// isRequired reads the annotation set by cobra's MarkFlagRequired.
func isRequired(f *pflag.Flag) bool {
	v, ok := f.Annotations[cobra.BashCompOneRequiredFlag]
	return ok && len(v) > 0 && v[0] == "true"
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Describe(cmd))
}

// AddHelpJSONFlag registers --help-json on the root command so it shows up in
// the regular help output.
func AddHelpJSONFlag(root *cobra.Command) {
	root.PersistentFlags().Bool(helpJSONFlag, false, "Print the command schema as JSON")
}

// HelpJSONTarget reports whether args ask for the JSON schema and, if so,
// which command it should describe. It runs before Execute so required flags
// and positional arguments are not validated.
func HelpJSONTarget(root *cobra.Command, args []string) (*cobra.Command, bool) {
	for i, arg := range args {
		if arg == "--"+helpJSONFlag {
			return findCommand(root, args[:i]), true
		}
	}
	return nil, false
}

func findCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findCommand(sub, args[1:])
		}
	}

	return cmd
}
