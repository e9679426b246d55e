// Package cli holds pieces shared by the coachkb and coachkbd binaries.
package cli

import (
	"encoding/json"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// Flag describes a command-line flag.
type Flag struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Default   string `json:"default,omitempty"`
	Usage     string `json:"usage,omitempty"`
	Required  bool   `json:"required"`
	Inherited bool   `json:"inherited,omitempty"`
}

// Command describes a command tree so scripts and agents can discover the
// CLI without parsing help text.
type Command struct {
	Path     string    `json:"path"`
	Use      string    `json:"use"`
	Short    string    `json:"short,omitempty"`
	Long     string    `json:"long,omitempty"`
	Aliases  []string  `json:"aliases,omitempty"`
	Flags    []Flag    `json:"flags,omitempty"`
	Commands []Command `json:"commands,omitempty"`
}

// Describe returns cmd and its visible subcommands.
func Describe(cmd *cobra.Command) Command {
	out := Command{
		Path:    cmd.CommandPath(),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Long:    cmd.Long,
		Aliases: cmd.Aliases,
		Flags:   describeFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		out.Commands = append(out.Commands, Describe(sub))
	}
	return out
}

func describeFlags(cmd *cobra.Command) []Flag {
	var flags []Flag
	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Hidden || f.Name == "help" || f.Name == helpJSONFlag {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			flags = append(flags, Flag{
				Name:      f.Name,
				Shorthand: f.Shorthand,
				Type:      f.Value.Type(),
				Default:   f.DefValue,
				Usage:     f.Usage,
				Required:  required,
				Inherited: inherited,
			})
		}
	}
	cmd.LocalFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))
	return flags
}

// AddHelpJSONFlag registers --help-json on root and all its subcommands.
func AddHelpJSONFlag(root *cobra.Command) {
	root.PersistentFlags().Bool(helpJSONFlag, false, "Describe the command as JSON")
}

// HandleHelpJSON writes the description of the command named by args when
// args contain --help-json, and reports whether it did. It runs before
// Execute so required arguments do not get in the way.
func HandleHelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	i := slices.Index(args, "--"+helpJSONFlag)
	if i < 0 {
		return false, nil
	}
	rest := slices.Delete(slices.Clone(args), i, i+1)

	target, _, err := root.Find(rest)
	if err != nil || target == nil {
		target = root
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(Describe(target))
}
