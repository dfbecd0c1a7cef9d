package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/tracelisten/cmd/tracelisten/internal/cliutil"
	"github.com/marmos91/tracelisten/internal/hooks"
	"github.com/marmos91/tracelisten/internal/logger"

	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Parse and author event-hook descriptors",
}

var hookParseCmd = &cobra.Command{
	Use:   "parse <descriptor>",
	Short: "Parse a hook descriptor and print its fields",
	Long: `parse validates a descriptor of the form
"[sys:]ev,match[,pid]/[sys:]ev,match[,flags]" and prints the decoded start
event, end event, and flag semantics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := hooks.Parse(args[0])
		if err != nil {
			return err
		}

		for _, u := range hooks.UnknownFlags(h.End.Extra) {
			logger.Warn("ignoring unknown hook flag", "flag", string(u))
		}

		fmt.Printf("start: system=%q event=%q match=%q pid=%q\n", h.Start.System, h.Start.Event, h.Start.Match, h.Start.Extra)
		fmt.Printf("end:   system=%q event=%q match=%q\n", h.End.System, h.End.Event, h.End.Match)
		fmt.Printf("flags: migrate=%t global=%t stack=%t\n", h.Flags.Migrate, h.Flags.Global, h.Flags.Stack)
		return nil
	},
}

var hookAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Interactively author a hook descriptor",
	Long:  "add walks through each field of a hook descriptor and prints the resulting canonical string.",
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := cliutil.RunHookWizard()
		if err != nil {
			if err == cliutil.ErrAborted {
				return nil
			}
			return err
		}

		descriptor := answers.Descriptor()
		if _, err := hooks.Parse(descriptor); err != nil {
			return fmt.Errorf("generated descriptor is invalid: %w", err)
		}

		fmt.Fprintln(os.Stdout, descriptor)
		return nil
	},
}

func init() {
	hookCmd.AddCommand(hookParseCmd)
	hookCmd.AddCommand(hookAddCmd)
}
