package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (c *cli) flagsCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "flags [name]",
		Short: "Show feature flag evaluations",
		Long: `Without a name, load and list every flag for the application.
With a name, evaluate that flag; --live skips the cache.

Examples:
  guardctl flags
  guardctl flags beta --live`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				enabled := c.client.IsFeatureEnabled(cmd.Context(), args[0], live)
				if handled, err := c.formatOutput(w, map[string]bool{args[0]: enabled}); handled {
					return err
				}
				fmt.Fprintf(w, "%s  %s\n", args[0], enabledString(enabled))
				return nil
			}

			if err := c.client.Flags().Load(cmd.Context()); err != nil {
				return err
			}
			snapshot := c.client.Flags().Snapshot()
			if handled, err := c.formatOutput(w, snapshot); handled {
				return err
			}
			names := make([]string, 0, len(snapshot.Flags))
			for name := range snapshot.Flags {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "%-30s %s\n", name, enabledString(snapshot.Flags[name]))
			}
			if len(names) == 0 {
				fmt.Fprintln(w, dimFmt("No flags."))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Evaluate against the flag service instead of the cache")
	return cmd
}

func enabledString(enabled bool) string {
	if enabled {
		return okFmt("enabled")
	}
	return errFmt("disabled")
}
