package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/fatih/color"
	"github.com/jrsteele09/go-auth-guard/app"
	"github.com/jrsteele09/go-auth-guard/guard"
	"github.com/spf13/cobra"
)

var (
	allowFmt    = color.New(color.FgGreen, color.Bold).SprintFunc()
	loginFmt    = color.New(color.FgYellow, color.Bold).SprintFunc()
	redirectFmt = color.New(color.FgCyan, color.Bold).SprintFunc()
	okFmt       = color.New(color.FgGreen).SprintFunc()
	errFmt      = color.New(color.FgRed).SprintFunc()
	dimFmt      = color.New(color.Faint).SprintFunc()
)

func (c *cli) decideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decide <path>",
		Short: "Show the navigation decision for a path",
		Long: `Run the bootstrap sequence for a path and print the decision.

The access token is refreshed first if it is about to expire and the feature
flags are reloaded, exactly as on a first page load.

Examples:
  guardctl decide /dashboard
  guardctl decide '/beta/page?tab=2' -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid path %q: %w", args[0], err)
			}
			outcome, err := c.client.Bootstrap(cmd.Context(), u)
			if err != nil {
				return err
			}
			if handled, err := c.formatOutput(cmd.OutOrStdout(), outcome); handled {
				return err
			}
			printOutcome(cmd.OutOrStdout(), u.Path, outcome)
			return nil
		},
	}
}

func printOutcome(w io.Writer, path string, outcome app.Outcome) {
	d := outcome.Decision
	switch d.Type {
	case guard.DecisionAllow:
		fmt.Fprintf(w, "%s %s\n", allowFmt("ALLOW"), path)
	case guard.DecisionLogin:
		fmt.Fprintf(w, "%s %s -> %s\n", loginFmt("LOGIN"), path, d.LoginURL)
	case guard.DecisionRedirect:
		fmt.Fprintf(w, "%s %s -> %s\n", redirectFmt("REDIRECT"), path, d.To)
	}
	if outcome.Redirect == "" && d.Type != guard.DecisionAllow {
		fmt.Fprintln(w, dimFmt("  already at the target, no redirect"))
	}
}
