package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the verified user profile from the ID token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.WaitProfile(cmd.Context()); err != nil {
				return err
			}
			p := c.client.Profile()
			if p == nil {
				if msg := c.client.ProfileStore().Error(); msg != "" {
					return errors.New(msg)
				}
				return fmt.Errorf("no profile: not logged in or no ID token")
			}
			if handled, err := c.formatOutput(cmd.OutOrStdout(), p); handled {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:        %s\n", p.ID)
			fmt.Fprintf(w, "Name:      %s\n", p.FullName)
			fmt.Fprintf(w, "Email:     %s (verified: %t)\n", p.Email, p.EmailVerified)
			if p.Username != "" {
				fmt.Fprintf(w, "Username:  %s\n", p.Username)
			}
			fmt.Fprintf(w, "Onboarded: %t\n", p.Onboarded)
			if p.Tenant != nil {
				fmt.Fprintf(w, "Tenant:    %s (%s)\n", p.Tenant.Name, p.Tenant.ID)
			}
			return nil
		},
	}
}
