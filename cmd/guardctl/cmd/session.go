package cmd

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-guard/token"
	"github.com/spf13/cobra"
)

func (c *cli) loginURLCmd() *cobra.Command {
	var redirectURI string
	cmd := &cobra.Command{
		Use:   "login-url",
		Short: "Print the provider login URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.client.Login(redirectURI))
			return nil
		},
	}
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "Callback URL (default: $GUARD_CALLBACK_URL)")
	return cmd
}

func (c *cli) callbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <code>",
		Short: "Exchange an authorization code and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.HandleCallback(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okFmt("Logged in."))
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Long: `Exchange the stored refresh token for a new token set.

If the refresh fails the session is cleared, as it would be in the browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := c.client.Session().Tokens(); !ok {
				return fmt.Errorf("not logged in")
			}
			if err := c.client.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okFmt("Token refreshed."))
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// StatusOutput is the structured form of 'guardctl status'.
type StatusOutput struct {
	AppID         string     `json:"appId" yaml:"appId"`
	Authenticated bool       `json:"authenticated" yaml:"authenticated"`
	HasRefresh    bool       `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	HasIDToken    bool       `json:"hasIdToken" yaml:"hasIdToken"`
	RefreshDue    bool       `json:"refreshDue" yaml:"refreshDue"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	LastError     string     `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := c.client.State()
			out := StatusOutput{
				AppID:         c.client.Config().AppID,
				Authenticated: state.IsAuthenticated,
				RefreshDue:    c.client.Tokens().ShouldRefreshNow(),
				LastError:     state.LastError,
			}
			if state.Tokens != nil {
				out.HasRefresh = state.Tokens.RefreshToken != ""
				out.HasIDToken = state.Tokens.IDToken != ""
				if exp, ok := token.DecodeExpiry(state.Tokens.AccessToken); ok {
					out.ExpiresAt = &exp
				}
			}

			if handled, err := c.formatOutput(cmd.OutOrStdout(), out); handled {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "App:            %s\n", out.AppID)
			if out.Authenticated {
				fmt.Fprintf(w, "Session:        %s\n", okFmt("authenticated"))
			} else {
				fmt.Fprintf(w, "Session:        %s\n", errFmt("none"))
			}
			fmt.Fprintf(w, "Refresh token:  %t\n", out.HasRefresh)
			fmt.Fprintf(w, "ID token:       %t\n", out.HasIDToken)
			if out.ExpiresAt != nil {
				fmt.Fprintf(w, "Expires:        %s\n", out.ExpiresAt.Format(time.RFC3339))
			}
			if out.RefreshDue {
				fmt.Fprintln(w, dimFmt("Access token is inside the refresh window."))
			}
			if out.LastError != "" {
				fmt.Fprintf(w, "Last error:     %s\n", errFmt(out.LastError))
			}
			return nil
		},
	}
}
