// Package cmd implements the guardctl CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-auth-guard/app"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is set at build time
var Version = "0.1.0"

type cli struct {
	outputFormat string
	storageDir   string
	routesFile   string
	appID        string
	verbose      bool

	options []app.Option
	client  *app.Client
}

// NewRootCmd builds the command tree. opts are passed to app.New after the
// defaults derived from flags and environment.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{options: opts}

	rootCmd := &cobra.Command{
		Use:   "guardctl",
		Short: "Inspect and drive an auth guard session",
		Long: `guardctl runs the auth guard from the command line.

The session is kept on disk between invocations, so a code exchanged with
'guardctl callback' is still there for 'guardctl decide'. Configuration is
read from the GUARD_* environment variables.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return c.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.client != nil {
				_ = c.client.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&c.storageDir, "storage-dir", "", "Session directory (default: $GUARD_STORAGE_DIR or ~/.config/guardctl)")
	rootCmd.PersistentFlags().StringVar(&c.routesFile, "routes", "", "Route rules file (default: $GUARD_ROUTES_FILE)")
	rootCmd.PersistentFlags().StringVar(&c.appID, "app-id", "", "Application ID (default: $GUARD_APP_ID)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(
		c.decideCmd(),
		c.loginURLCmd(),
		c.callbackCmd(),
		c.refreshCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.flagsCmd(),
		c.profileCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (c *cli) config() (config.Guard, error) {
	cfg := config.FromEnv()
	if c.appID != "" {
		cfg.AppID = c.appID
	}
	if c.routesFile != "" {
		cfg.RoutesFile = c.routesFile
	}
	if c.storageDir != "" {
		cfg.StorageDir = c.storageDir
	}
	if cfg.StorageDir == "" && cfg.RedisAddr == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return config.Guard{}, fmt.Errorf("failed to find home directory: %w", err)
		}
		cfg.StorageDir = filepath.Join(home, ".config", "guardctl")
	}
	return cfg, nil
}

func (c *cli) open(ctx context.Context) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if c.verbose || cfg.Debug {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)
	}
	opts := append([]app.Option{app.WithLogger(logger)}, c.options...)

	client, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to start auth guard: %w", err)
	}
	c.client = client
	return nil
}

// formatOutput writes data as JSON or YAML. It reports false for table
// output, which each command renders itself.
func (c *cli) formatOutput(w io.Writer, data any) (bool, error) {
	switch c.outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, err
		}
		_, err = w.Write(out)
		return true, err
	default:
		return false, nil
	}
}
