package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-fitauth/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type cli struct {
	serverURL       string
	credentialsPath string
	in              io.Reader
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the fitctl command tree
func NewRootCmd() *cobra.Command {
	c := &cli{in: os.Stdin}

	root := &cobra.Command{
		Use:   "fitctl",
		Short: "Fittrack CLI - account and session management",
		Long: `fitctl talks to a fittrack server. It keeps the session credentials in a
local file and refreshes the access token when it expires.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.in = cmd.InOrStdin()
		},
	}

	root.PersistentFlags().StringVar(&c.serverURL, "server", envOr("FITTRACK_SERVER", "http://localhost:3000"), "fittrack API server URL")
	root.PersistentFlags().StringVar(&c.credentialsPath, "credentials", "", "credentials file (default ~/.fittrack/credentials.json)")

	root.AddCommand(
		c.registerCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.statusCmd(),
	)

	return root
}

func (c *cli) store() (*client.FileStore, error) {
	store, err := client.NewFileStore(c.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}
	return store, nil
}

func (c *cli) manager() (*client.Manager, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}

	return client.New(c.serverURL,
		client.WithStore(store),
		client.OnLoginRequired(func() {
			pterm.Warning.Println("Session is no longer valid, run `fitctl login`")
		}),
	)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
