package cmd

import (
	"errors"
	"fmt"

	auth "github.com/goliatone/go-fitauth"
	"github.com/goliatone/go-fitauth/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (c *cli) registerCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "register <identifier>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.password(password, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			m, err := c.manager()
			if err != nil {
				return err
			}

			pair, err := m.Register(cmd.Context(), args[0], pw)
			if err != nil {
				return describe("registration failed", err)
			}

			pterm.Success.Printf("Registered %s\n", pair.PrincipalID)
			pterm.Info.Printf("Token expires at %s\n", pair.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password, prompted when empty")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Log in and store the session credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.password(password, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			m, err := c.manager()
			if err != nil {
				return err
			}

			pair, err := m.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return describe("login failed", err)
			}

			pterm.Success.Printf("Logged in as %s\n", pair.PrincipalID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password, prompted when empty")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and delete stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager()
			if err != nil {
				return err
			}

			if !m.LoggedIn() && m.Credentials().RefreshToken == "" {
				pterm.Info.Println("Not logged in")
				return nil
			}

			if err := m.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("failed to delete credentials: %w", err)
			}

			pterm.Success.Println("Logged out successfully")
			return nil
		},
	}
}

// describe turns API errors into one line messages
func describe(action string, err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", action, err)
	}

	switch apiErr.Code {
	case auth.TextCodeInvalidCreds:
		return fmt.Errorf("%s: invalid identifier or password", action)
	case auth.TextCodeIdentifierTaken:
		return fmt.Errorf("%s: identifier already registered", action)
	case auth.TextCodeValidationFailed:
		for field, msg := range apiErr.Fields {
			pterm.Error.Printf("%s: %s\n", field, msg)
		}
		return fmt.Errorf("%s: %s", action, apiErr.Message)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}
