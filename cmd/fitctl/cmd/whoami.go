package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-fitauth/client"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.manager()
			if err != nil {
				return err
			}

			if !m.LoggedIn() {
				return fmt.Errorf("not logged in")
			}

			profile, err := m.Me(cmd.Context())
			if err != nil {
				if errors.Is(err, client.ErrLoginRequired) {
					return fmt.Errorf("not logged in")
				}
				return describe("whoami failed", err)
			}

			pterm.DefaultSection.Println("Account")
			pterm.Info.Printf("Principal ID: %s\n", profile.PrincipalID)
			pterm.Info.Printf("Member since: %s\n", profile.CreatedAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display server and authentication status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pterm.DefaultSection.Println("Server")
			if err := c.health(cmd); err != nil {
				pterm.Warning.Printf("%s unreachable: %v\n", c.serverURL, err)
			} else {
				pterm.Success.Printf("%s is healthy\n", c.serverURL)
			}

			store, err := c.store()
			if err != nil {
				return err
			}

			creds, err := store.Load()
			if err != nil {
				return err
			}

			pterm.DefaultSection.Println("Authentication Status")
			if creds.Token == "" {
				pterm.Info.Println("Not logged in")
				return nil
			}

			pterm.Info.Printf("Credentials: %s\n", store.Path())

			// the signature is checked by the server, here we only read exp
			claims := &jwt.RegisteredClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(creds.Token, claims); err != nil {
				pterm.Warning.Println("Stored token can not be decoded")
				return nil
			}

			pterm.Info.Printf("Principal ID: %s\n", claims.Subject)
			if claims.ExpiresAt != nil {
				if claims.ExpiresAt.After(time.Now()) {
					pterm.Info.Printf("Token expires at: %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
				} else {
					pterm.Info.Println("Token expired, it will be refreshed on the next request")
				}
			}
			return nil
		},
	}
}

func (c *cli) health(cmd *cobra.Command) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, c.serverURL+"/health", nil)
	if err != nil {
		return err
	}

	res, err := (&http.Client{Timeout: client.DefaultRequestTimeout}).Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	return nil
}
