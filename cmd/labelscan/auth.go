package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/labelscan/portal/internal/models"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the verification service",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			if username == "" {
				username = prompt(in, out, "Username: ")
			}
			if password == "" {
				password = prompt(in, out, "Password: ")
			}

			var session models.Session
			if _, err := a.auth.SubmitCredentials(cmd.Context(), a.tokens, &session, username, password); err != nil {
				return err
			}
			fmt.Fprintf(out, "Logged in as %s\n", session.User)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			var session models.Session
			if err := a.auth.Logout(cmd.Context(), a.tokens, &session); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored token and show who it belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.session(cmd)
			if err != nil {
				return err
			}
			if !session.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			user := session.User
			if user == "" {
				user = "(unknown user)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user)
			return nil
		},
	}
}

// session restores the stored token, clearing it when the service rejects it
func (a *app) session(cmd *cobra.Command) (models.Session, error) {
	var session models.Session
	if err := a.auth.Init(cmd.Context(), a.tokens, &session); err != nil {
		return session, fmt.Errorf("restore session: %w", err)
	}
	return session, nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}
