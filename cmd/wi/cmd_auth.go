package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/matt-kaep/WI-frontend/auth"
	"github.com/matt-kaep/WI-frontend/storage"
	"github.com/matt-kaep/WI-frontend/validation"
)

var (
	loginEmail    string
	loginPassword string
	followAuth    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := readCredentials()
		if err != nil {
			return err
		}
		if err := cli.auth.SignIn(cmd.Context(), email, password); err != nil {
			return err
		}
		if err := cli.auth.RefreshSession(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password, err := readCredentials()
		if err != nil {
			return err
		}
		signedIn, err := cli.auth.SignUp(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		if !signedIn {
			fmt.Fprintln(cmd.OutOrStdout(), "Check your inbox to confirm your email, then run `wi login`.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Account created, signed in as %s\n", email)
		return nil
	},
}

var magicLinkCmd = &cobra.Command{
	Use:   "magic-link <email>",
	Short: "Email a one-time sign-in link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.auth.SignInWithOTP(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sign-in link sent to %s\n", args[0])
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli.auth.SignOut(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user and the backend's active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cli.auth.RefreshSession(cmd.Context()); err != nil {
			return err
		}
		printAuthState(cmd, cli.auth.State())
		if !followAuth {
			return nil
		}

		// Other wi processes signing in or out show up as store changes.
		cli.auth.OnChange(func(s auth.State) { printAuthState(cmd, s) })
		err := cli.provider.WatchStore(cmd.Context())
		if errors.Is(err, storage.ErrWatchUnsupported) || cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVar(&loginEmail, "email", "", "Account email")
		c.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when omitted, or set WI_PASSWORD)")
	}
	whoamiCmd.Flags().BoolVar(&followAuth, "follow", false, "Keep running and print sign-in changes")
}

func printAuthState(cmd *cobra.Command, s auth.State) {
	out := cmd.OutOrStdout()
	if !s.IsAuthenticated() {
		fmt.Fprintln(out, "Not signed in")
		return
	}
	name := s.Identity.Name
	if name == "" {
		name = s.Identity.Email
	}
	fmt.Fprintf(out, "Signed in as %s <%s>\n", name, s.Identity.Email)
	if s.AppSession != nil {
		fmt.Fprintf(out, "Active session: %s (%s)\n", s.AppSession.Name, s.AppSession.ID)
	}
}

// readCredentials takes the email and password from flags, the
// environment or the terminal, in that order.
func readCredentials() (string, string, error) {
	email, password := loginEmail, loginPassword
	if password == "" {
		password = os.Getenv("WI_PASSWORD")
	}

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}

	if err := validation.NewValidator().ValidateUserCredentials(email, password); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}
