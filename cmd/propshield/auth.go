package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func passwordFrom(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("PROPSHIELD_PASSWORD"); env != "" {
		return env, nil
	}
	return "", errors.New("password required: pass --password or set PROPSHIELD_PASSWORD")
}

func newSignUpCmd() *cobra.Command {
	var email, password, fullName, phone string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			pw, err := passwordFrom(password)
			if err != nil {
				return err
			}
			if err := a.session.SignUp(cmd.Context(), email, pw, fullName, phone); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", a.session.User().Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			pw, err := passwordFrom(password)
			if err != nil {
				return err
			}
			if err := a.session.SignIn(cmd.Context(), email, pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", a.session.User().Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginProviderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login-provider <provider>",
		Short: "Sign in through an OAuth provider such as github",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			authURL, err := a.session.SignInWithProvider(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL in your browser:\n\n  %s\n\n", authURL)
			fmt.Fprint(out, "Paste the URL you were redirected to: ")

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read callback url: %w", err)
			}
			code, state, err := parseCallback(line)
			if err != nil {
				return err
			}
			if err := a.session.CompleteProviderSignIn(ctx, code, state); err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed in as %s\n", a.session.User().Email)
			return nil
		}),
	}
}

func parseCallback(raw string) (code, state string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	if msg := q.Get("error"); msg != "" {
		return "", "", fmt.Errorf("provider refused sign-in: %s", msg)
	}
	code, state = q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		return "", "", errors.New("callback url has no code or state")
	}
	return code, state, nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}

func newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			user, err := a.user(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", user.Email)
			if user.FullName != "" {
				fmt.Fprintf(out, "name:     %s\n", user.FullName)
			}
			if user.Provider != "" {
				fmt.Fprintf(out, "provider: %s\n", user.Provider)
			}
			fmt.Fprintf(out, "id:       %s\n", user.ID)
			return nil
		}),
	}
}
