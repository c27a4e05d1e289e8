package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toolgate/toolgate/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin account",
		Long:  "Reset the admin password or show the admin account without starting the server.",
	}

	cmd.AddCommand(newAdminPasswdCmd())
	cmd.AddCommand(newAdminShowCmd())

	return cmd
}

// ---------- admin passwd ----------

func newAdminPasswdCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Reset the admin password",
		Example: `  toolgate admin passwd                       # prompts for the new password
  toolgate admin passwd --password 'new secret'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				password, err = promptNewPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			return withAuth(func(ctx context.Context, auth *service.AuthService) error {
				return runAdminPasswd(ctx, cmd.OutOrStdout(), auth, password)
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func runAdminPasswd(ctx context.Context, w io.Writer, auth *service.AuthService, password string) error {
	if auth.Account() == nil {
		if _, err := auth.Bootstrap(ctx); err != nil {
			return err
		}
	}
	if err := auth.Sessions().ResetPassword(ctx, password); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	fmt.Fprintf(w, "Password updated for admin %q\n", auth.Account().Username)
	return nil
}

func promptNewPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "New password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Fprintln(w)

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin show ----------

func newAdminShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(func(ctx context.Context, auth *service.AuthService) error {
				return runAdminShow(cmd.OutOrStdout(), auth, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminShow(w io.Writer, auth *service.AuthService, jsonOutput bool) error {
	acc := auth.Account()
	if acc == nil {
		fmt.Fprintln(w, "No admin account yet. It is created the first time 'toolgate serve' runs.")
		return nil
	}

	info := map[string]interface{}{
		"username":   acc.Username,
		"created_at": acc.CreatedAt,
		"updated_at": acc.UpdatedAt,
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(w, "Username: %s\n", acc.Username)
	fmt.Fprintf(w, "Created:  %s\n", acc.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Updated:  %s\n", acc.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}
