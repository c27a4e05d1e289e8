package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "token",
		Aliases: []string{"tokens"},
		Short:   "Manage API tokens",
		Long:    "Issue, list, and revoke the bearer tokens MCP clients use to reach /mcp.",
	}

	cmd.AddCommand(newTokenCreateCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())

	return cmd
}

// withAuth runs fn against an AuthService over the locked data directory.
// Commands that change secrets must not run beside a live server, whose
// in-memory state would go stale.
func withAuth(fn func(ctx context.Context, auth *service.AuthService) error) error {
	dir := resolveDataDir()
	lk, err := lockDataDir(dir)
	if err != nil {
		return err
	}
	defer lk.Close()

	st, err := openStores(dir)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := newLogger(io.Discard, "error", "text")
	opts, err := authOptions(logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	auth, err := service.NewAuthService(ctx, st.secrets, opts)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	return fn(ctx, auth)
}

// ---------- token create ----------

func newTokenCreateCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Issue a new API token",
		Long:    "Issue a new API token. The raw token is shown once and cannot be retrieved again.",
		Example: `  toolgate token create --label "Claude Desktop"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(func(ctx context.Context, auth *service.AuthService) error {
				return runTokenCreate(ctx, cmd.OutOrStdout(), auth, label)
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the token (required)")
	cmd.MarkFlagRequired("label")

	return cmd
}

func runTokenCreate(ctx context.Context, w io.Writer, auth *service.AuthService, label string) error {
	tok, raw, err := auth.Tokens().Issue(ctx, label)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Fprintln(w, "API token created:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Token: %s\n", raw)
	fmt.Fprintf(w, "  ID:    %s\n", tok.ID)
	fmt.Fprintf(w, "  Label: %s\n", tok.Label)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Save this token now - it cannot be retrieved again.")
	return nil
}

// ---------- token list ----------

func newTokenListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(func(ctx context.Context, auth *service.AuthService) error {
				return runTokenList(ctx, cmd.OutOrStdout(), auth, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTokenList(ctx context.Context, w io.Writer, auth *service.AuthService, jsonOutput bool) error {
	tokens := auth.Tokens().List(ctx)

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	}

	if len(tokens) == 0 {
		fmt.Fprintln(w, "No API tokens. Use 'toolgate token create --label NAME' to issue one.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tLABEL\tCREATED\tSTATUS")
	for _, t := range tokens {
		status := "active"
		if t.Revoked {
			status = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s…\t%s\t%s\t%s\n",
			t.ID, t.Prefix, t.Label, t.CreatedAt.Format("2006-01-02 15:04"), status)
	}
	return tw.Flush()
}

// ---------- token revoke ----------

func newTokenRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(func(ctx context.Context, auth *service.AuthService) error {
				if err := auth.Tokens().Revoke(ctx, args[0]); err != nil {
					return fmt.Errorf("revoke token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked API token %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}
