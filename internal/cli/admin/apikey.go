package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/spf13/cobra"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke API keys",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

// keyCommand bundles what the apikey subcommands share.
type keyCommand struct {
	env  *env
	auth *service.AuthService
	ws   *domain.Workspace
}

func openKeyCommand(ctx context.Context, cmd *cobra.Command) (*keyCommand, error) {
	wsRef, _ := cmd.Flags().GetString("workspace")

	e, err := loadEnv(ctx)
	if err != nil {
		return nil, err
	}

	ws, err := resolveWorkspace(ctx, repository.NewWorkspaceRepository(e.pool), wsRef)
	if err != nil {
		e.Close()
		return nil, err
	}

	auth := service.NewAuthService(
		repository.NewAPIKeyRepository(e.pool),
		repository.NewMemberRepository(e.pool),
		&service.DefaultUUIDGenerator{},
		e.log,
	)
	return &keyCommand{env: e, auth: auth, ws: ws}, nil
}

// operator acts with owner rights inside the workspace.
func (k *keyCommand) operator() domain.Principal {
	return domain.Principal{WorkspaceID: k.ws.ID, Role: domain.RoleOwner}
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create a new API key for a workspace member",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("workspace", "w", "", "Workspace ID, slug or name (required)")
	cmd.Flags().StringP("user", "u", "", "User ID of the key holder (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userID, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	k, err := openKeyCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.env.Close()

	key, token, err := k.auth.CreateAPIKey(ctx, k.ws.ID, userID, name)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == outputJSON {
		return printJSON(out, map[string]any{
			"id":           key.ID,
			"name":         key.Name,
			"workspace_id": key.WorkspaceID,
			"user_id":      key.UserID,
			"created_at":   key.CreatedAt,
			"token":        token,
		})
	}

	fmt.Fprintf(out, "API key created: %s (%s)\n", key.Name, key.ID)
	fmt.Fprintf(out, "Workspace: %s\n", k.ws.Name)
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintln(out, "\nSave this token now. It cannot be shown again.")
	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Long:  "List the API keys of a workspace",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().StringP("workspace", "w", "", "Workspace ID, slug or name (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	k, err := openKeyCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.env.Close()

	keys, err := k.auth.ListAPIKeys(ctx, k.operator())
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == outputJSON {
		items := make([]map[string]any, len(keys))
		for i, key := range keys {
			items[i] = map[string]any{
				"id":           key.ID,
				"name":         key.Name,
				"user_id":      key.UserID,
				"created_at":   key.CreatedAt,
				"last_used_at": key.LastUsedAt,
				"revoked_at":   key.RevokedAt,
			}
		}
		return printJSON(out, map[string]any{"items": items})
	}

	if len(keys) == 0 {
		fmt.Fprintf(out, "No API keys in workspace %s\n", k.ws.Name)
		return nil
	}
	table := newTable(out, "ID", "Name", "User", "Created", "Last used", "Status")
	for _, key := range keys {
		lastUsed := "never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format(timeLayout)
		}
		status := "active"
		if key.IsRevoked() {
			status = "revoked"
		}
		table.Append([]string{key.ID, key.Name, key.UserID, key.CreatedAt.Format(timeLayout), lastUsed, status})
	}
	table.Render()
	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key so it can no longer authenticate",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().StringP("workspace", "w", "", "Workspace ID, slug or name (required)")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	k, err := openKeyCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer k.env.Close()

	if err := k.auth.RevokeAPIKey(ctx, k.operator(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key %s revoked\n", args[0])
	return nil
}
