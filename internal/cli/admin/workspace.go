package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/spf13/cobra"
)

func WorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
		Long:  "Create and list workspaces",
	}

	cmd.AddCommand(WorkspaceCreateCmd())
	cmd.AddCommand(WorkspaceListCmd())

	return cmd
}

func WorkspaceCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new workspace",
		Long:  "Create a workspace owned by the given user, subscribe it to the free plan and issue an owner API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkspaceCreate,
	}

	cmd.Flags().String("owner", "", "User ID of the workspace owner (required)")
	cmd.Flags().String("key-name", "default", "Name of the owner API key")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	owner, _ := cmd.Flags().GetString("owner")
	keyName, _ := cmd.Flags().GetString("key-name")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := service.NewWorkspaceService(
		repository.NewWorkspaceRepository(e.pool),
		repository.NewMemberRepository(e.pool),
		repository.NewTxRunner(e.pool),
		&service.DefaultUUIDGenerator{},
	)

	ws, token, err := svc.CreateWorkspaceWithKey(ctx, args[0], owner, keyName)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == outputJSON {
		return printJSON(out, map[string]any{
			"id":         ws.ID,
			"name":       ws.Name,
			"slug":       ws.Slug,
			"owner":      owner,
			"created_at": ws.CreatedAt,
			"token":      token,
		})
	}

	fmt.Fprintf(out, "Workspace created: %s (%s, slug %s)\n", ws.Name, ws.ID, ws.Slug)
	fmt.Fprintf(out, "Owner: %s\n", owner)
	fmt.Fprintf(out, "API key: %s\n", token)
	fmt.Fprintln(out, "\nSave this token now. It cannot be shown again.")
	return nil
}

func WorkspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Long:  "List all workspaces, or those a user belongs to",
		RunE:  runWorkspaceList,
	}

	cmd.Flags().String("user", "", "Only list workspaces of this user")
	addOutputFlag(cmd)

	return cmd
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userID, _ := cmd.Flags().GetString("user")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	repo := repository.NewWorkspaceRepository(e.pool)
	var list []*domain.Workspace
	if userID != "" {
		list, err = repo.ListForUser(ctx, userID)
	} else {
		list, err = repo.List(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == outputJSON {
		items := make([]map[string]any, len(list))
		for i, ws := range list {
			items[i] = map[string]any{
				"id":         ws.ID,
				"name":       ws.Name,
				"slug":       ws.Slug,
				"created_at": ws.CreatedAt,
			}
		}
		return printJSON(out, map[string]any{"items": items})
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No workspaces found")
		return nil
	}
	table := newTable(out, "ID", "Name", "Slug", "Created")
	for _, ws := range list {
		table.Append([]string{ws.ID, ws.Name, ws.Slug, ws.CreatedAt.Format(timeLayout)})
	}
	table.Render()
	return nil
}
