// Package admin implements the botstudiod commands.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/botstudio/internal/config"
	"github.com/cloo-solutions/botstudio/internal/database"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/logging"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputJSON = "json"
	timeLayout = "2006-01-02 15:04:05"
)

// env is what every command needs before doing real work.
type env struct {
	cfg  *config.Config
	log  *logrus.Logger
	pool *pgxpool.Pool
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func loadEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, log: log, pool: pool}, nil
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputText, "Output format (text or json)")
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case outputText, outputJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text or json)", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(true)
	return table
}

// resolveWorkspace accepts a workspace ID, slug or exact name.
func resolveWorkspace(ctx context.Context, repo *repository.WorkspaceRepository, ref string) (*domain.Workspace, error) {
	if _, err := uuid.Parse(ref); err == nil {
		ws, err := repo.GetByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("workspace not found: %s", ref)
		}
		return ws, nil
	}

	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, ws := range all {
		if ws.Slug == ref || strings.EqualFold(ws.Name, ref) {
			return ws, nil
		}
	}
	return nil, fmt.Errorf("workspace not found: %s", ref)
}
