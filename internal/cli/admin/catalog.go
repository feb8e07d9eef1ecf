package admin

import (
	"context"
	"fmt"
	"os"

	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/spf13/cobra"
)

func CatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage creation tools and global templates",
	}

	cmd.AddCommand(CatalogImportCmd())

	return cmd
}

func CatalogImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a catalog file",
		Long: `Import creation tools and their global templates from a YAML file.

Tools are matched by slug and templates by tool and name, so importing the
same file twice updates rather than duplicates.`,
		Args: cobra.ExactArgs(1),
		RunE: runCatalogImport,
	}

	cmd.Flags().Bool("dry-run", false, "Validate the file without writing to the database")

	return cmd
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	catalog, err := service.ParseCatalog(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		templates := 0
		for _, t := range catalog.Tools {
			templates += len(t.Templates)
		}
		fmt.Fprintf(out, "Catalog is valid: %d tools, %d templates\n", len(catalog.Tools), templates)
		return nil
	}

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	svc := service.NewCatalogService(
		repository.NewToolRepository(e.pool),
		repository.NewTemplateRepository(e.pool),
		&service.DefaultUUIDGenerator{},
		e.log,
	)

	res, err := svc.ImportCatalog(ctx, catalog)
	if err != nil {
		return fmt.Errorf("import stopped after %d tools and %d templates: %w", res.Tools, res.Templates, err)
	}

	fmt.Fprintf(out, "Imported %d tools and %d templates\n", res.Tools, res.Templates)
	return nil
}
