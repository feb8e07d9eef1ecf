package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/botstudio/internal/cli"
	"github.com/cloo-solutions/botstudio/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "botstudiod",
		Short:         "Botstudio daemon and operator CLI",
		Long:          "Botstudio daemon for running the API server and task worker and for managing workspaces, API keys, plans and the tool catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.WorkerCmd())
	rootCmd.AddCommand(admin.WorkspaceCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.PlanCmd())
	rootCmd.AddCommand(admin.CatalogCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if target, ok := cli.HelpJSONTarget(rootCmd, os.Args[1:]); ok {
		if err := cli.WriteSchema(os.Stdout, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
