package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/coachkb/internal/cli"
	"github.com/cloo-solutions/coachkb/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coachkbd",
		Short: "Coachkb daemon and admin CLI",
		Long:  "Coachkb daemon for running the API server and managing the knowledge base directly",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.IngestS3Cmd())
	rootCmd.AddCommand(admin.SeedCmd())
	rootCmd.AddCommand(admin.ClearCmd())
	rootCmd.AddCommand(admin.StatsCmd())
	rootCmd.AddCommand(admin.SampleCmd())
	rootCmd.AddCommand(admin.ValidateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if ok, err := cli.HandleHelpJSON(rootCmd, os.Args[1:], os.Stdout); ok {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
