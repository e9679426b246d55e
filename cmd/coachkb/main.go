package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/coachkb/internal/cli"
	"github.com/cloo-solutions/coachkb/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "coachkb",
		Short: "Coachkb CLI - teaching strategy knowledge base",
		Long: `Coachkb CLI searches the teaching knowledge base and evaluates teacher responses.

Environment variables:
  COACHKB_API_KEY   API key for authentication (if the server requires one)
  COACHKB_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.EvaluateCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.SampleCmd())
	rootCmd.AddCommand(client.SourcesCmd())
	rootCmd.AddCommand(client.StatsCmd())
	rootCmd.AddCommand(client.ClearCmd())
	rootCmd.AddCommand(client.EvalCmd())
	rootCmd.AddCommand(client.AuthCmd())

	if ok, err := cli.HandleHelpJSON(rootCmd, os.Args[1:], os.Stdout); ok {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
