package client

import (
	"fmt"
	"io"
	"os"

	"github.com/cloo-solutions/coachkb/internal/cli"
	"github.com/spf13/cobra"
)

// FileReport mirrors one entry of the ingest report.
type FileReport struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// IngestReport mirrors the /ingest response.
type IngestReport struct {
	Files  []FileReport `json:"files"`
	Chunks int          `json:"chunks"`
}

// IngestCmd uploads local files to the server for extraction.
func IngestCmd() *cobra.Command {
	var (
		quiet    bool
		category string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload files into the knowledge base",
		Long: `Uploads files to the server, which extracts, embeds and stores their chunks.
With --category every chunk is tagged with that knowledge category.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			var onProgress ProgressFunc
			if !quiet && !outputJSON {
				var total int64
				for _, f := range args {
					if st, err := os.Stat(f); err == nil {
						total += st.Size()
					}
				}
				bar := cli.NewProgressBar(cmd.ErrOrStderr(), total, "Uploading", true)
				onProgress = func(current, _ int64) {
					bar.Set64(min(current, total))
				}
			}
			return runIngest(api, cmd.OutOrStdout(), args, category, onProgress, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the upload progress bar")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Knowledge category stored on every chunk")

	return cmd
}

func runIngest(api *APIClient, w io.Writer, files []string, category string, onProgress ProgressFunc, outputJSON bool) error {
	resp, err := api.Upload("/ingest", map[string]string{"category": category}, files, onProgress)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	var report IngestReport
	if err := decode(resp, &report); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, report)
	}

	failed := 0
	for _, f := range report.Files {
		switch {
		case f.Error != "":
			failed++
			fmt.Fprintf(w, "FAIL  %s: %s\n", f.Source, f.Error)
		case f.Skipped:
			fmt.Fprintf(w, "SKIP  %s\n", f.Source)
		default:
			fmt.Fprintf(w, "OK    %s (%d chunks)\n", f.Source, f.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%d files, %d chunks, %d failed\n", len(report.Files), report.Chunks, failed)
	return nil
}
