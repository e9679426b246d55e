package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Chunk is a stored chunk as returned by the API.
type Chunk struct {
	ID        int64           `json:"id"`
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	ChunkType string          `json:"chunk_type"`
	Metadata  domain.Metadata `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

// Match is one search result.
type Match struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Query   string  `json:"query"`
	Matches []Match `json:"matches"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long:  "Embeds the query and returns the most similar stored chunks.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runSearch(api, cmd.OutOrStdout(), strings.Join(args, " "), limit, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 3, "Maximum number of results")

	return cmd
}

func runSearch(api *APIClient, w io.Writer, query string, limit int, outputJSON bool) error {
	resp, err := api.Post("/search", SearchRequest{Query: query, Limit: limit})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := decode(resp, &searchResp); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, searchResp)
	}

	if len(searchResp.Matches) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(searchResp.Matches))
	for i, m := range searchResp.Matches {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, m.Similarity, truncate(m.Chunk.Content, 100))
		fmt.Fprintf(w, "   Source: %s (%s)  ID: %d\n", m.Chunk.Source, m.Chunk.ChunkType, m.Chunk.ID)
		if i < len(searchResp.Matches)-1 {
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}

	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
