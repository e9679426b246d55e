package client

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Stats mirrors the /stats response.
type Stats struct {
	Total       int64            `json:"total"`
	ByChunkType map[string]int64 `json:"by_chunk_type"`
	BySource    map[string]int64 `json:"by_source"`
	ByCategory  map[string]int64 `json:"by_category"`
}

// DocumentList mirrors the /documents response.
type DocumentList struct {
	Items   []Chunk `json:"items"`
	Cursor  string  `json:"cursor,omitempty"`
	HasMore bool    `json:"has_more"`
}

func SourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List ingested sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runSources(api, cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runSources(api *APIClient, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/sources")
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	var sources []string
	if err := decode(resp, &sources); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources ingested.")
		return nil
	}
	for _, s := range sources {
		fmt.Fprintln(w, s)
	}
	return nil
}

func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runStats(api, cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runStats(api *APIClient, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/stats")
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	var stats Stats
	if err := decode(resp, &stats); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, stats)
	}
	PrintStats(w, stats)
	return nil
}

// PrintStats renders totals with per-type, per-category and per-source counts
// sorted by name.
func PrintStats(w io.Writer, stats Stats) {
	fmt.Fprintf(w, "Total chunks: %d\n", stats.Total)
	printCounts(w, "By chunk type", stats.ByChunkType)
	printCounts(w, "By category", stats.ByCategory)
	printCounts(w, "By source", stats.BySource)
}

func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-40s %d\n", k, counts[k])
	}
}

func ClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all chunks?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runClear(api, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

func runClear(api *APIClient, w io.Writer) error {
	resp, err := api.Delete("/documents")
	if err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decode(resp, &out); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %d chunks\n", out.Deleted)
	return nil
}

func confirm(in io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show one stored chunk",
		Aliases: []string{"view"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid chunk id %q", args[0])
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runGet(api, cmd.OutOrStdout(), id, outputJSON)
		},
	}
}

func runGet(api *APIClient, w io.Writer, id int64, outputJSON bool) error {
	resp, err := api.Get("/documents/" + strconv.FormatInt(id, 10))
	if err != nil {
		return fmt.Errorf("failed to get chunk: %w", err)
	}

	var chunk Chunk
	if err := decode(resp, &chunk); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, chunk)
	}

	fmt.Fprintf(w, "ID: %d\n", chunk.ID)
	fmt.Fprintf(w, "Source: %s\n", chunk.Source)
	fmt.Fprintf(w, "Type: %s\n", chunk.ChunkType)
	fmt.Fprintf(w, "Created: %s\n", chunk.CreatedAt)
	if len(chunk.Metadata) > 0 {
		fmt.Fprintln(w, "Metadata:")
		for _, e := range chunk.Metadata {
			fmt.Fprintf(w, "  %s: %s\n", e.Key, e.Value)
		}
	}
	fmt.Fprintf(w, "\n%s\n", chunk.Content)
	return nil
}

func ListCmd() *cobra.Command {
	var (
		source   string
		category string
		cursor   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List stored chunks",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runList(api, cmd.OutOrStdout(), ListOptions{Source: source, Category: category, Cursor: cursor, Limit: limit}, outputJSON)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only chunks from this source")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only chunks of this knowledge category")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Page size")

	return cmd
}

// ListOptions narrows a chunk listing.
type ListOptions struct {
	Source   string
	Category string
	Cursor   string
	Limit    int
}

func runList(api *APIClient, w io.Writer, opts ListOptions, outputJSON bool) error {
	q := url.Values{}
	if opts.Source != "" {
		q.Set("source", opts.Source)
	}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	var list DocumentList
	if err := decode(resp, &list); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, list)
	}

	if len(list.Items) == 0 {
		fmt.Fprintln(w, "No chunks found.")
		return nil
	}
	for _, c := range list.Items {
		fmt.Fprintf(w, "%6d  %-10s %-30s %s\n", c.ID, c.ChunkType, truncate(c.Source, 30), truncate(c.Content, 60))
	}
	if list.HasMore && list.Cursor != "" {
		fmt.Fprintf(w, "\nMore chunks available. Use --cursor %s\n", list.Cursor)
	}
	return nil
}

// SampleResponse mirrors the category sample response.
type SampleResponse struct {
	Category string  `json:"category"`
	Items    []Chunk `json:"items"`
}

func SampleCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "sample <category>",
		Short: "Show the first chunks of a knowledge category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runSample(api, cmd.OutOrStdout(), args[0], n, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&n, "number", "n", 3, "Number of chunks")

	return cmd
}

func runSample(api *APIClient, w io.Writer, category string, n int, outputJSON bool) error {
	path := "/categories/" + url.PathEscape(category) + "/sample"
	if n > 0 {
		path += "?n=" + strconv.Itoa(n)
	}
	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to sample category: %w", err)
	}

	var sample SampleResponse
	if err := decode(resp, &sample); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, sample)
	}
	if len(sample.Items) == 0 {
		fmt.Fprintf(w, "No chunks in category %q.\n", category)
		return nil
	}
	for _, c := range sample.Items {
		fmt.Fprintf(w, "%6d  %-30s %s\n", c.ID, truncate(c.Source, 30), truncate(c.Content, 60))
	}
	return nil
}
