package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// EvalCase is one retrieval check: the query should surface chunks from the
// expected sources.
type EvalCase struct {
	Query           string   `json:"query"`
	ExpectedSources []string `json:"expected_sources"`
}

type EvalSuite struct {
	Cases []EvalCase `json:"cases"`
	Limit int        `json:"limit,omitempty"`
}

type EvalSummary struct {
	Total      int     `json:"total"`
	K          int     `json:"k"`
	Limit      int     `json:"limit"`
	RecallAtK  float64 `json:"recall_at_k"`
	MRR        float64 `json:"mrr"`
	HitRateAtK float64 `json:"hit_rate_at_k"`
}

type EvalCaseResult struct {
	Query           string   `json:"query"`
	ExpectedSources []string `json:"expected_sources"`
	FoundSources    []string `json:"found_sources"`
	Rank            int      `json:"rank"`
	RecallAtK       float64  `json:"recall_at_k"`
	RR              float64  `json:"rr"`
}

type EvalOutput struct {
	Summary EvalSummary      `json:"summary"`
	Cases   []EvalCaseResult `json:"cases,omitempty"`
}

// EvalCmd creates the eval command.
func EvalCmd() *cobra.Command {
	var (
		file    string
		limit   int
		k       int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "eval --file <eval.json>",
		Short: "Measure retrieval quality",
		Long: `Measure retrieval quality against queries with expected sources.

The input file can be either:
  - { "cases": [ { "query": "...", "expected_sources": [...] } ], "limit": 10 }
  - [ { "query": "...", "expected_sources": [...] } ]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			suite, err := loadEvalSuite(file)
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runEval(api, cmd.OutOrStdout(), suite, limit, k, verbose, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Evaluation JSON file (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Override search limit for evaluation")
	cmd.Flags().IntVar(&k, "k", 5, "Compute recall@k and hit@k")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print per-case results")
	cmd.MarkFlagRequired("file")

	return cmd
}

func loadEvalSuite(file string) (*EvalSuite, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read eval file: %w", err)
	}

	var suite EvalSuite
	if err := json.Unmarshal(data, &suite); err != nil || len(suite.Cases) == 0 {
		var cases []EvalCase
		if err := json.Unmarshal(data, &cases); err != nil {
			return nil, fmt.Errorf("failed to parse eval file: %w", err)
		}
		suite.Cases = cases
	}

	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("no eval cases provided")
	}
	return &suite, nil
}

func runEval(api *APIClient, w io.Writer, suite *EvalSuite, limit, k int, verbose, outputJSON bool) error {
	if limit <= 0 {
		limit = suite.Limit
	}
	if limit <= 0 {
		limit = 10
	}
	if k <= 0 {
		k = 5
	}
	if k > limit {
		k = limit
	}

	var (
		sumRecall   float64
		sumRR       float64
		hitCount    int
		caseResults []EvalCaseResult
	)

	for _, c := range suite.Cases {
		if c.Query == "" {
			return fmt.Errorf("eval case query is required")
		}
		if len(c.ExpectedSources) == 0 {
			return fmt.Errorf("eval case expected_sources is required")
		}

		resp, err := api.Post("/search", SearchRequest{Query: c.Query, Limit: limit})
		if err != nil {
			return fmt.Errorf("search failed for query %q: %w", c.Query, err)
		}

		var searchResp SearchResponse
		if err := decode(resp, &searchResp); err != nil {
			return err
		}

		expected := make(map[string]struct{}, len(c.ExpectedSources))
		for _, s := range c.ExpectedSources {
			expected[s] = struct{}{}
		}

		found := make([]string, 0, len(searchResp.Matches))
		seen := make(map[string]struct{})
		rank := 0
		for i, m := range searchResp.Matches {
			found = append(found, m.Chunk.Source)
			if i >= k {
				continue
			}
			if _, ok := expected[m.Chunk.Source]; ok {
				seen[m.Chunk.Source] = struct{}{}
				if rank == 0 {
					rank = i + 1
				}
			}
		}

		recall := float64(len(seen)) / float64(len(expected))
		sumRecall += recall
		rr := 0.0
		if rank > 0 {
			rr = 1.0 / float64(rank)
			sumRR += rr
			hitCount++
		}

		if verbose || outputJSON {
			caseResults = append(caseResults, EvalCaseResult{
				Query:           c.Query,
				ExpectedSources: c.ExpectedSources,
				FoundSources:    found,
				Rank:            rank,
				RecallAtK:       recall,
				RR:              rr,
			})
		}
	}

	n := float64(len(suite.Cases))
	summary := EvalSummary{
		Total:      len(suite.Cases),
		K:          k,
		Limit:      limit,
		RecallAtK:  sumRecall / n,
		MRR:        sumRR / n,
		HitRateAtK: float64(hitCount) / n,
	}

	if outputJSON {
		out := EvalOutput{Summary: summary}
		if verbose {
			sort.Slice(caseResults, func(i, j int) bool {
				return caseResults[i].Query < caseResults[j].Query
			})
			out.Cases = caseResults
		}
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Eval results (k=%d, limit=%d)\n", summary.K, summary.Limit)
	fmt.Fprintf(w, "Recall@%d: %.4f\n", summary.K, summary.RecallAtK)
	fmt.Fprintf(w, "MRR: %.4f\n", summary.MRR)
	fmt.Fprintf(w, "Hit@%d: %.4f\n", summary.K, summary.HitRateAtK)

	if verbose {
		for _, r := range caseResults {
			fmt.Fprintf(w, "\nQuery: %s\n", r.Query)
			fmt.Fprintf(w, "Rank: %d  Recall@%d: %.4f  RR: %.4f\n", r.Rank, summary.K, r.RecallAtK, r.RR)
			fmt.Fprintf(w, "Expected: %v\n", r.ExpectedSources)
			fmt.Fprintf(w, "Found: %v\n", r.FoundSources)
		}
	}

	return nil
}
