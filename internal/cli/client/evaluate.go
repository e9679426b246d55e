package client

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// EvaluateRequest is the body of the evaluate endpoints.
type EvaluateRequest struct {
	Response string           `json:"response"`
	Scenario *domain.Scenario `json:"scenario"`
}

// EvaluateCmd creates the evaluate command.
func EvaluateCmd() *cobra.Command {
	var (
		response     string
		scenarioFile string
		semantic     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate --response <text> --scenario-file <scenario.yaml>",
		Short: "Score a teacher response against a scenario",
		Long: `Scores a teacher response for a classroom scenario.

The scenario file is YAML or JSON:
  subject: math
  time_of_day: morning
  learning_style: visual
  behavioral_context:
    type: attention
    trigger: long instructions
  difficulty: word problems

Pass --response - to read the response from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			scenario, err := LoadScenario(scenarioFile)
			if err != nil {
				return err
			}
			if response == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read response: %w", err)
				}
				response = string(data)
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if semantic {
				return runSemantic(api, cmd.OutOrStdout(), response, scenario, outputJSON)
			}
			return runEvaluate(api, cmd.OutOrStdout(), response, scenario, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&response, "response", "r", "", "Teacher response text, or - for stdin")
	cmd.Flags().StringVarP(&scenarioFile, "scenario-file", "s", "", "Scenario YAML/JSON file (required)")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "Use semantic-only scoring")
	cmd.MarkFlagRequired("scenario-file")

	return cmd
}

// LoadScenario reads a YAML or JSON scenario file.
func LoadScenario(path string) (*domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario domain.Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func runEvaluate(api *APIClient, w io.Writer, response string, scenario *domain.Scenario, outputJSON bool) error {
	resp, err := api.Post("/evaluate", EvaluateRequest{Response: response, Scenario: scenario})
	if err != nil {
		return fmt.Errorf("evaluate failed: %w", err)
	}

	var result domain.EvaluationResult
	if err := decode(resp, &result); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, result)
	}

	fmt.Fprintln(w, result.Summary)
	if len(result.Feedback) > 0 {
		fmt.Fprintln(w, "\nFeedback:")
		for _, f := range result.Feedback {
			fmt.Fprintf(w, "  + %s\n", f)
		}
	}
	if len(result.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for _, s := range result.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if result.Degraded {
		fmt.Fprintln(w, "\nNote: knowledge retrieval was unavailable; scores are rule-based only.")
	}

	return nil
}

func runSemantic(api *APIClient, w io.Writer, response string, scenario *domain.Scenario, outputJSON bool) error {
	resp, err := api.Post("/evaluate/semantic", EvaluateRequest{Response: response, Scenario: scenario})
	if err != nil {
		return fmt.Errorf("semantic evaluate failed: %w", err)
	}

	var result domain.SemanticResult
	if err := decode(resp, &result); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, result)
	}

	fmt.Fprintf(w, "Strategy score:     %.0f%%\n", result.StrategyScore*100)
	fmt.Fprintf(w, "Intervention score: %.0f%%\n", result.InterventionScore*100)
	fmt.Fprintf(w, "Total score:        %.0f%%\n", result.TotalScore*100)
	if len(result.RelevantStrategies) > 0 {
		fmt.Fprintf(w, "\nRelevant strategies:\n  %s\n", strings.Join(result.RelevantStrategies, "\n  "))
	}
	if len(result.RelevantInterventions) > 0 {
		fmt.Fprintf(w, "\nRelevant interventions:\n  %s\n", strings.Join(result.RelevantInterventions, "\n  "))
	}
	if result.Degraded {
		fmt.Fprintln(w, "\nNote: knowledge retrieval was unavailable; neutral scores returned.")
	}

	return nil
}
