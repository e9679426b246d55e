package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
)

// fallbackSemanticScore is reported for every score when retrieval fails.
const fallbackSemanticScore = 0.5

// EvaluateSemantic scores response by similarity to retrieved strategies and
// interventions only. Retrieval failures yield a neutral degraded result.
func (e *Evaluator) EvaluateSemantic(ctx context.Context, response string, scenario domain.Scenario) (*domain.SemanticResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Evaluator.EvaluateSemantic", telemetry.SpanAttributes{Operation: "evaluate_semantic"})
	defer span.End()

	s := scenario.Normalized()
	if err := s.Validate(); err != nil {
		span.SetError(err)
		return nil, err
	}

	result, err := e.semantic(ctx, response, s)
	if err != nil {
		e.logger.WithError(err).Warn("semantic-only evaluation unavailable, using neutral scores")
		result = &domain.SemanticResult{
			StrategyScore:         fallbackSemanticScore,
			InterventionScore:     fallbackSemanticScore,
			TotalScore:            fallbackSemanticScore,
			RelevantStrategies:    []string{},
			RelevantInterventions: []string{},
			Degraded:              true,
		}
	}

	e.metrics.RecordEvaluation("semantic", result.Degraded)
	return result, nil
}

func (e *Evaluator) semantic(ctx context.Context, response string, s domain.Scenario) (*domain.SemanticResult, error) {
	if strings.TrimSpace(response) == "" {
		return nil, fmt.Errorf("empty response")
	}
	respVec, err := e.provider.Embed(ctx, response)
	if err != nil {
		return nil, err
	}

	strategies, err := e.retrieve(ctx, semanticStrategyQuery(s))
	if err != nil {
		return nil, err
	}
	interventions, err := e.retrieve(ctx, interventionQuery(s))
	if err != nil {
		return nil, err
	}

	strategyScore := Effectiveness(respVec, strategies)
	interventionScore := Effectiveness(respVec, interventions)
	return &domain.SemanticResult{
		StrategyScore:         strategyScore,
		InterventionScore:     interventionScore,
		TotalScore:            math.Round((strategyScore+interventionScore)/2*1e9) / 1e9,
		RelevantStrategies:    contents(strategies),
		RelevantInterventions: contents(interventions),
	}, nil
}

func semanticStrategyQuery(s domain.Scenario) string {
	return strings.Join(strings.Fields(fmt.Sprintf("effective teaching strategies for %s in %s %s",
		s.BehavioralContext.Type, s.Subject, s.Difficulty)), " ")
}

// interventionQuery falls back to the behavior type when no manifestation
// was given.
func interventionQuery(s domain.Scenario) string {
	target := strings.TrimSpace(s.BehavioralContext.Manifestation)
	if target == "" {
		target = s.BehavioralContext.Type
	}
	return fmt.Sprintf("interventions for %s in second grade", target)
}

func contents(matches []domain.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Chunk.Content)
	}
	return out
}
