package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
)

// TeachingContext retrieves behavior notes, strategies and academic content
// relevant to a scenario. Unlike evaluation, retrieval errors are returned.
func (e *Evaluator) TeachingContext(ctx context.Context, scenario domain.Scenario) (*domain.TeachingContext, error) {
	ctx, span := telemetry.StartSpan(ctx, "Evaluator.TeachingContext", telemetry.SpanAttributes{Operation: "teaching_context"})
	defer span.End()

	s := scenario.Normalized()
	if err := s.Validate(); err != nil {
		span.SetError(err)
		return nil, err
	}

	tc := &domain.TeachingContext{}
	queries := []struct {
		query string
		dest  *[]string
	}{
		{fmt.Sprintf("%s behavior in %s class", s.BehavioralContext.Type, s.Subject), &tc.Behavior},
		{strategyQuery(s), &tc.Strategies},
		{strings.Join(strings.Fields(s.Subject+" "+s.Difficulty+" second grade"), " "), &tc.Content},
	}

	for _, q := range queries {
		matches, err := e.retrieve(ctx, q.query)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("retrieve %q: %w", q.query, err)
		}
		*q.dest = contents(matches)
	}
	return tc, nil
}
