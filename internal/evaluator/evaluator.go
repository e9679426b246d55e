// Package evaluator scores a teacher's response to a classroom scenario with
// keyword rules and retrieval-backed semantic similarity.
package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/embedding"
	"github.com/cloo-solutions/coachkb/internal/index"
	"github.com/cloo-solutions/coachkb/internal/metrics"
	"github.com/cloo-solutions/coachkb/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopK = 3

	// DegradedExplanation replaces semantic explanations when retrieval fails.
	DegradedExplanation = "Unable to perform detailed evaluation"
)

type Option func(*Evaluator)

func WithCatalog(c *Catalog) Option {
	return func(e *Evaluator) { e.catalog = c }
}

func WithTopK(k int) Option {
	return func(e *Evaluator) {
		if k > 0 {
			e.topK = k
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// Evaluator is safe for concurrent use when its RandomSource is.
type Evaluator struct {
	provider embedding.Provider
	index    index.Index
	random   RandomSource
	catalog  *Catalog
	topK     int
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
}

func New(provider embedding.Provider, idx index.Index, random RandomSource, opts ...Option) *Evaluator {
	e := &Evaluator{
		provider: provider,
		index:    idx,
		random:   random,
		catalog:  DefaultCatalog(),
		topK:     DefaultTopK,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog is the strategy catalog used for rule scoring.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate scores response against scenario. Retrieval failures never fail
// the call: the rule-based result is returned with Degraded set.
func (e *Evaluator) Evaluate(ctx context.Context, response string, scenario domain.Scenario) (*domain.EvaluationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Evaluator.Evaluate", telemetry.SpanAttributes{Operation: "evaluate"})
	defer span.End()

	s, err := e.checkScenario(scenario)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	lower := strings.ToLower(response)
	result := &domain.EvaluationResult{
		Feedback:    []string{},
		Suggestions: []string{},
		Breakdown:   make([]domain.CategoryResult, 0, len(e.catalog.Rules)),
	}

	var score float64
	for _, rule := range e.catalog.Rules {
		key := scenarioKey(s, rule.Category)
		entry := rule.Entries[key]
		cr := domain.CategoryResult{
			Category:    rule.Category,
			Key:         key,
			Weight:      rule.Weight,
			Explanation: interpolate(entry.Explanation, key, "", s),
			Retrieved:   []domain.RetrievedStrategy{},
		}

		if phrase, ok := matchPhrase(lower, entry.Strategies); ok {
			cr.Matched = true
			cr.MatchedPhrase = phrase
			score += rule.Weight
			result.Feedback = append(result.Feedback, interpolate(rule.Strength, key, "", s))
		} else {
			pick := entry.Strategies[e.random.IntN(len(entry.Strategies))]
			result.Suggestions = append(result.Suggestions, interpolate(rule.Suggestion, key, pick, s))
		}
		result.Breakdown = append(result.Breakdown, cr)
	}

	result.Score = clampScore(score)
	result.StateDeltas = domain.StateDeltas{
		Engagement:    result.Score / 2,
		Understanding: result.Score / 2,
		Mood:          result.Score / 2,
	}

	if err := e.enrich(ctx, response, s, result); err != nil {
		e.logger.WithError(err).Warn("semantic evaluation unavailable, using rule-based result")
		result.Degraded = true
		for i := range result.Breakdown {
			result.Breakdown[i].Retrieved = []domain.RetrievedStrategy{}
			result.Breakdown[i].Effectiveness = 0
		}
	}
	result.IdentifiedStrategies = identified(result)
	result.Summary = summarize(result)

	e.metrics.RecordEvaluation("rule", result.Degraded)
	e.logger.WithFields(logrus.Fields{
		"score":    result.Score,
		"degraded": result.Degraded,
		"subject":  s.Subject,
	}).Debug("response evaluated")
	return result, nil
}

// enrich fills the per-category retrieval provenance and effectiveness.
func (e *Evaluator) enrich(ctx context.Context, response string, s domain.Scenario, result *domain.EvaluationResult) error {
	if strings.TrimSpace(response) == "" {
		return nil
	}
	respVec, err := e.provider.Embed(ctx, response)
	if err != nil {
		return err
	}

	for i := range result.Breakdown {
		cr := &result.Breakdown[i]
		matches, err := e.retrieve(ctx, categoryQuery(cr.Category, s))
		if err != nil {
			return err
		}
		for _, m := range matches {
			cr.Retrieved = append(cr.Retrieved, domain.RetrievedStrategy{
				ChunkID:    m.Chunk.ID,
				Content:    m.Chunk.Content,
				Similarity: m.Similarity,
			})
		}
		cr.Effectiveness = Effectiveness(respVec, matches)
	}
	return nil
}

func (e *Evaluator) retrieve(ctx context.Context, query string) ([]domain.Match, error) {
	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.index.Search(ctx, vec, e.topK)
}

func (e *Evaluator) checkScenario(scenario domain.Scenario) (domain.Scenario, error) {
	s := scenario.Normalized()
	if err := s.Validate(); err != nil {
		return s, err
	}
	if err := e.catalog.CheckScenario(s); err != nil {
		return s, err
	}
	return s, nil
}

// Effectiveness is the similarity-weighted mean cosine between the response
// and each retrieved chunk, within [0, 1]. No matches score 0.
func Effectiveness(response []float32, matches []domain.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += embedding.Cosine(response, m.Chunk.Embedding) * m.Similarity
	}
	return math.Max(0, math.Min(1, sum/float64(len(matches))))
}

// categoryQuery builds the retrieval query for one category.
func categoryQuery(cat domain.Category, s domain.Scenario) string {
	switch cat {
	case domain.CategoryTime:
		return s.TimeOfDay + " classroom strategies"
	case domain.CategoryLearningStyle:
		return s.LearningStyle + " learner strategies"
	case domain.CategoryBehavior:
		return fmt.Sprintf("%s behavior in %s class", s.BehavioralContext.Type, s.Subject)
	default:
		return strategyQuery(s)
	}
}

func strategyQuery(s domain.Scenario) string {
	if d := strings.TrimSpace(s.Difficulty); d != "" {
		return fmt.Sprintf("teaching strategies for %s in %s", d, s.Subject)
	}
	return "teaching strategies for " + s.Subject
}

func matchPhrase(lowerResponse string, strategies []string) (string, bool) {
	for _, st := range strategies {
		if strings.Contains(lowerResponse, strings.ToLower(st)) {
			return st, true
		}
	}
	return "", false
}

func interpolate(tmpl, key, pick string, s domain.Scenario) string {
	trigger := strings.TrimSpace(s.BehavioralContext.Trigger)
	if trigger == "" {
		trigger = "the task"
	}
	return strings.NewReplacer(
		"{key}", key,
		"{pick}", pick,
		"{trigger}", trigger,
	).Replace(tmpl)
}

func clampScore(score float64) float64 {
	score = math.Round(score*1e9) / 1e9
	return math.Max(0, math.Min(1, score))
}

func identified(result *domain.EvaluationResult) []domain.IdentifiedStrategy {
	out := make([]domain.IdentifiedStrategy, 0, len(result.Breakdown))
	for _, cr := range result.Breakdown {
		explanation := cr.Explanation
		if result.Degraded {
			explanation = DegradedExplanation
		}
		out = append(out, domain.IdentifiedStrategy{
			Category:      cr.Category,
			Effectiveness: cr.Effectiveness,
			Explanation:   explanation,
		})
	}
	return out
}

var categoryTitles = map[domain.Category]string{
	domain.CategoryTime:          "Time of Day",
	domain.CategoryLearningStyle: "Learning Style",
	domain.CategoryBehavior:      "Behavior Management",
	domain.CategorySubject:       "Subject Support",
}

func summarize(result *domain.EvaluationResult) string {
	var b strings.Builder
	b.WriteString("Evaluation Breakdown:\n")
	for i, cr := range result.Breakdown {
		pct := 0
		if cr.Matched {
			pct = 100
		}
		fmt.Fprintf(&b, "%d. %s (%s): %d%% - %s\n", i+1, categoryTitles[cr.Category], cr.Key, pct, cr.Explanation)
	}
	fmt.Fprintf(&b, "\nOverall Score: %.0f%%", result.Score*100)
	if result.Degraded {
		b.WriteString("\n" + DegradedExplanation)
	}
	return b.String()
}
