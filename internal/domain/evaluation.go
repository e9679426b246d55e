package domain

// Category names one of the four weighted rule checks.
type Category string

const (
	CategoryTime          Category = "time"
	CategoryLearningStyle Category = "learning_style"
	CategoryBehavior      Category = "behavior"
	CategorySubject       Category = "subject"
)

// Categories is the fixed evaluation order.
var Categories = []Category{
	CategoryTime,
	CategoryLearningStyle,
	CategoryBehavior,
	CategorySubject,
}

// RetrievedStrategy records which stored chunk informed a category.
type RetrievedStrategy struct {
	ChunkID    int64   `json:"chunk_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// CategoryResult is the breakdown entry for one category.
type CategoryResult struct {
	Category      Category            `json:"category"`
	Key           string              `json:"key"`
	Weight        float64             `json:"weight"`
	Matched       bool                `json:"matched"`
	MatchedPhrase string              `json:"matched_phrase,omitempty"`
	Explanation   string              `json:"explanation"`
	Retrieved     []RetrievedStrategy `json:"retrieved"`
	Effectiveness float64             `json:"effectiveness"`
}

// IdentifiedStrategy is the per-category effectiveness summary.
type IdentifiedStrategy struct {
	Category      Category `json:"type"`
	Effectiveness float64  `json:"effectiveness"`
	Explanation   string   `json:"explanation"`
}

// StateDeltas are adjustments handed to the student simulation.
type StateDeltas struct {
	Engagement    float64 `json:"engagement"`
	Understanding float64 `json:"understanding"`
	Mood          float64 `json:"mood"`
}

// EvaluationResult is the scored feedback for one response.
type EvaluationResult struct {
	Score                float64              `json:"score"`
	Feedback             []string             `json:"feedback"`
	Suggestions          []string             `json:"suggestions"`
	Breakdown            []CategoryResult     `json:"breakdown"`
	IdentifiedStrategies []IdentifiedStrategy `json:"identified_strategies"`
	StateDeltas          StateDeltas          `json:"state_deltas"`
	Degraded             bool                 `json:"degraded"`
	Summary              string               `json:"summary"`
}

// SemanticResult is the semantic-only evaluation mode.
type SemanticResult struct {
	StrategyScore         float64  `json:"strategy_score"`
	InterventionScore     float64  `json:"intervention_score"`
	TotalScore            float64  `json:"total_score"`
	RelevantStrategies    []string `json:"relevant_strategies"`
	RelevantInterventions []string `json:"relevant_interventions"`
	Degraded              bool     `json:"degraded"`
}

// TeachingContext groups retrieved knowledge for a scenario.
type TeachingContext struct {
	Behavior   []string `json:"behavior"`
	Strategies []string `json:"strategies"`
	Content    []string `json:"content"`
}
