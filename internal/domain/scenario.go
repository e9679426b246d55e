package domain

import "strings"

// BehavioralContext describes what the student is doing and why.
type BehavioralContext struct {
	Type          string `json:"type" yaml:"type"`
	Trigger       string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Manifestation string `json:"manifestation,omitempty" yaml:"manifestation,omitempty"`
}

// Scenario is a teaching situation used to parameterize evaluation.
type Scenario struct {
	Subject           string            `json:"subject" yaml:"subject"`
	TimeOfDay         string            `json:"time_of_day" yaml:"time_of_day"`
	LearningStyle     string            `json:"learning_style" yaml:"learning_style"`
	BehavioralContext BehavioralContext `json:"behavioral_context" yaml:"behavioral_context"`
	Difficulty        string            `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// Validate checks that every required key is present.
func (s Scenario) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"subject", s.Subject},
		{"time_of_day", s.TimeOfDay},
		{"learning_style", s.LearningStyle},
		{"behavioral_context.type", s.BehavioralContext.Type},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewMalformedScenarioError(r.field, "is required")
		}
	}
	return nil
}

// Normalized lowercases and trims the catalog keys.
func (s Scenario) Normalized() Scenario {
	norm := func(v string) string { return strings.ToLower(strings.TrimSpace(v)) }
	s.Subject = norm(s.Subject)
	s.TimeOfDay = norm(s.TimeOfDay)
	s.LearningStyle = norm(s.LearningStyle)
	s.BehavioralContext.Type = norm(s.BehavioralContext.Type)
	return s
}
