package schema

// CoverageLimit bounds one counter value of a rule element.
type CoverageLimit struct {
	Counter CounterEntity `mapstructure:"counter" json:"counter"`
	Value   RuleValue     `mapstructure:"value" json:"value"`
	Minimum *float64      `mapstructure:"minimum" json:"minimum,omitempty"`
	Maximum *float64      `mapstructure:"maximum" json:"maximum,omitempty"`
}

// CoverageRule applies limits to every element of a kind whose name matches.
type CoverageRule struct {
	Element  RuleElement     `mapstructure:"element" json:"element"`
	Includes []string        `mapstructure:"includes" json:"includes,omitempty"`
	Excludes []string        `mapstructure:"excludes" json:"excludes,omitempty"`
	Limits   []CoverageLimit `mapstructure:"limits" json:"limits"`
}

// RuleViolation records one limit that an element failed.
type RuleViolation struct {
	Element  RuleElement   `json:"element"`
	Name     string        `json:"name"`
	Counter  CounterEntity `json:"counter"`
	Value    RuleValue     `json:"value"`
	Actual   float64       `json:"actual"`
	Expected float64       `json:"expected"`
	Maximum  bool          `json:"maximum"`
}

// CheckResult holds the results of a coverage rules check.
type CheckResult struct {
	Passed          bool            `json:"passed"`
	Rules           []CoverageRule  `json:"rules"`
	Violations      []RuleViolation `json:"violations"`
	CheckedElements int             `json:"checked_elements"`
	Totals          Counters        `json:"totals"`
}
