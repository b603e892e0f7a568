package schema

// AggregateResult is everything one aggregation run produced.
type AggregateResult struct {
	Group     *ReportGroup        `json:"group"`
	Modules   []ModuleDescriptor  `json:"modules"`
	ExecFiles []string            `json:"exec_files"`
	Sessions  []SessionInfo       `json:"sessions"`
	Records   int                 `json:"records"`
	NoMatch   map[string][]string `json:"no_match,omitempty"` // bundle name -> VM class names
	OutputDir string              `json:"output_dir,omitempty"`
}

// BundleSummary is a flat view of one bundle for tables and JSON.
type BundleSummary struct {
	Name     string   `json:"name"`
	Classes  int      `json:"classes"`
	Counters Counters `json:"counters"`
}

// GroupSummary is a flat view of a report group.
type GroupSummary struct {
	Name     string          `json:"name"`
	Bundles  []BundleSummary `json:"bundles"`
	Totals   Counters        `json:"totals"`
	NoMatch  int             `json:"no_match_classes"`
	Sessions int             `json:"sessions"`
}

// Summarize flattens an aggregate result.
func Summarize(res *AggregateResult) GroupSummary {
	sum := GroupSummary{Name: res.Group.Name, Totals: res.Group.Totals(), Sessions: len(res.Sessions)}
	for _, b := range res.Group.AllBundles() {
		sum.Bundles = append(sum.Bundles, BundleSummary{Name: b.Name, Classes: b.ClassCount(), Counters: b.Counters})
	}
	for _, names := range res.NoMatch {
		sum.NoMatch += len(names)
	}
	return sum
}
