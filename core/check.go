package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/outwriter"
	"github.com/huangsam/covagg/schema"
)

// ErrCheckFailed is returned by ExecuteCheck when any rule is violated.
var ErrCheckFailed = errors.New("coverage checks have not been met")

// ExecuteCheck aggregates coverage without writing reports and checks it against the configured rules.
// It is meant for CI gating; a violated rule yields ErrCheckFailed.
func ExecuteCheck(ctx context.Context, cfg *contract.Config, _ contract.HistoryManager) error {
	if len(cfg.Rules) == 0 {
		return errors.New("no coverage rules configured, use --limits or a rules section in the config file")
	}
	res, err := Aggregate(ctx, cfg, nil)
	if err != nil {
		return err
	}
	result, err := CheckRules(res.Group, cfg.Rules)
	if err != nil {
		return err
	}
	if err := outwriter.WriteCheckResult(result, cfg); err != nil {
		return err
	}
	if !result.Passed {
		return ErrCheckFailed
	}
	return nil
}

// compiledRule is a rule with its name patterns compiled.
type compiledRule struct {
	rule     schema.CoverageRule
	includes []glob.Glob
	excludes []glob.Glob
}

func compileRule(rule schema.CoverageRule) (compiledRule, error) {
	includes := rule.Includes
	if len(includes) == 0 {
		includes = []string{"*"}
	}
	c := compiledRule{rule: rule}
	for _, p := range includes {
		g, err := glob.Compile(p)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid include pattern '%s': %w", p, err)
		}
		c.includes = append(c.includes, g)
	}
	for _, p := range rule.Excludes {
		g, err := glob.Compile(p)
		if err != nil {
			return compiledRule{}, fmt.Errorf("invalid exclude pattern '%s': %w", p, err)
		}
		c.excludes = append(c.excludes, g)
	}
	return c, nil
}

// matches applies the rule's patterns; '*' and '?' match any character including '.'.
func (c compiledRule) matches(name string) bool {
	for _, g := range c.excludes {
		if g.Match(name) {
			return false
		}
	}
	for _, g := range c.includes {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ruleChecker walks the coverage tree once and applies every rule at its element level.
type ruleChecker struct {
	rules   []compiledRule
	result  *schema.CheckResult
	checked map[string]bool
}

// CheckRules evaluates rules against every bundle of the group and its descendants.
func CheckRules(group *schema.ReportGroup, rules []schema.CoverageRule) (*schema.CheckResult, error) {
	c := &ruleChecker{
		result:  &schema.CheckResult{Rules: rules, Totals: group.Totals(), Violations: []schema.RuleViolation{}},
		checked: map[string]bool{},
	}
	for _, r := range rules {
		compiled, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, compiled)
	}

	for _, b := range group.AllBundles() {
		c.check(schema.BundleElement, b.Name, b.Counters)
		for _, p := range b.Packages {
			c.check(schema.PackageElement, p.DisplayName(), p.Counters)
			for _, cl := range p.Classes {
				className := strings.ReplaceAll(cl.Name, "/", ".")
				c.check(schema.ClassElement, className, cl.Counters)
				for _, m := range cl.Methods {
					c.check(schema.MethodElement, className+"."+m.Name+m.Desc, m.Counters)
				}
			}
			for _, s := range p.SourceFiles {
				c.check(schema.SourceFileElement, path.Join(p.Name, s.Name), s.Counters)
			}
		}
	}
	c.result.CheckedElements = len(c.checked)
	c.result.Passed = len(c.result.Violations) == 0
	return c.result, nil
}

func (c *ruleChecker) check(element schema.RuleElement, name string, counters schema.Counters) {
	for _, r := range c.rules {
		if r.rule.Element != element || !r.matches(name) {
			continue
		}
		c.checked[string(element)+":"+name] = true
		for _, limit := range r.rule.Limits {
			if v, ok := checkLimit(limit, counters.Get(limit.Counter)); !ok {
				v.Element = element
				v.Name = name
				c.result.Violations = append(c.result.Violations, v)
			}
		}
	}
}

// checkLimit compares a counter value with a limit. Ratios of empty counters are not checked.
// The comparison uses the exact value; the reported value is truncated towards the bound
// to the precision the bound is written with.
func checkLimit(limit schema.CoverageLimit, counter schema.Counter) (schema.RuleViolation, bool) {
	isRatio := limit.Value == schema.CoveredRatioValue || limit.Value == schema.MissedRatioValue
	if isRatio && counter.Total() == 0 {
		return schema.RuleViolation{}, true
	}
	actual := counter.Value(limit.Value)
	v := schema.RuleViolation{Counter: limit.Counter, Value: limit.Value}

	if limit.Minimum != nil && actual < *limit.Minimum {
		v.Actual = roundTo(actual, *limit.Minimum, math.Floor)
		v.Expected = *limit.Minimum
		return v, false
	}
	if limit.Maximum != nil && actual > *limit.Maximum {
		v.Actual = roundTo(actual, *limit.Maximum, math.Ceil)
		v.Expected = *limit.Maximum
		v.Maximum = true
		return v, false
	}
	return v, true
}

// roundEpsilon absorbs binary representation error such as 0.29*100 = 28.999999999999996.
const roundEpsilon = 1e-9

// roundTo rounds v with mode (math.Floor or math.Ceil) to the number of decimals of bound.
func roundTo(v, bound float64, mode func(float64) float64) float64 {
	s := strconv.FormatFloat(bound, 'f', -1, 64)
	decimals := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		decimals = len(s) - i - 1
	}
	scale := math.Pow10(decimals)
	scaled := v * scale
	if r := math.Round(scaled); math.Abs(scaled-r) < roundEpsilon {
		scaled = r
	}
	return mode(scaled) / scale
}
