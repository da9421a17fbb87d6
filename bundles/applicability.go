// Package bundles implements the two compiler modes a Run can use to
// determine its required datapoint universe (spec §4.5):
//
//   - legacy: a RequirementBundle's DatapointDefinitions, gated per-datapoint
//     by an ApplicabilityRule expression over the company's profile and
//     narrowed by per-run materiality overrides.
//   - registry: a RegulatoryBundle compiled deterministically into a plan of
//     obligations/elements, gated by each element's phase-in rules.
//
// Both gating paths are evaluated by exprsafe, never by a general-purpose
// scripting engine, so a malformed or malicious bundle can never execute
// arbitrary code against the run engine.
package bundles

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"compliance.evalgo.org/entities"
	"compliance.evalgo.org/exprsafe"
)

// CompanyProfile is the evaluation context for legacy ApplicabilityRule
// expressions and registry phase-in rules alike, ported from the original
// implementation's requirements/applicability.py dataclass.
type CompanyProfile struct {
	Employees     *int
	Turnover      *float64
	ListedStatus  *bool
	ReportingYear *int
}

// context builds the exprsafe.Context a rule expression is evaluated
// against: a single "company" identifier whose attributes are the profile
// fields, matching the original's `company.<field>` access pattern.
func (p CompanyProfile) context() exprsafe.Context {
	company := map[string]interface{}{}
	if p.Employees != nil {
		company["employees"] = float64(*p.Employees)
	}
	if p.Turnover != nil {
		company["turnover"] = *p.Turnover
	}
	if p.ListedStatus != nil {
		company["listed_status"] = *p.ListedStatus
	}
	if p.ReportingYear != nil {
		company["reporting_year"] = float64(*p.ReportingYear)
	}
	return exprsafe.Context{"company": company}
}

// EvaluateRule evaluates one ApplicabilityRule.Expression against profile,
// e.g. "company.employees > 250".
func EvaluateRule(expression string, profile CompanyProfile) (bool, error) {
	return exprsafe.EvaluateBool(expression, profile.context())
}

// ResolveRequiredDatapointIDs returns the deterministically ordered set of
// datapoint keys required for companyID under bundleID@bundleVersion in
// legacy compiler mode, narrowed by any per-run materiality overrides
// (spec §4.5 legacy path; ported from applicability.py resolve_required_datapoint_ids).
func ResolveRequiredDatapointIDs(db *gorm.DB, companyID uint, bundleID, bundleVersion string, runID *uint) ([]string, error) {
	var company entities.Company
	if err := db.First(&company, companyID).Error; err != nil {
		return nil, fmt.Errorf("bundles: company not found: %w", err)
	}

	var bundle entities.RequirementBundle
	if err := db.Where("bundle_id = ? AND version = ?", bundleID, bundleVersion).
		First(&bundle).Error; err != nil {
		return nil, fmt.Errorf("bundles: requirement bundle not found: %s@%s: %w", bundleID, bundleVersion, err)
	}

	profile := CompanyProfile{
		Employees:     company.Employees,
		Turnover:      company.Turnover,
		ListedStatus:  company.ListedStatus,
		ReportingYear: company.ReportingYear,
	}

	var rules []entities.ApplicabilityRule
	if err := db.Where("bundle_id = ?", bundleID).
		Order("rule_id, datapoint_key").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("bundles: load applicability rules: %w", err)
	}

	var defs []entities.DatapointDefinition
	if err := db.Where("requirement_bundle_id = ?", bundle.ID).
		Order("datapoint_key").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("bundles: load datapoint definitions: %w", err)
	}
	topicByDatapoint := make(map[string]string, len(defs))
	for _, d := range defs {
		topic := d.MaterialityTopic
		if topic == "" {
			topic = "general"
		}
		topicByDatapoint[d.DatapointKey] = topic
	}

	materialByTopic := map[string]bool{}
	if runID != nil {
		var overrides []entities.RunMateriality
		if err := db.Where("run_id = ?", *runID).Order("topic").Find(&overrides).Error; err != nil {
			return nil, fmt.Errorf("bundles: load run materiality overrides: %w", err)
		}
		for _, o := range overrides {
			materialByTopic[o.Topic] = o.Material
		}
	}

	seen := map[string]struct{}{}
	var required []string
	for _, rule := range rules {
		applies, err := EvaluateRule(rule.Expression, profile)
		if err != nil {
			return nil, fmt.Errorf("bundles: evaluate rule %s: %w", rule.RuleID, err)
		}
		if !applies {
			continue
		}

		topic, ok := topicByDatapoint[rule.DatapointKey]
		if !ok {
			topic = "general"
		}
		if material, overridden := materialByTopic[topic]; overridden && !material {
			continue
		}

		if _, dup := seen[rule.DatapointKey]; dup {
			continue
		}
		seen[rule.DatapointKey] = struct{}{}
		required = append(required, rule.DatapointKey)
	}

	sort.Strings(required)
	return required, nil
}
