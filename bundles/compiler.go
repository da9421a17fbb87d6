package bundles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"compliance.evalgo.org/canonical"
	"compliance.evalgo.org/exprsafe"
)

// CompileContext is the evaluation context a bundle is compiled against:
// arbitrary dict-shaped values (typically a "company" attribute map) plus
// the context's applicable Jurisdictions, used to select overlays.
type CompileContext struct {
	Values        map[string]interface{}
	Jurisdictions []string
}

func (c CompileContext) exprContext() exprsafe.Context {
	ctx := make(exprsafe.Context, len(c.Values))
	for k, v := range c.Values {
		ctx[k] = v
	}
	return ctx
}

// CompiledElement is one element surviving compilation.
type CompiledElement struct {
	ElementID string `json:"element_id"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
}

// CompiledObligationPlan is one obligation surviving compilation, with its
// in-scope elements sorted by element_id.
type CompiledObligationPlan struct {
	ObligationID      string            `json:"obligation_id"`
	Title             string            `json:"title"`
	StandardReference string            `json:"standard_reference"`
	Elements          []CompiledElement `json:"elements"`
}

// CompiledPlan is the deterministic output of Compile: a bundle reduced to
// only its in-scope obligations/elements for one CompileContext, sorted by
// obligation_id. GeneratedAt is intentionally absent — plan_hash is
// computed over this type, and the plan carries no wall-clock field.
type CompiledPlan struct {
	BundleID     string                   `json:"bundle_id"`
	Version      string                   `json:"version"`
	Jurisdiction string                   `json:"jurisdiction"`
	Regime       string                   `json:"regime"`
	Obligations  []CompiledObligationPlan `json:"obligations"`
}

// PlanHash computes plan_hash = sha256_hex(canonical(plan)), matching
// spec.md §4.5 ("plan without generated_at" — CompiledPlan never carries
// one, so no field needs to be stripped here).
func PlanHash(plan CompiledPlan) (string, error) {
	return canonical.SHA256Hex(plan)
}

// ruleExpression renders one PhaseRule as an exprsafe expression string,
// e.g. PhaseRule{Key: "employees", Operator: ">", Value: 250} becomes
// "company.employees > 250". A key already containing "." is used as-is
// (it names its own root identifier rather than an implicit "company."
// attribute), matching the original compiler's _rule_expression.
func ruleExpression(rule PhaseRule) string {
	path := rule.Key
	if !strings.Contains(path, ".") {
		path = "company." + path
	}
	return fmt.Sprintf("%s %s %s", path, rule.Operator, reprValue(rule.Value))
}

func reprValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// elementApplies evaluates every one of element's phase-in rules under
// ctx; an element with no phase-in rules always applies.
func elementApplies(element Element, ctx CompileContext) (bool, error) {
	if len(element.PhaseInRules) == 0 {
		return true, nil
	}
	exprCtx := ctx.exprContext()
	for _, rule := range element.PhaseInRules {
		ok, err := exprsafe.EvaluateBool(ruleExpression(rule), exprCtx)
		if err != nil {
			return false, fmt.Errorf("bundles: evaluate phase-in rule %q: %w", rule.Key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// compileObligation returns the compiled form of obligation under ctx, or
// nil if every element was filtered out (an obligation with no in-scope
// elements is dropped entirely, per spec.md §4.5).
func compileObligation(obligation Obligation, ctx CompileContext) (*CompiledObligationPlan, error) {
	sorted := append([]Element(nil), obligation.Elements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ElementID < sorted[j].ElementID })

	var elements []CompiledElement
	for _, element := range sorted {
		applies, err := elementApplies(element, ctx)
		if err != nil {
			return nil, err
		}
		if !applies {
			continue
		}
		elements = append(elements, CompiledElement{
			ElementID: element.ElementID,
			Label:     element.Label,
			Required:  element.Required,
		})
	}
	if len(elements) == 0 {
		return nil, nil
	}
	return &CompiledObligationPlan{
		ObligationID:      obligation.ObligationID,
		Title:             obligation.Title,
		StandardReference: obligation.StandardReference,
		Elements:          elements,
	}, nil
}

// applyOverlays applies every overlay in b whose Jurisdictions intersects
// ctx.Jurisdictions, in registration order: obligations_disable removes
// already-applied obligations, obligations_modify patches title/standard
// reference fields in place, and obligations_add appends newly compiled
// overlay obligations — exactly the order named in spec.md §4.5.
func applyOverlays(obligations []Obligation, b Bundle, ctx CompileContext) []Obligation {
	out := append([]Obligation(nil), obligations...)

	for _, overlay := range b.Overlays {
		if !jurisdictionsIntersect(overlay.Jurisdictions, ctx.Jurisdictions) {
			continue
		}

		if len(overlay.ObligationsDisable) > 0 {
			disabled := toSet(overlay.ObligationsDisable)
			filtered := out[:0:0]
			for _, o := range out {
				if _, drop := disabled[o.ObligationID]; !drop {
					filtered = append(filtered, o)
				}
			}
			out = filtered
		}

		for _, patch := range overlay.ObligationsModify {
			for i := range out {
				if out[i].ObligationID != patch.ObligationID {
					continue
				}
				if patch.Title != nil {
					out[i].Title = *patch.Title
				}
				if patch.StandardReference != nil {
					out[i].StandardReference = *patch.StandardReference
				}
			}
		}

		out = append(out, overlay.ObligationsAdd...)
	}

	return out
}

func jurisdictionsIntersect(a, b []string) bool {
	set := toSet(a)
	for _, j := range b {
		if _, ok := set[j]; ok {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}

// Compile reduces b to its in-scope obligations/elements under ctx,
// applying overlays before element-level phase-in filtering, and returns
// the result sorted by obligation_id with elements sorted by element_id
// (compileObligation already sorts elements; obligations are sorted
// here), matching spec.md §4.5's "sorted by obligation_id and
// element_id before serialisation" requirement.
func Compile(b Bundle, ctx CompileContext) (CompiledPlan, error) {
	obligations := applyOverlays(b.Obligations, b, ctx)
	sort.Slice(obligations, func(i, j int) bool {
		return obligations[i].ObligationID < obligations[j].ObligationID
	})

	var compiled []CompiledObligationPlan
	for _, obligation := range obligations {
		result, err := compileObligation(obligation, ctx)
		if err != nil {
			return CompiledPlan{}, err
		}
		if result != nil {
			compiled = append(compiled, *result)
		}
	}

	return CompiledPlan{
		BundleID:     b.BundleID,
		Version:      b.Version,
		Jurisdiction: b.Jurisdiction,
		Regime:       b.Regime,
		Obligations:  compiled,
	}, nil
}
