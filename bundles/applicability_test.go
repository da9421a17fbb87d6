package bundles

import "testing"

func intPtr(n int) *int          { return &n }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool       { return &b }

func TestEvaluateRuleEmployeeThreshold(t *testing.T) {
	profile := CompanyProfile{Employees: intPtr(300)}
	applies, err := EvaluateRule("company.employees > 250", profile)
	if err != nil {
		t.Fatal(err)
	}
	if !applies {
		t.Fatal("expected rule to apply for a company over the threshold")
	}
}

func TestEvaluateRuleListedStatus(t *testing.T) {
	profile := CompanyProfile{ListedStatus: boolPtr(true)}
	applies, err := EvaluateRule("company.listed_status == True", profile)
	if err != nil {
		t.Fatal(err)
	}
	if !applies {
		t.Fatal("expected rule to apply for a listed company")
	}
}

func TestEvaluateRuleMissingFieldReturnsError(t *testing.T) {
	profile := CompanyProfile{}
	_, err := EvaluateRule("company.turnover > 1000000", profile)
	if err == nil {
		t.Fatal("expected an error evaluating a rule against an unset profile field")
	}
}

func TestEvaluateRuleCombinedBooleanExpression(t *testing.T) {
	profile := CompanyProfile{Employees: intPtr(500), Turnover: floatPtr(40000000)}
	applies, err := EvaluateRule("company.employees > 250 and company.turnover > 20000000", profile)
	if err != nil {
		t.Fatal(err)
	}
	if !applies {
		t.Fatal("expected combined rule to apply")
	}
}
