package exprsafe

import "testing"

func TestEvaluateBoolComparison(t *testing.T) {
	ctx := Context{"company": map[string]interface{}{"employees": 600.0}}
	ok, err := EvaluateBool("company.employees >= 500", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestEvaluateBoolAndOr(t *testing.T) {
	ctx := Context{"company": map[string]interface{}{"employees": 50.0, "listed_status": true}}
	ok, err := EvaluateBool("company.employees >= 500 or company.listed_status == True", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true via or-clause")
	}
}

func TestEvaluateBoolNot(t *testing.T) {
	ctx := Context{"company": map[string]interface{}{"listed_status": false}}
	ok, err := EvaluateBool("not company.listed_status", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestEvaluateArithmeticInComparison(t *testing.T) {
	ctx := Context{"company": map[string]interface{}{"turnover": 1200000.0}}
	ok, err := EvaluateBool("company.turnover / 1000000 > 1", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestEvaluateRejectsUnknownIdentifier(t *testing.T) {
	_, err := Evaluate("missing_symbol > 1", Context{})
	if err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestEvaluateRejectsUnsupportedSyntax(t *testing.T) {
	_, err := Evaluate("__import__('os')", Context{})
	if err == nil {
		t.Fatal("expected error for unsupported call syntax")
	}
}

func TestEvaluateChainedComparison(t *testing.T) {
	ctx := Context{"year": 2024.0}
	ok, err := EvaluateBool("2000 < year < 2030", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected chained comparison to hold")
	}
}
