package vars

import "testing"

func TestRenderUnresolvedLeftVerbatim(t *testing.T) {
	out := Render("Hi {{name}}, your code is {{code}}", map[string]any{"name": "Ana"})
	want := "Hi Ana, your code is {{code}}"
	if out != want {
		t.Fatalf("Render() = %q, want %q", out, want)
	}
}

func TestUnresolvedNames(t *testing.T) {
	missing := UnresolvedNames("{{a}} and {{b}}", map[string]any{"a": 1})
	if len(missing) != 1 || missing[0] != "b" {
		t.Fatalf("UnresolvedNames() = %v, want [b]", missing)
	}
}

func TestEvaluateNumericParseFailure(t *testing.T) {
	_, err := Evaluate(Clause{Variable: "age", Operator: OpGreaterThan, Value: "18"}, map[string]any{"age": "not-a-number"})
	if err == nil {
		t.Fatalf("expected numeric parse error")
	}
}

func TestEvaluateAllShortCircuitsOr(t *testing.T) {
	clauses := []Clause{
		{Variable: "a", Operator: OpEqual, Value: "1"},
		{Variable: "age", Operator: OpGreaterThan, Value: "not-numeric"}, // would error if evaluated
	}
	ok, err := EvaluateAll(clauses, LogicalOr, map[string]any{"a": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected true from first clause, short-circuiting the second")
	}
}

func TestValidateMaxLength(t *testing.T) {
	rules := ParseRules("max:10")
	reason := Validate("12345678901", rules)
	if reason == "" {
		t.Fatalf("expected rejection for 11-char input against max:10")
	}
	if Validate("short", rules) != "" {
		t.Fatalf("expected short input to pass max:10")
	}
}

func TestValidateEmail(t *testing.T) {
	rules := ParseRules("email")
	if Validate("not-an-email", rules) == "" {
		t.Fatalf("expected rejection for invalid email")
	}
	if Validate("a@b.co", rules) != "" {
		t.Fatalf("expected a@b.co to validate")
	}
}
