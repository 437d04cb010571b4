package flow

import "testing"

func TestValidateEmptyFlowMissingStart(t *testing.T) {
	f := &Flow{ID: "empty", Settings: DefaultSettings()}
	r := f.Validate()
	if r.IsValid {
		t.Fatalf("expected invalid flow")
	}
	found := false
	for _, e := range r.Errors {
		if e == "MissingStartNode: flow has no nodes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected MissingStartNode error, got %v", r.Errors)
	}
}

func TestValidateButtonsTooMany(t *testing.T) {
	f := &Flow{
		ID:       "f1",
		Settings: DefaultSettings(),
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "btns", Kind: KindButtons, Buttons: &ButtonsConfig{
				Message: "pick",
				Buttons: []Button{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
			}},
			{ID: "end", Kind: KindEnd, End: &EndConfig{Success: true}},
		},
		Edges: []Edge{
			{From: "start", To: "btns"},
			{From: "btns", To: "end", Condition: "a"},
		},
	}
	r := f.Validate()
	if r.IsValid {
		t.Fatalf("expected invalid flow for 4 buttons")
	}
}

func TestValidateLinearFlowPublishes(t *testing.T) {
	f := &Flow{
		ID:       "linear",
		Settings: DefaultSettings(),
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "msg", Kind: KindMessage, Message: &MessageConfig{Text: "Hi {{name}}"}},
			{ID: "end", Kind: KindEnd, End: &EndConfig{Success: true}},
		},
		Edges: []Edge{
			{From: "start", To: "msg"},
			{From: "msg", To: "end"},
		},
		VariableSchema: map[string]any{"name": ""},
	}
	report, err := f.Publish()
	if err != nil {
		t.Fatalf("expected publish to succeed: %v (%v)", err, report.Errors)
	}
	if !f.Published {
		t.Fatalf("expected flow to be marked published")
	}
}

func TestValidateUnconditionalCycleRejected(t *testing.T) {
	f := &Flow{
		ID:       "loopy",
		Settings: DefaultSettings(),
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "a", Kind: KindMessage, Message: &MessageConfig{Text: "a"}},
			{ID: "b", Kind: KindMessage, Message: &MessageConfig{Text: "b"}},
		},
		Edges: []Edge{
			{From: "start", To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	r := f.Validate()
	if r.IsValid {
		t.Fatalf("expected unconditional cycle to be rejected")
	}
}

func TestValidateCycleWithQuestionAllowed(t *testing.T) {
	f := &Flow{
		ID:       "retry-loop",
		Settings: DefaultSettings(),
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "ask", Kind: KindQuestion, Question: &QuestionConfig{Prompt: "Email?", BindToVariable: "email"}},
			{ID: "check", Kind: KindCondition, Condition: &ConditionConfig{}},
			{ID: "end", Kind: KindEnd, End: &EndConfig{Success: true}},
		},
		Edges: []Edge{
			{From: "start", To: "ask"},
			{From: "ask", To: "check"},
			{From: "check", To: "ask", Condition: "false"},
			{From: "check", To: "end", Condition: "true"},
		},
	}
	r := f.Validate()
	if !r.IsValid {
		t.Fatalf("expected cycle through a Question node to be allowed, got errors: %v", r.Errors)
	}
}

func TestValidateSwitchRequiresDefault(t *testing.T) {
	f := &Flow{
		ID:       "switchy",
		Settings: DefaultSettings(),
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "sw", Kind: KindSwitch, Switch: &SwitchConfig{Expression: "{{x}}", Cases: map[string]string{"a": "end"}}},
			{ID: "end", Kind: KindEnd, End: &EndConfig{Success: true}},
		},
		Edges: []Edge{
			{From: "start", To: "sw"},
			{From: "sw", To: "end", Condition: "a"},
		},
	}
	r := f.Validate()
	if r.IsValid {
		t.Fatalf("expected missing default case to invalidate switch node")
	}
}
