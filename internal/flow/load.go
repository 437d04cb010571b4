package flow

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// wireNode is the JSON-on-the-wire shape of a Node: untyped parameters
// keyed by the node's kind, validated once at load time (spec §9 "model
// each node kind as a tagged variant with statically typed fields; parse
// once at flow load with explicit validation errors").
type wireNode struct {
	ID   string `json:"id" validate:"required"`
	Kind Kind   `json:"kind" validate:"required,oneof=start message question buttons list condition switch action integration wait template end"`

	Message     *MessageConfig     `json:"message,omitempty"`
	Question    *QuestionConfig    `json:"question,omitempty"`
	Buttons     *ButtonsConfig     `json:"buttons,omitempty"`
	List        *ListConfig        `json:"list,omitempty"`
	Condition   *ConditionConfig   `json:"condition,omitempty"`
	Switch      *SwitchConfig      `json:"switch,omitempty"`
	Action      *ActionConfig      `json:"action,omitempty"`
	Integration *IntegrationConfig `json:"integration,omitempty"`
	Wait        *WaitConfig        `json:"wait,omitempty"`
	Template    *TemplateConfig    `json:"template,omitempty"`
	End         *EndConfig         `json:"end,omitempty"`
}

type wireEdge struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Condition string `json:"condition,omitempty"`
}

type wireSettings struct {
	TimeoutMinutes int         `json:"timeoutMinutes"`
	MaxIterations  int         `json:"maxIterations"`
	FallbackNode   string      `json:"fallbackNode,omitempty"`
	ErrorPolicy    ErrorPolicy `json:"errorPolicy,omitempty"`
	RetryAttempts  int         `json:"retryAttempts"`
}

// wireFlow is the document `flowbroker flows validate <file>` (spec §6)
// parses: a flow author's JSON export of a graph.
type wireFlow struct {
	ID             string         `json:"id" validate:"required"`
	Name           string         `json:"name" validate:"required"`
	Version        int            `json:"version"`
	Settings       wireSettings   `json:"settings"`
	Nodes          []wireNode     `json:"nodes" validate:"required,min=1,dive"`
	Edges          []wireEdge     `json:"edges" validate:"dive"`
	VariableSchema map[string]any `json:"variableSchema,omitempty"`
}

var wireValidate = validator.New()

// ParseJSON decodes a flow definition from JSON, validating its structural
// shape (required fields, known node kinds) before handing back a *Flow.
// Business-rule validation (single start, no dead ends, cycle suspension,
// ...) is Flow.Validate()'s job, not this loader's; this only guarantees
// every node/edge the loader returns is well-formed enough to traverse.
func ParseJSON(data []byte) (*Flow, error) {
	var w wireFlow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("flow: parse json: %w", err)
	}
	if err := wireValidate.Struct(w); err != nil {
		return nil, fmt.Errorf("flow: invalid flow document: %w", err)
	}

	settings := w.Settings.toSettings()
	f := &Flow{
		ID:             w.ID,
		Name:           w.Name,
		Version:        w.Version,
		Settings:       settings,
		Edges:          make([]Edge, 0, len(w.Edges)),
		VariableSchema: w.VariableSchema,
	}
	for _, e := range w.Edges {
		f.Edges = append(f.Edges, Edge{From: e.From, To: e.To, Condition: e.Condition})
	}
	for _, n := range w.Nodes {
		node, err := n.toNode()
		if err != nil {
			return nil, fmt.Errorf("flow: node %q: %w", n.ID, err)
		}
		f.Nodes = append(f.Nodes, node)
	}
	return f, nil
}

func (s wireSettings) toSettings() Settings {
	out := DefaultSettings()
	if s.TimeoutMinutes > 0 {
		out.TimeoutMinutes = s.TimeoutMinutes
	}
	if s.MaxIterations > 0 {
		out.MaxIterations = s.MaxIterations
	}
	if s.FallbackNode != "" {
		out.FallbackNode = s.FallbackNode
	}
	if s.ErrorPolicy != "" {
		out.ErrorPolicy = s.ErrorPolicy
	}
	if s.RetryAttempts > 0 {
		out.RetryAttempts = s.RetryAttempts
	}
	return out
}

// toNode converts a wireNode into its typed Node, requiring the config
// object matching Kind to be present.
func (n wireNode) toNode() (Node, error) {
	out := Node{ID: n.ID, Kind: n.Kind}
	switch n.Kind {
	case KindStart:
		// Start carries no config; its single outgoing edge drives it.
	case KindMessage:
		if n.Message == nil {
			return out, fmt.Errorf("message node missing \"message\" config")
		}
		out.Message = n.Message
	case KindQuestion:
		if n.Question == nil {
			return out, fmt.Errorf("question node missing \"question\" config")
		}
		out.Question = n.Question
	case KindButtons:
		if n.Buttons == nil {
			return out, fmt.Errorf("buttons node missing \"buttons\" config")
		}
		out.Buttons = n.Buttons
	case KindList:
		if n.List == nil {
			return out, fmt.Errorf("list node missing \"list\" config")
		}
		out.List = n.List
	case KindCondition:
		if n.Condition == nil {
			return out, fmt.Errorf("condition node missing \"condition\" config")
		}
		out.Condition = n.Condition
	case KindSwitch:
		if n.Switch == nil {
			return out, fmt.Errorf("switch node missing \"switch\" config")
		}
		out.Switch = n.Switch
	case KindAction:
		if n.Action == nil {
			return out, fmt.Errorf("action node missing \"action\" config")
		}
		out.Action = n.Action
	case KindIntegration:
		if n.Integration == nil {
			return out, fmt.Errorf("integration node missing \"integration\" config")
		}
		out.Integration = n.Integration
	case KindWait:
		if n.Wait == nil {
			return out, fmt.Errorf("wait node missing \"wait\" config")
		}
		out.Wait = n.Wait
	case KindTemplate:
		if n.Template == nil {
			return out, fmt.Errorf("template node missing \"template\" config")
		}
		out.Template = n.Template
	case KindEnd:
		if n.End == nil {
			return out, fmt.Errorf("end node missing \"end\" config")
		}
		out.End = n.End
	default:
		return out, fmt.Errorf("unknown node kind %q", n.Kind)
	}
	return out, nil
}
