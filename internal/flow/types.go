// Package flow defines flow graphs: the author-defined conversation
// structures the engine interprets (spec §3).
package flow

import "github.com/pytake/flowbroker/internal/vars"

// Kind tags the variant a Node carries.
type Kind string

const (
	KindStart       Kind = "start"
	KindMessage     Kind = "message"
	KindQuestion    Kind = "question"
	KindButtons     Kind = "buttons"
	KindList        Kind = "list"
	KindCondition   Kind = "condition"
	KindSwitch      Kind = "switch"
	KindAction      Kind = "action"
	KindIntegration Kind = "integration"
	KindWait        Kind = "wait"
	KindTemplate    Kind = "template"
	KindEnd         Kind = "end"
)

// ErrorPolicy selects the follow-up when an Action/Integration node fails
// (spec §4.C).
type ErrorPolicy string

const (
	ErrorPolicyStop            ErrorPolicy = "stop"
	ErrorPolicyContinueToNext  ErrorPolicy = "continue_to_next"
	ErrorPolicyRetryNode       ErrorPolicy = "retry_node"
	ErrorPolicyFallbackToHuman ErrorPolicy = "fallback_to_human"
)

// MessageConfig backs a Message node.
type MessageConfig struct {
	Text          string `json:"text"`
	MediaKind     string `json:"mediaKind,omitempty"` // "", "image", "video", "audio", "document"
	MediaURL      string `json:"mediaUrl,omitempty"`
	PostSendDelay int    `json:"postSendDelay,omitempty"` // seconds
	Next          string `json:"next"`
}

// InputType constrains what a Question node accepts.
type InputType string

const (
	InputText   InputType = "text"
	InputNumber InputType = "number"
	InputDate   InputType = "date"
	InputEmail  InputType = "email"
)

// QuestionConfig backs a Question node.
type QuestionConfig struct {
	Prompt         string    `json:"prompt"`
	InputType      InputType `json:"inputType"`
	Validation     string    `json:"validation,omitempty"` // comma-separated rule spec, parsed by internal/vars
	BindToVariable string    `json:"bindToVariable"`
	TimeoutSeconds int       `json:"timeoutSeconds,omitempty"` // not read by the engine: a parked Question always uses the flow's session timeout
	RetryMessage   string    `json:"retryMessage,omitempty"`
	MaxRetries     int       `json:"maxRetries,omitempty"` // 0 = use flow default (3)
	Next           string    `json:"next"`
}

// Button is a single Buttons-node reply option.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ButtonsConfig backs a Buttons node. Up to 3 buttons (spec §3, §8).
type ButtonsConfig struct {
	Message string   `json:"message"`
	Buttons []Button `json:"buttons" validate:"max=3"`
}

// ListRow is one selectable row within a List section.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows under a header.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListConfig backs a List node. Sections -> rows, up to 10 rows total.
type ListConfig struct {
	Header   string        `json:"header,omitempty"`
	Body     string        `json:"body"`
	Footer   string        `json:"footer,omitempty"`
	Sections []ListSection `json:"sections"`
}

// ConditionConfig backs a Condition node.
type ConditionConfig struct {
	Clauses []vars.Clause  `json:"clauses"`
	Logical vars.LogicalOp `json:"logical,omitempty"`
}

// SwitchConfig backs a Switch node.
type SwitchConfig struct {
	Expression string            `json:"expression"` // may contain {{var}} substitution
	Cases      map[string]string `json:"cases"`       // case value -> target node id
	// Default is the mandatory fallback target (spec §4.C).
	Default string `json:"default"`
}

// ActionKind enumerates the side-effects an Action node can invoke.
type ActionKind string

const (
	ActionHTTPRequest ActionKind = "http_request"
	ActionDBQuery      ActionKind = "db_query"
	ActionSendEmail    ActionKind = "send_email"
	ActionCreateTicket ActionKind = "create_ticket"
	ActionCRMUpdate    ActionKind = "crm_update"
	ActionCallWebhook  ActionKind = "call_webhook"
	ActionRunScript    ActionKind = "run_script"
)

// ActionConfig backs an Action node.
type ActionConfig struct {
	Kind         ActionKind      `json:"kind"`
	Parameters   map[string]any  `json:"parameters,omitempty"`
	BindResultTo string          `json:"bindResultTo,omitempty"`
	ErrorPolicy  ErrorPolicy     `json:"errorPolicy,omitempty"`
	Next         string          `json:"next"`
}

// IntegrationConfig backs an Integration node: like Action but with
// explicit request templating and response mapping (spec §3).
type IntegrationConfig struct {
	Method          string            `json:"method"`
	URLTemplate     string            `json:"urlTemplate"`
	Headers         map[string]string `json:"headers,omitempty"`
	BodyTemplate    string            `json:"bodyTemplate,omitempty"`
	ResponseMapping map[string]string `json:"responseMapping,omitempty"` // response JSON-pointer-ish key -> variable name
	ErrorPolicy     ErrorPolicy       `json:"errorPolicy,omitempty"`
	Next            string            `json:"next"`
}

// WaitMode selects what a Wait node parks on.
type WaitMode string

const (
	WaitFixedDelay      WaitMode = "fixed_delay"
	WaitUserInput       WaitMode = "user_input"
	WaitExternalEvent   WaitMode = "external_event"
	WaitPredicate       WaitMode = "predicate"
)

// WaitConfig backs a Wait node.
type WaitConfig struct {
	Mode           WaitMode         `json:"mode"`
	DelaySeconds   int              `json:"delaySeconds,omitempty"`   // WaitFixedDelay
	EventToken     string           `json:"eventToken,omitempty"`     // WaitExternalEvent: token deposited into the store
	Predicate      *ConditionConfig `json:"predicate,omitempty"`      // WaitPredicate
	PollIntervalMs int              `json:"pollIntervalMs,omitempty"` // WaitPredicate initial poll interval
	Next           string           `json:"next"`
}

// TemplateConfig backs a Template node.
type TemplateConfig struct {
	Name       string   `json:"name"`
	Language   string   `json:"language"`
	Parameters []string `json:"parameters,omitempty"`
	Next       string   `json:"next"`
}

// EndConfig backs an End node.
type EndConfig struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	NextFlow string `json:"nextFlow,omitempty"`
}

// Node is a tagged variant over every node kind the core interprets
// (spec §3). Exactly one of the *Config fields matching Kind is set.
type Node struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

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

// Edge is a directed connection from one node to another, optionally
// labelled with a condition used by branching nodes to select a branch.
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Settings are flow-level execution parameters (spec §3).
type Settings struct {
	TimeoutMinutes int         `json:"timeoutMinutes"`
	MaxIterations  int         `json:"maxIterations"` // default 100, spec §4.C
	FallbackNode   string      `json:"fallbackNode,omitempty"`
	ErrorPolicy    ErrorPolicy `json:"errorPolicy,omitempty"`
	RetryAttempts  int         `json:"retryAttempts"` // engine's internal channel-send retry budget, spec §4.D
}

// DefaultSettings returns the spec's documented defaults.
func DefaultSettings() Settings {
	return Settings{
		TimeoutMinutes: 30,
		MaxIterations:  100,
		ErrorPolicy:    ErrorPolicyStop,
		RetryAttempts:  3,
	}
}

// Flow is a named, versioned graph (spec §3).
type Flow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	Published      bool           `json:"published"`
	Settings       Settings       `json:"settings"`
	Nodes          []Node         `json:"nodes"`
	Edges          []Edge         `json:"edges"`
	VariableSchema map[string]any `json:"variableSchema,omitempty"`

	// lastValidation caches the most recent Validate() result; Publish()
	// refuses to flip Published unless this reports IsValid.
	lastValidation *Report
}

// NodeByID returns the node with the given id, if any.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns every edge whose From matches nodeID.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// StartNode returns the flow's single Start node.
func (f *Flow) StartNode() (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].Kind == KindStart {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}
