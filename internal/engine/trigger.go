package engine

import (
	"regexp"
	"strings"
)

// TriggerKind selects how a Trigger's Pattern is matched (spec §4.E).
type TriggerKind string

const (
	TriggerKeyword TriggerKind = "keyword"
	TriggerRegex   TriggerKind = "regex"
	TriggerButton  TriggerKind = "button_payload"
	TriggerFallback TriggerKind = "fallback"
)

// Trigger binds one match predicate to the flow it starts (spec §4.E
// "ordered list of (predicate -> flow_id)").
type Trigger struct {
	Kind    TriggerKind
	Pattern string
	FlowID  string

	compiled *regexp.Regexp
}

// TriggerCatalog is an ordered, first-match-wins list of Triggers.
type TriggerCatalog struct {
	triggers []Trigger
}

// NewTriggerCatalog compiles regex triggers up front so Match never returns
// a compile error at request time.
func NewTriggerCatalog(triggers []Trigger) (*TriggerCatalog, error) {
	compiled := make([]Trigger, len(triggers))
	copy(compiled, triggers)
	for i := range compiled {
		if compiled[i].Kind == TriggerRegex {
			re, err := regexp.Compile(compiled[i].Pattern)
			if err != nil {
				return nil, err
			}
			compiled[i].compiled = re
		}
	}
	return &TriggerCatalog{triggers: compiled}, nil
}

const startFlowPayloadPrefix = "start_flow:"

// Match implements the Trigger catalog port (spec §6): first match wins.
// Returns the matched flow id, extracted trigger vars, and whether any
// trigger (including an explicit fallback) matched.
func (c *TriggerCatalog) Match(ev InboundEvent) (flowID string, triggerVars map[string]any, matched bool) {
	if ev.ButtonPayload != "" && strings.HasPrefix(ev.ButtonPayload, startFlowPayloadPrefix) {
		return strings.TrimPrefix(ev.ButtonPayload, startFlowPayloadPrefix), map[string]any{}, true
	}
	for _, t := range c.triggers {
		switch t.Kind {
		case TriggerKeyword:
			if strings.Contains(strings.ToLower(ev.Text), strings.ToLower(t.Pattern)) {
				return t.FlowID, map[string]any{"trigger_keyword": t.Pattern}, true
			}
		case TriggerRegex:
			if t.compiled != nil && t.compiled.MatchString(ev.Text) {
				vars := map[string]any{}
				for i, name := range t.compiled.SubexpNames() {
					if i == 0 || name == "" {
						continue
					}
					if m := t.compiled.FindStringSubmatch(ev.Text); m != nil && i < len(m) {
						vars[name] = m[i]
					}
				}
				return t.FlowID, vars, true
			}
		case TriggerButton:
			if ev.ButtonPayload == t.Pattern {
				return t.FlowID, map[string]any{}, true
			}
		case TriggerFallback:
			return t.FlowID, map[string]any{}, true
		}
	}
	return "", nil, false
}
