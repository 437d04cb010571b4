package flow

import (
	"fmt"

	"github.com/pytake/flowbroker/internal/vars"
)

// Report is the outcome of a validation pass (spec §4.D).
type Report struct {
	Errors            []string
	Warnings          []string
	// PerformanceScore is an advisory heuristic in [0,100]; its formula can
	// vary without affecting correctness (spec §9 Open Questions).
	PerformanceScore int
	IsValid          bool
}

func (r *Report) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate runs the full validation pass described in spec §4.D and §3:
// exactly one Start, no orphans, no dead-ends, unique node ids, cycle
// detection (permitted only through a suspending node), and variable
// reference resolution. Must run on publish and may run on-demand.
func (f *Flow) Validate() *Report {
	r := &Report{IsValid: true}

	f.checkUniqueIDs(r)
	f.checkSingleStart(r)
	f.checkEdgesReferenceExistingNodes(r)
	f.checkDeadEnds(r)
	f.checkOrphans(r)
	f.checkCycles(r)
	f.checkVariableReferences(r)
	f.checkButtonsAndLists(r)
	f.checkSwitchDefault(r)

	r.IsValid = len(r.Errors) == 0
	r.PerformanceScore = f.performanceScore(r)
	f.lastValidation = r
	return r
}

// Publish marks the flow published, refusing to do so unless Validate()
// reports IsValid (spec §3: "A flow can only be marked published after a
// validation pass rejects dead-ends, orphan nodes, cycles without a
// bounded exit, and unresolved variable references").
func (f *Flow) Publish() (*Report, error) {
	report := f.Validate()
	if !report.IsValid {
		return report, fmt.Errorf("flow: cannot publish %q: %d validation error(s)", f.ID, len(report.Errors))
	}
	f.Published = true
	return report, nil
}

func (f *Flow) checkUniqueIDs(r *Report) {
	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if seen[n.ID] {
			r.addError("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
}

func (f *Flow) checkSingleStart(r *Report) {
	if len(f.Nodes) == 0 {
		r.addError("MissingStartNode: flow has no nodes")
		return
	}
	count := 0
	for _, n := range f.Nodes {
		if n.Kind == KindStart {
			count++
		}
	}
	switch {
	case count == 0:
		r.addError("MissingStartNode: no Start node")
	case count > 1:
		r.addError("exactly one Start node is required, found %d", count)
	}
}

func (f *Flow) checkEdgesReferenceExistingNodes(r *Report) {
	ids := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		ids[n.ID] = true
	}
	for _, e := range f.Edges {
		if !ids[e.From] {
			r.addError("edge references missing source node %q", e.From)
		}
		if !ids[e.To] {
			r.addError("edge references missing target node %q", e.To)
		}
	}
}

func (f *Flow) isTerminal(n *Node) bool {
	return n.Kind == KindEnd
}

// checkDeadEnds flags every non-End node with no outgoing edges. Branching
// nodes (Condition/Switch/Buttons/List) get no exemption: each needs at
// least one edge too.
func (f *Flow) checkDeadEnds(r *Report) {
	for _, n := range f.Nodes {
		if f.isTerminal(&n) {
			continue
		}
		if len(f.OutgoingEdges(n.ID)) == 0 {
			r.addError("dead-end: node %q (%s) has no outgoing edges", n.ID, n.Kind)
		}
	}
}

func (f *Flow) checkOrphans(r *Report) {
	start, ok := f.StartNode()
	if !ok {
		return // already reported by checkSingleStart
	}
	reachable := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range f.OutgoingEdges(id) {
			if !reachable[e.To] {
				reachable[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	for _, n := range f.Nodes {
		if !reachable[n.ID] {
			r.addError("orphan node %q: unreachable from Start", n.ID)
		}
	}
}

// suspends reports whether a node kind can park the session on input,
// letting an otherwise-unconditional cycle through it terminate safely
// (spec §4.D: "a cycle is permitted only when at least one node on it is a
// Question or Wait").
func suspends(n *Node) bool {
	if n.Kind == KindQuestion {
		return true
	}
	if n.Kind == KindWait {
		return true
	}
	if n.Kind == KindButtons || n.Kind == KindList {
		return true // these also park on Wait (spec §4.C)
	}
	return false
}

// checkCycles detects cycles via DFS and rejects any cycle with no
// suspending node on it.
func (f *Flow) checkCycles(r *Report) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(f.Nodes))
	for _, n := range f.Nodes {
		color[n.ID] = white
	}

	var stack []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, e := range f.OutgoingEdges(id) {
			switch color[e.To] {
			case white:
				if dfs(e.To) {
					return true
				}
			case gray:
				// found a cycle: walk back through stack to find it.
				cycleStart := -1
				for i, sid := range stack {
					if sid == e.To {
						cycleStart = i
						break
					}
				}
				cycle := stack[cycleStart:]
				hasSuspend := false
				for _, cid := range cycle {
					if node, ok := f.NodeByID(cid); ok && suspends(node) {
						hasSuspend = true
						break
					}
				}
				if !hasSuspend {
					r.addError("unconditional cycle without a suspending node: %v", cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, n := range f.Nodes {
		if color[n.ID] == white {
			dfs(n.ID)
		}
	}
}

// checkVariableReferences ensures every {{var}} reference (in Message,
// Question prompts, etc.) and every Condition/Switch variable is either
// declared in VariableSchema or bound by an earlier Question/Action/
// Integration node somewhere in the graph (spec §4.D).
func (f *Flow) checkVariableReferences(r *Report) {
	bound := map[string]bool{}
	for k := range f.VariableSchema {
		bound[k] = true
	}
	for _, n := range f.Nodes {
		switch n.Kind {
		case KindQuestion:
			if n.Question != nil && n.Question.BindToVariable != "" {
				bound[n.Question.BindToVariable] = true
			}
		case KindAction:
			if n.Action != nil && n.Action.BindResultTo != "" {
				bound[n.Action.BindResultTo] = true
			}
		case KindIntegration:
			if n.Integration != nil {
				for _, dest := range n.Integration.ResponseMapping {
					bound[dest] = true
				}
			}
		case KindButtons, KindList:
			bound["selected_option"] = true
		}
	}

	check := func(text string) {
		for _, missing := range vars.UnresolvedNames(text, toAnyMap(bound)) {
			r.addError("unresolved variable reference %q", missing)
		}
	}

	for _, n := range f.Nodes {
		switch n.Kind {
		case KindMessage:
			if n.Message != nil {
				check(n.Message.Text)
			}
		case KindQuestion:
			if n.Question != nil {
				check(n.Question.Prompt)
			}
		case KindButtons:
			if n.Buttons != nil {
				check(n.Buttons.Message)
			}
		case KindList:
			if n.List != nil {
				check(n.List.Body)
			}
		case KindCondition:
			if n.Condition != nil {
				for _, c := range n.Condition.Clauses {
					if c.Variable != "" && !bound[c.Variable] {
						r.addError("unresolved variable reference %q", c.Variable)
					}
				}
			}
		case KindSwitch:
			if n.Switch != nil {
				check(n.Switch.Expression)
			}
		case KindIntegration:
			if n.Integration != nil {
				check(n.Integration.URLTemplate)
				check(n.Integration.BodyTemplate)
			}
		}
	}
}

func toAnyMap(b map[string]bool) map[string]any {
	out := make(map[string]any, len(b))
	for k := range b {
		out[k] = true
	}
	return out
}

func (f *Flow) checkButtonsAndLists(r *Report) {
	for _, n := range f.Nodes {
		if n.Kind == KindButtons && n.Buttons != nil {
			if len(n.Buttons.Buttons) == 0 {
				r.addError("node %q: Buttons node has no buttons", n.ID)
			}
			if len(n.Buttons.Buttons) > 3 {
				r.addError("node %q: Buttons node has %d buttons, maximum is 3", n.ID, len(n.Buttons.Buttons))
			}
		}
		if n.Kind == KindList && n.List != nil {
			total := 0
			for _, s := range n.List.Sections {
				total += len(s.Rows)
			}
			if total > 10 {
				r.addError("node %q: List node has %d rows across sections, maximum is 10", n.ID, total)
			}
			if total == 0 {
				r.addError("node %q: List node has no rows", n.ID)
			}
		}
	}
}

func (f *Flow) checkSwitchDefault(r *Report) {
	for _, n := range f.Nodes {
		if n.Kind == KindSwitch && n.Switch != nil {
			if n.Switch.Default == "" {
				r.addError("node %q: Switch node missing mandatory default case", n.ID)
			}
		}
	}
}

// performanceScore is a non-normative heuristic: it penalizes large branch
// fan-out and Action/Integration nodes lacking an explicit error policy
// (which silently fall back to the flow default and are more likely to
// dead-letter unexpectedly).
func (f *Flow) performanceScore(r *Report) int {
	if !r.IsValid {
		return 0
	}
	score := 100
	for _, n := range f.Nodes {
		switch n.Kind {
		case KindAction:
			if n.Action != nil && n.Action.ErrorPolicy == "" {
				score -= 5
			}
		case KindIntegration:
			if n.Integration != nil && n.Integration.ErrorPolicy == "" {
				score -= 5
			}
		}
		if len(f.OutgoingEdges(n.ID)) > 5 {
			score -= 3
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
