package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pytake/flowbroker/internal/channel"
	"github.com/pytake/flowbroker/internal/flow"
	"github.com/pytake/flowbroker/internal/flowerrors"
	"github.com/pytake/flowbroker/internal/session"
	"github.com/pytake/flowbroker/internal/vars"
)

const defaultMaxQuestionRetries = 3

func retryKey(nodeID string) string { return "retries:" + nodeID }

// execute dispatches a single node by kind (spec §4.C). input is nil on a
// fresh Continue into the node; non-nil when resuming a node that
// previously returned Wait.
func (e *Engine) execute(ctx context.Context, s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	switch n.Kind {
	case flow.KindStart:
		return e.execStart(s, n)
	case flow.KindMessage:
		return e.execMessage(ctx, s, n)
	case flow.KindQuestion:
		return e.execQuestion(ctx, s, n, input)
	case flow.KindButtons:
		return e.execButtons(ctx, s, n, input)
	case flow.KindList:
		return e.execList(ctx, s, n, input)
	case flow.KindCondition:
		return e.execCondition(s, n)
	case flow.KindSwitch:
		return e.execSwitch(s, n)
	case flow.KindAction:
		return e.execAction(ctx, s, n)
	case flow.KindIntegration:
		return e.execIntegration(ctx, s, n)
	case flow.KindWait:
		return e.execWait(ctx, s, n, input)
	case flow.KindTemplate:
		return e.execTemplate(ctx, s, n)
	case flow.KindEnd:
		return e.execEnd(s, n)
	default:
		return ExecutionResult{}, flowerrors.New(flowerrors.KindInternalConsistency, fmt.Sprintf("unknown node kind %q", n.Kind))
	}
}

func (e *Engine) execStart(s *session.Session, n *flow.Node) (ExecutionResult, error) {
	edges := e.flowOf(s).OutgoingEdges(n.ID)
	if len(edges) == 0 {
		return fail("start node has no outgoing edge"), nil
	}
	return cont(edges[0].To), nil
}

func (e *Engine) sendWithRetry(ctx context.Context, attempts int, send func(context.Context) (string, error)) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		id, err := send(ctx)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return "", flowerrors.Wrap(flowerrors.KindTransientExternal, "channel send failed after retries", lastErr)
}

func (e *Engine) execMessage(ctx context.Context, s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.Message
	text := vars.Render(cfg.Text, s.Variables)
	attempts := e.flowOf(s).Settings.RetryAttempts

	var err error
	if cfg.MediaKind != "" {
		_, err = e.sendWithRetry(ctx, attempts, func(ctx context.Context) (string, error) {
			return e.Channel.SendMedia(ctx, s.ConversationID, cfg.MediaKind, vars.Render(cfg.MediaURL, s.Variables), text)
		})
	} else {
		_, err = e.sendWithRetry(ctx, attempts, func(ctx context.Context) (string, error) {
			return e.Channel.SendText(ctx, s.ConversationID, text)
		})
	}
	if err != nil {
		return ExecutionResult{}, err
	}
	if cfg.PostSendDelay > 0 {
		select {
		case <-time.After(time.Duration(cfg.PostSendDelay) * time.Second):
		case <-ctx.Done():
			return ExecutionResult{}, ctx.Err()
		}
	}
	return cont(e.nextOrEdge(s, n, cfg.Next)), nil
}

func (e *Engine) execQuestion(ctx context.Context, s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	cfg := n.Question
	if input == nil {
		attempts := e.flowOf(s).Settings.RetryAttempts
		_, err := e.sendWithRetry(ctx, attempts, func(ctx context.Context) (string, error) {
			return e.Channel.SendText(ctx, s.ConversationID, vars.Render(cfg.Prompt, s.Variables))
		})
		if err != nil {
			return ExecutionResult{}, err
		}
		return wait(), nil
	}

	if reason := vars.Validate(input.Text, vars.ParseRules(cfg.Validation)); reason != "" {
		return e.rejectOrFail(ctx, s, n, cfg.MaxRetries, cfg.RetryMessage, reason)
	}
	if cfg.BindToVariable != "" {
		s.Variables[cfg.BindToVariable] = input.Text
	}
	delete(s.Context, retryKey(n.ID))
	return cont(e.nextOrEdge(s, n, cfg.Next)), nil
}

// rejectOrFail implements the bounded re-prompt loop shared by Question and
// any other validated-input node (spec §4.C InputRejected handling).
func (e *Engine) rejectOrFail(ctx context.Context, s *session.Session, n *flow.Node, maxRetries int, retryMessage, reason string) (ExecutionResult, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxQuestionRetries
	}
	count, _ := s.Context[retryKey(n.ID)].(float64)
	count++
	s.Context[retryKey(n.ID)] = count
	if int(count) > maxRetries {
		delete(s.Context, retryKey(n.ID))
		if fb := e.flowOf(s).Settings.FallbackNode; fb != "" {
			return cont(fb), nil
		}
		return fail(fmt.Sprintf("input validation exhausted retries: %s", reason)), nil
	}
	if retryMessage != "" {
		_, _ = e.Channel.SendText(ctx, s.ConversationID, vars.Render(retryMessage, s.Variables))
	}
	return inputRejected(reason), nil
}

func (e *Engine) execButtons(ctx context.Context, s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	cfg := n.Buttons
	if input == nil {
		buttons := make([]channel.Button, 0, len(cfg.Buttons))
		for _, b := range cfg.Buttons {
			buttons = append(buttons, channel.Button{ID: b.ID, Label: b.Label})
		}
		if _, err := e.Channel.SendButtons(ctx, s.ConversationID, vars.Render(cfg.Message, s.Variables), buttons); err != nil {
			return ExecutionResult{}, flowerrors.Wrap(flowerrors.KindTransientExternal, "send buttons", err)
		}
		return wait(), nil
	}
	return e.resolveSelection(s, n, input)
}

func (e *Engine) execList(ctx context.Context, s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	cfg := n.List
	if input == nil {
		sections := make([]channel.ListSection, 0, len(cfg.Sections))
		for _, sec := range cfg.Sections {
			rows := make([]channel.ListRow, 0, len(sec.Rows))
			for _, r := range sec.Rows {
				rows = append(rows, channel.ListRow{ID: r.ID, Title: r.Title, Description: r.Description})
			}
			sections = append(sections, channel.ListSection{Title: sec.Title, Rows: rows})
		}
		if _, err := e.Channel.SendList(ctx, s.ConversationID, vars.Render(cfg.Header, s.Variables), vars.Render(cfg.Body, s.Variables), cfg.Footer, sections); err != nil {
			return ExecutionResult{}, flowerrors.Wrap(flowerrors.KindTransientExternal, "send list", err)
		}
		return wait(), nil
	}
	return e.resolveSelection(s, n, input)
}

// resolveSelection binds the inbound selection_id to selected_option and
// advances along the edge whose Condition matches it, or "default"
// (spec §4.C Buttons/List).
func (e *Engine) resolveSelection(s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	s.Variables["selected_option"] = input.SelectionID
	edges := e.flowOf(s).OutgoingEdges(n.ID)
	var fallback string
	for _, edge := range edges {
		if edge.Condition == input.SelectionID {
			return cont(edge.To), nil
		}
		if edge.Condition == "default" {
			fallback = edge.To
		}
	}
	if fallback != "" {
		return cont(fallback), nil
	}
	return fail(fmt.Sprintf("no edge matches selection %q and no default", input.SelectionID)), nil
}

func (e *Engine) execCondition(s *session.Session, n *flow.Node) (ExecutionResult, error) {
	ok, err := vars.EvaluateAll(n.Condition.Clauses, n.Condition.Logical, s.Variables)
	if err != nil {
		return ExecutionResult{}, flowerrors.Wrap(flowerrors.KindInput, "evaluate condition", err)
	}
	label := "false"
	if ok {
		label = "true"
	}
	for _, edge := range e.flowOf(s).OutgoingEdges(n.ID) {
		if edge.Condition == label {
			return cont(edge.To), nil
		}
	}
	return fail(fmt.Sprintf("condition node missing %q branch", label)), nil
}

func (e *Engine) execSwitch(s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.Switch
	key := vars.Render(cfg.Expression, s.Variables)
	if target, ok := cfg.Cases[key]; ok {
		return cont(target), nil
	}
	if cfg.Default != "" {
		return cont(cfg.Default), nil
	}
	return fail(fmt.Sprintf("switch node: no case for %q and no default", key)), nil
}

func renderParams(params map[string]any, variables map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if str, ok := v.(string); ok {
			out[k] = vars.Render(str, variables)
			continue
		}
		out[k] = v
	}
	return out
}

func (e *Engine) followErrorPolicy(s *session.Session, n *flow.Node, policy flow.ErrorPolicy, next string, err error) (ExecutionResult, error) {
	if policy == "" {
		policy = e.flowOf(s).Settings.ErrorPolicy
	}
	switch policy {
	case flow.ErrorPolicyContinueToNext:
		return cont(e.nextOrEdge(s, n, next)), nil
	case flow.ErrorPolicyRetryNode:
		return cont(n.ID), nil
	case flow.ErrorPolicyFallbackToHuman:
		if e.Events != nil {
			_ = e.Events.Publish(context.Background(), s.TenantID, "action.failed", map[string]any{
				"session_id": s.ID, "node_id": n.ID, "reason": err.Error(), "transfer": true,
			})
		}
		return complete(""), nil
	default: // ErrorPolicyStop
		return fail(err.Error()), nil
	}
}

func (e *Engine) execAction(ctx context.Context, s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.Action
	if e.Action == nil {
		return ExecutionResult{}, flowerrors.New(flowerrors.KindConfiguration, "no ActionAdapter configured")
	}
	result, err := e.Action.Run(ctx, string(cfg.Kind), renderParams(cfg.Parameters, s.Variables))
	if err != nil {
		if e.Events != nil {
			_ = e.Events.Publish(ctx, s.TenantID, "action.failed", map[string]any{"session_id": s.ID, "node_id": n.ID, "kind": cfg.Kind, "error": err.Error()})
		}
		return e.followErrorPolicy(s, n, cfg.ErrorPolicy, cfg.Next, err)
	}
	if cfg.BindResultTo != "" {
		s.Variables[cfg.BindResultTo] = result.Body
	}
	return cont(e.nextOrEdge(s, n, cfg.Next)), nil
}

func (e *Engine) execIntegration(ctx context.Context, s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.Integration
	if e.Action == nil {
		return ExecutionResult{}, flowerrors.New(flowerrors.KindConfiguration, "no ActionAdapter configured")
	}
	params := map[string]any{
		"url":    vars.Render(cfg.URLTemplate, s.Variables),
		"method": cfg.Method,
		"body":   vars.Render(cfg.BodyTemplate, s.Variables),
	}
	if len(cfg.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			headers[k] = vars.Render(v, s.Variables)
		}
		params["headers"] = headers
	}
	result, err := e.Action.Run(ctx, "http_request", params)
	if err != nil {
		if e.Events != nil {
			_ = e.Events.Publish(ctx, s.TenantID, "action.failed", map[string]any{"session_id": s.ID, "node_id": n.ID, "error": err.Error()})
		}
		return e.followErrorPolicy(s, n, cfg.ErrorPolicy, cfg.Next, err)
	}
	for pointer, dest := range cfg.ResponseMapping {
		s.Variables[dest] = lookupPointer(result.Body, pointer)
	}
	return cont(e.nextOrEdge(s, n, cfg.Next)), nil
}

// lookupPointer resolves a dotted JSON-pointer-ish path ("data.id") against
// a decoded response body (spec §4.C Integration response_mapping).
func lookupPointer(body map[string]any, pointer string) any {
	cur := any(body)
	for _, part := range splitDot(pointer) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func (e *Engine) execWait(ctx context.Context, s *session.Session, n *flow.Node, input *Input) (ExecutionResult, error) {
	cfg := n.Wait
	switch cfg.Mode {
	case flow.WaitFixedDelay:
		if input != nil {
			delete(s.Context, "wait_due_at")
			return cont(e.nextOrEdge(s, n, cfg.Next)), nil
		}
		s.Context["wait_due_at"] = time.Now().Add(time.Duration(cfg.DelaySeconds) * time.Second).Format(time.RFC3339Nano)
		return wait(), nil
	case flow.WaitUserInput:
		if input == nil {
			return wait(), nil
		}
		return cont(e.nextOrEdge(s, n, cfg.Next)), nil
	case flow.WaitExternalEvent:
		if input != nil {
			return cont(e.nextOrEdge(s, n, cfg.Next)), nil
		}
		e.registerEventToken(cfg.EventToken, s.ID)
		s.Context["event_token"] = cfg.EventToken
		return wait(), nil
	case flow.WaitPredicate:
		ok, err := vars.EvaluateAll(cfg.Predicate.Clauses, cfg.Predicate.Logical, s.Variables)
		if err != nil {
			return ExecutionResult{}, flowerrors.Wrap(flowerrors.KindInput, "evaluate wait predicate", err)
		}
		if ok {
			delete(s.Context, "wait_due_at")
			delete(s.Context, "poll_interval_ms")
			return cont(e.nextOrEdge(s, n, cfg.Next)), nil
		}
		interval, _ := s.Context["poll_interval_ms"].(float64)
		if interval <= 0 {
			interval = float64(cfg.PollIntervalMs)
			if interval <= 0 {
				interval = 1000
			}
		} else {
			interval = interval * 2 // exponential back-off (spec §4.C)
		}
		s.Context["poll_interval_ms"] = interval
		s.Context["wait_due_at"] = time.Now().Add(time.Duration(interval) * time.Millisecond).Format(time.RFC3339Nano)
		return wait(), nil
	default:
		return ExecutionResult{}, flowerrors.New(flowerrors.KindConfiguration, fmt.Sprintf("unknown wait mode %q", cfg.Mode))
	}
}

func (e *Engine) execTemplate(ctx context.Context, s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.Template
	params := make([]string, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		params = append(params, vars.Render(p, s.Variables))
	}
	attempts := e.flowOf(s).Settings.RetryAttempts
	_, err := e.sendWithRetry(ctx, attempts, func(ctx context.Context) (string, error) {
		return e.Channel.SendTemplate(ctx, s.ConversationID, cfg.Name, cfg.Language, params)
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	return cont(e.nextOrEdge(s, n, cfg.Next)), nil
}

func (e *Engine) execEnd(s *session.Session, n *flow.Node) (ExecutionResult, error) {
	cfg := n.End
	if !cfg.Success {
		return fail(cfg.Message), nil
	}
	return complete(cfg.NextFlow), nil
}

// nextOrEdge prefers an explicit Next field (most node kinds carry one for
// the linear case) and falls back to the single outgoing edge.
func (e *Engine) nextOrEdge(s *session.Session, n *flow.Node, next string) string {
	if next != "" {
		return next
	}
	if edges := e.flowOf(s).OutgoingEdges(n.ID); len(edges) > 0 {
		return edges[0].To
	}
	return ""
}
