package engine

import (
	"context"
	"time"

	"github.com/pytake/flowbroker/internal/session"
)

// InboundEvent is the router's input (spec §6 inbound channel event).
type InboundEvent struct {
	TenantID       string
	ContactID      string
	ConversationID string
	Kind           string // "text", "interactive", "media", "template_button"
	Text           string
	SelectionID    string
	MediaRef       string
	ButtonPayload  string
	ReceivedAt     time.Time
}

// RouteOutcome tells the caller what the router did, for logging/metrics.
type RouteOutcome string

const (
	RouteResumed   RouteOutcome = "resumed"
	RouteStarted   RouteOutcome = "started"
	RouteNoMatch   RouteOutcome = "no_match"
)

// Router implements the Inbound Router (spec §4.E): resume an active
// waiting session, else consult the trigger catalog, else emit NoMatch.
type Router struct {
	Engine   *Engine
	Triggers *TriggerCatalog
}

func NewRouter(e *Engine, triggers *TriggerCatalog) *Router {
	return &Router{Engine: e, Triggers: triggers}
}

// Route dispatches one inbound event (spec §4.E). It never blocks on engine
// work longer than the caller's context budget; callers that need a hard
// step budget should pass a context.WithTimeout.
func (r *Router) Route(ctx context.Context, ev InboundEvent) (RouteOutcome, *session.Session, error) {
	active, err := r.Engine.Store.GetActiveByContact(ctx, ev.TenantID, ev.ContactID)
	if err == nil && active.Status == session.StatusWaitingForInput {
		s, err := r.Engine.Resume(ctx, active.ID, Input{
			Kind: ev.Kind, Text: ev.Text, SelectionID: ev.SelectionID,
			MediaRef: ev.MediaRef, ButtonPayload: ev.ButtonPayload,
		})
		return RouteResumed, s, err
	}

	flowID, triggerVars, matched := r.Triggers.Match(ev)
	if !matched {
		if r.Engine.Events != nil {
			_ = r.Engine.Events.Publish(ctx, ev.TenantID, "router.no_match", map[string]any{
				"contact_id": ev.ContactID, "text": ev.Text,
			})
		}
		return RouteNoMatch, nil, nil
	}

	s, err := r.Engine.StartFlow(ctx, ev.TenantID, flowID, ev.ContactID, ev.ConversationID, triggerVars)
	return RouteStarted, s, err
}
