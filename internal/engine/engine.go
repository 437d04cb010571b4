package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pytake/flowbroker/internal/channel"
	"github.com/pytake/flowbroker/internal/flow"
	"github.com/pytake/flowbroker/internal/flowerrors"
	"github.com/pytake/flowbroker/internal/session"
)

// EventSink is the engine's narrow view of the outbound event bus (spec
// §4.F): it never depends on the bus's internal fairness/backpressure
// machinery, only on being able to enqueue one event.
type EventSink interface {
	Publish(ctx context.Context, tenantID, eventType string, data map[string]any) error
}

// ConflictPolicy decides what happens when start_flow is requested for a
// contact that already has a non-terminal session (open question, resolved
// in SPEC_FULL F6).
type ConflictPolicy string

const (
	// ConflictDeliverToExisting refuses the new start_flow; the existing
	// session keeps running. This is the safe default: a tenant never
	// loses in-flight state just because a second trigger matched.
	ConflictDeliverToExisting ConflictPolicy = "deliver_to_existing"
	// ConflictSupersede cancels the existing session and starts fresh.
	ConflictSupersede ConflictPolicy = "supersede"
)

// Engine drives flow execution (spec §4.D). One Engine serves every tenant;
// fairness across sessions comes from the per-session lock plus the
// mandatory yield between node executions, not from per-tenant engine
// instances.
type Engine struct {
	Flows    *flow.Registry
	Store    session.Store
	Channel  channel.ChannelAdapter
	Action   channel.ActionAdapter
	Events   EventSink
	Log      *slog.Logger
	Conflict ConflictPolicy

	eventTokensMu sync.Mutex
	eventTokens   map[string]string // event_token -> session_id
}

// New constructs an Engine. Action and Events may be nil; Channel must not be.
// Conflict defaults to ConflictDeliverToExisting; override Engine.Conflict
// directly to change it.
func New(flows *flow.Registry, store session.Store, ch channel.ChannelAdapter, action channel.ActionAdapter, events EventSink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Flows:       flows,
		Store:       store,
		Channel:     ch,
		Action:      action,
		Events:      events,
		Log:         log,
		Conflict:    ConflictDeliverToExisting,
		eventTokens: make(map[string]string),
	}
}

func (e *Engine) flowOf(s *session.Session) *flow.Flow {
	f, _ := e.Flows.Get(s.FlowID)
	return f
}

func (e *Engine) registerEventToken(token, sessionID string) {
	if token == "" {
		return
	}
	e.eventTokensMu.Lock()
	e.eventTokens[token] = sessionID
	e.eventTokensMu.Unlock()
}

// DeliverEvent resumes the session parked on token, if any (spec §4.C Wait
// external_event). vars are merged into the session before the drive loop
// resumes.
func (e *Engine) DeliverEvent(ctx context.Context, token string, payload map[string]any) error {
	e.eventTokensMu.Lock()
	sessionID, ok := e.eventTokens[token]
	if ok {
		delete(e.eventTokens, token)
	}
	e.eventTokensMu.Unlock()
	if !ok {
		return flowerrors.New(flowerrors.KindInput, fmt.Sprintf("no session waiting on event token %q", token))
	}
	_, err := e.resumeInternal(ctx, sessionID, &Input{Kind: "event"}, payload)
	return err
}

// StartFlow constructs a fresh session at flowID's Start node for contactID
// and enters the drive loop (spec §4.D start_flow).
func (e *Engine) StartFlow(ctx context.Context, tenantID, flowID, contactID, conversationID string, triggerVars map[string]any) (*session.Session, error) {
	f, err := e.Flows.MustGet(flowID)
	if err != nil {
		return nil, flowerrors.Wrap(flowerrors.KindConfiguration, "start_flow", err)
	}
	if existing, err := e.Store.GetActiveByContact(ctx, tenantID, contactID); err == nil {
		if e.Conflict != ConflictSupersede {
			return nil, flowerrors.New(flowerrors.KindConfiguration, fmt.Sprintf("contact %s already has an active session %s", contactID, existing.ID))
		}
		baseline := existing.LastActivityAt
		existing.Status = session.StatusCancelled
		if err := e.Store.Put(ctx, existing, &baseline); err != nil {
			return nil, flowerrors.Wrap(flowerrors.KindTransientExternal, "supersede active session", err)
		}
		if e.Events != nil {
			_ = e.Events.Publish(ctx, tenantID, "session.superseded", map[string]any{"session_id": existing.ID, "contact_id": contactID})
		}
	} else if err != session.ErrNotFound {
		return nil, flowerrors.Wrap(flowerrors.KindTransientExternal, "check active session", err)
	}

	start, ok := f.StartNode()
	if !ok {
		return nil, flowerrors.New(flowerrors.KindConfiguration, fmt.Sprintf("flow %s has no start node", flowID))
	}

	s := session.New(uuid.NewString(), flowID, tenantID, contactID, conversationID, start.ID, time.Duration(f.Settings.TimeoutMinutes)*time.Minute, triggerVars)
	if err := e.Store.Put(ctx, s, nil); err != nil {
		return nil, flowerrors.Wrap(flowerrors.KindTransientExternal, "persist new session", err)
	}
	if e.Events != nil {
		_ = e.Events.Publish(ctx, tenantID, "session.started", map[string]any{"session_id": s.ID, "flow_id": flowID, "contact_id": contactID})
	}

	if err := e.drive(ctx, s, nil); err != nil {
		return s, err
	}
	return s, nil
}

// Resume feeds input into a parked session and re-enters the drive loop
// (spec §4.D resume).
func (e *Engine) Resume(ctx context.Context, sessionID string, input Input) (*session.Session, error) {
	return e.resumeInternal(ctx, sessionID, &input, nil)
}

func (e *Engine) resumeInternal(ctx context.Context, sessionID string, input *Input, mergeVars map[string]any) (*session.Session, error) {
	held, err := session.WithLock(ctx, e.Store, sessionID, session.MaxLockTTL, func(ctx context.Context) error {
		s, err := e.Store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Status != session.StatusWaitingForInput {
			return flowerrors.New(flowerrors.KindInput, fmt.Sprintf("session %s is not waiting for input (status=%s)", sessionID, s.Status))
		}
		for k, v := range mergeVars {
			s.Variables[k] = v
		}
		return e.drive(ctx, s, input)
	})
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, flowerrors.New(flowerrors.KindCapacity, fmt.Sprintf("session %s is locked by another worker", sessionID))
	}
	return e.Store.Get(ctx, sessionID)
}

// drive is the iterative loop (spec §4.D invariant 4): while the current
// node returns Continue, advance and re-execute; on Wait, persist and
// return; on a terminal outcome, persist and optionally chain the next
// flow. It MUST NOT recurse per node (spec §9): the for loop plus a
// bounded execution_path are what keep one runaway flow from starving
// others, alongside the scheduling yield below.
func (e *Engine) drive(ctx context.Context, s *session.Session, input *Input) error {
	f := e.flowOf(s)
	if f == nil {
		return flowerrors.New(flowerrors.KindConfiguration, fmt.Sprintf("unknown flow %s referenced by session %s", s.FlowID, s.ID))
	}

	for {
		if s.IsExpired(time.Now()) {
			s.Status = session.StatusTimeout
			return e.finish(ctx, s, "")
		}

		n, ok := f.NodeByID(s.CurrentNodeID)
		if !ok {
			return flowerrors.New(flowerrors.KindInternalConsistency, fmt.Sprintf("session %s references missing node %s", s.ID, s.CurrentNodeID))
		}

		result, err := e.execute(ctx, s, n, input)
		input = nil // only the first step of a resume consumes the inbound input
		if err != nil {
			s.Status = session.StatusFailed
			s.Context["error"] = err.Error()
			return e.finish(ctx, s, "")
		}

		switch result.Outcome {
		case OutcomeContinue:
			if exceeded := s.AppendNode(result.NextNodeID, f.Settings.MaxIterations); exceeded {
				s.Status = session.StatusFailed
				s.Context["error"] = "InfiniteLoop"
				return e.finish(ctx, s, "")
			}
			s.Touch(time.Duration(f.Settings.TimeoutMinutes) * time.Minute)
			// Yield between node executions so a long flow can't starve
			// concurrent sessions (spec §5 suspension points).
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		case OutcomeWait:
			s.Status = session.StatusWaitingForInput
			s.Touch(time.Duration(f.Settings.TimeoutMinutes) * time.Minute)
			return e.persist(ctx, s)
		case OutcomeInputRejected:
			return e.persist(ctx, s)
		case OutcomeComplete:
			s.Status = session.StatusCompleted
			return e.finish(ctx, s, result.NextFlowID)
		case OutcomeFail:
			s.Status = session.StatusFailed
			s.Context["error"] = result.Reason
			return e.finish(ctx, s, "")
		default:
			return flowerrors.New(flowerrors.KindInternalConsistency, fmt.Sprintf("unknown outcome %q", result.Outcome))
		}
	}
}

func (e *Engine) persist(ctx context.Context, s *session.Session) error {
	if err := e.Store.Put(ctx, s, nil); err != nil {
		return flowerrors.Wrap(flowerrors.KindInternalConsistency, "persist session", err)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, s *session.Session, nextFlowID string) error {
	if err := e.persist(ctx, s); err != nil {
		return err
	}
	eventType := "session.completed"
	if s.Status == session.StatusFailed || s.Status == session.StatusTimeout {
		eventType = "session.failed"
	}
	if e.Events != nil {
		_ = e.Events.Publish(ctx, s.TenantID, eventType, map[string]any{
			"session_id": s.ID, "flow_id": s.FlowID, "status": string(s.Status),
		})
	}
	if nextFlowID != "" && s.Status == session.StatusCompleted {
		if _, err := e.StartFlow(ctx, s.TenantID, nextFlowID, s.ContactID, s.ConversationID, s.Variables); err != nil {
			e.Log.Error("chained flow failed to start", "flow_id", nextFlowID, "contact_id", s.ContactID, "error", err)
		}
	}
	return nil
}

// ResumeDue scans active sessions parked on a due fixed_delay or predicate
// Wait (tracked via Context["wait_due_at"]) and resumes each, for the
// retry worker's ~5s tick to drive (spec §4.H).
func (e *Engine) ResumeDue(ctx context.Context) (int, error) {
	active, err := e.Store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	resumed := 0
	for _, s := range active {
		raw, ok := s.Context["wait_due_at"].(string)
		if !ok {
			continue
		}
		due, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || now.Before(due) {
			continue
		}
		if _, err := e.resumeInternal(ctx, s.ID, &Input{Kind: "timer"}, nil); err != nil {
			e.Log.Warn("resume due session failed", "session_id", s.ID, "error", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}
