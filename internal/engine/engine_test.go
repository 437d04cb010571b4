package engine

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pytake/flowbroker/internal/channel"
	"github.com/pytake/flowbroker/internal/flow"
	"github.com/pytake/flowbroker/internal/session"
)

type fakeChannel struct {
	sentText []string
}

func (f *fakeChannel) SendText(ctx context.Context, conversationID, text string) (string, error) {
	f.sentText = append(f.sentText, text)
	return "msg-" + conversationID, nil
}
func (f *fakeChannel) SendMedia(ctx context.Context, conversationID, kind, urlOrID, caption string) (string, error) {
	return "media-id", nil
}
func (f *fakeChannel) SendButtons(ctx context.Context, conversationID, body string, buttons []channel.Button) (string, error) {
	return "buttons-id", nil
}
func (f *fakeChannel) SendList(ctx context.Context, conversationID, header, body, footer string, sections []channel.ListSection) (string, error) {
	return "list-id", nil
}
func (f *fakeChannel) SendTemplate(ctx context.Context, conversationID, name, language string, params []string) (string, error) {
	return "template-id", nil
}
func (f *fakeChannel) MarkRead(ctx context.Context, conversationID, messageID string) error { return nil }

func newTestEngine(t *testing.T) (*Engine, *fakeChannel) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(rdb)
	reg := flow.NewRegistry()
	ch := &fakeChannel{}
	return New(reg, store, ch, nil, nil, nil), ch
}

func linearFlow() *flow.Flow {
	f := &flow.Flow{
		ID:       "linear",
		Settings: flow.DefaultSettings(),
		Nodes: []flow.Node{
			{ID: "start", Kind: flow.KindStart},
			{ID: "msg", Kind: flow.KindMessage, Message: &flow.MessageConfig{Text: "Hi {{name}}"}},
			{ID: "end", Kind: flow.KindEnd, End: &flow.EndConfig{Success: true}},
		},
		Edges: []flow.Edge{
			{From: "start", To: "msg"},
			{From: "msg", To: "end"},
		},
		VariableSchema: map[string]any{"name": ""},
	}
	f.Validate()
	return f
}

func TestS1StartLinearMessageFlow(t *testing.T) {
	e, ch := newTestEngine(t)
	e.Flows.Load(linearFlow())

	s, err := e.StartFlow(context.Background(), "tenant-a", "linear", "contact-1", "conv-1", map[string]any{"name": "Ana"})
	if err != nil {
		t.Fatalf("start flow: %v", err)
	}
	if len(ch.sentText) != 1 || ch.sentText[0] != "Hi Ana" {
		t.Fatalf("expected one send_text(\"Hi Ana\"), got %v", ch.sentText)
	}
	if s.Status != session.StatusCompleted {
		t.Fatalf("expected Completed, got %s", s.Status)
	}
	if len(s.ExecutionPath) != 3 {
		t.Fatalf("expected execution_path length 3, got %d (%v)", len(s.ExecutionPath), s.ExecutionPath)
	}
}

func questionFlow() *flow.Flow {
	f := &flow.Flow{
		ID:       "question",
		Settings: flow.DefaultSettings(),
		Nodes: []flow.Node{
			{ID: "start", Kind: flow.KindStart},
			{ID: "ask", Kind: flow.KindQuestion, Question: &flow.QuestionConfig{
				Prompt: "Email?", Validation: "email", BindToVariable: "email",
				RetryMessage: "Please enter a valid email", MaxRetries: 3, Next: "thanks",
			}},
			{ID: "thanks", Kind: flow.KindMessage, Message: &flow.MessageConfig{Text: "Thanks {{email}}"}},
			{ID: "end", Kind: flow.KindEnd, End: &flow.EndConfig{Success: true}},
		},
		Edges: []flow.Edge{
			{From: "start", To: "ask"},
			{From: "ask", To: "thanks"},
			{From: "thanks", To: "end"},
		},
	}
	f.Validate()
	return f
}

func TestS2QuestionValidationOneRetry(t *testing.T) {
	e, ch := newTestEngine(t)
	e.Flows.Load(questionFlow())

	s, err := e.StartFlow(context.Background(), "tenant-a", "question", "contact-2", "conv-2", nil)
	if err != nil {
		t.Fatalf("start flow: %v", err)
	}
	if s.Status != session.StatusWaitingForInput {
		t.Fatalf("expected WaitingForInput, got %s", s.Status)
	}

	s, err = e.Resume(context.Background(), s.ID, Input{Kind: "text", Text: "not-an-email"})
	if err != nil {
		t.Fatalf("resume with invalid email: %v", err)
	}
	if s.Status != session.StatusWaitingForInput {
		t.Fatalf("expected still WaitingForInput after invalid input, got %s", s.Status)
	}
	if len(ch.sentText) != 2 || ch.sentText[1] != "Please enter a valid email" {
		t.Fatalf("expected retry message sent, got %v", ch.sentText)
	}

	s, err = e.Resume(context.Background(), s.ID, Input{Kind: "text", Text: "a@b.co"})
	if err != nil {
		t.Fatalf("resume with valid email: %v", err)
	}
	if s.Variables["email"] != "a@b.co" {
		t.Fatalf("expected email bound, got %v", s.Variables["email"])
	}
	if len(ch.sentText) != 3 || ch.sentText[2] != "Thanks a@b.co" {
		t.Fatalf("expected final send_text(\"Thanks a@b.co\"), got %v", ch.sentText)
	}
	if s.Status != session.StatusCompleted {
		t.Fatalf("expected Completed, got %s", s.Status)
	}
}

func buttonsFlow() *flow.Flow {
	f := &flow.Flow{
		ID:       "buttons",
		Settings: flow.DefaultSettings(),
		Nodes: []flow.Node{
			{ID: "start", Kind: flow.KindStart},
			{ID: "pick", Kind: flow.KindButtons, Buttons: &flow.ButtonsConfig{
				Message: "Pick", Buttons: []flow.Button{{ID: "y", Label: "Yes"}, {ID: "n", Label: "No"}},
			}},
			{ID: "yes_node", Kind: flow.KindEnd, End: &flow.EndConfig{Success: true, Message: "yes"}},
			{ID: "no_node", Kind: flow.KindEnd, End: &flow.EndConfig{Success: true, Message: "no"}},
		},
		Edges: []flow.Edge{
			{From: "start", To: "pick"},
			{From: "pick", To: "yes_node", Condition: "y"},
			{From: "pick", To: "no_node", Condition: "n"},
		},
	}
	f.Validate()
	return f
}

func TestS3ButtonsRoutesOnSelection(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Flows.Load(buttonsFlow())

	s, err := e.StartFlow(context.Background(), "tenant-a", "buttons", "contact-3", "conv-3", nil)
	if err != nil {
		t.Fatalf("start flow: %v", err)
	}
	if s.Status != session.StatusWaitingForInput {
		t.Fatalf("expected WaitingForInput, got %s", s.Status)
	}

	s, err = e.Resume(context.Background(), s.ID, Input{Kind: "interactive", SelectionID: "y"})
	if err != nil {
		t.Fatalf("resume with selection: %v", err)
	}
	if s.Variables["selected_option"] != "y" {
		t.Fatalf("expected selected_option=y, got %v", s.Variables["selected_option"])
	}
	if s.ExecutionPath[len(s.ExecutionPath)-1] != "yes_node" {
		t.Fatalf("expected final node yes_node, got %s", s.ExecutionPath[len(s.ExecutionPath)-1])
	}
}

func TestStartFlowRefusesWhenActiveSessionExists(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Flows.Load(questionFlow())

	if _, err := e.StartFlow(context.Background(), "tenant-a", "question", "contact-4", "conv-4", nil); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := e.StartFlow(context.Background(), "tenant-a", "question", "contact-4", "conv-4", nil); err == nil {
		t.Fatalf("expected second start_flow for same contact to be refused")
	}
}

func TestStartFlowSupersedesActiveSessionWhenConfigured(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Flows.Load(questionFlow())
	e.Conflict = ConflictSupersede

	first, err := e.StartFlow(context.Background(), "tenant-a", "question", "contact-5", "conv-5", nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := e.StartFlow(context.Background(), "tenant-a", "question", "contact-5", "conv-5", nil)
	if err != nil {
		t.Fatalf("second start under supersede policy: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh session, got the same id back")
	}

	cancelled, err := e.Store.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get superseded session: %v", err)
	}
	if cancelled.Status != session.StatusCancelled {
		t.Fatalf("expected superseded session to be cancelled, got %s", cancelled.Status)
	}
}

func TestRouterResumesWaitingSessionThenStartsOnTrigger(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Flows.Load(questionFlow())
	catalog, err := NewTriggerCatalog([]Trigger{{Kind: TriggerKeyword, Pattern: "hello", FlowID: "question"}})
	if err != nil {
		t.Fatalf("new trigger catalog: %v", err)
	}
	router := NewRouter(e, catalog)

	outcome, s, err := router.Route(context.Background(), InboundEvent{
		TenantID: "tenant-a", ContactID: "contact-5", ConversationID: "conv-5", Kind: "text", Text: "hello there",
	})
	if err != nil {
		t.Fatalf("route start: %v", err)
	}
	if outcome != RouteStarted {
		t.Fatalf("expected RouteStarted, got %s", outcome)
	}

	outcome, _, err = router.Route(context.Background(), InboundEvent{
		TenantID: "tenant-a", ContactID: "contact-5", ConversationID: "conv-5", Kind: "text", Text: "a@b.co",
	})
	if err != nil {
		t.Fatalf("route resume: %v", err)
	}
	if outcome != RouteResumed {
		t.Fatalf("expected RouteResumed, got %s", outcome)
	}
	_ = s
}

func TestRouterNoMatchWithoutTriggerOrActiveSession(t *testing.T) {
	e, _ := newTestEngine(t)
	catalog, _ := NewTriggerCatalog(nil)
	router := NewRouter(e, catalog)

	outcome, _, err := router.Route(context.Background(), InboundEvent{
		TenantID: "tenant-a", ContactID: "contact-6", ConversationID: "conv-6", Kind: "text", Text: "anything",
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if outcome != RouteNoMatch {
		t.Fatalf("expected RouteNoMatch, got %s", outcome)
	}
}
