// Package channel defines the narrow ports the engine drives outbound
// sends and side-effect actions through (spec §6), plus the whatsmeow-backed
// WhatsApp implementation of ChannelAdapter adapted from the teacher's
// gomikrobot/internal/channels.WhatsAppChannel.
package channel

import "context"

// Button is one of up to three quick-reply options on a Buttons node.
type Button struct {
	ID    string
	Label string
}

// ListRow is one selectable row within a ListSection.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under an optional heading.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// ChannelAdapter is the engine's outbound sending port (spec §6). Every
// operation returns the channel-assigned message id or a typed error; the
// engine never branches on an adapter's concrete type.
type ChannelAdapter interface {
	SendText(ctx context.Context, conversationID, text string) (messageID string, err error)
	SendMedia(ctx context.Context, conversationID, kind, urlOrID, caption string) (messageID string, err error)
	SendButtons(ctx context.Context, conversationID, body string, buttons []Button) (messageID string, err error)
	SendList(ctx context.Context, conversationID, header, body, footer string, sections []ListSection) (messageID string, err error)
	SendTemplate(ctx context.Context, conversationID, name, language string, params []string) (messageID string, err error)
	MarkRead(ctx context.Context, conversationID, messageID string) error
}

// ActionResult is what an Action/Integration node's side effect produces,
// destined for bind_result_to (spec §4.C).
type ActionResult struct {
	StatusCode int
	Body       map[string]any
}

// ActionAdapter runs named side effects on behalf of Action/Integration
// nodes (spec §4.C). kind is one of http_request, db_query, send_email,
// create_ticket, crm_update, call_webhook, run_script.
type ActionAdapter interface {
	Run(ctx context.Context, kind string, params map[string]any) (ActionResult, error)
}

// ClassifierResult is the outcome of classifying free-text input, e.g. for
// routing or fallback-to-human decisions. Classification itself is an
// external concern (no model code lives in this module); Classifier is a
// port callers may wire to whatever service they use.
type ClassifierResult struct {
	Category string
	Summary  string
}

// Classifier is an optional port; flows that don't reference it never call it.
type Classifier interface {
	Classify(ctx context.Context, text string) (ClassifierResult, error)
}
