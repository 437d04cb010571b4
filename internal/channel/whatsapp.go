package channel

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsAppAdapter implements ChannelAdapter over a native whatsmeow client,
// adapted from the teacher's gomikrobot/internal/channels.WhatsAppChannel:
// the device-store bootstrap and single-client-per-process shape survive,
// narrowed here to the six ChannelAdapter operations instead of a
// free-running bot loop.
type WhatsAppAdapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
}

// NewWhatsAppAdapter opens (or creates) the device store at dbPath and
// connects the first paired device. Pairing (QR scan) is out of scope for
// this port; operators pair once via the teacher's own bootstrap flow.
func NewWhatsAppAdapter(ctx context.Context, dbPath string) (*WhatsAppAdapter, error) {
	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "INFO", true)

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("channel: open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("channel: get whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(device, clientLog)
	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("channel: connect whatsapp client: %w", err)
		}
	}
	return &WhatsAppAdapter{client: client, container: container}, nil
}

// Close disconnects the client and releases the device store.
func (a *WhatsAppAdapter) Close() error {
	if a.client != nil {
		a.client.Disconnect()
	}
	if a.container != nil {
		return a.container.Close()
	}
	return nil
}

func (a *WhatsAppAdapter) jid(conversationID string) (types.JID, error) {
	jid, err := types.ParseJID(conversationID)
	if err != nil {
		return types.JID{}, fmt.Errorf("channel: invalid conversation id %q: %w", conversationID, err)
	}
	return jid, nil
}

func (a *WhatsAppAdapter) send(ctx context.Context, conversationID string, msg *waE2E.Message) (string, error) {
	jid, err := a.jid(conversationID)
	if err != nil {
		return "", err
	}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("channel: whatsapp send: %w", err)
	}
	return resp.ID, nil
}

func (a *WhatsAppAdapter) SendText(ctx context.Context, conversationID, text string) (string, error) {
	return a.send(ctx, conversationID, &waE2E.Message{Conversation: proto.String(text)})
}

func (a *WhatsAppAdapter) SendMedia(ctx context.Context, conversationID, kind, urlOrID, caption string) (string, error) {
	var msg *waE2E.Message
	switch kind {
	case "image":
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{URL: proto.String(urlOrID), Caption: proto.String(caption)}}
	case "video":
		msg = &waE2E.Message{VideoMessage: &waE2E.VideoMessage{URL: proto.String(urlOrID), Caption: proto.String(caption)}}
	case "document":
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{URL: proto.String(urlOrID), Title: proto.String(caption)}}
	case "audio":
		msg = &waE2E.Message{AudioMessage: &waE2E.AudioMessage{URL: proto.String(urlOrID)}}
	default:
		return "", fmt.Errorf("channel: unsupported media kind %q", kind)
	}
	return a.send(ctx, conversationID, msg)
}

func (a *WhatsAppAdapter) SendButtons(ctx context.Context, conversationID, body string, buttons []Button) (string, error) {
	if len(buttons) == 0 || len(buttons) > 3 {
		return "", fmt.Errorf("channel: buttons message needs 1-3 buttons, got %d", len(buttons))
	}
	wired := make([]*waE2E.ButtonsMessage_Button, 0, len(buttons))
	for _, b := range buttons {
		wired = append(wired, &waE2E.ButtonsMessage_Button{
			ButtonID:   proto.String(b.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_Text{DisplayText: proto.String(b.Label)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	msg := &waE2E.Message{
		ButtonsMessage: &waE2E.ButtonsMessage{
			ContentText: proto.String(body),
			Buttons:     wired,
			HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
		},
	}
	return a.send(ctx, conversationID, msg)
}

func (a *WhatsAppAdapter) SendList(ctx context.Context, conversationID, header, body, footer string, sections []ListSection) (string, error) {
	if len(sections) == 0 {
		return "", fmt.Errorf("channel: list message needs at least one section")
	}
	wired := make([]*waE2E.ListMessage_Section, 0, len(sections))
	for _, sec := range sections {
		rows := make([]*waE2E.ListMessage_Row, 0, len(sec.Rows))
		for _, row := range sec.Rows {
			rows = append(rows, &waE2E.ListMessage_Row{
				RowID:       proto.String(row.ID),
				Title:       proto.String(row.Title),
				Description: proto.String(row.Description),
			})
		}
		wired = append(wired, &waE2E.ListMessage_Section{Title: proto.String(sec.Title), Rows: rows})
	}
	msg := &waE2E.Message{
		ListMessage: &waE2E.ListMessage{
			Title:       proto.String(header),
			Description: proto.String(body),
			FooterText:  proto.String(footer),
			ButtonText:  proto.String("Menu"),
			ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    wired,
		},
	}
	return a.send(ctx, conversationID, msg)
}

func (a *WhatsAppAdapter) SendTemplate(ctx context.Context, conversationID, name, language string, params []string) (string, error) {
	text := name
	if len(params) > 0 {
		text = fmt.Sprintf("%s %v", name, params)
	}
	msg := &waE2E.Message{
		TemplateMessage: &waE2E.TemplateMessage{
			HydratedTemplate: &waE2E.HydratedFourRowTemplate{
				HydratedContentText: proto.String(text),
				TemplateID:          proto.String(name),
			},
		},
	}
	return a.send(ctx, conversationID, msg)
}

func (a *WhatsAppAdapter) MarkRead(ctx context.Context, conversationID, messageID string) error {
	jid, err := a.jid(conversationID)
	if err != nil {
		return err
	}
	return a.client.MarkRead([]types.MessageID{messageID}, time.Now(), jid, jid)
}
