package engine

// Input is what the inbound router hands the engine on resume (spec §4.D,
// §6 inbound channel event). Exactly one of Text/SelectionID/MediaRef is
// meaningful, selected by Kind.
type Input struct {
	Kind          string // "text", "interactive", "media", "template_button"
	Text          string
	SelectionID   string
	MediaRef      string
	ButtonPayload string
}
