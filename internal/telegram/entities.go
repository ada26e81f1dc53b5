package telegram

// EntityType enumerates the formatting entity kinds mirrord re-renders.
type EntityType string

const (
	EntityBold          EntityType = "bold"
	EntityItalic        EntityType = "italic"
	EntityUnderline     EntityType = "underline"
	EntityStrikethrough EntityType = "strikethrough"
	EntityCode          EntityType = "code"
	EntityPre           EntityType = "pre"
	EntityTextURL       EntityType = "text_url"
	EntitySpoiler       EntityType = "spoiler"
	EntityBlockquote    EntityType = "blockquote"
	EntityCustomEmoji   EntityType = "custom_emoji"
)

// Entity is one formatting run over a message text. Offset and Length count
// UTF-16 code units, matching the wire format; use the helpers in html.go to
// slice the text.
type Entity struct {
	Type   EntityType
	Offset int
	Length int

	// URL is set for text_url entities.
	URL string

	// Language is set for pre entities carrying a language hint.
	Language string

	// DocumentID is set for custom_emoji entities.
	DocumentID int64
}
