package mtproto

import (
	"time"

	"github.com/gotd/td/tg"

	"go.mirrord.dev/internal/telegram"
)

func convertChannel(ch *tg.Channel) *telegram.Channel {
	return &telegram.Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   ch.Username,
		Title:      ch.Title,
	}
}

func inputChannel(ch *telegram.Channel) *tg.InputChannel {
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

func inputPeer(ch *telegram.Channel) tg.InputPeerClass {
	return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

func firstChannel(chats []tg.ChatClass) *tg.Channel {
	for _, c := range chats {
		if ch, ok := c.(*tg.Channel); ok {
			return ch
		}
	}
	return nil
}

func historyMessages(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}

func convertMessage(m *tg.Message) telegram.Message {
	msg := telegram.Message{
		ID:   m.ID,
		Text: m.Message,
		Date: time.Unix(int64(m.Date), 0).UTC(),
	}
	if grouped, ok := m.GetGroupedID(); ok {
		msg.GroupedID = grouped
	}
	if entities, ok := m.GetEntities(); ok {
		msg.Entities = convertEntities(entities)
	}
	if media, ok := m.GetMedia(); ok {
		msg.Media = convertMedia(media)
	}
	return msg
}

// convertEntities maps wire entities onto the boundary model. Kinds the
// mirror does not re-render are dropped; offsets stay valid because
// entities are spans over the text, not markup inside it.
func convertEntities(src []tg.MessageEntityClass) []telegram.Entity {
	if len(src) == 0 {
		return nil
	}
	out := make([]telegram.Entity, 0, len(src))
	for _, e := range src {
		switch v := e.(type) {
		case *tg.MessageEntityBold:
			out = append(out, telegram.Entity{Type: telegram.EntityBold, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityItalic:
			out = append(out, telegram.Entity{Type: telegram.EntityItalic, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityUnderline:
			out = append(out, telegram.Entity{Type: telegram.EntityUnderline, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityStrike:
			out = append(out, telegram.Entity{Type: telegram.EntityStrikethrough, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityCode:
			out = append(out, telegram.Entity{Type: telegram.EntityCode, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityPre:
			out = append(out, telegram.Entity{Type: telegram.EntityPre, Offset: v.Offset, Length: v.Length, Language: v.Language})
		case *tg.MessageEntityTextURL:
			out = append(out, telegram.Entity{Type: telegram.EntityTextURL, Offset: v.Offset, Length: v.Length, URL: v.URL})
		case *tg.MessageEntitySpoiler:
			out = append(out, telegram.Entity{Type: telegram.EntitySpoiler, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityBlockquote:
			out = append(out, telegram.Entity{Type: telegram.EntityBlockquote, Offset: v.Offset, Length: v.Length})
		case *tg.MessageEntityCustomEmoji:
			out = append(out, telegram.Entity{Type: telegram.EntityCustomEmoji, Offset: v.Offset, Length: v.Length, DocumentID: v.DocumentID})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func entitiesToTG(src []telegram.Entity) []tg.MessageEntityClass {
	if len(src) == 0 {
		return nil
	}
	out := make([]tg.MessageEntityClass, 0, len(src))
	for _, e := range src {
		switch e.Type {
		case telegram.EntityBold:
			out = append(out, &tg.MessageEntityBold{Offset: e.Offset, Length: e.Length})
		case telegram.EntityItalic:
			out = append(out, &tg.MessageEntityItalic{Offset: e.Offset, Length: e.Length})
		case telegram.EntityUnderline:
			out = append(out, &tg.MessageEntityUnderline{Offset: e.Offset, Length: e.Length})
		case telegram.EntityStrikethrough:
			out = append(out, &tg.MessageEntityStrike{Offset: e.Offset, Length: e.Length})
		case telegram.EntityCode:
			out = append(out, &tg.MessageEntityCode{Offset: e.Offset, Length: e.Length})
		case telegram.EntityPre:
			out = append(out, &tg.MessageEntityPre{Offset: e.Offset, Length: e.Length, Language: e.Language})
		case telegram.EntityTextURL:
			out = append(out, &tg.MessageEntityTextURL{Offset: e.Offset, Length: e.Length, URL: e.URL})
		case telegram.EntitySpoiler:
			out = append(out, &tg.MessageEntitySpoiler{Offset: e.Offset, Length: e.Length})
		case telegram.EntityBlockquote:
			out = append(out, &tg.MessageEntityBlockquote{Offset: e.Offset, Length: e.Length})
		case telegram.EntityCustomEmoji:
			out = append(out, &tg.MessageEntityCustomEmoji{Offset: e.Offset, Length: e.Length, DocumentID: e.DocumentID})
		}
	}
	return out
}

func convertMedia(mm tg.MessageMediaClass) *telegram.MediaRef {
	switch v := mm.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := v.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := p.(*tg.Photo)
		if !ok {
			return nil
		}
		_, size := largestPhotoType(photo)
		return &telegram.MediaRef{
			Kind: telegram.MediaPhoto,
			Size: size,
			MIME: "image/jpeg",
			Ref:  photo,
		}
	case *tg.MessageMediaDocument:
		d, ok := v.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := d.(*tg.Document)
		if !ok {
			return nil
		}
		return &telegram.MediaRef{
			Kind:     telegram.MediaDocument,
			Size:     doc.Size,
			Filename: documentFilename(doc),
			MIME:     doc.MimeType,
			Ref:      doc,
		}
	default:
		return nil
	}
}

// largestPhotoType returns the thumb type letter and byte size of the
// largest available rendition of the photo.
func largestPhotoType(p *tg.Photo) (string, int64) {
	var (
		typ  string
		size int64
	)
	for _, s := range p.Sizes {
		switch v := s.(type) {
		case *tg.PhotoSize:
			if int64(v.Size) > size {
				size = int64(v.Size)
				typ = v.Type
			}
		case *tg.PhotoSizeProgressive:
			max := 0
			for _, b := range v.Sizes {
				if b > max {
					max = b
				}
			}
			if int64(max) > size {
				size = int64(max)
				typ = v.Type
			}
		}
	}
	return typ, size
}

func documentFilename(doc *tg.Document) string {
	for _, a := range doc.Attributes {
		if fn, ok := a.(*tg.DocumentAttributeFilename); ok {
			return fn.FileName
		}
	}
	return ""
}

// sentMessageID pulls the posted message id out of the updates the server
// returns for a send call. Zero means the id could not be determined.
func sentMessageID(u tg.UpdatesClass) int {
	switch v := u.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID
	case *tg.Updates:
		return updatesMessageID(v.Updates)
	case *tg.UpdatesCombined:
		return updatesMessageID(v.Updates)
	default:
		return 0
	}
}

func updatesMessageID(updates []tg.UpdateClass) int {
	for _, u := range updates {
		switch v := u.(type) {
		case *tg.UpdateMessageID:
			return v.ID
		case *tg.UpdateNewChannelMessage:
			if m, ok := v.Message.(*tg.Message); ok {
				return m.ID
			}
		case *tg.UpdateNewMessage:
			if m, ok := v.Message.(*tg.Message); ok {
				return m.ID
			}
		}
	}
	return 0
}
