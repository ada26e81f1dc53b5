package telegram

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// EscapeHTML escapes the characters the Bot API HTML parser treats specially.
func EscapeHTML(s string) string {
	return textEscaper.Replace(s)
}

// RenderHTML renders a message text with its formatting entities as Bot API
// HTML. Entity offsets count UTF-16 code units, so the text is converted to
// UTF-16 before slicing and back when emitting. Entities with unknown types
// contribute their children without tags; entities overlapping an already
// rendered run are dropped.
func RenderHTML(text string, entities []Entity) string {
	if len(entities) == 0 {
		return EscapeHTML(text)
	}

	units := utf16.Encode([]rune(text))

	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length > sorted[j].Length
	})

	var b strings.Builder
	renderRange(&b, units, 0, len(units), sorted)
	return b.String()
}

// renderRange emits the units in [start, end) applying the given entities,
// recursing for entities nested inside another.
func renderRange(b *strings.Builder, units []uint16, start, end int, ents []Entity) {
	pos := start
	i := 0
	for i < len(ents) {
		e := ents[i]
		if e.Length <= 0 || e.Offset >= end || e.Offset < pos {
			i++
			continue
		}
		if e.Offset > pos {
			b.WriteString(EscapeHTML(sliceUTF16(units, pos, e.Offset)))
		}
		segEnd := e.Offset + e.Length
		if segEnd > end {
			segEnd = end
		}
		// Entities starting inside this run are its children.
		j := i + 1
		for j < len(ents) && ents[j].Offset < segEnd {
			j++
		}
		opening, closing := entityTags(e)
		b.WriteString(opening)
		renderRange(b, units, e.Offset, segEnd, ents[i+1:j])
		b.WriteString(closing)
		pos = segEnd
		i = j
	}
	if pos < end {
		b.WriteString(EscapeHTML(sliceUTF16(units, pos, end)))
	}
}

func sliceUTF16(units []uint16, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(units) {
		to = len(units)
	}
	if from >= to {
		return ""
	}
	return string(utf16.Decode(units[from:to]))
}

func entityTags(e Entity) (string, string) {
	switch e.Type {
	case EntityBold:
		return "<b>", "</b>"
	case EntityItalic:
		return "<i>", "</i>"
	case EntityUnderline:
		return "<u>", "</u>"
	case EntityStrikethrough:
		return "<s>", "</s>"
	case EntityCode:
		return "<code>", "</code>"
	case EntityPre:
		if e.Language != "" {
			return fmt.Sprintf("<pre><code class=\"language-%s\">", attrEscaper.Replace(e.Language)), "</code></pre>"
		}
		return "<pre>", "</pre>"
	case EntityTextURL:
		return fmt.Sprintf("<a href=\"%s\">", attrEscaper.Replace(e.URL)), "</a>"
	case EntitySpoiler:
		return "<tg-spoiler>", "</tg-spoiler>"
	case EntityBlockquote:
		return "<blockquote>", "</blockquote>"
	case EntityCustomEmoji:
		return fmt.Sprintf("<tg-emoji emoji-id=\"%d\">", e.DocumentID), "</tg-emoji>"
	default:
		return "", ""
	}
}
