package mirror

import "strings"

// Separator sits between the transformed message text and the job's appended
// caption.
const Separator = "\n\n--------------------------------\n"

// StripText removes every occurrence of strip from text and trims the result.
// An empty strip leaves the text untouched.
func StripText(text, strip string) string {
	if strip == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, strip, ""))
}

// AppendCaption joins the stripped text and the job caption with the
// separator. An empty caption yields the trimmed text; an empty text yields
// just the caption.
func AppendCaption(text, caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return strings.TrimSpace(text)
	}
	base := strings.TrimSpace(text)
	if base == "" {
		return caption
	}
	return base + Separator + caption
}

// FinalText runs a job's text pipeline: strip first, then caption append.
func FinalText(text, strip, caption string) string {
	return AppendCaption(StripText(text, strip), caption)
}
