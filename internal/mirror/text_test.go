package mirror

import (
	"strings"
	"testing"
)

func TestSeparatorShape(t *testing.T) {
	want := "\n\n" + strings.Repeat("-", 32) + "\n"
	if Separator != want {
		t.Errorf("Expected 32-dash separator %q, got %q", want, Separator)
	}
}

func TestStripTextRemovesEveryOccurrence(t *testing.T) {
	got := StripText("promo hello promo world promo", "promo")
	if got != "hello  world" {
		t.Errorf("Expected %q, got %q", "hello  world", got)
	}
}

func TestStripTextEmptyStripLeavesTextUntouched(t *testing.T) {
	got := StripText("  spaced out  ", "")
	if got != "  spaced out  " {
		t.Errorf("Expected text unchanged, got %q", got)
	}
}

func TestStripTextCanEmptyTheText(t *testing.T) {
	if got := StripText("promo", "promo"); got != "" {
		t.Errorf("Expected empty text, got %q", got)
	}
}

func TestAppendCaptionJoinsWithSeparator(t *testing.T) {
	got := AppendCaption("body", "caption")
	want := "body" + Separator + "caption"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestAppendCaptionEmptyCaptionTrimsText(t *testing.T) {
	if got := AppendCaption("  body  ", ""); got != "body" {
		t.Errorf("Expected %q, got %q", "body", got)
	}
	if got := AppendCaption("  body  ", "   "); got != "body" {
		t.Errorf("Expected whitespace caption to act as empty, got %q", got)
	}
}

func TestAppendCaptionEmptyTextYieldsCaption(t *testing.T) {
	if got := AppendCaption("", "caption"); got != "caption" {
		t.Errorf("Expected %q, got %q", "caption", got)
	}
	if got := AppendCaption("   ", "caption"); got != "caption" {
		t.Errorf("Expected %q, got %q", "caption", got)
	}
}

func TestAppendCaptionBothEmpty(t *testing.T) {
	if got := AppendCaption("", ""); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
}

func TestAppendCaptionTrimsCaption(t *testing.T) {
	got := AppendCaption("body", "  caption  ")
	want := "body" + Separator + "caption"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFinalTextStripThenCaption(t *testing.T) {
	got := FinalText("hello promo world", "promo", "Mirrored")
	want := "hello  world\n\n" + strings.Repeat("-", 32) + "\nMirrored"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFinalTextStripToEmptyYieldsCaption(t *testing.T) {
	if got := FinalText("promo", "promo", "Mirrored"); got != "Mirrored" {
		t.Errorf("Expected %q, got %q", "Mirrored", got)
	}
}

func TestFinalTextNoTransforms(t *testing.T) {
	if got := FinalText("as is", "", ""); got != "as is" {
		t.Errorf("Expected %q, got %q", "as is", got)
	}
}
