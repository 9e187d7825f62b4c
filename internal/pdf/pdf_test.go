package pdf

import (
	"bytes"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	data, err := NewRenderer().Generate("Risk Analysis", "First paragraph.\n\nSecond paragraph with more detail.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF header: %q", data[:min(8, len(data))])
	}
	if len(data) < 500 {
		t.Errorf("suspiciously small PDF: %d bytes", len(data))
	}
}

func TestGenerate_UnicodeBody(t *testing.T) {
	t.Parallel()

	data, err := NewRenderer().Generate("Résumé — 風險", "body with emoji 🚀 and tabs\tok")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("invalid PDF output for unicode input")
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	if got := sanitize("a\tb"); got != "a    b" {
		t.Errorf("tab handling: %q", got)
	}
	if got := sanitize("ok\x07bell"); got != "okbell" {
		t.Errorf("control char handling: %q", got)
	}
	if got := sanitize("日本語"); got != "???" {
		t.Errorf("out-of-range runes: %q", got)
	}
}
