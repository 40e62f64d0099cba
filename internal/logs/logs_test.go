package logs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{}).Info("hello", "user", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" || rec["user"] != float64(7) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{}).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered: %q", buf.String())
	}
	New(&buf, Options{Debug: true}).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be logged: %q", buf.String())
	}
}

func TestColourText(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	New(&buf, Options{Colour: true}).With("trade", "abc").WithGroup("req").Warn("careful", "user", 7)
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected ansi escape in %q", out)
	}
	for _, want := range []string{"careful", "trade", "req.user", "=7"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
