package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		wantDebug bool
		wantInfo  bool
	}{
		{"off", LevelOff, false, false},
		{"normal", LevelNormal, false, true},
		{"verbose", LevelVerbose, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(tt.level, &buf)
			log.Debug("debug %d", 1)
			log.Info("info %d", 2)

			out := buf.String()
			if got := strings.Contains(out, "debug 1"); got != tt.wantDebug {
				t.Fatalf("debug visible=%v, want %v (out=%q)", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info 2"); got != tt.wantInfo {
				t.Fatalf("info visible=%v, want %v (out=%q)", got, tt.wantInfo, out)
			}
		})
	}
}

func TestNamedSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)
	child := log.Named("speech")

	log.SetLevel(LevelOff)
	child.Error("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output after SetLevel(LevelOff), got %q", buf.String())
	}

	log.SetLevel(LevelNormal)
	child.Warn("queue stalled")
	if !strings.Contains(buf.String(), "speech") {
		t.Fatalf("expected component name in output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"off":     LevelOff,
		"debug":   LevelVerbose,
		"VERBOSE": LevelVerbose,
		"info":    LevelNormal,
		"":        LevelNormal,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%d, want %d", in, got, want)
		}
	}
}
