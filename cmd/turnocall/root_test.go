package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/speech"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"display", "call", "recall", "redirect", "done", "issue", "voices", "migrate"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q missing", name)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-file", "stderr", "--log-level", "off", "--broadcast", "none"))
	err := root.Execute()
	return out.String(), err
}

func TestIssueOnMemoryStore(t *testing.T) {
	out, err := execute(t, "issue", "c", "--vip")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.Contains(out, "turno C001 emitido") {
		t.Errorf("output = %q", out)
	}
}

func TestCallUnknownTicket(t *testing.T) {
	_, err := execute(t, "call", "Z001", "1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMigrateNeedsDSN(t *testing.T) {
	t.Setenv("TURNOCALL_DB_DSN", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := execute(t, "migrate"); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestVoiceTable(t *testing.T) {
	voices := []speech.Voice{
		{Name: "es-MX-DaliaNeural", Lang: "es-MX", Gender: speech.GenderFemale},
		{Name: "es-MX-JorgeNeural", Lang: "es-MX", Gender: speech.GenderMale},
		{Name: "en-US-JennyNeural", Lang: "en-US", Gender: speech.GenderFemale},
	}

	got := voiceTable(voices, &voices[1], "es-MX", false)
	if !strings.Contains(got, "es-MX-JorgeNeural") || strings.Contains(got, "en-US-JennyNeural") {
		t.Errorf("filtered table:\n%s", got)
	}
	if !strings.Contains(got, "▶") {
		t.Errorf("selected voice not marked:\n%s", got)
	}

	if got := voiceTable(voices, nil, "es-MX", true); !strings.Contains(got, "en-US-JennyNeural") {
		t.Errorf("--all table:\n%s", got)
	}
	if got := voiceTable(voices, nil, "fr-FR", false); !strings.Contains(got, "no voices") {
		t.Errorf("empty table = %q", got)
	}
}
