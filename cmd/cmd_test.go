package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"serve", "load", "analyze", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if !strings.Contains(out.String(), "reqlens") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestLoadRequiresInput(t *testing.T) {
	loadJiraKey = ""
	err := runLoad(t.Context(), loadCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "nothing to load") {
		t.Errorf("runLoad() error = %v", err)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"1", "2", "1", "3", "2"})
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("dedupe() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupe()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
