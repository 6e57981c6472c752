package buildinfo

import (
	"strings"
	"testing"
)

func TestTemplate(t *testing.T) {
	got := Template()
	for _, want := range []string{"{{.Name}} version " + Version, "commit: " + Commit, "built: " + Date} {
		if !strings.Contains(got, want) {
			t.Errorf("Template() = %q, missing %q", got, want)
		}
	}
}

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), "stackresolve/"+Version; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}
