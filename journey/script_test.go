package journey

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseScript_Valid(t *testing.T) {
	// WHAT: A well-formed script parses with actions, selectors, and timeouts intact.
	s, err := ParseScript([]byte(`
name: checkout
steps:
  - action: navigate
    target: /shop
  - action: click
    target: "#add-to-cart"
  - action: fill
    target: "input[name=email]"
    value: test@example.com
    timeout: 5s
  - action: wait_visible
    target: ".confirmation"
  - action: assert_text
    target: ".confirmation"
    text: Thank you
`))
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if s.Name != "checkout" || len(s.Steps) != 5 {
		t.Fatalf("unexpected script: %+v", s)
	}
	if s.Steps[2].Timeout != 5*time.Second {
		t.Errorf("timeout = %v", s.Steps[2].Timeout)
	}
	if s.Steps[4].Text != "Thank you" {
		t.Errorf("assert text = %q", s.Steps[4].Text)
	}
}

func TestParseScript_Validation(t *testing.T) {
	// WHAT: Missing names, empty step lists, unknown actions, and incomplete
	// steps are all rejected at parse time.
	// WHY: A bad script must fail at startup, not midway through an audit.
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "steps:\n  - action: navigate\n    target: /", "no name"},
		{"no steps", "name: x", "no steps"},
		{"unknown action", "name: x\nsteps:\n  - action: hover\n    target: a", "unknown action"},
		{"navigate without target", "name: x\nsteps:\n  - action: navigate", "needs a target"},
		{"fill without value", "name: x\nsteps:\n  - action: fill\n    target: input", "needs a value"},
		{"assert without text", "name: x\nsteps:\n  - action: assert_text\n    target: p", "needs a target selector and expected text"},
		{"step without action", "name: x\nsteps:\n  - target: a", "no action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadDir_SortedAndFiltered(t *testing.T) {
	// WHAT: Only .yaml/.yml files load, in filename order.
	// WHY: Deterministic journey order keeps run-to-run diffs stable.
	dir := t.TempDir()
	files := map[string]string{
		"20-signup.yaml": "name: signup\nsteps:\n  - action: navigate\n    target: /signup",
		"10-login.yml":   "name: login\nsteps:\n  - action: navigate\n    target: /login",
		"notes.txt":      "not a script",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	scripts, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(scripts) != 2 || scripts[0].Name != "login" || scripts[1].Name != "signup" {
		t.Errorf("unexpected scripts: %+v", scripts)
	}
}

func TestLoadDir_MissingDirIsEmpty(t *testing.T) {
	// WHAT: A nonexistent scripts directory yields no scripts and no error.
	// WHY: Journeys are optional; absence of configuration is not a failure.
	scripts, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if scripts != nil {
		t.Errorf("expected nil, got %+v", scripts)
	}
}

func TestLoadDir_BadScriptNamesFile(t *testing.T) {
	// WHAT: A broken script fails the whole load with the filename in the error.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("error = %v, want mention of bad.yaml", err)
	}
}

func TestResolveTarget(t *testing.T) {
	// WHAT: Paths resolve against the audit target; absolute URLs pass through.
	got, err := resolveTarget("https://example.com/shop", "/checkout")
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != "https://example.com/checkout" {
		t.Errorf("got %q", got)
	}

	got, err = resolveTarget("https://example.com", "https://auth.example.com/login")
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if got != "https://auth.example.com/login" {
		t.Errorf("got %q", got)
	}
}
