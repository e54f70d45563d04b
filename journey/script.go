// Package journey executes scripted user flows against a target site in
// headless Chrome and reports per-step outcomes. Scripts are small YAML
// files: a name and an ordered list of steps.
package journey

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionNavigate    = "navigate"
	ActionClick       = "click"
	ActionFill        = "fill"
	ActionWaitVisible = "wait_visible"
	ActionAssertText  = "assert_text"
)

// Step is one scripted action. Target is a CSS selector, except for navigate
// where it is a path or absolute URL.
type Step struct {
	Action  string        `yaml:"action"`
	Target  string        `yaml:"target,omitempty"`
	Value   string        `yaml:"value,omitempty"`   // fill input
	Text    string        `yaml:"text,omitempty"`    // assert_text expectation
	Timeout time.Duration `yaml:"timeout,omitempty"` // per-step bound. Default: 10s.
}

// Script is one named user flow.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// ParseScript parses and validates one YAML script.
func ParseScript(raw []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("script has no name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("script %q step %d: %w", s.Name, i, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	switch st.Action {
	case ActionNavigate:
		if st.Target == "" {
			return fmt.Errorf("navigate needs a target path or URL")
		}
	case ActionClick, ActionWaitVisible:
		if st.Target == "" {
			return fmt.Errorf("%s needs a target selector", st.Action)
		}
	case ActionFill:
		if st.Target == "" {
			return fmt.Errorf("fill needs a target selector")
		}
		if st.Value == "" {
			return fmt.Errorf("fill needs a value")
		}
	case ActionAssertText:
		if st.Target == "" || st.Text == "" {
			return fmt.Errorf("assert_text needs a target selector and expected text")
		}
	case "":
		return fmt.Errorf("step has no action")
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

// LoadDir reads every .yaml/.yml script in dir, sorted by filename so runs
// are ordered deterministically. A missing directory yields no scripts.
func LoadDir(dir string) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]*Script, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", name, err)
		}
		s, err := ParseScript(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}
