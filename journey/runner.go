package journey

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/siteaudit/audit"
	"github.com/hazyhaar/siteaudit/browser"
)

// Runner executes a fixed set of scripts against whatever target each audit
// names. A failing step fails its journey, captures a screenshot, and skips
// the remaining steps; other journeys still run.
type Runner struct {
	mgr         *browser.Manager
	scripts     []*Script
	evidenceDir string
	logger      *slog.Logger
}

// NewRunner creates a Runner. evidenceDir receives failure screenshots; empty
// disables capture.
func NewRunner(mgr *browser.Manager, scripts []*Script, evidenceDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{mgr: mgr, scripts: scripts, evidenceDir: evidenceDir, logger: logger}
}

// Run executes every script against the target. Script failures are
// outcomes, not errors; an error means the stage itself could not run.
func (r *Runner) Run(ctx context.Context, target string) ([]*audit.Journey, error) {
	journeys := make([]*audit.Journey, 0, len(r.scripts))
	for _, script := range r.scripts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		journeys = append(journeys, r.runScript(ctx, script, target))
	}
	return journeys, nil
}

func (r *Runner) runScript(ctx context.Context, script *Script, target string) *audit.Journey {
	out := &audit.Journey{Name: script.Name, Steps: make([]audit.JourneyStep, 0, len(script.Steps))}

	page, err := r.mgr.NewPage(ctx, target)
	if err != nil {
		r.logger.Warn("journey: page setup failed", "journey", script.Name, "error", err)
		// Every step is unreachable; report the first as failed.
		out.Steps = append(out.Steps, audit.JourneyStep{
			Action:     script.Steps[0].Action,
			Target:     script.Steps[0].Target,
			Outcome:    "failed",
			FailReason: fmt.Sprintf("open target: %v", err),
		})
		zero := 0
		out.FailedStep = &zero
		for _, step := range script.Steps[1:] {
			out.Steps = append(out.Steps, audit.JourneyStep{Action: step.Action, Target: step.Target, Outcome: "skipped"})
		}
		return out
	}
	defer page.Close()

	failed := false
	for i, step := range script.Steps {
		if failed {
			out.Steps = append(out.Steps, audit.JourneyStep{Action: step.Action, Target: step.Target, Outcome: "skipped"})
			continue
		}

		start := time.Now()
		err := r.runStep(ctx, page, step, target)
		rec := audit.JourneyStep{
			Action:  step.Action,
			Target:  step.Target,
			Outcome: "passed",
			Elapsed: time.Since(start),
		}
		if err != nil {
			rec.Outcome = "failed"
			rec.FailReason = err.Error()
			rec.EvidencePath = r.captureEvidence(page, script.Name, i)
			idx := i
			out.FailedStep = &idx
			failed = true
			r.logger.Info("journey: step failed",
				"journey", script.Name, "step", i, "action", step.Action, "error", err)
		}
		out.Steps = append(out.Steps, rec)
	}
	return out
}

func (r *Runner) runStep(ctx context.Context, page *rod.Page, step Step, target string) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(stepCtx)

	switch step.Action {
	case ActionNavigate:
		dest, err := resolveTarget(target, step.Target)
		if err != nil {
			return err
		}
		if err := p.Navigate(dest); err != nil {
			return fmt.Errorf("navigate %s: %w", dest, err)
		}
		return p.WaitLoad()

	case ActionClick:
		el, err := p.Element(step.Target)
		if err != nil {
			return fmt.Errorf("find %s: %w", step.Target, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click %s: %w", step.Target, err)
		}
		return nil

	case ActionFill:
		el, err := p.Element(step.Target)
		if err != nil {
			return fmt.Errorf("find %s: %w", step.Target, err)
		}
		if err := el.Input(step.Value); err != nil {
			return fmt.Errorf("fill %s: %w", step.Target, err)
		}
		return nil

	case ActionWaitVisible:
		el, err := p.Element(step.Target)
		if err != nil {
			return fmt.Errorf("find %s: %w", step.Target, err)
		}
		return el.WaitVisible()

	case ActionAssertText:
		el, err := p.Element(step.Target)
		if err != nil {
			return fmt.Errorf("find %s: %w", step.Target, err)
		}
		text, err := el.Text()
		if err != nil {
			return fmt.Errorf("read text of %s: %w", step.Target, err)
		}
		if !strings.Contains(text, step.Text) {
			return fmt.Errorf("%s does not contain %q (got %q)", step.Target, step.Text, truncate(text, 120))
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// resolveTarget turns a step's navigate target into an absolute URL. Paths
// resolve against the audit target; absolute URLs pass through.
func resolveTarget(target, stepTarget string) (string, error) {
	if strings.HasPrefix(stepTarget, "http://") || strings.HasPrefix(stepTarget, "https://") {
		return stepTarget, nil
	}
	base, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	ref, err := url.Parse(stepTarget)
	if err != nil {
		return "", fmt.Errorf("parse step target: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (r *Runner) captureEvidence(page *rod.Page, journeyName string, stepIndex int) string {
	if r.evidenceDir == "" {
		return ""
	}
	shot, err := page.Screenshot(true, nil)
	if err != nil {
		r.logger.Warn("journey: screenshot failed", "journey", journeyName, "error", err)
		return ""
	}
	if err := os.MkdirAll(r.evidenceDir, 0o755); err != nil {
		r.logger.Warn("journey: evidence dir", "error", err)
		return ""
	}
	path := filepath.Join(r.evidenceDir, fmt.Sprintf("%s-step%d.png", sanitizeName(journeyName), stepIndex))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		r.logger.Warn("journey: write screenshot", "path", path, "error", err)
		return ""
	}
	return path
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
