// Entry point for the siteaudit HTTP service: chi router over the audit
// service, optional MCP stdio transport for agent access.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/siteaudit/a11y"
	"github.com/hazyhaar/siteaudit/audit"
	"github.com/hazyhaar/siteaudit/bench"
	"github.com/hazyhaar/siteaudit/browser"
	"github.com/hazyhaar/siteaudit/crawl"
	"github.com/hazyhaar/siteaudit/dbopen"
	"github.com/hazyhaar/siteaudit/journey"
	"github.com/hazyhaar/siteaudit/perf"
	"github.com/hazyhaar/siteaudit/report"
)

type appConfig struct {
	Listen      string       `yaml:"listen"`
	DBPath      string       `yaml:"db_path"`
	ScriptsDir  string       `yaml:"scripts_dir"`
	EvidenceDir string       `yaml:"evidence_dir"`
	PerfMode    string       `yaml:"perf_mode"` // "http" or "browser"
	BrowserURL  string       `yaml:"browser_url"`
	UserAgent   string       `yaml:"user_agent"`
	Audit       audit.Config `yaml:"audit"`
}

func (c *appConfig) defaults() {
	if c.Listen == "" {
		c.Listen = ":" + env("PORT", "8090")
	}
	if c.DBPath == "" {
		c.DBPath = env("DB_PATH", "db/siteaudit.db")
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = env("SCRIPTS_DIR", "journeys")
	}
	if c.EvidenceDir == "" {
		c.EvidenceDir = env("EVIDENCE_DIR", "evidence")
	}
	if c.PerfMode == "" {
		c.PerfMode = env("PERF_MODE", "http")
	}
	if c.BrowserURL == "" {
		c.BrowserURL = env("BROWSER_URL", "")
	}
	if c.UserAgent == "" {
		c.UserAgent = "siteaudit/1.0"
	}
}

func loadConfig() (*appConfig, error) {
	cfg := &appConfig{}
	if path := env("CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.defaults()
	return cfg, nil
}

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	crawler := crawl.New(crawl.Config{UserAgent: cfg.UserAgent}, logger)

	// Browser-backed collaborators share one Chrome when enabled.
	var mgr *browser.Manager
	needsBrowser := cfg.PerfMode == "browser"
	scripts, err := journey.LoadDir(cfg.ScriptsDir)
	if err != nil {
		slog.Error("load journey scripts", "error", err)
		os.Exit(1)
	}
	if len(scripts) > 0 {
		needsBrowser = true
	}
	if needsBrowser {
		mgr = browser.NewManager(browser.Config{
			RemoteURL: cfg.BrowserURL,
			Stealth:   true,
			Logger:    logger,
		})
		defer mgr.Close()
	}

	var perfAuditor audit.PerfAuditor
	if cfg.PerfMode == "browser" {
		perfAuditor = perf.NewBrowserAuditor(mgr, logger)
	} else {
		perfAuditor = perf.NewHTTPAuditor(0, cfg.UserAgent, logger)
	}

	opts := []audit.ServiceOption{
		audit.WithPerfAuditor(perfAuditor),
		audit.WithAccessibilityChecker(a11y.New(logger)),
		audit.WithBenchmarker(bench.New(crawler, logger)),
	}
	if len(scripts) > 0 {
		opts = append(opts, audit.WithJourneyRunner(
			journey.NewRunner(mgr, scripts, cfg.EvidenceDir, logger)))
	}

	svc, err := audit.New(db, &cfg.Audit, logger, crawler, opts...)
	if err != nil {
		slog.Error("audit service", "error", err)
		os.Exit(1)
	}

	// Optional MCP stdio transport: the process becomes an MCP server and
	// the HTTP API is not started.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "siteaudit",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		slog.Info("mcp stdio starting")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp stdio", "error", err)
			os.Exit(1)
		}
		return
	}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/audits", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL     string           `json:"url"`
			Options audit.JobOptions `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		job, err := svc.StartAudit(req.URL, req.Options)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 202, job)
	})

	r.Get("/api/audits/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.Job(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, job)
	})

	r.Get("/api/audits/{id}/issues", func(w http.ResponseWriter, r *http.Request) {
		issues, err := svc.Issues(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, issues)
	})

	r.Get("/api/audits/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.Job(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		issues, err := svc.Issues(job.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		job.Issues = issues

		digests := audit.DigestsFor(issues)
		triage, err := svc.GetTriageMeta(r.Context(), digests)
		if err != nil {
			slog.Warn("report: triage lookup failed", "error", err)
			triage = nil
		}

		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", job.ID))
			if err := report.WriteCSV(w, issues, triage); err != nil {
				slog.Error("write csv", "error", err)
			}
		default:
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			if err := report.WriteMarkdown(w, job, triage); err != nil {
				slog.Error("write report", "error", err)
			}
		}
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := svc.ListRuns(r.Context(), r.URL.Query().Get("origin"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, runs)
	})

	r.Get("/api/runs/diff", func(w http.ResponseWriter, r *http.Request) {
		runA := r.URL.Query().Get("run_a")
		runB := r.URL.Query().Get("run_b")
		if runA == "" || runB == "" {
			writeError(w, 400, errors.New("run_a and run_b are required"))
			return
		}
		diff, err := svc.DiffRuns(r.Context(), runA, runB)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, diff)
	})

	r.Put("/api/triage/{digest}/state", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		var state *audit.TriageState
		if req.State != "" {
			v := audit.TriageState(req.State)
			state = &v
		}
		if err := svc.SetTriageState(r.Context(), chi.URLParam(r, "digest"), state); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Patch("/api/triage/{digest}", func(w http.ResponseWriter, r *http.Request) {
		var update audit.TriageUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := svc.SetTriageMeta(r.Context(), chi.URLParam(r, "digest"), update); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/triage", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("digests")
		if raw == "" {
			writeError(w, 400, errors.New("digests query parameter is required"))
			return
		}
		meta, err := svc.GetTriageMeta(r.Context(), strings.Split(raw, ","))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, meta)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audit.ErrJobNotFound):
		writeError(w, 404, err)
	case errors.Is(err, audit.ErrInvalidInput):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}
