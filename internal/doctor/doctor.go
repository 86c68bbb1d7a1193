// Package doctor provides preflight checks for FlowBit configuration and
// runtime state. Used by `flowbit doctor` before deploying or serving.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/robfig/cron/v3"

	"github.com/HarinGuptha/FlowBit-Harin/internal/agents"
	"github.com/HarinGuptha/FlowBit-Harin/internal/classify"
	"github.com/HarinGuptha/FlowBit-Harin/internal/config"
	"github.com/HarinGuptha/FlowBit-Harin/internal/session"
	"github.com/HarinGuptha/FlowBit-Harin/internal/trigger"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls what the checks run against.
type Options struct {
	Config *config.Config // nil loads from the environment
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			report.Checks = append(report.Checks, CheckResult{
				Name: "config_valid", Category: "config", Status: "fail",
				Message: fmt.Sprintf("cannot load config: %v", err),
				Fix:     "Check FLOWBIT_ env vars and flowbit.config.yaml",
			})
			return finish(report)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_valid", Category: "config", Status: "fail",
			Message: err.Error(),
		})
		return finish(report)
	}
	report.Checks = append(report.Checks, CheckResult{
		Name: "config_valid", Category: "config", Status: "pass",
		Message: "thresholds and durations in range",
	})

	report.Checks = append(report.Checks, checkDataDir(cfg))
	report.Checks = append(report.Checks, checkSigningKey(cfg))
	report.Checks = append(report.Checks, checkSessionDB(ctx, cfg))
	report.Checks = append(report.Checks, checkLexicons(cfg)...)
	if cfg.TriggersFile != "" {
		report.Checks = append(report.Checks, checkTriggers(cfg)...)
	}

	return finish(report)
}

func finish(report *Report) *Report {
	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}
	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.SigningKey == "" {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: "warn",
			Message: "Session signing disabled",
			Fix:     "Set FLOWBIT_SIGNING_KEY to sign audit records",
		}
	}
	if _, err := session.NewSigner(cfg.SigningKey); err != nil {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: "fail",
			Message: err.Error(),
			Fix:     "Provide at least 32 raw bytes or 64 hex characters",
		}
	}
	return CheckResult{
		Name: "signing_key", Category: "config", Status: "pass", Message: "Configured",
	}
}

func checkSessionDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := session.NewStore(cfg.SessionDBPath(), cfg.SessionTTL, cfg.BaselineWindow)
	if err != nil {
		return CheckResult{
			Name: "session_db", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		}
	}
	defer store.Close()

	counters, err := store.Counters(ctx)
	if err != nil {
		return CheckResult{
			Name: "session_db", Category: "config", Status: "fail",
			Message: fmt.Sprintf("reading counters: %v", err),
		}
	}

	sizeStr := "new"
	if fi, statErr := os.Stat(cfg.SessionDBPath()); statErr == nil {
		sizeStr = fmt.Sprintf("%.1f KB", float64(fi.Size())/1024)
	}
	return CheckResult{
		Name: "session_db", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (%s, %d sessions processed)",
			cfg.SessionDBPath(), sizeStr, counters["sessions_completed"]+counters["sessions_failed"]),
	}
}

func checkLexicons(cfg *config.Config) []CheckResult {
	var results []CheckResult

	_, err := classify.New(
		classify.WithConfidenceThreshold(cfg.ConfidenceThreshold),
		classify.WithLexiconFile(cfg.LexiconFile),
	)
	if err != nil {
		results = append(results, CheckResult{
			Name: "intent_lexicon", Category: "lexicons", Status: "fail",
			Message: err.Error(),
			Fix:     "Check YAML syntax in " + cfg.LexiconFile,
		})
	} else {
		msg := "embedded"
		if cfg.LexiconFile != "" {
			msg = cfg.LexiconFile
		}
		results = append(results, CheckResult{
			Name: "intent_lexicon", Category: "lexicons", Status: "pass", Message: msg,
		})
	}

	if _, err := agents.DefaultToneLexicon(); err != nil {
		results = append(results, CheckResult{
			Name: "tone_lexicon", Category: "lexicons", Status: "fail", Message: err.Error(),
		})
	}
	if _, err := agents.DefaultSecuritySignatures(); err != nil {
		results = append(results, CheckResult{
			Name: "security_signatures", Category: "lexicons", Status: "fail", Message: err.Error(),
		})
	}
	if _, err := agents.DefaultComplianceSets(); err != nil {
		results = append(results, CheckResult{
			Name: "compliance_sets", Category: "lexicons", Status: "fail", Message: err.Error(),
		})
	}
	return results
}

func checkTriggers(cfg *config.Config) []CheckResult {
	trigCfg, err := trigger.LoadConfig(cfg.TriggersFile)
	if err != nil {
		return []CheckResult{{
			Name: "triggers_valid", Category: "triggers", Status: "fail",
			Message: err.Error(),
			Fix:     "Check YAML syntax in " + cfg.TriggersFile,
		}}
	}

	results := []CheckResult{{
		Name: "triggers_valid", Category: "triggers", Status: "pass",
		Message: fmt.Sprintf("%s (%d webhooks, %d schedules)",
			cfg.TriggersFile, len(trigCfg.Webhooks), len(trigCfg.Schedules)),
	}}

	for _, wh := range trigCfg.Webhooks {
		if _, err := template.New(wh.Name).Parse(wh.ContentTemplate); err != nil {
			results = append(results, CheckResult{
				Name: "trigger_webhook_" + wh.Name, Category: "triggers", Status: "fail",
				Message: fmt.Sprintf("content template: %v", err),
			})
		}
	}
	for _, sched := range trigCfg.Schedules {
		if _, err := cron.ParseStandard(sched.Cron); err != nil {
			results = append(results, CheckResult{
				Name: "trigger_schedule", Category: "triggers", Status: "fail",
				Message: fmt.Sprintf("%q: %v", sched.Cron, err),
				Fix:     "Use a standard 5-field cron expression",
			})
		}
	}
	return results
}
