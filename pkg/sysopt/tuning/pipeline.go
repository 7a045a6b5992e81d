package tuning

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/sysopt/pkg/sysopt/cleanup"
	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/environment"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// Cleaner removes stale empty entries below one root.
type Cleaner interface {
	Clean(ctx context.Context, root string) (cleanup.Stats, error)
}

// Deps groups the collaborators of a Pipeline. Nil fields get host defaults.
type Deps struct {
	Executor  executor.Executor
	Detector  environment.Detector
	Processes environment.ProcessTable
	Memory    environment.MemoryReader
	Cleaner   Cleaner
	Logging   *logging.Logging
	Clock     func() time.Time

	// DryRun marks the report and makes the default cleaner report
	// deletions without performing them. Commands still go to Executor,
	// which the caller swaps for a recorder.
	DryRun bool
}

// Pipeline runs the tuning categories against one settings document.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *logging.Logger
}

// New creates a pipeline. cfg is read, never modified.
func New(cfg *config.Config, deps Deps) *Pipeline {
	host := environment.Host{}
	if deps.Executor == nil {
		deps.Executor = executor.OS{}
	}
	if deps.Detector == nil {
		deps.Detector = host
	}
	if deps.Processes == nil {
		deps.Processes = host
	}
	if deps.Memory == nil {
		deps.Memory = host
	}
	if deps.Logging == nil {
		deps.Logging = logging.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Cleaner == nil && cfg != nil {
		c := cfg.Disk.UnifiedCleanup
		deps.Cleaner = cleanup.New(cleanup.Options{
			MinAge:          time.Duration(c.MinFileAgeMinutes) * time.Minute,
			RemoveEmptyDirs: c.RemoveEmptyDirs,
			Exclude:         c.Exclude,
			LogPath:         c.LogFilePath,
			DryRun:          deps.DryRun,
			Now:             deps.Clock,
		}, deps.Logging.Get("disk"))
	}

	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logging.Get("pipeline"),
	}
}

// Run executes every category in order and returns the complete report.
// Category failures are reported in the RunReport; the error is reserved
// for runs that cannot start at all.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if p.cfg == nil {
		return nil, ErrNoConfig
	}

	report := &RunReport{
		ID:        uuid.New(),
		StartedAt: p.deps.Clock(),
		DryRun:    p.deps.DryRun,
	}

	facts, err := p.deps.Detector.Detect(ctx)
	if err != nil {
		// Hardware categories stay off when the host cannot be identified.
		p.log.Warn("environment detection failed, treating host as virtual", "error", err)
		facts.Virtual = true
		facts.Hypervisor = "unknown"
	}
	report.Facts = facts

	p.log.Info("optimization started", "run", report.ID, "virtual", facts.Virtual, "kernel", facts.Kernel)

	for _, cat := range Categories {
		report.Results = append(report.Results, p.runCategory(ctx, cat, facts))
	}

	report.FinishedAt = p.deps.Clock()
	pass, skip, fail := report.Counts()
	p.log.Info("optimization finished", "run", report.ID, "pass", pass, "skip", skip, "fail", fail)

	return report, nil
}

// guarded reports whether c must not run on a virtual machine.
func guarded(c Category) bool {
	return c == CategoryCPU || c == CategoryIO || c == CategoryDisk
}

func (p *Pipeline) runCategory(ctx context.Context, cat Category, facts environment.Facts) (result CategoryResult) {
	start := time.Now()
	r := &categoryRun{
		ctx:  ctx,
		cat:  cat,
		exec: p.deps.Executor,
		log:  p.deps.Logging.Get(strings.ToLower(cat.String())),
	}

	defer func() {
		result.Elapsed = time.Since(start)
		r.log.Info(fmt.Sprintf("%s [%s] category %s", result.Status.Marker(), cat.Tag(), result.Status))
	}()

	if guarded(cat) && facts.Virtual {
		reason := "virtualized host"
		if facts.Hypervisor != "" {
			reason += " (" + facts.Hypervisor + ")"
		}
		r.log.Warn(fmt.Sprintf("%s [%s] %s", StatusSkip.Marker(), cat.Tag(), reason))
		return CategoryResult{Category: cat, Status: StatusSkip, Reason: reason}
	}

	defer func() {
		if v := recover(); v != nil {
			r.log.Error("panic while building commands", "panic", v, "stack", string(debug.Stack()))
			r.outcomes = append(r.outcomes, Outcome{
				Command: "internal",
				Error:   fmt.Sprintf("panic: %v", v),
			})
			result = r.result()
		}
	}()

	switch cat {
	case CategoryCPU:
		p.cpu(r, p.cfg.Performance.CPU)
	case CategoryIO:
		p.io(r, p.cfg.Performance.IO)
	case CategoryMemory:
		p.memory(r, p.cfg.Memory)
	case CategoryServices:
		p.services(r, p.cfg.Services)
	case CategorySecurity:
		p.security(r, p.cfg.Security)
	case CategoryDisk:
		p.disk(r, p.cfg.Disk)
	}

	return r.result()
}

// categoryRun collects the outcomes of one category.
type categoryRun struct {
	ctx      context.Context
	cat      Category
	exec     executor.Executor
	log      *logging.Logger
	outcomes []Outcome
}

// run executes cmd, records and logs the outcome, and reports success.
func (r *categoryRun) run(cmd executor.Command) bool {
	if err := r.ctx.Err(); err != nil {
		r.record(cmd.String(), err)
		return false
	}
	res := r.exec.Run(r.ctx, cmd)
	if res.Err != nil {
		r.record(cmd.String(), res.Err)
		return false
	}
	r.record(cmd.String(), nil)
	return true
}

// record adds an outcome for a step that is not a plain command, such as
// a process lookup or a cleanup pass, and logs it like a command.
func (r *categoryRun) record(what string, err error) {
	if err != nil {
		r.outcomes = append(r.outcomes, Outcome{Command: what, Error: err.Error()})
		r.log.Error(fmt.Sprintf("[FAIL] [%s] %s: %v", r.cat.Tag(), what, err))
		return
	}
	r.outcomes = append(r.outcomes, Outcome{Command: what, Succeeded: true})
	r.log.Info(fmt.Sprintf("[PASS] [%s] %s", r.cat.Tag(), what))
}

func (r *categoryRun) result() CategoryResult {
	status := StatusPass
	for _, o := range r.outcomes {
		if !o.Succeeded {
			status = StatusFail
			break
		}
	}
	return CategoryResult{Category: r.cat, Status: status, Detail: r.outcomes}
}
