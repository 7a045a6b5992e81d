package tuning

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
)

// GovernorPath holds the active cpufreq governor of the first CPU.
const GovernorPath = "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor"

// SwappinessPath holds vm.swappiness.
const SwappinessPath = "/proc/sys/vm/swappiness"

// Check is one post-run comparison between configuration and live state.
type Check struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Status   Status   `json:"status"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Verifier reads live host state and compares it with the configuration.
// It never changes anything; Skip means the state could not be read.
type Verifier struct {
	fs   afero.Fs
	exec executor.Executor
	log  *logging.Logger
}

// NewVerifier creates a Verifier. Nil arguments use the host filesystem,
// the OS executor and a silent logger.
func NewVerifier(fs afero.Fs, exec executor.Executor, l *logging.Logging) *Verifier {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if exec == nil {
		exec = executor.OS{}
	}
	if l == nil {
		l = logging.Discard()
	}
	return &Verifier{fs: fs, exec: exec, log: l.Get("verify")}
}

// Verify returns one Check per configured setting, in category order.
func (v *Verifier) Verify(ctx context.Context, cfg *config.Config) []Check {
	var checks []Check
	add := func(c Check) {
		v.log.Info(fmt.Sprintf("%s [%s] verify %s", c.Status.Marker(), c.Category.Tag(), c.Name),
			"expected", c.Expected, "actual", c.Actual)
		checks = append(checks, c)
	}

	cpu := cfg.Performance.CPU
	if cpu.Governor != "" {
		add(v.compareFile(CategoryCPU, "governor", GovernorPath, cpu.Governor, strings.TrimSpace))
	}

	io := cfg.Performance.IO
	if io.Enable {
		device := io.Device
		if device == "" {
			device = config.DefaultIODevice
		}
		scheduler := io.Scheduler
		if scheduler == "" {
			scheduler = config.DefaultIOScheduler
		}
		readAhead := io.ReadAheadKB
		if readAhead == 0 {
			readAhead = config.DefaultReadAheadKB
		}
		add(v.schedulerCheck(SchedulerPath(device), scheduler))
		add(v.compareFile(CategoryIO, "read_ahead_kb", ReadAheadPath(device), strconv.Itoa(readAhead), strings.TrimSpace))
	}

	if cfg.Memory.Swappiness != nil {
		add(v.compareFile(CategoryMemory, "swappiness", SwappinessPath, strconv.Itoa(*cfg.Memory.Swappiness), strings.TrimSpace))
	}

	for _, svc := range cfg.Services.DisableServices {
		add(v.serviceDisabled(ctx, svc))
	}

	sec := cfg.Security
	if sec.Firewall.Enable {
		add(v.firewallActive(ctx))
	}
	if sec.SSH.Configured() {
		path := sec.SSH.ConfigPath
		if path == "" {
			path = config.DefaultSSHConfigPath
		}
		for _, key := range SSHKeys(sec.SSH) {
			if key.Value != nil {
				add(v.sshDirective(path, key.Directive, *key.Value))
			}
		}
	}

	if cl := cfg.Disk.UnifiedCleanup; cl.Enable && cl.LogFilePath != "" {
		add(v.cleanupLog(cl.LogFilePath))
	}

	return checks
}

func (v *Verifier) compareFile(cat Category, name, path, expected string, parse func(string) string) Check {
	c := Check{Category: cat, Name: name, Expected: expected}
	data, err := afero.ReadFile(v.fs, path)
	if err != nil {
		c.Status = StatusSkip
		c.Detail = err.Error()
		return c
	}
	c.Actual = parse(string(data))
	if c.Actual == expected {
		c.Status = StatusPass
	} else {
		c.Status = StatusFail
	}
	return c
}

// schedulerCheck accepts the legacy and blk-mq names of one scheduler as
// equal, so a configured "deadline" matches an active "mq-deadline".
func (v *Verifier) schedulerCheck(path, expected string) Check {
	c := v.compareFile(CategoryIO, "scheduler", path, expected, activeScheduler)
	if c.Status == StatusFail && schedulerName(c.Actual) == schedulerName(expected) {
		c.Status = StatusPass
	}
	return c
}

// schedulerName maps legacy single-queue scheduler names to their blk-mq
// equivalents.
func schedulerName(s string) string {
	switch s {
	case "deadline":
		return "mq-deadline"
	case "noop":
		return "none"
	}
	return s
}

// activeScheduler extracts "deadline" from "noop [deadline] cfq".
func activeScheduler(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '[')
	end := strings.IndexByte(s, ']')
	if start >= 0 && end > start {
		return s[start+1 : end]
	}
	return s
}

func (v *Verifier) serviceDisabled(ctx context.Context, svc string) Check {
	c := Check{Category: CategoryServices, Name: svc, Expected: "disabled"}
	// is-enabled exits non-zero for disabled units, so only the output counts.
	res := v.exec.Run(ctx, executor.New("systemctl", "is-enabled", svc))
	state := strings.TrimSpace(res.Output)
	if state == "" {
		c.Status = StatusSkip
		if res.Err != nil {
			c.Detail = res.Err.Error()
		}
		return c
	}
	c.Actual = state
	switch state {
	case "disabled", "masked", "not-found":
		c.Status = StatusPass
	default:
		c.Status = StatusFail
	}
	return c
}

func (v *Verifier) firewallActive(ctx context.Context) Check {
	c := Check{Category: CategorySecurity, Name: "firewall", Expected: "active"}
	res := v.exec.Run(ctx, executor.New("ufw", "status"))
	if res.Err != nil {
		c.Status = StatusSkip
		c.Detail = res.Err.Error()
		return c
	}
	c.Actual = "inactive"
	if strings.Contains(res.Output, "Status: active") {
		c.Actual = "active"
		c.Status = StatusPass
	} else {
		c.Status = StatusFail
	}
	return c
}

func (v *Verifier) sshDirective(path, directive, expected string) Check {
	c := Check{Category: CategorySecurity, Name: directive, Expected: expected}
	data, err := afero.ReadFile(v.fs, path)
	if err != nil {
		c.Status = StatusSkip
		c.Detail = err.Error()
		return c
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// sshd uses the first value it reads for a keyword.
		if len(fields) >= 2 && fields[0] == directive {
			c.Actual = fields[1]
			break
		}
	}
	if c.Actual == expected {
		c.Status = StatusPass
	} else {
		c.Status = StatusFail
	}
	return c
}

func (v *Verifier) cleanupLog(path string) Check {
	c := Check{Category: CategoryDisk, Name: "cleanup log", Expected: "present"}
	info, err := v.fs.Stat(path)
	if err != nil {
		// Nothing deleted yet is indistinguishable from cleanup not running.
		c.Status = StatusSkip
		c.Detail = err.Error()
		return c
	}
	c.Actual = fmt.Sprintf("%d bytes", info.Size())
	c.Status = StatusPass
	return c
}

// Summary counts checks per status.
func Summary(checks []Check) (pass, skip, fail int) {
	for _, c := range checks {
		switch c.Status {
		case StatusPass:
			pass++
		case StatusSkip:
			skip++
		case StatusFail:
			fail++
		}
	}
	return pass, skip, fail
}
