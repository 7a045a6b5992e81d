package tuning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

// SchedulerPolicy is a Linux scheduling policy accepted by chrt.
type SchedulerPolicy string

// Supported scheduling policies.
const (
	PolicyFIFO  SchedulerPolicy = "FIFO"
	PolicyRR    SchedulerPolicy = "RR"
	PolicyBatch SchedulerPolicy = "BATCH"
	PolicyIdle  SchedulerPolicy = "IDLE"
	PolicyOther SchedulerPolicy = "OTHER"
)

var policyFlags = map[SchedulerPolicy]string{
	PolicyFIFO:  "-f",
	PolicyRR:    "-r",
	PolicyBatch: "-b",
	PolicyIdle:  "-i",
	PolicyOther: "-o",
}

// ParsePolicy accepts "SCHED_FIFO" or "fifo" style names.
func ParsePolicy(s string) (SchedulerPolicy, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "SCHED_")
	p := SchedulerPolicy(name)
	if _, ok := policyFlags[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// Flag returns the chrt flag selecting the policy.
func (p SchedulerPolicy) Flag() string {
	return policyFlags[p]
}

// Realtime reports whether the policy takes a non-zero priority.
func (p SchedulerPolicy) Realtime() bool {
	return p == PolicyFIFO || p == PolicyRR
}

func (p *Pipeline) cpu(r *categoryRun, c config.CPUConfig) {
	if c.Governor != "" {
		r.run(executor.New("cpupower", "frequency-set", "-g", c.Governor))
	}

	for _, name := range c.PriorityProcesses {
		pid, ok := p.resolve(r, name)
		if !ok {
			continue
		}
		r.run(executor.New("renice", "-n", strconv.Itoa(c.Nice), "-p", pid))
	}

	if !c.EnableSchedulerTuning {
		return
	}

	policy, err := ParsePolicy(c.SchedulerPolicy)
	if err != nil {
		r.record("chrt", err)
		return
	}

	priority := 0
	if policy.Realtime() {
		priority = c.SchedulerPriority
	}
	for _, name := range c.TargetProcesses {
		pid, ok := p.resolve(r, name)
		if !ok {
			continue
		}
		r.run(executor.New("chrt", policy.Flag(), "-p", strconv.Itoa(priority), pid))
	}
}

// resolve finds the process named name. Zero matches is a failed outcome;
// several matches use the lowest PID.
func (p *Pipeline) resolve(r *categoryRun, name string) (string, bool) {
	procs, err := p.deps.Processes.FindByName(r.ctx, name)
	if err != nil {
		r.record("find process "+name, err)
		return "", false
	}
	if len(procs) == 0 {
		r.record("find process "+name, ErrProcessNotFound)
		return "", false
	}
	if len(procs) > 1 {
		r.log.Warn("several processes match, using lowest pid", "name", name, "count", len(procs), "pid", procs[0].PID)
	}
	return strconv.Itoa(int(procs[0].PID)), true
}
