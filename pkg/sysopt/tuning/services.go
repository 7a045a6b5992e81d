package tuning

import (
	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

func (p *Pipeline) services(r *categoryRun, c config.ServiceConfig) {
	for _, svc := range c.DisableServices {
		if err := validToken("service", svc); err != nil {
			r.record("systemctl disable --now "+svc, err)
			continue
		}
		r.run(executor.New("systemctl", "disable", "--now", svc))
	}

	if !c.ZombieCleanup.Enable {
		return
	}

	// Detection only: zombies are reported, never killed, and a failed
	// scan does not change the category status.
	zombies, err := p.deps.Processes.Zombies(r.ctx)
	if err != nil {
		r.log.Warn("zombie scan failed", "error", err)
		return
	}
	if len(zombies) == 0 {
		r.log.Info("no zombie processes found")
		return
	}
	for _, z := range zombies {
		r.log.Warn("zombie process detected", "pid", z.PID, "name", z.Name)
	}
}
