package tuning

import (
	"fmt"
	"strconv"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

// Memory is the only category that branches on live host state: the
// cache drop guarded by low_memory_threshold_percent.
func (p *Pipeline) memory(r *categoryRun, c config.MemoryConfig) {
	if c.Swappiness != nil {
		if *c.Swappiness < 0 || *c.Swappiness > 200 {
			r.record("validate swappiness", fmt.Errorf("%w: swappiness %d", ErrInvalidValue, *c.Swappiness))
		} else {
			r.run(executor.New("sysctl", "-w", "vm.swappiness="+strconv.Itoa(*c.Swappiness)))
		}
	}

	if c.DropCachesOnSchedule {
		mode := c.DropCacheMode
		if mode == "" {
			mode = config.DefaultDropCacheMode
		}
		if mode != "1" && mode != "2" && mode != "3" {
			r.record("validate drop_cache_mode", fmt.Errorf("%w: drop_cache_mode %q", ErrInvalidValue, mode))
		} else {
			dropCaches(r, mode)
		}
	}

	if c.LowMemoryThresholdPercent == nil {
		return
	}
	threshold := *c.LowMemoryThresholdPercent
	available, err := p.deps.Memory.AvailablePercent(r.ctx)
	if err != nil {
		r.record("read memory availability", err)
		return
	}
	r.log.Info("memory availability", "available_percent", fmt.Sprintf("%.2f", available), "threshold_percent", threshold)
	if available < threshold {
		r.log.Info("available memory below threshold, dropping caches")
		dropCaches(r, "3")
	}
}

func dropCaches(r *categoryRun, mode string) {
	if !r.run(executor.New("sync")) {
		return
	}
	r.run(executor.New("sysctl", "-w", "vm.drop_caches="+mode))
}
