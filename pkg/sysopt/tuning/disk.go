package tuning

import (
	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

func (p *Pipeline) disk(r *categoryRun, c config.DiskConfig) {
	if c.EnableDefrag {
		for _, path := range c.DefragPaths {
			r.run(executor.New("e4defrag", path))
		}
	}

	if !c.UnifiedCleanup.Enable {
		return
	}
	for _, root := range c.UnifiedCleanup.TargetPaths {
		stats, err := p.deps.Cleaner.Clean(r.ctx, root)
		if err == nil {
			r.log.Info("cleanup finished", "root", root, "files", stats.FilesRemoved, "dirs", stats.DirsRemoved, "skipped", stats.Skipped, "missing", stats.Missing)
		}
		r.record("cleanup "+root, err)
	}
}
