package tuning

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

// tokenRe matches values that are safe as a single argument or path element.
var tokenRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validToken(what, v string) error {
	if !tokenRe.MatchString(v) {
		return fmt.Errorf("%w: %s %q", ErrInvalidValue, what, v)
	}
	return nil
}

func (p *Pipeline) io(r *categoryRun, c config.IOConfig) {
	if !c.Enable {
		return
	}

	device := c.Device
	if device == "" {
		device = config.DefaultIODevice
	}
	if err := validToken("device", device); err != nil {
		r.record("validate io.device", err)
		return
	}

	scheduler := c.Scheduler
	if scheduler == "" {
		scheduler = config.DefaultIOScheduler
	}
	if err := validToken("scheduler", scheduler); err != nil {
		r.record("validate io.scheduler", err)
	} else {
		r.run(executor.New("tee", SchedulerPath(device)).WithStdin(scheduler + "\n"))
	}

	readAhead := c.ReadAheadKB
	if readAhead == 0 {
		readAhead = config.DefaultReadAheadKB
	}
	if readAhead < 0 {
		r.record("validate io.read_ahead_kb", fmt.Errorf("%w: read_ahead_kb %d", ErrInvalidValue, readAhead))
		return
	}
	// blockdev counts 512-byte sectors.
	r.run(executor.New("blockdev", "--setra", strconv.Itoa(readAhead*2), "/dev/"+device))
}

// SchedulerPath is the sysfs file holding the block scheduler of device.
func SchedulerPath(device string) string {
	return "/sys/block/" + device + "/queue/scheduler"
}

// ReadAheadPath is the sysfs file holding the read-ahead of device in KiB.
func ReadAheadPath(device string) string {
	return "/sys/block/" + device + "/queue/read_ahead_kb"
}
