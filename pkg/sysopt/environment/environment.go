// Package environment answers the runtime questions the tuning pipeline
// asks about the host: virtualization, processes, and free memory.
package environment

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// DefaultDMIPath holds the hardware product name on Linux.
const DefaultDMIPath = "/sys/class/dmi/id/product_name"

// vmKeywords identify hypervisors by DMI product name.
var vmKeywords = []string{"vmware", "virtualbox", "qemu", "kvm", "hyper-v"}

// Facts describes the host at the start of a run.
type Facts struct {
	Virtual    bool   `json:"virtual"`
	Hypervisor string `json:"hypervisor,omitempty"`
	Kernel     string `json:"kernel,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
}

// Detector detects host facts.
type Detector interface {
	Detect(ctx context.Context) (Facts, error)
}

// Process is a running process.
type Process struct {
	PID  int32
	Name string
}

// ProcessTable looks up running processes.
type ProcessTable interface {
	// FindByName returns processes whose name equals name, lowest PID first.
	FindByName(ctx context.Context, name string) ([]Process, error)
	// Zombies returns processes in zombie state.
	Zombies(ctx context.Context) ([]Process, error)
}

// MemoryReader reports live memory availability.
type MemoryReader interface {
	AvailablePercent(ctx context.Context) (float64, error)
}

// Host implements Detector, ProcessTable and MemoryReader against the running
// system using gopsutil.
type Host struct {
	// DMIPath overrides the DMI product name file. Empty uses DefaultDMIPath.
	DMIPath string
}

var (
	_ Detector     = Host{}
	_ ProcessTable = Host{}
	_ MemoryReader = Host{}
)

// Detect reports whether the host is a virtual machine. gopsutil's guest
// role wins; otherwise the DMI product name is matched against known
// hypervisor names.
func (h Host) Detect(ctx context.Context) (Facts, error) {
	var facts Facts

	if system, role, err := host.VirtualizationWithContext(ctx); err == nil && role == "guest" && system != "" {
		facts.Virtual = true
		facts.Hypervisor = system
	}

	if !facts.Virtual {
		path := h.DMIPath
		if path == "" {
			path = DefaultDMIPath
		}
		if data, err := os.ReadFile(path); err == nil {
			if kw := matchHypervisor(string(data)); kw != "" {
				facts.Virtual = true
				facts.Hypervisor = kw
			}
		}
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		facts.Kernel = unix.ByteSliceToString(uts.Release[:])
		facts.Hostname = unix.ByteSliceToString(uts.Nodename[:])
	}

	return facts, nil
}

func matchHypervisor(productName string) string {
	lower := strings.ToLower(productName)
	for _, kw := range vmKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// FindByName returns processes named name, lowest PID first.
func (Host) FindByName(ctx context.Context, name string) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var matches []Process
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// Process exited between listing and inspection.
			continue
		}
		if n == name {
			matches = append(matches, Process{PID: p.Pid, Name: n})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PID < matches[j].PID })
	return matches, nil
}

// Zombies returns processes in zombie state.
func (Host) Zombies(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var zombies []Process
	for _, p := range procs {
		status, err := p.StatusWithContext(ctx)
		if err != nil {
			continue
		}
		for _, s := range status {
			if s == process.Zombie {
				name, _ := p.NameWithContext(ctx)
				zombies = append(zombies, Process{PID: p.Pid, Name: name})
				break
			}
		}
	}
	return zombies, nil
}

// AvailablePercent returns available memory as a percentage of total.
func (Host) AvailablePercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading memory stats: %w", err)
	}
	if vm.Total == 0 {
		return 0, fmt.Errorf("reading memory stats: total memory is zero")
	}
	return float64(vm.Available) / float64(vm.Total) * 100, nil
}

// FreeSpace returns the free and total bytes of the filesystem holding path.
func (Host) FreeSpace(ctx context.Context, path string) (free, total uint64, err error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading disk usage for %s: %w", path, err)
	}
	return usage.Free, usage.Total, nil
}
