package tuning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/config"
	"github.com/jamesainslie/sysopt/pkg/sysopt/environment"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		want     SchedulerPolicy
		flag     string
		realtime bool
		wantErr  bool
	}{
		{"SCHED_FIFO", PolicyFIFO, "-f", true, false},
		{"sched_rr", PolicyRR, "-r", true, false},
		{"BATCH", PolicyBatch, "-b", false, false},
		{"SCHED_IDLE", PolicyIdle, "-i", false, false},
		{"SCHED_OTHER", PolicyOther, "-o", false, false},
		{"SCHED_DEADLINE", "", "", false, true},
		{"", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownPolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.flag, got.Flag())
			assert.Equal(t, tt.realtime, got.Realtime())
		})
	}
}

func TestCPU_Commands(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Performance.CPU = config.CPUConfig{
		Governor:              "performance",
		PriorityProcesses:     []string{"nginx"},
		Nice:                  -5,
		EnableSchedulerTuning: true,
		SchedulerPolicy:       "SCHED_FIFO",
		SchedulerPriority:     50,
		TargetProcesses:       []string{"nginx"},
	}

	h := newHarness(t, nginxHost())
	report := h.run(t, cfg)

	assert.Equal(t, StatusPass, status(t, report, CategoryCPU))
	assert.Equal(t, []string{
		"cpupower frequency-set -g performance",
		"renice -n -5 -p 811",
		"chrt -f -p 50 811",
	}, h.rec.Lines(), "lowest PID wins when several processes match")
}

func TestCPU_NonRealtimePolicyUsesZeroPriority(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Performance.CPU = config.CPUConfig{
		EnableSchedulerTuning: true,
		SchedulerPolicy:       "SCHED_BATCH",
		SchedulerPriority:     50,
		TargetProcesses:       []string{"nginx"},
	}

	h := newHarness(t, nginxHost())
	h.run(t, cfg)
	assert.Equal(t, []string{"chrt -b -p 0 811"}, h.rec.Lines())
}

func TestCPU_UnknownPolicyFailsWithoutChrt(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Performance.CPU = config.CPUConfig{
		PriorityProcesses:     []string{"nginx"},
		EnableSchedulerTuning: true,
		SchedulerPolicy:       "SCHED_TURBO",
		TargetProcesses:       []string{"nginx", "postgres"},
	}

	h := newHarness(t, nginxHost())
	report := h.run(t, cfg)

	cpu, _ := report.Result(CategoryCPU)
	assert.Equal(t, StatusFail, cpu.Status)
	for _, line := range h.rec.Lines() {
		assert.NotContains(t, line, "chrt")
	}
	assert.Equal(t, []string{"nginx"}, h.env.Lookups(), "target processes are never resolved")
	require.NotEmpty(t, cpu.Failed())
	assert.Contains(t, cpu.Failed()[0].Error, "SCHED_TURBO")
}

func TestCPU_MissingProcessFails(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Performance.CPU.PriorityProcesses = []string{"postgres", "nginx"}
	cfg.Performance.CPU.Nice = -5

	h := newHarness(t, nginxHost())
	report := h.run(t, cfg)

	cpu, _ := report.Result(CategoryCPU)
	assert.Equal(t, StatusFail, cpu.Status)
	require.Len(t, cpu.Detail, 2)
	assert.Equal(t, "find process postgres", cpu.Detail[0].Command)
	assert.Contains(t, cpu.Detail[0].Error, ErrProcessNotFound.Error())
	assert.True(t, cpu.Detail[1].Succeeded, "remaining processes are still reniced")
}

func TestIO_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		io       config.IOConfig
		want     []string
		wantFail bool
	}{
		{
			name: "disabled",
			io:   config.IOConfig{Scheduler: "none"},
			want: nil,
		},
		{
			name: "defaults",
			io:   config.IOConfig{Enable: true},
			want: []string{
				"echo deadline | tee /sys/block/sda/queue/scheduler",
				"blockdev --setra 256 /dev/sda",
			},
		},
		{
			name: "custom device",
			io:   config.IOConfig{Enable: true, Device: "nvme0n1", Scheduler: "mq-deadline", ReadAheadKB: 512},
			want: []string{
				"echo mq-deadline | tee /sys/block/nvme0n1/queue/scheduler",
				"blockdev --setra 1024 /dev/nvme0n1",
			},
		},
		{
			name:     "device traversal rejected",
			io:       config.IOConfig{Enable: true, Device: "../sda"},
			want:     nil,
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.Performance.IO = tt.io

			h := newHarness(t, physical())
			report := h.run(t, cfg)

			assert.Equal(t, tt.want, h.rec.Lines())
			if tt.wantFail {
				assert.Equal(t, StatusFail, status(t, report, CategoryIO))
			} else {
				assert.Equal(t, StatusPass, status(t, report, CategoryIO))
			}
		})
	}
}

func TestMemory_Commands(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Memory = config.MemoryConfig{Swappiness: intPtr(10), DropCachesOnSchedule: true, DropCacheMode: "2"}

	h := newHarness(t, physical())
	report := h.run(t, cfg)

	assert.Equal(t, StatusPass, status(t, report, CategoryMemory))
	assert.Equal(t, []string{
		"sysctl -w vm.swappiness=10",
		"sync",
		"sysctl -w vm.drop_caches=2",
	}, h.rec.Lines())
}

func TestMemory_InvalidDropMode(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Memory = config.MemoryConfig{DropCachesOnSchedule: true, DropCacheMode: "3; reboot"}

	h := newHarness(t, physical())
	report := h.run(t, cfg)

	assert.Equal(t, StatusFail, status(t, report, CategoryMemory))
	assert.Empty(t, h.rec.Calls())
}

func TestMemory_Threshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		available float64
		memErr    error
		want      []string
		status    Status
	}{
		{"below threshold drops caches", 9.5, nil, []string{"sync", "sysctl -w vm.drop_caches=3"}, StatusPass},
		{"above threshold does nothing", 60, nil, nil, StatusPass},
		{"memory read failure fails category", 0, errors.New("meminfo unreadable"), nil, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := physical()
			env.Available = tt.available
			env.MemErr = tt.memErr

			cfg := &config.Config{}
			cfg.Memory.LowMemoryThresholdPercent = floatPtr(15)

			h := newHarness(t, env)
			report := h.run(t, cfg)

			assert.Equal(t, tt.want, h.rec.Lines())
			assert.Equal(t, tt.status, status(t, report, CategoryMemory))
		})
	}
}

func TestMemory_SyncFailureSkipsDrop(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Memory = config.MemoryConfig{DropCachesOnSchedule: true, DropCacheMode: "3"}

	h := newHarness(t, physical())
	h.rec.Fail("sync", errors.New("exit status 1"))
	report := h.run(t, cfg)

	assert.Equal(t, StatusFail, status(t, report, CategoryMemory))
	assert.Equal(t, []string{"sync"}, h.rec.Lines())
}

func TestServices_ZombiesOnlyLogged(t *testing.T) {
	t.Parallel()

	env := physical()
	env.Processes = []environment.Process{{PID: 99, Name: "defunct-worker"}}
	env.Zombie = map[int32]bool{99: true}

	cfg := &config.Config{}
	cfg.Services.DisableServices = []string{"cups", "bluetooth"}
	cfg.Services.ZombieCleanup.Enable = true

	h := newHarness(t, env)
	report := h.run(t, cfg)

	assert.Equal(t, StatusPass, status(t, report, CategoryServices))
	assert.Equal(t, []string{
		"systemctl disable --now cups",
		"systemctl disable --now bluetooth",
	}, h.rec.Lines(), "zombies are never killed")
	assert.Contains(t, h.log.String(), "zombie process detected")
	assert.Contains(t, h.log.String(), "pid=99")
}

func TestServices_ZombieScanErrorKeepsStatus(t *testing.T) {
	t.Parallel()

	env := physical()
	env.ProcErr = errors.New("permission denied")

	cfg := &config.Config{}
	cfg.Services.ZombieCleanup.Enable = true

	h := newHarness(t, env)
	report := h.run(t, cfg)

	assert.Equal(t, StatusPass, status(t, report, CategoryServices))
	assert.Contains(t, h.log.String(), "zombie scan failed")
}

func TestSecurity_Commands(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Security.Firewall = config.FirewallConfig{
		Enable:           true,
		BlockedPorts:     []int{8888, 9999},
		AllowedPorts:     []int{22},
		DenyAllByDefault: true,
	}
	cfg.Security.SSH = config.SSHConfig{
		ConfigPath:      "/etc/ssh/sshd_config",
		Service:         "ssh",
		PermitRootLogin: strPtr("no"),
		MaxAuthTries:    strPtr("3"),
	}

	h := newHarness(t, physical())
	report := h.run(t, cfg)

	assert.Equal(t, StatusPass, status(t, report, CategorySecurity))
	assert.Equal(t, []string{
		"ufw default deny incoming",
		"ufw default allow outgoing",
		"ufw deny 8888",
		"ufw deny 9999",
		"ufw allow 22",
		"ufw --force enable",
		"sed -i -E 's|^[#[:space:]]*PermitRootLogin[[:space:]]+.*|PermitRootLogin no|' /etc/ssh/sshd_config",
		"sed -i -E 's|^[#[:space:]]*MaxAuthTries[[:space:]]+.*|MaxAuthTries 3|' /etc/ssh/sshd_config",
		"systemctl restart ssh",
	}, h.rec.Lines())
}

func TestSecurity_RejectsUnsafeValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Security.Firewall = config.FirewallConfig{Enable: true, BlockedPorts: []int{70000}}
	cfg.Security.SSH = config.SSHConfig{PermitRootLogin: strPtr("yes|e"), Protocol: strPtr("2")}

	h := newHarness(t, physical())
	report := h.run(t, cfg)

	sec, _ := report.Result(CategorySecurity)
	assert.Equal(t, StatusFail, sec.Status)
	assert.Len(t, sec.Failed(), 2)

	lines := h.rec.Lines()
	assert.NotContains(t, lines, "ufw deny 70000")
	assert.Contains(t, lines, "systemctl restart sshd", "restart follows any configured key")
	for _, l := range lines {
		assert.NotContains(t, l, "yes|e")
	}
}

func TestSecurity_NoSSHKeysNoRestart(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Security.SSH.ConfigPath = "/etc/ssh/sshd_config"

	h := newHarness(t, physical())
	h.run(t, cfg)
	assert.Empty(t, h.rec.Calls())
}

func TestDisk_Defrag(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Disk.EnableDefrag = true
	cfg.Disk.DefragPaths = []string{"/home", "/var"}

	h := newHarness(t, physical())
	h.rec.Fail("e4defrag /var", errors.New("not ext4"))
	report := h.run(t, cfg)

	assert.Equal(t, StatusFail, status(t, report, CategoryDisk))
	assert.Equal(t, []string{"e4defrag /home", "e4defrag /var"}, h.rec.Lines())
}

func TestCategory_Text(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		text, err := c.MarshalText()
		require.NoError(t, err)

		var back Category
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c, back)
	}
	assert.Equal(t, "MEMORY", CategoryMemory.Tag())

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("SKIP")))
	assert.Equal(t, StatusSkip, s)
	assert.Equal(t, "[SKIP]", s.Marker())
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
}
