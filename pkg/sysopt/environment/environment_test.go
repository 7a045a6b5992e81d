package environment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchHypervisor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		product string
		want    string
	}{
		{"VMware Virtual Platform\n", "vmware"},
		{"VirtualBox", "virtualbox"},
		{"Standard PC (Q35 + ICH9, 2009) QEMU", "qemu"},
		{"KVM", "kvm"},
		{"Virtual Machine (Hyper-V)", "hyper-v"},
		{"ThinkPad X1 Carbon Gen 9", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchHypervisor(tt.product))
		})
	}
}

func TestHost_DetectUsesDMIFallback(t *testing.T) {
	t.Parallel()

	dmi := filepath.Join(t.TempDir(), "product_name")
	require.NoError(t, os.WriteFile(dmi, []byte("VirtualBox\n"), 0o644))

	facts, err := Host{DMIPath: dmi}.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, facts.Virtual)
	assert.NotEmpty(t, facts.Hypervisor)
	assert.NotEmpty(t, facts.Kernel)
}

func TestHost_DetectMissingDMI(t *testing.T) {
	t.Parallel()

	_, err := Host{DMIPath: filepath.Join(t.TempDir(), "absent")}.Detect(context.Background())
	assert.NoError(t, err, "a missing DMI file is not an error")
}

func TestHost_FindByNameSelf(t *testing.T) {
	t.Parallel()

	procs, err := Host{}.FindByName(context.Background(), "sysopt-no-such-process")
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestHost_AvailablePercent(t *testing.T) {
	t.Parallel()

	pct, err := Host{}.AvailablePercent(context.Background())
	require.NoError(t, err)
	assert.Greater(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := &Static{
		Processes: []Process{{PID: 30, Name: "nginx"}, {PID: 12, Name: "nginx"}, {PID: 7, Name: "defunct"}},
		Zombie:    map[int32]bool{7: true},
		Available: 42,
	}
	ctx := context.Background()

	got, err := s.FindByName(ctx, "nginx")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(12), got[0].PID)

	zombies, err := s.Zombies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Process{{PID: 7, Name: "defunct"}}, zombies)

	pct, err := s.AvailablePercent(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, pct, 0.001)
	assert.Equal(t, []string{"nginx"}, s.Lookups())
}
