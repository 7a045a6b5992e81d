package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"plain", New("ufw", "deny", "8888"), "ufw deny 8888"},
		{"no args", New("sync"), "sync"},
		{"stdin", New("tee", "/sys/block/sda/queue/scheduler").WithStdin("deadline\n"), "echo deadline | tee /sys/block/sda/queue/scheduler"},
		{"quoted", New("sed", "-i", "s|a b|c|"), "sed -i 's|a b|c|'"},
		{"empty arg", New("timeshift", "--comments", ""), "timeshift --comments ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	boom := errors.New("exit status 1")
	r.Fail("ufw enable", boom)
	r.Respond("cat /proc/version", "Linux")

	ctx := context.Background()
	res := r.Run(ctx, New("ufw", "enable"))
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, boom)

	res = r.Run(ctx, New("cat", "/proc/version"))
	require.True(t, res.Succeeded())
	assert.Equal(t, "Linux", res.Output)

	assert.Equal(t, []string{"ufw enable", "cat /proc/version"}, r.Lines())
	assert.Len(t, r.Calls(), 2)

	r.Reset()
	assert.Empty(t, r.Calls())
	assert.False(t, r.Run(ctx, New("ufw", "enable")).Succeeded(), "responses survive Reset")
}

func TestOS_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o := OS{Timeout: 5 * time.Second}

	t.Run("success with stdin", func(t *testing.T) {
		t.Parallel()
		res := o.Run(ctx, New("cat").WithStdin("hello\n"))
		require.NoError(t, res.Err)
		assert.Equal(t, "hello", res.Output)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		t.Parallel()
		res := o.Run(ctx, New("false"))
		assert.Error(t, res.Err)
	})

	t.Run("missing program", func(t *testing.T) {
		t.Parallel()
		res := o.Run(ctx, New("sysopt-definitely-not-installed"))
		assert.ErrorIs(t, res.Err, ErrNotFound)
	})
}
