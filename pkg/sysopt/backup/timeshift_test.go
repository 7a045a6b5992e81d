package backup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
)

const listOutput = `Mounted '/dev/sda1' at '/run/timeshift/backup'
Device : /dev/sda1
UUID   : 1b2c
Path   : /run/timeshift/backup
Mode   : RSYNC
Status : OK
2 snapshots, 40.1 GB free

Num     Name                 Tags  Description
------------------------------------------------------------------------------
0    >  2024-01-01_12-00-01  O     before upgrade
1    >  2024-02-01_08-30-00  D
2    >  2024-02-02_09-00-00        sysopt
`

func TestParseTimeshiftList(t *testing.T) {
	t.Parallel()

	got := ParseTimeshiftList(listOutput)
	assert.Equal(t, []SystemSnapshot{
		{Name: "2024-01-01_12-00-01", Tags: "O", Description: "before upgrade"},
		{Name: "2024-02-01_08-30-00", Tags: "D"},
		{Name: "2024-02-02_09-00-00", Description: "sysopt"},
	}, got)

	assert.Nil(t, ParseTimeshiftList("No snapshots found"))
}

func TestTimeshift(t *testing.T) {
	t.Parallel()

	rec := executor.NewRecorder()
	rec.Respond("timeshift --list", listOutput)
	ts := NewTimeshift(rec, nil)

	require.NoError(t, ts.Create(context.Background(), "before upgrade"))
	snaps, err := ts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 3)

	assert.Equal(t, []string{
		"timeshift --create --comments 'before upgrade'",
		"timeshift --list",
	}, rec.Lines())

	rec.Fail("timeshift --create --comments sysopt", errors.New("exit status 1"))
	assert.Error(t, ts.Create(context.Background(), ""))
}
