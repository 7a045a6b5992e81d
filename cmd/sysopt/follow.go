package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/logging"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/progress"
)

var followCmd = &cobra.Command{
	Use:   "follow [log-file]",
	Short: "Follow tuning progress in the log",
	Long: `Print tuning progress as another sysopt process writes it.

Only [PASS], [SKIP] and [FAIL] lines are shown unless --all is given.
The log is reopened when it is rotated or recreated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFollow,
}

var (
	followAll       bool
	followFromStart bool
)

func init() {
	followCmd.Flags().BoolVarP(&followAll, "all", "a", false, "print every log line")
	followCmd.Flags().BoolVar(&followFromStart, "from-start", false, "start at the beginning of the file")
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		s, err := openSession(false)
		if err != nil {
			return err
		}
		path = s.cfg.Logging.LogFilePath
		s.close()
		if path == "" {
			path = logging.DefaultLogPath()
		}
	}
	if path == "" {
		return errors.New("no log file to follow")
	}

	f, err := progress.NewFollower(path, followFromStart)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printInfo("Following %s (Ctrl+C to stop)", path)

	if followAll {
		err = f.Run(ctx, func(line string) { fmt.Fprintln(out, line) })
	} else {
		err = f.Events(ctx, func(ev progress.Event) {
			fmt.Fprintf(out, "%s [%s] %s\n",
				output.StatusStyle(ev.Status).Render(ev.Status.Marker()), ev.Category.Tag(), ev.Text)
		})
	}
	if errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
