package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysopt/pkg/sysopt/executor"
	"github.com/jamesainslie/sysopt/pkg/sysopt/output"
	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare live state with the settings",
	Long: `Read the governor, I/O scheduler, swappiness, service and firewall state
and sshd directives, and compare each with the configured value.

Nothing is changed. A check is skipped when its state cannot be read.
The exit status is non-zero when any check failed.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	checks := tuning.NewVerifier(afero.NewOsFs(), executor.OS{}, s.logs).Verify(cmd.Context(), s.cfg)
	if checks == nil {
		checks = []tuning.Check{}
	}
	if err := render(&output.Document{Checks: checks}); err != nil {
		return err
	}

	if _, _, fail := tuning.Summary(checks); fail > 0 {
		return errRunFailed
	}
	return nil
}
