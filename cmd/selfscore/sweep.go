package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SelfScore/Self-Score-sub000/internal/observability"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

var (
	sweepMode   string
	sweepIdle   time.Duration
	sweepReason string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Abandon interviews left IN_PROGRESS with no recent activity",
	Long: `Abandon IN_PROGRESS interviews whose last write is older than --idle.

Voice sessions live in the serving process; when it restarts their interviews stay
IN_PROGRESS until resumed or swept by this command.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepMode, "mode", string(types.ModeVoice), "Interview mode to sweep (TEXT or VOICE)")
	sweepCmd.Flags().DurationVar(&sweepIdle, "idle", 0, "Idle time before abandoning (defaults to VOICE_IDLE_TIMEOUT)")
	sweepCmd.Flags().StringVar(&sweepReason, "reason", "stale interview sweep", "Abandon reason recorded on each interview")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	mode := types.Mode(strings.ToUpper(sweepMode))
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", sweepMode)
	}
	idle := sweepIdle
	if idle <= 0 {
		idle = cfg.Voice.IdleTimeout
	}

	ctx := cmd.Context()
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	interviews, err := newInterviewService(cfg, database, nil)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-idle)
	n, err := interviews.AbandonStale(ctx, mode, cutoff, sweepReason)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSweepReport(mode, cutoff, n)
	return nil
}
