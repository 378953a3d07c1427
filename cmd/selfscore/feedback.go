package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SelfScore/Self-Score-sub000/internal/observability"
	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

// operator is the identity operator commands act as.
var operator = types.Identity{
	UserID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("selfscore-operator")),
	Admin:  true,
}

var retryLimit int

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Inspect and repair interview feedback",
}

var feedbackShowCmd = &cobra.Command{
	Use:   "show <interview-id>",
	Short: "Print the feedback of a completed interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interviewID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid interview id: %w", err)
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
		fb, err := interviews.GetFeedback(ctx, operator, interviewID)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintFeedback(fb)
		return nil
	},
}

var feedbackRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Generate feedback for completed interviews that are missing it",
	Long: `Find COMPLETED interviews without feedback, oldest first, and score them. An
interview that still fails stays without feedback and is reported.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		scorer, closeScorer, err := newScorer(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeScorer()

		interviews, err := newInterviewService(cfg, database, scorer)
		if err != nil {
			return err
		}
		ok, failures, err := interviews.RetryMissingFeedback(ctx, retryLimit)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintRetryReport(ok, failures)
		if len(failures) > 0 {
			return fmt.Errorf("%d interviews still have no feedback", len(failures))
		}
		return nil
	},
}

func init() {
	feedbackRetryCmd.Flags().IntVar(&retryLimit, "limit", 50, "Maximum interviews to process (0 for all)")
	feedbackCmd.AddCommand(feedbackShowCmd, feedbackRetryCmd)
	rootCmd.AddCommand(feedbackCmd)
}
