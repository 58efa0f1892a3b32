package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
)

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Return failed jobs to pending (attempts preserved)",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := queue.RetryFailed(cmd.Context(), st, cfg.Queue.Policy())
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d failed jobs\n", n)
		return nil
	},
}

var retryFlaggedCmd = &cobra.Command{
	Use:   "retry-flagged",
	Short: "Return QA-flagged jobs to pending (attempts preserved)",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := queue.RetryFlagged(cmd.Context(), st, cfg.Queue.Policy())
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d flagged jobs\n", n)
		return nil
	},
}

var stuckTimeout time.Duration

var resetStuckCmd = &cobra.Command{
	Use:   "reset-stuck",
	Short: "Reclaim in_progress jobs whose claim exceeded the timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout := stuckTimeout
		if timeout <= 0 {
			timeout = cfg.Orchestrator.ReclaimTimeout
		}
		n, err := queue.Reclaim(cmd.Context(), st, timeout, time.Now(), cfg.Queue.Policy())
		if err != nil {
			return err
		}
		fmt.Printf("Reclaimed %d stuck jobs\n", n)
		return nil
	},
}

func init() {
	resetStuckCmd.Flags().DurationVar(&stuckTimeout, "timeout", 0, "Claim age before a job counts as stuck (overrides RECLAIM_TIMEOUT)")
	rootCmd.AddCommand(retryFailedCmd)
	rootCmd.AddCommand(retryFlaggedCmd)
	rootCmd.AddCommand(resetStuckCmd)
}
