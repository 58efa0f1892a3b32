package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
)

var listFailedCmd = &cobra.Command{
	Use:   "list-failed",
	Short: "List failed jobs with their last error",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listByStatus(cmd, queue.StatusFailed)
	},
}

var listFlaggedCmd = &cobra.Command{
	Use:   "list-flagged",
	Short: "List QA-flagged jobs with their reasons",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listByStatus(cmd, queue.StatusQAFlagged)
	},
}

func listByStatus(cmd *cobra.Command, status queue.Status) error {
	doc, err := st.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	n := 0
	for _, j := range doc.Jobs {
		if j.Status != status {
			continue
		}
		n++
		fmt.Printf("%s  paper=%s attempts=%d\n", j.ID, j.Paper.ID, j.Attempts)
		if j.LastError != "" {
			fmt.Printf("    %s\n", j.LastError)
		}
		if j.ResultRef != "" {
			fmt.Printf("    artifact: %s\n", j.ResultRef)
		}
	}
	fmt.Printf("%d jobs with status %s\n", n, status)
	return nil
}

func init() {
	rootCmd.AddCommand(listFailedCmd)
	rootCmd.AddCommand(listFlaggedCmd)
}
