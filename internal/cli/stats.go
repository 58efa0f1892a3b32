package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("pending      %d\n", stats.Pending)
		fmt.Printf("in_progress  %d\n", stats.InProgress)
		fmt.Printf("completed    %d\n", stats.Completed)
		fmt.Printf("qa_flagged   %d\n", stats.QAFlagged)
		fmt.Printf("failed       %d\n", stats.Failed)
		fmt.Printf("total        %d\n", stats.Total())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
