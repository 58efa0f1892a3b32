package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
)

var recordsPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build the queue from a harvested records file",
	Long: "Creates one pending job per record. Job ids are derived from the record ids,\n" +
		"so running init again with the same records adds nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := recordsPath
		if path == "" {
			path = cfg.Queue.RecordsPath
		}
		records, err := papers.LoadRecords(path)
		if err != nil {
			return err
		}

		now := time.Now()
		jobs := make([]queue.Job, 0, len(records))
		for _, p := range records {
			jobs = append(jobs, queue.NewJob(p, now))
		}

		added, err := st.Seed(cmd.Context(), jobs)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d records, added %d new jobs\n", len(records), added)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&recordsPath, "records", "", "Records file (overrides RECORDS_PATH)")
	rootCmd.AddCommand(initCmd)
}
