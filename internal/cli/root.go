package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/config"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
)

var (
	cfg *config.Config
	st  queue.Store

	queuePath    string
	queueBackend string
)

var rootCmd = &cobra.Command{
	Use:   "chinaxivd",
	Short: "Batch translation queue for ChinaXiv papers.",
	Long: "chinaxivd coordinates the translation of harvested ChinaXiv records across\n" +
		"independent worker processes through a single versioned queue document.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if st != nil {
			return nil
		}
		c, err := config.New()
		if err != nil {
			return err
		}
		if queuePath != "" {
			c.Queue.Path = queuePath
		}
		if queueBackend != "" {
			c.Queue.Backend = queueBackend
		}
		cfg = c

		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		st = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closer, ok := st.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	},
}

func openStore(c *config.Config) (queue.Store, error) {
	switch c.Queue.Backend {
	case "file":
		return queue.NewFileStore(c.Queue.Path), nil
	case "sqlite":
		return queue.NewSQLiteStore(c.Queue.Path)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&queuePath, "queue", "", "Path of the queue document or database (overrides QUEUE_PATH)")
	rootCmd.PersistentFlags().StringVar(&queueBackend, "backend", "", "Queue backend: file or sqlite (overrides QUEUE_BACKEND)")
}
