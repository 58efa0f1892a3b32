package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/artifacts"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/translator"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/worker"
)

var (
	flagBatchSize   int
	flagConcurrency int
	flagWorkerID    string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run one batch: claim pending jobs, translate, QA-gate, commit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateLLM(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := buildWorker(flagWorkerID)
		if err != nil {
			return err
		}
		report, err := w.Run(ctx)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	},
}

func buildWorker(workerID string) (*worker.Worker, error) {
	trans, err := translator.NewLLMTranslator(&translator.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		Source:      cfg.Translate.SourceLanguage,
		Target:      cfg.Translate.TargetLanguage,
	})
	if err != nil {
		return nil, err
	}

	batchSize := flagBatchSize
	if batchSize <= 0 {
		batchSize = cfg.Worker.BatchSize
	}
	concurrency := flagConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Worker.Concurrency
	}

	writer := artifacts.NewWriter(cfg.Queue.ApprovedDir, cfg.Queue.FlaggedDir)
	return worker.New(st, trans, cfg.QA, writer, worker.Config{
		BatchSize:   batchSize,
		Concurrency: concurrency,
		WorkerID:    workerID,
		JobTimeout:  cfg.Worker.JobTimeout,
		Policy:      cfg.Queue.Policy(),
	}), nil
}

func printReport(r worker.BatchReport) {
	fmt.Printf("worker=%s claimed=%d completed=%d flagged=%d failed=%d lost=%d\n",
		r.WorkerID, r.Claimed, r.Completed, r.Flagged, r.Failed, r.Lost)
}

func init() {
	workCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "Jobs to claim (overrides BATCH_SIZE)")
	workCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Translator calls in flight (overrides CONCURRENCY)")
	workCmd.Flags().StringVar(&flagWorkerID, "worker-id", "", "Worker identity (default: generated)")
	rootCmd.AddCommand(workCmd)
}
