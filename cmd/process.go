package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/document"
	"github.com/sells-group/ledger-intake/internal/model"
)

var (
	processConcurrency int
	processUserID      string
)

var processCmd = &cobra.Command{
	Use:   "process <document-id>...",
	Short: "Process one or more uploaded documents",
	Long:  "Runs extraction, tenant attribution and ledger materialization for each document id and prints the results as JSON lines.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initIntake(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		if processUserID != "" {
			ctx = document.WithActor(ctx, model.Actor{UserID: processUserID})
		}

		concurrency := processConcurrency
		if concurrency == 0 {
			concurrency = cfg.Processing.Concurrency
		}

		results := env.Processor.ProcessBatch(ctx, args, concurrency)

		enc := json.NewEncoder(os.Stdout)
		failed := 0
		for _, r := range results {
			if !r.Result.Success {
				failed++
			}
			if err := enc.Encode(r); err != nil {
				return eris.Wrap(err, "write result")
			}
		}

		zap.L().Info("batch complete",
			zap.Int("documents", len(results)),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("%d of %d documents failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	processCmd.Flags().StringVar(&processUserID, "user", "", "act as this user when listing accessible tenants")
	rootCmd.AddCommand(processCmd)
}
