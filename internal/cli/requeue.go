package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlane/scribe/internal/core/config"
	"github.com/voxlane/scribe/internal/infra/storage/postgres"
)

var (
	requeueJobID        string
	requeueResetRetries bool
)

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Reset a failed job back to pending so a worker can pick it up again",
	Run:   runRequeue,
}

func init() {
	requeueCmd.Flags().StringVar(&requeueJobID, "job", "", "id of the failed job to requeue")
	requeueCmd.Flags().BoolVar(&requeueResetRetries, "reset-retries", false, "zero the retry counter as well")
	_ = requeueCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	query := `
		UPDATE transcription_jobs
		SET status = 'pending',
		    next_attempt_at = NULL,
		    claimed_by = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'failed'`
	if requeueResetRetries {
		query = `
			UPDATE transcription_jobs
			SET status = 'pending',
			    next_attempt_at = NULL,
			    claimed_by = NULL,
			    retry_count = 0,
			    updated_at = now()
			WHERE id = $1 AND status = 'failed'`
	}

	res, err := db.ExecContext(ctx, query, requeueJobID)
	if err != nil {
		slog.Error("Failed to requeue job", "error", err)
		os.Exit(1)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fmt.Printf("Job %s not found or not in failed state\n", requeueJobID)
		os.Exit(1)
	}

	fmt.Printf("Job %s requeued\n", requeueJobID)
	if cfg.Worker.Mode == config.ModeQueue {
		fmt.Println("Worker runs in queue mode: push a broker message with cmd/enqueue so the job gets delivered")
	}
}
