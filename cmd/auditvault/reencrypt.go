package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
	"github.com/spounge-ai/auditvault/internal/wiring"
)

var reencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Manage background re-encryption jobs",
}

var (
	reencryptBatchSize  int
	reencryptThrottleMs int

	reencryptStartCmd = &cobra.Command{
		Use:   "start <from-kid> <to-kid>",
		Short: "Start a resumable re-encryption job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				job, err := deps.Jobs.Start(ctx, args[0], args[1], reencryptBatchSize, reencryptThrottleMs, resolveActor())
				if err != nil {
					return err
				}
				color.Green("Started job %s (%s -> %s, batch %d, throttle %dms)",
					job.ID, job.FromKid, job.ToKid, job.BatchSize, job.ThrottleMs)
				return nil
			})
		},
	}

	reencryptStatusCmd = &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the state of a re-encryption job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				job, err := deps.Jobs.Get(ctx, id)
				if err != nil {
					return err
				}
				printJob(job)
				return nil
			})
		},
	}

	reencryptCancelCmd = &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running re-encryption job between batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				switch err := deps.Jobs.Cancel(ctx, id); {
				case errors.Is(err, apperrors.ErrJobTerminal):
					color.Yellow("Job %s is already terminal; nothing to cancel", id)
					return nil
				case err != nil:
					return err
				}
				color.Green("Canceled job %s", id)
				return nil
			})
		},
	}

	reencryptBatchLimit int

	reencryptBatchCmd = &cobra.Command{
		Use:   "batch <from-kid> <to-kid>",
		Short: "Run a single re-encryption batch synchronously",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				result, err := deps.Rotation.ReencryptBatch(ctx, args[0], args[1], reencryptBatchLimit)
				if err != nil {
					return err
				}
				fmt.Printf("Processed %d records (done=%t)\n", result.Processed, result.Done)
				return nil
			})
		},
	}
)

func init() {
	reencryptStartCmd.Flags().IntVar(&reencryptBatchSize, "batch-size", 200, "records per batch (1..5000)")
	reencryptStartCmd.Flags().IntVar(&reencryptThrottleMs, "throttle-ms", 25, "per-record sleep between batches (0..10000)")
	reencryptBatchCmd.Flags().IntVar(&reencryptBatchLimit, "limit", 200, "records in the batch (1..5000)")

	reencryptCmd.AddCommand(reencryptStartCmd)
	reencryptCmd.AddCommand(reencryptStatusCmd)
	reencryptCmd.AddCommand(reencryptCancelCmd)
	reencryptCmd.AddCommand(reencryptBatchCmd)
}

func printJob(job *domain.ReencryptJob) {
	statusColor := color.New(color.FgYellow)
	switch job.Status {
	case domain.JobDone:
		statusColor = color.New(color.FgGreen)
	case domain.JobFailed, domain.JobCanceled:
		statusColor = color.New(color.FgRed)
	}

	fmt.Printf("Job %s: %s\n", job.ID, statusColor.Sprint(string(job.Status)))
	fmt.Printf("  %s -> %s, batch %d, throttle %dms, requested by %s\n",
		job.FromKid, job.ToKid, job.BatchSize, job.ThrottleMs, job.RequestedBy)
	fmt.Printf("  processed %d records\n", job.Processed)
	if cp := job.Checkpoint(); cp != nil {
		fmt.Printf("  checkpoint (%s, %s)\n", cp.CreatedAt.Format(time.RFC3339Nano), cp.ID)
	}
	if job.LastError != "" {
		color.Red("  last error: %s", job.LastError)
	}
}
