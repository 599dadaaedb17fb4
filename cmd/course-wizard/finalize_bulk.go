package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var finalizeBulkEvery time.Duration

var finalizeBulkJobsCmd = &cobra.Command{
	Use:   "finalize-bulk-jobs",
	Short: "Fan out pending bulk sub-jobs and close completed bulk jobs",
	Run: func(cmd *cobra.Command, args []string) {
		runBatch("course-wizard-finalize-bulk-jobs", finalizeBulkEvery, func(ctx context.Context, w *wiring) error {
			return w.finalizer.Run(ctx)
		})
	},
}

func init() {
	finalizeBulkJobsCmd.Flags().DurationVar(&finalizeBulkEvery, "every", 0, "keep running a pass on this cadence instead of exiting")
}
