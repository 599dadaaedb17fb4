package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var processJobsEvery time.Duration

var processJobsCmd = &cobra.Command{
	Use:   "process-jobs",
	Short: "Advance in-flight course creation jobs",
	Run: func(cmd *cobra.Command, args []string) {
		runBatch("course-wizard-process-jobs", processJobsEvery, func(ctx context.Context, w *wiring) error {
			return w.poller.Run(ctx)
		})
	},
}

func init() {
	processJobsCmd.Flags().DurationVar(&processJobsEvery, "every", 0, "keep running a pass on this cadence instead of exiting")
}
