package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// jobStatsCollector reads job counts straight from the store at scrape
// time, the same numbers the batch passes log.
type jobStatsCollector struct {
	store          store.Store
	longRunningAge time.Duration

	courseJobs          *prometheus.Desc
	bulkJobs            *prometheus.Desc
	longRunningCourse   *prometheus.Desc
	longRunningBulkJobs *prometheus.Desc
}

func NewJobStatsCollector(s store.Store, longRunningAge time.Duration) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_%s", courseWizard, name)
	}

	return &jobStatsCollector{
		store:          s,
		longRunningAge: longRunningAge,
		courseJobs: prometheus.NewDesc(
			fqName("course_jobs"),
			"Number of course creation jobs by workflow state.",
			[]string{"workflow_state"},
			prometheus.Labels{},
		),
		bulkJobs: prometheus.NewDesc(
			fqName("bulk_jobs"),
			"Number of bulk creation jobs by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		longRunningCourse: prometheus.NewDesc(
			fqName("long_running_course_jobs"),
			"Course jobs stuck in a non-terminal state past the age threshold.",
			nil,
			prometheus.Labels{},
		),
		longRunningBulkJobs: prometheus.NewDesc(
			fqName("long_running_bulk_jobs"),
			"Bulk jobs not yet notified past the age threshold.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.courseJobs
	ch <- c.bulkJobs
	ch <- c.longRunningCourse
	ch <- c.longRunningBulkJobs
}

// Collect implements Collector.
func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	log := zap.S().Named("job_stats_collector")

	states, err := c.store.CourseJob().CountByState(ctx)
	if err != nil {
		log.Errorf("failed to collect course job statistics: %s", err)
		return
	}
	for state, total := range states {
		ch <- prometheus.MustNewConstMetric(c.courseJobs, prometheus.GaugeValue, float64(total), string(state))
	}

	statuses, err := c.store.BulkJob().CountByStatus(ctx)
	if err != nil {
		log.Errorf("failed to collect bulk job statistics: %s", err)
		return
	}
	for status, total := range statuses {
		ch <- prometheus.MustNewConstMetric(c.bulkJobs, prometheus.GaugeValue, float64(total), string(status))
	}

	cutoff := time.Now().Add(-c.longRunningAge)
	if count, err := c.store.CourseJob().CountLongRunning(ctx, cutoff); err == nil {
		ch <- prometheus.MustNewConstMetric(c.longRunningCourse, prometheus.GaugeValue, float64(count))
	} else {
		log.Errorf("failed to count long-running course jobs: %s", err)
	}
	if count, err := c.store.BulkJob().CountLongRunning(ctx, cutoff); err == nil {
		ch <- prometheus.MustNewConstMetric(c.longRunningBulkJobs, prometheus.GaugeValue, float64(count))
	} else {
		log.Errorf("failed to count long-running bulk jobs: %s", err)
	}
}

// RegisterJobStatsCollector wires the store-backed collector into the
// default registry. Call once at server start.
func RegisterJobStatsCollector(s store.Store, longRunningAge time.Duration) {
	prometheus.MustRegister(NewJobStatsCollector(s, longRunningAge))
}
