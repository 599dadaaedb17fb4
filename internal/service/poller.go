package service

import (
	"context"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/canvas"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AsyncJobPoller advances every non-terminal course job one step per pass:
// it polls Canvas for in-flight content migrations, records the outcome,
// and runs finalization for jobs whose content is in place. Each job is
// isolated: one job's failure never stops the pass.
type AsyncJobPoller struct {
	store    store.Store
	canvas   canvas.API
	engine   *ProvisioningEngine
	notifier *Notifier
	cfg      *config.Config
}

func NewAsyncJobPoller(s store.Store, canvasAPI canvas.API, engine *ProvisioningEngine, notifier *Notifier, cfg *config.Config) *AsyncJobPoller {
	return &AsyncJobPoller{store: s, canvas: canvasAPI, engine: engine, notifier: notifier, cfg: cfg}
}

// Run performs one pass. Terminal jobs are excluded by the selection query,
// so re-running at any cadence is safe. COMPLETED is included: a crash after
// the migration outcome was recorded but before finalization would otherwise
// strand the job there.
func (p *AsyncJobPoller) Run(ctx context.Context) error {
	log := zap.S().Named("poller")

	jobs, err := p.store.CourseJob().List(ctx,
		store.NewCourseJobQueryFilter().ByWorkflowStates(model.StateQueued, model.StateRunning, model.StateCompleted, model.StatePendingFinalize),
		store.NewCourseJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return errors.Wrap(err, "selecting jobs to poll")
	}
	log.Infow("poll pass starting", "jobs", len(jobs))

	for i := range jobs {
		job := jobs[i]
		if err := p.pollJob(ctx, &job); err != nil {
			log.Errorw("job poll failed", "job_id", job.ID, "sis_course_id", job.SISCourseID, "error", err)
		}
	}

	p.logLongRunning(ctx, log)
	return nil
}

func (p *AsyncJobPoller) pollJob(ctx context.Context, job *model.CourseJob) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Service.CallTimeout)
	defer cancel()

	if job.WorkflowState == model.StateQueued || job.WorkflowState == model.StateRunning {
		done, err := p.pollMigration(ctx, job)
		if err != nil || !done {
			return err
		}
	}

	return p.finalize(ctx, job)
}

// pollMigration reads the migration progress and records any transition.
// It reports whether the job reached COMPLETED and should be finalized now.
func (p *AsyncJobPoller) pollMigration(ctx context.Context, job *model.CourseJob) (bool, error) {
	if job.StatusURL == nil {
		return false, errors.Errorf("job %s is %s but has no status url", job.ID, job.WorkflowState)
	}

	progress, err := p.canvas.PollOperation(ctx, *job.StatusURL)
	if err != nil {
		return false, errors.Wrap(err, "polling content migration")
	}

	switch progress.WorkflowState {
	case canvas.ProgressQueued:
		return false, nil
	case canvas.ProgressRunning:
		if job.WorkflowState == model.StateQueued {
			updated, err := p.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateRunning)
			if err != nil {
				return false, err
			}
			*job = *updated
		}
		return false, nil
	case canvas.ProgressFailed:
		if _, err := p.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateFailed); err != nil {
			return false, err
		}
		p.notifyFailure(ctx, job)
		return false, nil
	case canvas.ProgressCompleted:
		// Written before finalization so the completion survives a
		// finalize crash.
		updated, err := p.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateCompleted)
		if err != nil {
			return false, err
		}
		*job = *updated
		return true, nil
	default:
		// Canvas may grow new states. Leave the job as is and let a
		// later pass pick it up.
		zap.S().Named("poller").Warnw("unrecognized migration state",
			"job_id", job.ID, "state", progress.WorkflowState, "raw", string(progress.Raw))
		return false, nil
	}
}

func (p *AsyncJobPoller) finalize(ctx context.Context, job *model.CourseJob) error {
	url, err := p.engine.FinalizeCourse(ctx, job)
	if err != nil {
		// Persist the failure before anything else so the job leaves the
		// poll set even if notification blows up.
		if _, stateErr := p.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateFinalizeFailed); stateErr != nil {
			zap.S().Named("poller").Errorw("could not record finalize failure",
				"job_id", job.ID, "error", stateErr)
		}
		p.notifyFailure(ctx, job)
		return errors.Wrap(err, "finalizing course")
	}

	if _, err := p.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateFinalized); err != nil {
		return err
	}

	if !job.IsBulk() {
		if err := p.notifier.CourseSuccess(ctx, job, url); err != nil {
			zap.S().Named("tech_mail").Errorw("success notification failed",
				"job_id", job.ID, "sis_course_id", job.SISCourseID, "error", err)
		}
	}
	return nil
}

// notifyFailure emails the initiator for single-course jobs. Bulk sub-jobs
// are reported once, in the consolidated bulk notification.
func (p *AsyncJobPoller) notifyFailure(ctx context.Context, job *model.CourseJob) {
	if job.IsBulk() {
		return
	}
	if err := p.notifier.CourseFailure(ctx, job); err != nil {
		zap.S().Named("tech_mail").Errorw("failure notification failed",
			"job_id", job.ID, "sis_course_id", job.SISCourseID, "error", err)
	}
}

func (p *AsyncJobPoller) logLongRunning(ctx context.Context, log *zap.SugaredLogger) {
	cutoff := time.Now().Add(-p.cfg.Service.LongRunningAge)
	count, err := p.store.CourseJob().CountLongRunning(ctx, cutoff)
	if err != nil {
		log.Errorw("could not count long-running jobs", "error", err)
		return
	}
	if count > 0 {
		log.Warnw("jobs running past the age threshold", "count", count, "older_than", cutoff)
	}
}
