package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BulkJobRequest selects the catalog courses a bulk run creates sites for.
// Department and course group narrow the selection within the school;
// TemplateCourseID overrides the school default template for every sub-job.
type BulkJobRequest struct {
	SchoolID         string
	SISTermID        int64
	SISDepartmentID  *int64
	SISCourseGroupID *int64
	TemplateCourseID *int64
	InitiatorID      string
}

// BulkFinalizer drives term-wide course creation: the fan-out pass turns
// pending bulk sub-jobs into real Canvas courses, and the fan-in pass sends
// one consolidated report per bulk job once every sub-job has finished.
type BulkFinalizer struct {
	store    store.Store
	engine   *ProvisioningEngine
	notifier *Notifier
	cfg      *config.Config
}

func NewBulkFinalizer(s store.Store, engine *ProvisioningEngine, notifier *Notifier, cfg *config.Config) *BulkFinalizer {
	return &BulkFinalizer{store: s, engine: engine, notifier: notifier, cfg: cfg}
}

// CreateBulkJob records the bulk request and fans it out into one SETUP
// course job per eligible catalog course. The bulk row, its sub-jobs and
// the PENDING gate land in one transaction: a half-created fan-out would
// otherwise leave orphan sub-jobs behind for the batch passes to trip on.
func (f *BulkFinalizer) CreateBulkJob(ctx context.Context, req BulkJobRequest) (*model.BulkJob, error) {
	log := zap.S().Named("bulk")

	ctx, err := f.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	bulk, err := f.store.BulkJob().Create(ctx, model.BulkJob{
		SchoolID:         req.SchoolID,
		SISTermID:        req.SISTermID,
		SISDepartmentID:  req.SISDepartmentID,
		SISCourseGroupID: req.SISCourseGroupID,
		TemplateCourseID: req.TemplateCourseID,
		Status:           model.BulkStatusSetup,
		CreatedByUserID:  req.InitiatorID,
	})
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	sisIDs, err := f.store.Catalog().SelectCoursesForBulkCreate(ctx, req.SISTermID, req.SchoolID, req.SISDepartmentID, req.SISCourseGroupID)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}

	for _, sisCourseID := range sisIDs {
		if _, err := f.store.CourseJob().Create(ctx, model.CourseJob{
			SISCourseID:     sisCourseID,
			WorkflowState:   model.StateSetup,
			CreatedByUserID: req.InitiatorID,
			BulkJobID:       &bulk.ID,
		}); err != nil {
			_, _ = store.Rollback(ctx)
			return nil, fmt.Errorf("creating sub-job for course %s: %w", sisCourseID, err)
		}
	}

	pending, err := f.store.BulkJob().UpdateStatus(ctx, bulk.ID, model.BulkStatusPending)
	if err != nil {
		_, _ = store.Rollback(ctx)
		return nil, err
	}
	if _, err := store.Commit(ctx); err != nil {
		return nil, err
	}
	log.Infow("bulk job created", "bulk_job_id", bulk.ID, "school_id", req.SchoolID, "sis_term_id", req.SISTermID, "sub_jobs", len(sisIDs))

	return pending, nil
}

// Run performs one fan-out pass followed by one fan-in pass.
func (f *BulkFinalizer) Run(ctx context.Context) error {
	if err := f.FanOut(ctx); err != nil {
		return err
	}
	if err := f.FanIn(ctx); err != nil {
		return err
	}
	f.logLongRunning(ctx)
	return nil
}

// FanOut provisions every bulk sub-job still in SETUP. One bad sub-job
// never aborts the batch: failures are recorded on the sub-job and the
// pass moves on.
func (f *BulkFinalizer) FanOut(ctx context.Context) error {
	log := zap.S().Named("bulk")

	jobs, err := f.store.CourseJob().List(ctx,
		store.NewCourseJobQueryFilter().ByWorkflowStates(model.StateSetup).OnlyBulk(),
		store.NewCourseJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
	if err != nil {
		return err
	}
	log.Infow("fan-out pass starting", "jobs", len(jobs))

	parents := make(map[uuid.UUID]*model.BulkJob)
	for i := range jobs {
		job := jobs[i]

		parent, ok := parents[*job.BulkJobID]
		if !ok {
			parent, err = f.store.BulkJob().Get(ctx, *job.BulkJobID)
			if errors.Is(err, store.ErrRecordNotFound) {
				// The owning bulk job is gone. Data integrity failure on
				// this sub-job only.
				log.Errorw("sub-job references missing bulk job",
					"job_id", job.ID, "bulk_job_id", job.BulkJobID)
				f.markSetupFailed(ctx, job.ID)
				continue
			}
			if err != nil {
				// Transient lookup failure. Leave the sub-job in SETUP so
				// the next pass picks it up again.
				log.Errorw("could not load bulk job for sub-job",
					"job_id", job.ID, "bulk_job_id", job.BulkJobID, "error", err)
				continue
			}
			parents[*job.BulkJobID] = parent
		}

		provisioned, err := f.engine.CreateCourse(ctx, job.SISCourseID, job.CreatedByUserID, job.BulkJobID)
		if err != nil {
			log.Errorw("bulk sub-job creation failed",
				"job_id", job.ID, "sis_course_id", job.SISCourseID, "error", err)
			continue
		}
		if _, err := f.engine.StartContentCopy(ctx, provisioned, parent.TemplateCourseID); err != nil {
			log.Errorw("bulk sub-job content copy failed",
				"job_id", job.ID, "sis_course_id", job.SISCourseID, "error", err)
			f.markSetupFailed(ctx, job.ID)
			continue
		}
	}
	return nil
}

// FanIn finalizes every PENDING bulk job whose sub-jobs have all reached a
// terminal state. The FINALIZING write is the gate: once it lands the
// notification is attempted exactly once and a terminal status is always
// written, whatever the send outcome.
func (f *BulkFinalizer) FanIn(ctx context.Context) error {
	log := zap.S().Named("bulk")

	bulks, err := f.store.BulkJob().List(ctx, store.NewBulkJobQueryFilter().ByStatus(model.BulkStatusPending))
	if err != nil {
		return err
	}

	for i := range bulks {
		bulk := bulks[i]

		nonTerminal, err := f.store.CourseJob().CountSiblings(ctx, bulk.ID, model.NonTerminalStates()...)
		if err != nil {
			log.Errorw("readiness check failed", "bulk_job_id", bulk.ID, "error", err)
			continue
		}
		if nonTerminal > 0 {
			continue
		}

		if _, err := f.store.BulkJob().UpdateStatus(ctx, bulk.ID, model.BulkStatusFinalizing); err != nil {
			// Leave it PENDING and retry next pass. No notification went
			// out, so the retry is safe.
			log.Errorw("could not gate bulk job for finalizing", "bulk_job_id", bulk.ID, "error", err)
			continue
		}

		f.notifyAndClose(ctx, &bulk)
	}
	return nil
}

func (f *BulkFinalizer) notifyAndClose(ctx context.Context, bulk *model.BulkJob) {
	log := zap.S().Named("bulk")

	finalized, err := f.store.CourseJob().CountSiblings(ctx, bulk.ID, model.StateFinalized)
	if err != nil {
		log.Errorw("could not count finalized sub-jobs", "bulk_job_id", bulk.ID, "error", err)
	}
	failed, err := f.store.CourseJob().CountSiblings(ctx, bulk.ID, model.FailedStates()...)
	if err != nil {
		log.Errorw("could not count failed sub-jobs", "bulk_job_id", bulk.ID, "error", err)
	}

	final := model.BulkStatusNotificationSuccessful
	if err := f.notifier.BulkReport(ctx, bulk, finalized, failed); err != nil {
		zap.S().Named("tech_mail").Errorw("bulk report notification failed",
			"bulk_job_id", bulk.ID, "error", err)
		final = model.BulkStatusNotificationFailed
	}

	// Never retried: a persist failure here is preferable to a duplicate
	// report email.
	if _, err := f.store.BulkJob().UpdateStatus(ctx, bulk.ID, final); err != nil {
		log.Errorw("could not record bulk notification status",
			"bulk_job_id", bulk.ID, "status", final, "error", err)
		return
	}
	log.Infow("bulk job closed", "bulk_job_id", bulk.ID, "status", final, "finalized", finalized, "failed", failed)
}

func (f *BulkFinalizer) markSetupFailed(ctx context.Context, jobID uuid.UUID) {
	if _, err := f.store.CourseJob().UpdateWorkflowState(ctx, jobID, model.StateSetupFailed); err != nil && !errors.Is(err, store.ErrIllegalTransition) {
		zap.S().Named("bulk").Errorw("could not record sub-job failure", "job_id", jobID, "error", err)
	}
}

func (f *BulkFinalizer) logLongRunning(ctx context.Context) {
	log := zap.S().Named("bulk")

	cutoff := time.Now().Add(-f.cfg.Service.LongRunningAge)
	count, err := f.store.BulkJob().CountLongRunning(ctx, cutoff)
	if err != nil {
		log.Errorw("could not count long-running bulk jobs", "error", err)
		return
	}
	if count > 0 {
		log.Warnw("bulk jobs running past the age threshold", "count", count, "older_than", cutoff)
	}
}
