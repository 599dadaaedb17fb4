package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/canvas"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProvisioningEngine performs the synchronous part of provisioning a course
// site: creating the Canvas course and its primary section, handing off to
// the async template copy, and running the finalize steps once the copy is
// done.
type ProvisioningEngine struct {
	store    store.Store
	canvas   canvas.API
	notifier *Notifier
	cfg      *config.Config
}

func NewProvisioningEngine(s store.Store, canvasAPI canvas.API, notifier *Notifier, cfg *config.Config) *ProvisioningEngine {
	return &ProvisioningEngine{store: s, canvas: canvasAPI, notifier: notifier, cfg: cfg}
}

// CreateCourse provisions the Canvas course and primary section for a
// catalog course and records the new Canvas course id on both the job and
// the catalog record. Failures leave the job in SETUP_FAILED and return a
// typed error naming the step that failed.
func (e *ProvisioningEngine) CreateCourse(ctx context.Context, sisCourseID, initiatorID string, bulkJobID *uuid.UUID) (*model.CourseJob, error) {
	job, err := e.ensureJob(ctx, sisCourseID, initiatorID, bulkJobID)
	if err != nil {
		return nil, err
	}

	course, err := e.store.Catalog().GetCourse(ctx, sisCourseID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			e.failSetup(ctx, job, NewErrCourseNotFound(sisCourseID))
			return nil, NewErrCourseNotFound(sisCourseID)
		}
		return nil, err
	}

	created, err := e.canvas.CreateCourse(ctx, canvas.CourseCreateRequest{
		AccountRef:  "sis_account_id:" + course.SISAccountID(),
		Name:        course.CourseName(),
		CourseCode:  course.CourseCode(),
		TermRef:     fmt.Sprintf("sis_term_id:%d", course.SISTermID),
		SISCourseID: sisCourseID,
		IsShoppable: course.ShoppingActive(),
	})
	if err != nil {
		if apiErr, ok := canvas.AsAPIError(err); ok && apiErr.IsConflict() {
			// Canvas already has a course under this sis id. No support
			// escalation: the caller surfaces this to the user directly.
			e.markFailed(ctx, job.ID, model.StateSetupFailed)
			return nil, NewErrCourseAlreadyExists(sisCourseID)
		}
		e.failSetup(ctx, job, err)
		return nil, NewErrCourseCreate(sisCourseID, err)
	}

	if _, err := e.canvas.CreateSection(ctx, created.ID, course.PrimarySectionName(), sisCourseID); err != nil {
		e.failSetup(ctx, job, err)
		return nil, NewErrSectionCreate(sisCourseID, err)
	}

	if err := e.persistCanvasCourse(ctx, job, created.ID); err != nil {
		// The Canvas course now exists with nothing local pointing at it.
		// Log every id an operator needs to reconcile by hand.
		zap.S().Named("provision").Errorw("canvas course created but local records not updated",
			"sis_course_id", sisCourseID,
			"canvas_course_id", created.ID,
			"job_id", job.ID,
			"error", err)
		e.failSetup(ctx, job, err)
		return nil, NewErrCourseRecordSync(sisCourseID, created.ID, err)
	}

	job.CanvasCourseID = &created.ID
	return job, nil
}

// StartContentCopy hands the job off to the async pipeline. Template
// resolution order: the explicit argument (a bulk job's template), then the
// school default, then none. With no template the job skips the migration
// and goes straight to PENDING_FINALIZE.
func (e *ProvisioningEngine) StartContentCopy(ctx context.Context, job *model.CourseJob, templateCourseID *int64) (*model.CourseJob, error) {
	if job.CanvasCourseID == nil {
		return nil, fmt.Errorf("job %s has no canvas course to copy into", job.ID)
	}

	course, err := e.store.Catalog().GetCourse(ctx, job.SISCourseID)
	if err != nil {
		return nil, err
	}

	schoolTemplate, err := e.store.Catalog().TemplateForSchool(ctx, course.SchoolID)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	template := templateCourseID
	if template == nil && schoolTemplate != nil {
		template = &schoolTemplate.TemplateCourseID
	}
	if template == nil {
		return e.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StatePendingFinalize)
	}

	migration, err := e.canvas.StartContentMigration(ctx, *job.CanvasCourseID, *template)
	if err != nil {
		e.failSetup(ctx, job, err)
		return nil, NewErrContentMigrationStart(job.SISCourseID, err)
	}
	if err := e.store.CourseJob().SetContentMigration(ctx, job.ID, migration.ID, migration.ProgressURL); err != nil {
		return nil, err
	}

	updated, err := e.store.CourseJob().UpdateWorkflowState(ctx, job.ID, model.StateQueued)
	if err != nil {
		return nil, err
	}

	e.applyTemplateCosmetics(ctx, course, *template, schoolTemplate, *job.CanvasCourseID)
	return updated, nil
}

// FinalizeCourse runs the last provisioning steps once content is in place:
// enroll the initiator as a teacher in the primary section, turn on
// registrar enrollment sync, and record the public url as the official
// course site. It returns that url.
func (e *ProvisioningEngine) FinalizeCourse(ctx context.Context, job *model.CourseJob) (string, error) {
	if job.CanvasCourseID == nil {
		return "", fmt.Errorf("job %s has no canvas course to finalize", job.ID)
	}

	if err := e.enrollInitiator(ctx, job); err != nil {
		return "", err
	}

	if err := e.store.Catalog().SetSyncToCanvas(ctx, job.SISCourseID, true); err != nil {
		return "", NewErrEnrollmentSync(job.SISCourseID, err)
	}

	url := e.CourseURL(*job.CanvasCourseID)
	if _, err := e.store.Catalog().SetOfficialSiteURL(ctx, job.SISCourseID, url); err != nil {
		return "", NewErrMarkOfficial(job.SISCourseID, err)
	}
	return url, nil
}

// CourseURL is the public address of a provisioned course site.
func (e *ProvisioningEngine) CourseURL(canvasCourseID int64) string {
	return fmt.Sprintf("%s/courses/%d", strings.TrimSuffix(e.cfg.Canvas.SiteBaseURL, "/"), canvasCourseID)
}

// enrollInitiator adds the job's creator as a teacher in the primary
// section. A sis id matching zero or several Canvas users is skipped for
// bulk jobs and fatal for single-course jobs.
func (e *ProvisioningEngine) enrollInitiator(ctx context.Context, job *model.CourseJob) error {
	users, err := e.canvas.LookupUsersBySISID(ctx, job.CreatedByUserID)
	if err != nil {
		return NewErrEnrollment(job.SISCourseID, job.CreatedByUserID, err)
	}
	if len(users) != 1 {
		if job.IsBulk() {
			zap.S().Named("provision").Warnw("skipping initiator enrollment, no unique canvas user",
				"sis_course_id", job.SISCourseID,
				"user_id", job.CreatedByUserID,
				"matches", len(users))
			return nil
		}
		return NewErrNoMatchingCanvasUser(job.CreatedByUserID, len(users))
	}

	sectionRef := "sis_section_id:" + job.SISCourseID
	if _, err := e.canvas.EnrollUser(ctx, sectionRef, users[0].ID, canvas.RoleTeacherEnrollment); err != nil {
		return NewErrEnrollment(job.SISCourseID, job.CreatedByUserID, err)
	}
	return nil
}

// ensureJob reuses the SETUP job for this (course, bulk) pair when it
// already exists (the bulk fan-out creates rows ahead of time), otherwise
// creates one.
func (e *ProvisioningEngine) ensureJob(ctx context.Context, sisCourseID, initiatorID string, bulkJobID *uuid.UUID) (*model.CourseJob, error) {
	filter := store.NewCourseJobQueryFilter().BySISCourseID(sisCourseID)
	if bulkJobID != nil {
		filter = filter.ByBulkJobID(*bulkJobID)
	} else {
		filter = filter.OnlySingle()
	}

	existing, err := e.store.CourseJob().List(ctx, filter, nil)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].WorkflowState == model.StateSetup {
			return &existing[i], nil
		}
		if !existing[i].WorkflowState.IsTerminal() {
			return nil, NewErrCourseAlreadyExists(sisCourseID)
		}
	}

	return e.store.CourseJob().Create(ctx, model.CourseJob{
		SISCourseID:     sisCourseID,
		WorkflowState:   model.StateSetup,
		CreatedByUserID: initiatorID,
		BulkJobID:       bulkJobID,
	})
}

// persistCanvasCourse records the new course id on the job row and the
// catalog record.
func (e *ProvisioningEngine) persistCanvasCourse(ctx context.Context, job *model.CourseJob, canvasCourseID int64) error {
	if err := e.store.CourseJob().SetCanvasCourse(ctx, job.ID, canvasCourseID); err != nil {
		return err
	}
	return e.store.Catalog().SetCanvasCourseID(ctx, job.SISCourseID, canvasCourseID)
}

// applyTemplateCosmetics copies the template's visibility settings onto the
// new course and, when the school template asks for it, writes the
// catalog's course-info block into the syllabus. These are cosmetic: any
// failure is logged and ignored.
func (e *ProvisioningEngine) applyTemplateCosmetics(ctx context.Context, course *model.CourseInstance, templateCourseID int64, schoolTemplate *model.SchoolTemplate, canvasCourseID int64) {
	log := zap.S().Named("provision")

	update := canvas.CourseUpdate{}
	if template, err := e.canvas.GetCourse(ctx, templateCourseID); err != nil {
		log.Warnw("could not read template course visibility", "template_course_id", templateCourseID, "error", err)
	} else {
		update.IsPublic = &template.IsPublic
		update.PublicSyllabus = &template.PublicSyllabus
	}

	if schoolTemplate != nil && schoolTemplate.IncludeCourseInfo && course.CourseInfoHTML != "" {
		body := course.CourseInfoHTML
		update.SyllabusBody = &body
	}

	if err := e.canvas.UpdateCourse(ctx, canvasCourseID, update); err != nil {
		log.Warnw("could not apply template cosmetics", "canvas_course_id", canvasCourseID, "error", err)
	}
}

// failSetup marks the job SETUP_FAILED and, for single-course jobs,
// escalates to support. Notification failures are logged, never propagated.
func (e *ProvisioningEngine) failSetup(ctx context.Context, job *model.CourseJob, cause error) {
	e.markFailed(ctx, job.ID, model.StateSetupFailed)
	if job.IsBulk() {
		return
	}
	if err := e.notifier.SupportFailure(ctx, job.SISCourseID, job.CreatedByUserID, cause); err != nil {
		zap.S().Named("tech_mail").Errorw("support notification failed",
			"sis_course_id", job.SISCourseID, "error", err)
	}
}

func (e *ProvisioningEngine) markFailed(ctx context.Context, jobID uuid.UUID, state model.WorkflowState) {
	if _, err := e.store.CourseJob().UpdateWorkflowState(ctx, jobID, state); err != nil {
		zap.S().Named("provision").Errorw("could not record failed state",
			"job_id", jobID, "state", state, "error", err)
	}
}
