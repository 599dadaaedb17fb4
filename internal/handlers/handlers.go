package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/service"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes course-site creation over JSON. It is a thin layer: all
// business rules live in the services, the handler maps typed service
// errors to status codes.
type Handler struct {
	engine    *service.ProvisioningEngine
	finalizer *service.BulkFinalizer
	jobs      *service.JobService
	validate  *validator.Validate
}

func New(engine *service.ProvisioningEngine, finalizer *service.BulkFinalizer, jobs *service.JobService) *Handler {
	return &Handler{
		engine:    engine,
		finalizer: finalizer,
		jobs:      jobs,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/courses", h.createCourse)
		r.Get("/courses/{id}", h.getCourseJob)
		r.Post("/bulk-jobs", h.createBulkJob)
		r.Get("/bulk-jobs", h.listBulkJobs)
		r.Get("/bulk-jobs/{id}", h.getBulkJob)
	})
}

type createCourseRequest struct {
	SISCourseID string `json:"sis_course_id" validate:"required,max=20"`
	SISUserID   string `json:"sis_user_id" validate:"required,max=20"`
}

type createBulkJobRequest struct {
	SchoolID               string `json:"school_id" validate:"required,max=10"`
	SISTermID              int64  `json:"sis_term_id" validate:"required,gt=0"`
	SISDepartmentID        *int64 `json:"sis_department_id" validate:"omitempty,gt=0"`
	SISCourseGroupID       *int64 `json:"sis_course_group_id" validate:"omitempty,gt=0"`
	TemplateCanvasCourseID *int64 `json:"template_canvas_course_id" validate:"omitempty,gt=0"`
	SISUserID              string `json:"sis_user_id" validate:"required,max=20"`
}

func (h *Handler) createCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.engine.CreateCourse(r.Context(), req.SISCourseID, req.SISUserID, nil)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	job, err = h.engine.StartContentCopy(r.Context(), job, nil)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, newCourseJobReply(job))
}

func (h *Handler) getCourseJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, r, "id must be a uuid")
		return
	}

	job, err := h.jobs.GetCourseJob(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, newCourseJobReply(job))
}

func (h *Handler) createBulkJob(w http.ResponseWriter, r *http.Request) {
	var req createBulkJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	bulk, err := h.finalizer.CreateBulkJob(r.Context(), service.BulkJobRequest{
		SchoolID:         req.SchoolID,
		SISTermID:        req.SISTermID,
		SISDepartmentID:  req.SISDepartmentID,
		SISCourseGroupID: req.SISCourseGroupID,
		TemplateCourseID: req.TemplateCanvasCourseID,
		InitiatorID:      req.SISUserID,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, newBulkJobReply(bulk))
}

func (h *Handler) getBulkJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, r, "id must be a uuid")
		return
	}

	status, err := h.jobs.GetBulkJob(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, newBulkJobStatusReply(status))
}

func (h *Handler) listBulkJobs(w http.ResponseWriter, r *http.Request) {
	termParam := r.URL.Query().Get("sis_term_id")
	termID, err := strconv.ParseInt(termParam, 10, 64)
	if err != nil || termID <= 0 {
		h.badRequest(w, r, "sis_term_id must be a positive integer")
		return
	}

	bulks, err := h.jobs.ListBulkJobsForTerm(r.Context(), termID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	replies := make([]render.Renderer, 0, len(bulks))
	for i := range bulks {
		replies = append(replies, newBulkJobReply(&bulks[i]))
	}
	_ = render.RenderList(w, r, replies)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := render.DecodeJSON(r.Body, req); err != nil {
		h.badRequest(w, r, "invalid json body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err.Error())
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	_ = render.Render(w, r, &errorReply{Error: msg})
}

// renderError maps typed service errors to status codes. Anything
// unrecognized is a 500 and gets logged; the body stays generic.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		courseNotFound *service.ErrCourseNotFound
		jobNotFound    *service.ErrJobNotFound
		bulkNotFound   *service.ErrBulkJobNotFound
		alreadyExists  *service.ErrCourseAlreadyExists
	)

	switch {
	case errors.As(err, &courseNotFound), errors.As(err, &jobNotFound), errors.As(err, &bulkNotFound):
		render.Status(r, http.StatusNotFound)
		_ = render.Render(w, r, &errorReply{Error: err.Error()})
	case errors.As(err, &alreadyExists):
		render.Status(r, http.StatusConflict)
		_ = render.Render(w, r, &errorReply{Error: err.Error()})
	default:
		zap.S().Named("api").Errorw("request failed", "path", r.URL.Path, "error", err)
		render.Status(r, http.StatusInternalServerError)
		_ = render.Render(w, r, &errorReply{Error: "internal error"})
	}
}

type errorReply struct {
	Error string `json:"error"`
}

func (e *errorReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type courseJobReply struct {
	ID                 uuid.UUID  `json:"id"`
	SISCourseID        string     `json:"sis_course_id"`
	CanvasCourseID     *int64     `json:"canvas_course_id,omitempty"`
	ContentMigrationID *int64     `json:"content_migration_id,omitempty"`
	WorkflowState      string     `json:"workflow_state"`
	CreatedByUserID    string     `json:"created_by_user_id"`
	BulkJobID          *uuid.UUID `json:"bulk_job_id,omitempty"`
}

func newCourseJobReply(job *model.CourseJob) *courseJobReply {
	return &courseJobReply{
		ID:                 job.ID,
		SISCourseID:        job.SISCourseID,
		CanvasCourseID:     job.CanvasCourseID,
		ContentMigrationID: job.ContentMigrationID,
		WorkflowState:      string(job.WorkflowState),
		CreatedByUserID:    job.CreatedByUserID,
		BulkJobID:          job.BulkJobID,
	}
}

func (c *courseJobReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type bulkJobReply struct {
	ID               uuid.UUID `json:"id"`
	SchoolID         string    `json:"school_id"`
	SISTermID        int64     `json:"sis_term_id"`
	SISDepartmentID  *int64    `json:"sis_department_id,omitempty"`
	SISCourseGroupID *int64    `json:"sis_course_group_id,omitempty"`
	TemplateCourseID *int64    `json:"template_canvas_course_id,omitempty"`
	Status           string    `json:"status"`
	CreatedByUserID  string    `json:"created_by_user_id"`
}

func newBulkJobReply(bulk *model.BulkJob) *bulkJobReply {
	return &bulkJobReply{
		ID:               bulk.ID,
		SchoolID:         bulk.SchoolID,
		SISTermID:        bulk.SISTermID,
		SISDepartmentID:  bulk.SISDepartmentID,
		SISCourseGroupID: bulk.SISCourseGroupID,
		TemplateCourseID: bulk.TemplateCourseID,
		Status:           string(bulk.Status),
		CreatedByUserID:  bulk.CreatedByUserID,
	}
}

func (b *bulkJobReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type bulkJobStatusReply struct {
	bulkJobReply
	NonTerminalCount int64 `json:"non_terminal_count"`
	FinalizedCount   int64 `json:"finalized_count"`
	FailedCount      int64 `json:"failed_count"`
}

func newBulkJobStatusReply(status *service.BulkJobStatus) *bulkJobStatusReply {
	return &bulkJobStatusReply{
		bulkJobReply:     *newBulkJobReply(status.BulkJob),
		NonTerminalCount: status.NonTerminal,
		FinalizedCount:   status.Finalized,
		FailedCount:      status.Failed,
	}
}

func (b *bulkJobStatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
