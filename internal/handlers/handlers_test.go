package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/handlers"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/service"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const insertCourseInstanceStm = "INSERT INTO course_instances (sis_course_id, title, registrar_code, school_id, sis_term_id, created_at, updated_at) VALUES ('%s', '%s', 'REG-1', '%s', %d, datetime('now'), datetime('now'));"

var _ = Describe("course wizard api", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		server *httptest.Server
	)

	postJSON := func(path string, body map[string]interface{}) *http.Response {
		encoded, err := json.Marshal(body)
		Expect(err).To(BeNil())
		resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(encoded))
		Expect(err).To(BeNil())
		return resp
	}

	getJSON := func(path string, out interface{}) *http.Response {
		resp, err := http.Get(server.URL + path)
		Expect(err).To(BeNil())
		if out != nil {
			Expect(json.NewDecoder(resp.Body).Decode(out)).To(BeNil())
		}
		resp.Body.Close()
		return resp
	}

	BeforeAll(func() {
		cfg := testConfig()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db
		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(BeNil())

		fc := &happyCanvas{}
		notifier := service.NewNotifier(discardSender{}, fc, cfg)
		engine := service.NewProvisioningEngine(s, fc, notifier, cfg)
		finalizer := service.NewBulkFinalizer(s, engine, notifier, cfg)

		router := chi.NewRouter()
		handlers.New(engine, finalizer, service.NewJobService(s)).Routes(router)
		server = httptest.NewServer(router)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM course_jobs;")
		gormdb.Exec("DELETE FROM bulk_jobs;")
		gormdb.Exec("DELETE FROM course_instances;")
	})

	AfterAll(func() {
		server.Close()
		s.Close()
	})

	Context("create course", func() {
		It("creates a course site and returns the job", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			resp := postJSON("/api/v1/courses", map[string]interface{}{
				"sis_course_id": "12345",
				"sis_user_id":   "jdoe",
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var reply map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&reply)).To(BeNil())
			Expect(reply["sis_course_id"]).To(Equal("12345"))
			Expect(reply["workflow_state"]).To(Equal("pending_finalize"))
			Expect(reply["canvas_course_id"]).ToNot(BeNil())
		})

		It("rejects a body missing required fields", func() {
			resp := postJSON("/api/v1/courses", map[string]interface{}{"sis_course_id": "12345"})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for a course the catalog does not know", func() {
			resp := postJSON("/api/v1/courses", map[string]interface{}{
				"sis_course_id": "99999",
				"sis_user_id":   "jdoe",
			})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns 409 when a job for the course is already in flight", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			resp := postJSON("/api/v1/courses", map[string]interface{}{
				"sis_course_id": "12345", "sis_user_id": "jdoe",
			})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp = postJSON("/api/v1/courses", map[string]interface{}{
				"sis_course_id": "12345", "sis_user_id": "jdoe",
			})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Context("get course job", func() {
		It("returns the job by id", func() {
			job, err := s.CourseJob().Create(context.TODO(), model.CourseJob{
				SISCourseID: "12345", WorkflowState: model.StateQueued, CreatedByUserID: "jdoe",
			})
			Expect(err).To(BeNil())

			var reply map[string]interface{}
			resp := getJSON("/api/v1/courses/"+job.ID.String(), &reply)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(reply["id"]).To(Equal(job.ID.String()))
			Expect(reply["workflow_state"]).To(Equal("queued"))
		})

		It("rejects a malformed id", func() {
			resp := getJSON("/api/v1/courses/not-a-uuid", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown id", func() {
			resp := getJSON("/api/v1/courses/"+uuid.NewString(), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("bulk jobs", func() {
		It("creates a bulk job with one sub-job per eligible course", func() {
			for _, id := range []string{"111", "222"} {
				tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, id, "Course "+id, "colgsas", 2024001))
				Expect(tx.Error).To(BeNil())
			}

			resp := postJSON("/api/v1/bulk-jobs", map[string]interface{}{
				"school_id":   "colgsas",
				"sis_term_id": 2024001,
				"sis_user_id": "jdoe",
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var reply map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&reply)).To(BeNil())
			Expect(reply["status"]).To(Equal("pending"))

			bulkID, err := uuid.Parse(reply["id"].(string))
			Expect(err).To(BeNil())
			subJobs, err := s.CourseJob().List(context.TODO(),
				store.NewCourseJobQueryFilter().ByBulkJobID(bulkID), nil)
			Expect(err).To(BeNil())
			Expect(subJobs).To(HaveLen(2))
		})

		It("lists bulk jobs for a term", func() {
			_, err := s.BulkJob().Create(context.TODO(), model.BulkJob{
				SchoolID: "colgsas", SISTermID: 2024001, Status: model.BulkStatusPending, CreatedByUserID: "jdoe",
			})
			Expect(err).To(BeNil())
			_, err = s.BulkJob().Create(context.TODO(), model.BulkJob{
				SchoolID: "hls", SISTermID: 1999001, Status: model.BulkStatusPending, CreatedByUserID: "jdoe",
			})
			Expect(err).To(BeNil())

			var replies []map[string]interface{}
			resp := getJSON("/api/v1/bulk-jobs?sis_term_id=2024001", &replies)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(replies).To(HaveLen(1))
			Expect(replies[0]["school_id"]).To(Equal("colgsas"))
		})

		It("rejects a list request without a term", func() {
			resp := getJSON("/api/v1/bulk-jobs", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports sub-job counts on the status endpoint", func() {
			bulk, err := s.BulkJob().Create(context.TODO(), model.BulkJob{
				SchoolID: "colgsas", SISTermID: 2024001, Status: model.BulkStatusPending, CreatedByUserID: "jdoe",
			})
			Expect(err).To(BeNil())

			for i, state := range []model.WorkflowState{model.StateFinalized, model.StateFinalized, model.StateFailed, model.StateRunning} {
				_, err := s.CourseJob().Create(context.TODO(), model.CourseJob{
					SISCourseID:     fmt.Sprintf("%d", 20000+i),
					WorkflowState:   state,
					CreatedByUserID: "jdoe",
					BulkJobID:       &bulk.ID,
				})
				Expect(err).To(BeNil())
			}

			var reply map[string]interface{}
			resp := getJSON("/api/v1/bulk-jobs/"+bulk.ID.String(), &reply)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(reply["finalized_count"]).To(Equal(float64(2)))
			Expect(reply["failed_count"]).To(Equal(float64(1)))
			Expect(reply["non_terminal_count"]).To(Equal(float64(1)))
		})

		It("returns 404 for an unknown bulk job", func() {
			resp := getJSON("/api/v1/bulk-jobs/"+uuid.NewString(), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
