package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	insertCourseJobStm      = "INSERT INTO course_jobs (id, sis_course_id, workflow_state, created_by_user_id, created_at, updated_at) VALUES ('%s', '%s', '%s', 'jdoe', datetime('now'), datetime('now'));"
	insertBulkCourseJobStm  = "INSERT INTO course_jobs (id, sis_course_id, workflow_state, created_by_user_id, bulk_job_id, created_at, updated_at) VALUES ('%s', '%s', '%s', 'jdoe', '%s', datetime('now'), datetime('now'));"
	insertStaleCourseJobStm = "INSERT INTO course_jobs (id, sis_course_id, workflow_state, created_by_user_id, created_at, updated_at) VALUES ('%s', '%s', '%s', 'jdoe', '2020-01-01 00:00:00', '2020-01-01 00:00:00');"
)

var _ = Describe("course job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(testConfig())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from course_jobs;")
		gormdb.Exec("DELETE from bulk_jobs;")
	})

	Context("create", func() {
		It("fills in the id and the initial state", func() {
			job, err := s.CourseJob().Create(context.TODO(), model.CourseJob{
				SISCourseID:     "12345",
				CreatedByUserID: "jdoe",
			})
			Expect(err).To(BeNil())
			Expect(job.ID).ToNot(Equal(uuid.Nil))
			Expect(job.WorkflowState).To(Equal(model.StateSetup))
		})

		It("refuses a second job for the same course and bulk job", func() {
			bulkID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertBulkJobStm, bulkID, "pending"))
			Expect(tx.Error).To(BeNil())

			_, err := s.CourseJob().Create(context.TODO(), model.CourseJob{
				SISCourseID:     "12345",
				CreatedByUserID: "jdoe",
				BulkJobID:       &bulkID,
			})
			Expect(err).To(BeNil())

			_, err = s.CourseJob().Create(context.TODO(), model.CourseJob{
				SISCourseID:     "12345",
				CreatedByUserID: "jdoe",
				BulkJobID:       &bulkID,
			})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("get", func() {
		It("returns the job", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "queued"))
			Expect(tx.Error).To(BeNil())

			job, err := s.CourseJob().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.SISCourseID).To(Equal("12345"))
			Expect(job.WorkflowState).To(Equal(model.StateQueued))
		})

		It("returns ErrRecordNotFound for an unknown id", func() {
			_, err := s.CourseJob().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("filters by workflow state", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "111", "queued"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "222", "running"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "333", "finalized"))
			Expect(tx.Error).To(BeNil())

			jobs, err := s.CourseJob().List(context.TODO(),
				store.NewCourseJobQueryFilter().ByWorkflowStates(model.StateQueued, model.StateRunning),
				store.NewCourseJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("separates bulk sub-jobs from single jobs", func() {
			bulkID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertBulkJobStm, bulkID, "pending"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertBulkCourseJobStm, uuid.NewString(), "111", "setup", bulkID))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "222", "setup"))
			Expect(tx.Error).To(BeNil())

			bulkJobs, err := s.CourseJob().List(context.TODO(), store.NewCourseJobQueryFilter().OnlyBulk(), nil)
			Expect(err).To(BeNil())
			Expect(bulkJobs).To(HaveLen(1))
			Expect(bulkJobs[0].SISCourseID).To(Equal("111"))

			singleJobs, err := s.CourseJob().List(context.TODO(), store.NewCourseJobQueryFilter().OnlySingle(), nil)
			Expect(err).To(BeNil())
			Expect(singleJobs).To(HaveLen(1))
			Expect(singleJobs[0].SISCourseID).To(Equal("222"))
		})
	})

	Context("workflow state updates", func() {
		It("applies a legal transition", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "setup"))
			Expect(tx.Error).To(BeNil())

			job, err := s.CourseJob().UpdateWorkflowState(context.TODO(), id, model.StateQueued)
			Expect(err).To(BeNil())
			Expect(job.WorkflowState).To(Equal(model.StateQueued))

			job, err = s.CourseJob().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.WorkflowState).To(Equal(model.StateQueued))
		})

		It("refuses a backward transition", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "running"))
			Expect(tx.Error).To(BeNil())

			_, err := s.CourseJob().UpdateWorkflowState(context.TODO(), id, model.StateQueued)
			Expect(err).To(MatchError(store.ErrIllegalTransition))
		})

		It("refuses skipping to a disallowed state", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "setup"))
			Expect(tx.Error).To(BeNil())

			_, err := s.CourseJob().UpdateWorkflowState(context.TODO(), id, model.StateFinalized)
			Expect(err).To(MatchError(store.ErrIllegalTransition))
		})

		It("refuses to leave a terminal state", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "finalized"))
			Expect(tx.Error).To(BeNil())

			_, err := s.CourseJob().UpdateWorkflowState(context.TODO(), id, model.StatePendingFinalize)
			Expect(err).To(MatchError(store.ErrIllegalTransition))
		})
	})

	Context("canvas references", func() {
		It("records the canvas course id", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "setup"))
			Expect(tx.Error).To(BeNil())

			Expect(s.CourseJob().SetCanvasCourse(context.TODO(), id, 999)).To(BeNil())

			job, err := s.CourseJob().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.CanvasCourseID).ToNot(BeNil())
			Expect(*job.CanvasCourseID).To(Equal(int64(999)))
		})

		It("records the content migration handle", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, id, "12345", "setup"))
			Expect(tx.Error).To(BeNil())

			Expect(s.CourseJob().SetContentMigration(context.TODO(), id, 31, "https://canvas.test/api/v1/progress/31")).To(BeNil())

			job, err := s.CourseJob().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(*job.ContentMigrationID).To(Equal(int64(31)))
			Expect(*job.StatusURL).To(Equal("https://canvas.test/api/v1/progress/31"))
		})
	})

	Context("aggregates", func() {
		It("counts non-terminal siblings for the readiness rule", func() {
			bulkID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertBulkJobStm, bulkID, "pending"))
			Expect(tx.Error).To(BeNil())

			for _, state := range []string{"finalized", "finalized", "failed", "setup_failed"} {
				tx = gormdb.Exec(fmt.Sprintf(insertBulkCourseJobStm, uuid.NewString(), uuid.NewString()[:8], state, bulkID))
				Expect(tx.Error).To(BeNil())
			}

			count, err := s.CourseJob().CountSiblings(context.TODO(), bulkID, model.NonTerminalStates()...)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(0)))

			// one more sub-job still in SETUP flips readiness
			tx = gormdb.Exec(fmt.Sprintf(insertBulkCourseJobStm, uuid.NewString(), "99999", "setup", bulkID))
			Expect(tx.Error).To(BeNil())

			count, err = s.CourseJob().CountSiblings(context.TODO(), bulkID, model.NonTerminalStates()...)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})

		It("counts jobs per workflow state", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "111", "queued"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "222", "queued"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "333", "finalized"))
			Expect(tx.Error).To(BeNil())

			counts, err := s.CourseJob().CountByState(context.TODO())
			Expect(err).To(BeNil())
			Expect(counts[model.StateQueued]).To(Equal(int64(2)))
			Expect(counts[model.StateFinalized]).To(Equal(int64(1)))
		})

		It("counts long-running jobs by age", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertStaleCourseJobStm, uuid.NewString(), "111", "running"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseJobStm, uuid.NewString(), "222", "running"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertStaleCourseJobStm, uuid.NewString(), "333", "finalized"))
			Expect(tx.Error).To(BeNil())

			count, err := s.CourseJob().CountLongRunning(context.TODO(), time.Now().Add(-4*time.Hour))
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})
	})
})
