package store_test

import (
	"context"
	"fmt"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	insertCourseInstanceStm         = "INSERT INTO course_instances (sis_course_id, title, registrar_code, school_id, sis_term_id, created_at, updated_at) VALUES ('%s', '%s', 'REG-1', '%s', %d, datetime('now'), datetime('now'));"
	insertProvisionedInstanceStm    = "INSERT INTO course_instances (sis_course_id, title, registrar_code, school_id, sis_term_id, canvas_course_id, created_at, updated_at) VALUES ('%s', '%s', 'REG-1', '%s', %d, %d, datetime('now'), datetime('now'));"
	insertDepartmentalInstanceStm   = "INSERT INTO course_instances (sis_course_id, title, registrar_code, school_id, sis_department_id, sis_term_id, created_at, updated_at) VALUES ('%s', '%s', 'REG-1', '%s', %d, %d, datetime('now'), datetime('now'));"
	insertSchoolTemplateStm         = "INSERT INTO canvas_school_templates (school_id, template_course_id, include_course_info, created_at) VALUES ('%s', %d, %t, datetime('now'));"
)

var _ = Describe("catalog store", Ordered, func() {
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
		gormdb.Exec("DELETE from course_instances;")
		gormdb.Exec("DELETE from course_sites;")
		gormdb.Exec("DELETE from site_maps;")
		gormdb.Exec("DELETE from canvas_school_templates;")
	})

	Context("courses", func() {
		It("returns a course by sis id", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			course, err := s.Catalog().GetCourse(context.TODO(), "12345")
			Expect(err).To(BeNil())
			Expect(course.Title).To(Equal("Intro to CS"))
			Expect(course.SchoolID).To(Equal("colgsas"))
		})

		It("returns ErrRecordNotFound for an unknown course", func() {
			_, err := s.Catalog().GetCourse(context.TODO(), "nope")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("records the canvas course id", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			Expect(s.Catalog().SetCanvasCourseID(context.TODO(), "12345", 999)).To(BeNil())

			course, err := s.Catalog().GetCourse(context.TODO(), "12345")
			Expect(err).To(BeNil())
			Expect(*course.CanvasCourseID).To(Equal(int64(999)))
		})

		It("flips the enrollment sync flag", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			Expect(s.Catalog().SetSyncToCanvas(context.TODO(), "12345", true)).To(BeNil())

			course, err := s.Catalog().GetCourse(context.TODO(), "12345")
			Expect(err).To(BeNil())
			Expect(course.SyncToCanvas).To(BeTrue())
		})
	})

	Context("bulk selection", func() {
		It("selects only unprovisioned courses in the term and school", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "111", "A", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertProvisionedInstanceStm, "222", "B", "colgsas", 2024001, 999))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "333", "C", "hls", 2024001))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "444", "D", "colgsas", 1999001))
			Expect(tx.Error).To(BeNil())

			ids, err := s.Catalog().SelectCoursesForBulkCreate(context.TODO(), 2024001, "colgsas", nil, nil)
			Expect(err).To(BeNil())
			Expect(ids).To(Equal([]string{"111"}))
		})

		It("narrows the selection by department", func() {
			dept := int64(42)
			tx := gormdb.Exec(fmt.Sprintf(insertDepartmentalInstanceStm, "111", "A", "colgsas", 42, 2024001))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertDepartmentalInstanceStm, "222", "B", "colgsas", 43, 2024001))
			Expect(tx.Error).To(BeNil())

			ids, err := s.Catalog().SelectCoursesForBulkCreate(context.TODO(), 2024001, "colgsas", &dept, nil)
			Expect(err).To(BeNil())
			Expect(ids).To(Equal([]string{"111"}))
		})
	})

	Context("official site", func() {
		It("creates the site and the official mapping", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertCourseInstanceStm, "12345", "Intro to CS", "colgsas", 2024001))
			Expect(tx.Error).To(BeNil())

			site, err := s.Catalog().SetOfficialSiteURL(context.TODO(), "12345", "https://canvas.test/courses/999")
			Expect(err).To(BeNil())
			Expect(site.SiteType).To(Equal(model.SiteTypeExternal))
			Expect(site.ExternalID).To(Equal("https://canvas.test/courses/999"))

			var siteMaps []model.SiteMap
			Expect(gormdb.Find(&siteMaps, "sis_course_id = ?", "12345").Error).To(BeNil())
			Expect(siteMaps).To(HaveLen(1))
			Expect(siteMaps[0].CourseSiteID).To(Equal(site.ID))
			Expect(siteMaps[0].MapType).To(Equal(model.SiteMapTypeOfficial))
		})
	})

	Context("school templates", func() {
		It("returns the school default template", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertSchoolTemplateStm, "colgsas", 7001, true))
			Expect(tx.Error).To(BeNil())

			template, err := s.Catalog().TemplateForSchool(context.TODO(), "colgsas")
			Expect(err).To(BeNil())
			Expect(template.TemplateCourseID).To(Equal(int64(7001)))
			Expect(template.IncludeCourseInfo).To(BeTrue())
		})

		It("returns ErrRecordNotFound for a school without a template", func() {
			_, err := s.Catalog().TemplateForSchool(context.TODO(), "hls")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})
})
