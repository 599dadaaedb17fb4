package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Catalog is the contract against the campus course catalog: course metadata
// reads plus the handful of writes provisioning performs (Canvas course id,
// enrollment sync flag, official site pointer).
type Catalog interface {
	GetCourse(ctx context.Context, sisCourseID string) (*model.CourseInstance, error)
	SelectCoursesForBulkCreate(ctx context.Context, termID int64, schoolID string, departmentID, courseGroupID *int64) ([]string, error)
	SetCanvasCourseID(ctx context.Context, sisCourseID string, canvasCourseID int64) error
	SetSyncToCanvas(ctx context.Context, sisCourseID string, sync bool) error
	SetOfficialSiteURL(ctx context.Context, sisCourseID string, url string) (*model.CourseSite, error)
	TemplateForSchool(ctx context.Context, schoolID string) (*model.SchoolTemplate, error)
}

type CatalogStore struct {
	db *gorm.DB
}

// Make sure we conform to Catalog interface
var _ Catalog = (*CatalogStore)(nil)

func NewCatalogStore(db *gorm.DB) Catalog {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) GetCourse(ctx context.Context, sisCourseID string) (*model.CourseInstance, error) {
	var course model.CourseInstance
	result := s.getDB(ctx).First(&course, "sis_course_id = ?", sisCourseID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying course instance: %w", result.Error)
	}
	return &course, nil
}

// SelectCoursesForBulkCreate returns the sis ids of courses in the term that
// are eligible for a new Canvas site: no Canvas course yet and matching the
// school/department/course-group selector.
func (s *CatalogStore) SelectCoursesForBulkCreate(ctx context.Context, termID int64, schoolID string, departmentID, courseGroupID *int64) ([]string, error) {
	tx := s.getDB(ctx).Model(&model.CourseInstance{}).
		Where("sis_term_id = ? AND school_id = ? AND canvas_course_id IS NULL", termID, schoolID)
	if departmentID != nil {
		tx = tx.Where("sis_department_id = ?", *departmentID)
	}
	if courseGroupID != nil {
		tx = tx.Where("sis_course_group_id = ?", *courseGroupID)
	}

	var ids []string
	if result := tx.Order("sis_course_id").Pluck("sis_course_id", &ids); result.Error != nil {
		return nil, fmt.Errorf("selecting courses for bulk create: %w", result.Error)
	}
	return ids, nil
}

func (s *CatalogStore) SetCanvasCourseID(ctx context.Context, sisCourseID string, canvasCourseID int64) error {
	result := s.getDB(ctx).Model(&model.CourseInstance{}).
		Where("sis_course_id = ?", sisCourseID).
		Update("canvas_course_id", canvasCourseID)
	if result.Error != nil {
		return fmt.Errorf("setting canvas course id on course instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *CatalogStore) SetSyncToCanvas(ctx context.Context, sisCourseID string, sync bool) error {
	result := s.getDB(ctx).Model(&model.CourseInstance{}).
		Where("sis_course_id = ?", sisCourseID).
		Update("sync_to_canvas", sync)
	if result.Error != nil {
		return fmt.Errorf("setting sync flag on course instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetOfficialSiteURL creates the records that make the given url the
// official course site: a CourseSite row plus a SiteMap row of the
// "official" map type.
func (s *CatalogStore) SetOfficialSiteURL(ctx context.Context, sisCourseID string, url string) (*model.CourseSite, error) {
	site := model.CourseSite{
		ID:         uuid.New(),
		SiteType:   model.SiteTypeExternal,
		ExternalID: url,
	}

	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&site).Error; err != nil {
			return err
		}
		siteMap := model.SiteMap{
			ID:           uuid.New(),
			SISCourseID:  sisCourseID,
			CourseSiteID: site.ID,
			MapType:      model.SiteMapTypeOfficial,
		}
		return tx.Create(&siteMap).Error
	})
	if err != nil {
		return nil, fmt.Errorf("recording official site url: %w", err)
	}
	return &site, nil
}

func (s *CatalogStore) TemplateForSchool(ctx context.Context, schoolID string) (*model.SchoolTemplate, error) {
	var template model.SchoolTemplate
	result := s.getDB(ctx).First(&template, "school_id = ?", schoolID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying school template: %w", result.Error)
	}
	return &template, nil
}

func (s *CatalogStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
