package store

import (
	"context"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	CourseJob() CourseJob
	BulkJob() BulkJob
	Catalog() Catalog
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db        *gorm.DB
	courseJob CourseJob
	bulkJob   BulkJob
	catalog   Catalog
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:        db,
		courseJob: NewCourseJobStore(db),
		bulkJob:   NewBulkJobStore(db),
		catalog:   NewCatalogStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) CourseJob() CourseJob {
	return s.courseJob
}

func (s *DataStore) BulkJob() BulkJob {
	return s.bulkJob
}

func (s *DataStore) Catalog() Catalog {
	return s.catalog
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.CourseJob{},
		&model.BulkJob{},
		&model.CourseInstance{},
		&model.CourseSite{},
		&model.SiteMap{},
		&model.SchoolTemplate{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
