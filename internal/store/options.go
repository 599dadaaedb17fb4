package store

import (
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByCreatedTime
	SortByUpdatedTime
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type CourseJobQueryFilter BaseQuerier

func NewCourseJobQueryFilter() *CourseJobQueryFilter {
	return &CourseJobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *CourseJobQueryFilter) ByWorkflowStates(states ...model.WorkflowState) *CourseJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("workflow_state IN ?", states)
	})
	return qf
}

func (qf *CourseJobQueryFilter) ByBulkJobID(bulkJobID uuid.UUID) *CourseJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("bulk_job_id = ?", bulkJobID)
	})
	return qf
}

func (qf *CourseJobQueryFilter) BySISCourseID(sisCourseID string) *CourseJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("sis_course_id = ?", sisCourseID)
	})
	return qf
}

// OnlyBulk restricts the query to jobs owned by some bulk job. Jobs started
// through the single-course path are excluded.
func (qf *CourseJobQueryFilter) OnlyBulk() *CourseJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("bulk_job_id IS NOT NULL")
	})
	return qf
}

func (qf *CourseJobQueryFilter) OnlySingle() *CourseJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("bulk_job_id IS NULL")
	})
	return qf
}

type CourseJobQueryOptions BaseQuerier

func NewCourseJobQueryOptions() *CourseJobQueryOptions {
	return &CourseJobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *CourseJobQueryOptions) WithSortOrder(sort SortOrder) *CourseJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByCreatedTime:
			return tx.Order("created_at")
		case SortByUpdatedTime:
			return tx.Order("updated_at")
		default:
			return tx
		}
	})
	return o
}

type BulkJobQueryFilter BaseQuerier

func NewBulkJobQueryFilter() *BulkJobQueryFilter {
	return &BulkJobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *BulkJobQueryFilter) ByStatus(statuses ...model.BulkJobStatus) *BulkJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

func (qf *BulkJobQueryFilter) BySISTermID(termID int64) *BulkJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("sis_term_id = ?", termID)
	})
	return qf
}
