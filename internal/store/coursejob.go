package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CourseJob is the data-access contract for course creation jobs. Workflow
// state writes go through UpdateWorkflowState, which refuses transitions the
// state machine does not allow.
type CourseJob interface {
	Create(ctx context.Context, job model.CourseJob) (*model.CourseJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.CourseJob, error)
	List(ctx context.Context, filter *CourseJobQueryFilter, opts *CourseJobQueryOptions) (model.CourseJobList, error)
	UpdateWorkflowState(ctx context.Context, id uuid.UUID, next model.WorkflowState) (*model.CourseJob, error)
	SetCanvasCourse(ctx context.Context, id uuid.UUID, canvasCourseID int64) error
	SetContentMigration(ctx context.Context, id uuid.UUID, migrationID int64, statusURL string) error
	CountSiblings(ctx context.Context, bulkJobID uuid.UUID, states ...model.WorkflowState) (int64, error)
	CountByState(ctx context.Context) (map[model.WorkflowState]int64, error)
	CountLongRunning(ctx context.Context, olderThan time.Time) (int64, error)
}

type CourseJobStore struct {
	db *gorm.DB
}

// Make sure we conform to CourseJob interface
var _ CourseJob = (*CourseJobStore)(nil)

func NewCourseJobStore(db *gorm.DB) CourseJob {
	return &CourseJobStore{db: db}
}

func (s *CourseJobStore) Create(ctx context.Context, job model.CourseJob) (*model.CourseJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.WorkflowState == "" {
		job.WorkflowState = model.StateSetup
	}
	result := s.getDB(ctx).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating course job: %w", result.Error)
	}
	return &job, nil
}

func (s *CourseJobStore) Get(ctx context.Context, id uuid.UUID) (*model.CourseJob, error) {
	var job model.CourseJob
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying course job: %w", result.Error)
	}
	return &job, nil
}

func (s *CourseJobStore) List(ctx context.Context, filter *CourseJobQueryFilter, opts *CourseJobQueryOptions) (model.CourseJobList, error) {
	var jobs model.CourseJobList

	tx := s.getDB(ctx)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Model(&model.CourseJob{}).Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("listing course jobs: %w", result.Error)
	}
	return jobs, nil
}

// UpdateWorkflowState advances a job to the next state. The write is guarded
// with the current state so a concurrent writer cannot make the job regress,
// and illegal edges are refused before touching the database.
func (s *CourseJobStore) UpdateWorkflowState(ctx context.Context, id uuid.UUID, next model.WorkflowState) (*model.CourseJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.WorkflowState.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, job.WorkflowState, next)
	}

	result := s.getDB(ctx).Model(&model.CourseJob{}).
		Where("id = ? AND workflow_state = ?", id, job.WorkflowState).
		Update("workflow_state", next)
	if result.Error != nil {
		return nil, fmt.Errorf("updating workflow state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: job %s changed concurrently", ErrIllegalTransition, id)
	}

	job.WorkflowState = next
	return job, nil
}

func (s *CourseJobStore) SetCanvasCourse(ctx context.Context, id uuid.UUID, canvasCourseID int64) error {
	result := s.getDB(ctx).Model(&model.CourseJob{}).Where("id = ?", id).Update("canvas_course_id", canvasCourseID)
	if result.Error != nil {
		return fmt.Errorf("setting canvas course id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *CourseJobStore) SetContentMigration(ctx context.Context, id uuid.UUID, migrationID int64, statusURL string) error {
	result := s.getDB(ctx).Model(&model.CourseJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{"content_migration_id": migrationID, "status_url": statusURL})
	if result.Error != nil {
		return fmt.Errorf("setting content migration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CountSiblings counts the jobs owned by a bulk job that are in any of the
// given states. The bulk readiness rule is a zero count over the
// non-terminal states.
func (s *CourseJobStore) CountSiblings(ctx context.Context, bulkJobID uuid.UUID, states ...model.WorkflowState) (int64, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.CourseJob{}).
		Where("bulk_job_id = ? AND workflow_state IN ?", bulkJobID, states).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting sibling jobs: %w", result.Error)
	}
	return count, nil
}

func (s *CourseJobStore) CountByState(ctx context.Context) (map[model.WorkflowState]int64, error) {
	var rows []struct {
		WorkflowState model.WorkflowState
		Total         int64
	}
	result := s.getDB(ctx).Model(&model.CourseJob{}).
		Select("workflow_state, count(*) as total").
		Group("workflow_state").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("counting jobs by state: %w", result.Error)
	}

	counts := make(map[model.WorkflowState]int64, len(rows))
	for _, r := range rows {
		counts[r.WorkflowState] = r.Total
	}
	return counts, nil
}

func (s *CourseJobStore) CountLongRunning(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.CourseJob{}).
		Where("workflow_state IN ? AND updated_at <= ?", model.NonTerminalStates(), olderThan).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting long-running jobs: %w", result.Error)
	}
	return count, nil
}

func (s *CourseJobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
