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

type BulkJob interface {
	Create(ctx context.Context, job model.BulkJob) (*model.BulkJob, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BulkJob, error)
	List(ctx context.Context, filter *BulkJobQueryFilter) ([]model.BulkJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next model.BulkJobStatus) (*model.BulkJob, error)
	CountByStatus(ctx context.Context) (map[model.BulkJobStatus]int64, error)
	CountLongRunning(ctx context.Context, olderThan time.Time) (int64, error)
}

type BulkJobStore struct {
	db *gorm.DB
}

// Make sure we conform to BulkJob interface
var _ BulkJob = (*BulkJobStore)(nil)

func NewBulkJobStore(db *gorm.DB) BulkJob {
	return &BulkJobStore{db: db}
}

func (s *BulkJobStore) Create(ctx context.Context, job model.BulkJob) (*model.BulkJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = model.BulkStatusSetup
	}
	result := s.getDB(ctx).Create(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("creating bulk job: %w", result.Error)
	}
	return &job, nil
}

func (s *BulkJobStore) Get(ctx context.Context, id uuid.UUID) (*model.BulkJob, error) {
	var job model.BulkJob
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying bulk job: %w", result.Error)
	}
	return &job, nil
}

func (s *BulkJobStore) List(ctx context.Context, filter *BulkJobQueryFilter) ([]model.BulkJob, error) {
	var jobs []model.BulkJob

	tx := s.getDB(ctx)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Model(&model.BulkJob{}).Order("created_at").Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("listing bulk jobs: %w", result.Error)
	}
	return jobs, nil
}

// UpdateStatus moves a bulk job forward. Like course jobs, bulk status never
// regresses; the FINALIZING write acts as the single gate against double
// notification.
func (s *BulkJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, next model.BulkJobStatus) (*model.BulkJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, job.Status, next)
	}

	result := s.getDB(ctx).Model(&model.BulkJob{}).
		Where("id = ? AND status = ?", id, job.Status).
		Update("status", next)
	if result.Error != nil {
		return nil, fmt.Errorf("updating bulk job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: bulk job %s changed concurrently", ErrIllegalTransition, id)
	}

	job.Status = next
	return job, nil
}

func (s *BulkJobStore) CountByStatus(ctx context.Context) (map[model.BulkJobStatus]int64, error) {
	var rows []struct {
		Status model.BulkJobStatus
		Total  int64
	}
	result := s.getDB(ctx).Model(&model.BulkJob{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("counting bulk jobs by status: %w", result.Error)
	}

	counts := make(map[model.BulkJobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

func (s *BulkJobStore) CountLongRunning(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64
	result := s.getDB(ctx).Model(&model.BulkJob{}).
		Where("status IN ? AND updated_at <= ?", model.InProgressBulkStatuses(), olderThan).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting long-running bulk jobs: %w", result.Error)
	}
	return count, nil
}

func (s *BulkJobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
