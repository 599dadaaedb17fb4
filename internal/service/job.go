package service

import (
	"context"
	"errors"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"github.com/google/uuid"
)

// JobService answers status queries for course and bulk jobs.
type JobService struct {
	store store.Store
}

func NewJobService(s store.Store) *JobService {
	return &JobService{store: s}
}

func (s *JobService) GetCourseJob(ctx context.Context, id uuid.UUID) (*model.CourseJob, error) {
	job, err := s.store.CourseJob().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// BulkJobStatus is a bulk job plus the outcome counts of its sub-jobs.
type BulkJobStatus struct {
	BulkJob     *model.BulkJob
	NonTerminal int64
	Finalized   int64
	Failed      int64
}

func (s *JobService) GetBulkJob(ctx context.Context, id uuid.UUID) (*BulkJobStatus, error) {
	bulk, err := s.store.BulkJob().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrBulkJobNotFound(id)
		}
		return nil, err
	}

	nonTerminal, err := s.store.CourseJob().CountSiblings(ctx, id, model.NonTerminalStates()...)
	if err != nil {
		return nil, err
	}
	finalized, err := s.store.CourseJob().CountSiblings(ctx, id, model.StateFinalized)
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CourseJob().CountSiblings(ctx, id, model.FailedStates()...)
	if err != nil {
		return nil, err
	}

	return &BulkJobStatus{BulkJob: bulk, NonTerminal: nonTerminal, Finalized: finalized, Failed: failed}, nil
}

// ListBulkJobsForTerm returns the bulk jobs targeting a term, oldest first.
func (s *JobService) ListBulkJobsForTerm(ctx context.Context, termID int64) ([]model.BulkJob, error) {
	return s.store.BulkJob().List(ctx, store.NewBulkJobQueryFilter().BySISTermID(termID))
}
