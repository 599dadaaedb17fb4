package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrCourseNotFound struct {
	error
}

func NewErrCourseNotFound(sisCourseID string) *ErrCourseNotFound {
	return &ErrCourseNotFound{fmt.Errorf("course %s not found in the catalog", sisCourseID)}
}

type ErrBulkJobNotFound struct {
	error
}

func NewErrBulkJobNotFound(id uuid.UUID) *ErrBulkJobNotFound {
	return &ErrBulkJobNotFound{fmt.Errorf("bulk job %s not found", id)}
}

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("course job %s not found", id)}
}

type ErrCourseAlreadyExists struct {
	error
}

func NewErrCourseAlreadyExists(sisCourseID string) *ErrCourseAlreadyExists {
	return &ErrCourseAlreadyExists{fmt.Errorf("a canvas course already exists for sis id %s", sisCourseID)}
}

type ErrCourseCreate struct {
	error
}

func NewErrCourseCreate(sisCourseID string, cause error) *ErrCourseCreate {
	return &ErrCourseCreate{fmt.Errorf("creating canvas course for %s: %w", sisCourseID, cause)}
}

type ErrSectionCreate struct {
	error
}

func NewErrSectionCreate(sisCourseID string, cause error) *ErrSectionCreate {
	return &ErrSectionCreate{fmt.Errorf("creating primary section for %s: %w", sisCourseID, cause)}
}

type ErrContentMigrationStart struct {
	error
}

func NewErrContentMigrationStart(sisCourseID string, cause error) *ErrContentMigrationStart {
	return &ErrContentMigrationStart{fmt.Errorf("starting template copy for %s: %w", sisCourseID, cause)}
}

// ErrCourseRecordSync means the Canvas course was created but the local
// records could not be updated to reflect it. The Canvas side is orphaned
// until an operator reconciles it.
type ErrCourseRecordSync struct {
	error
}

func NewErrCourseRecordSync(sisCourseID string, canvasCourseID int64, cause error) *ErrCourseRecordSync {
	return &ErrCourseRecordSync{fmt.Errorf("canvas course %d created for %s but local records not updated: %w", canvasCourseID, sisCourseID, cause)}
}

type ErrNoMatchingCanvasUser struct {
	error
}

func NewErrNoMatchingCanvasUser(sisUserID string, matches int) *ErrNoMatchingCanvasUser {
	return &ErrNoMatchingCanvasUser{fmt.Errorf("expected exactly one canvas user for sis id %s, found %d", sisUserID, matches)}
}

type ErrEnrollment struct {
	error
}

func NewErrEnrollment(sisCourseID, sisUserID string, cause error) *ErrEnrollment {
	return &ErrEnrollment{fmt.Errorf("enrolling user %s in %s: %w", sisUserID, sisCourseID, cause)}
}

type ErrEnrollmentSync struct {
	error
}

func NewErrEnrollmentSync(sisCourseID string, cause error) *ErrEnrollmentSync {
	return &ErrEnrollmentSync{fmt.Errorf("enabling enrollment sync for %s: %w", sisCourseID, cause)}
}

type ErrMarkOfficial struct {
	error
}

func NewErrMarkOfficial(sisCourseID string, cause error) *ErrMarkOfficial {
	return &ErrMarkOfficial{fmt.Errorf("marking site official for %s: %w", sisCourseID, cause)}
}
