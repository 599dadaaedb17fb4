package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BulkJobStatus tracks a bulk creation job. A bulk job fans out into many
// course jobs and is finalized once with a single consolidated notification.
type BulkJobStatus string

const (
	BulkStatusSetup                  BulkJobStatus = "setup"
	BulkStatusPending                BulkJobStatus = "pending"
	BulkStatusFinalizing             BulkJobStatus = "finalizing"
	BulkStatusNotificationSuccessful BulkJobStatus = "notification_successful"
	BulkStatusNotificationFailed     BulkJobStatus = "notification_failed"
)

var bulkTransitions = map[BulkJobStatus][]BulkJobStatus{
	BulkStatusSetup:      {BulkStatusPending},
	BulkStatusPending:    {BulkStatusFinalizing},
	BulkStatusFinalizing: {BulkStatusNotificationSuccessful, BulkStatusNotificationFailed},
}

func (s BulkJobStatus) IsTerminal() bool {
	switch s {
	case BulkStatusNotificationSuccessful, BulkStatusNotificationFailed:
		return true
	}
	return false
}

func (s BulkJobStatus) CanTransition(next BulkJobStatus) bool {
	for _, allowed := range bulkTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InProgressBulkStatuses returns the statuses of bulk jobs that have not yet
// been finalized and notified.
func InProgressBulkStatuses() []BulkJobStatus {
	return []BulkJobStatus{BulkStatusSetup, BulkStatusPending, BulkStatusFinalizing}
}

// BulkJob is one term-wide course creation request. Its course jobs reference
// it through CourseJob.BulkJobID.
type BulkJob struct {
	ID                 uuid.UUID     `gorm:"primaryKey"`
	SchoolID           string        `gorm:"size:10;not null;index"`
	SISTermID          int64         `gorm:"not null;index"`
	SISDepartmentID    *int64        ``
	SISCourseGroupID   *int64        ``
	TemplateCourseID   *int64        ``
	Status             BulkJobStatus `gorm:"size:25;not null;default:setup"`
	CreatedByUserID    string        `gorm:"size:20;not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (BulkJob) TableName() string {
	return "bulk_jobs"
}

func (j BulkJob) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
