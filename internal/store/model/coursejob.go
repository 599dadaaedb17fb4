package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowState tracks a course job through the whole provisioning process,
// from the initial setup of a new Canvas course, to the content migration
// (if a template applies), to the finalization steps (enrolling the creator,
// syncing registrar feeds, marking the site official).
type WorkflowState string

const (
	StateSetup           WorkflowState = "setup"
	StateSetupFailed     WorkflowState = "setup_failed"
	StateQueued          WorkflowState = "queued"
	StateRunning         WorkflowState = "running"
	StateCompleted       WorkflowState = "completed"
	StateFailed          WorkflowState = "failed"
	StatePendingFinalize WorkflowState = "pending_finalize"
	StateFinalized       WorkflowState = "finalized"
	StateFinalizeFailed  WorkflowState = "finalize_failed"
)

// transitions is the set of legal forward edges. A state never moves
// backward and a terminal state has no outgoing edges.
var transitions = map[WorkflowState][]WorkflowState{
	StateSetup:           {StateSetupFailed, StateQueued, StatePendingFinalize},
	StateQueued:          {StateRunning, StateCompleted, StateFailed},
	StateRunning:         {StateCompleted, StateFailed},
	StateCompleted:       {StatePendingFinalize, StateFinalized, StateFinalizeFailed},
	StatePendingFinalize: {StateFinalized, StateFinalizeFailed},
}

func (s WorkflowState) IsTerminal() bool {
	switch s {
	case StateSetupFailed, StateFailed, StateFinalized, StateFinalizeFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s WorkflowState) CanTransition(next WorkflowState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NonTerminalStates returns every state a job can still be advanced from.
// The poller and the bulk readiness check both select on this set.
func NonTerminalStates() []WorkflowState {
	return []WorkflowState{StateSetup, StateQueued, StateRunning, StateCompleted, StatePendingFinalize}
}

// FailedStates returns the terminal states counted as failures in the bulk
// completion report.
func FailedStates() []WorkflowState {
	return []WorkflowState{StateSetupFailed, StateFailed, StateFinalizeFailed}
}

// CourseJob tracks the provisioning lifecycle of one Canvas course site.
// A null BulkJobID means the job was started by a direct single-course
// request rather than as part of a bulk run.
type CourseJob struct {
	ID                 uuid.UUID     `gorm:"primaryKey"`
	SISCourseID        string        `gorm:"column:sis_course_id;size:20;not null;index;uniqueIndex:course_jobs_course_bulk"`
	CanvasCourseID     *int64        `gorm:"index"`
	ContentMigrationID *int64        ``
	StatusURL          *string       `gorm:"size:200"`
	WorkflowState      WorkflowState `gorm:"size:20;not null;default:setup"`
	CreatedByUserID    string        `gorm:"size:20;not null"`
	BulkJobID          *uuid.UUID    `gorm:"index;uniqueIndex:course_jobs_course_bulk"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (CourseJob) TableName() string {
	return "course_jobs"
}

// IsBulk reports whether the job belongs to a bulk creation run.
func (j *CourseJob) IsBulk() bool {
	return j.BulkJobID != nil
}

func (j CourseJob) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

type CourseJobList []CourseJob
