package canvas

import "encoding/json"

// Course is the subset of the Canvas course object the wizard reads and
// writes.
type Course struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	CourseCode     string  `json:"course_code"`
	SISCourseID    string  `json:"sis_course_id"`
	AccountID      int64   `json:"account_id"`
	IsPublic       bool    `json:"is_public"`
	PublicSyllabus bool    `json:"public_syllabus"`
	SyllabusBody   *string `json:"syllabus_body,omitempty"`
}

type Section struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SISSectionID string `json:"sis_section_id"`
}

// ContentMigration is the async template-copy operation Canvas runs. Its
// progress is tracked through ProgressURL.
type ContentMigration struct {
	ID          int64  `json:"id"`
	ProgressURL string `json:"progress_url"`
}

// Progress workflow states reported by Canvas. The vocabulary is open:
// unrecognized values are treated as still pending by callers.
const (
	ProgressQueued    = "queued"
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// Progress is the decoded status payload of an async Canvas operation.
type Progress struct {
	ID            int64           `json:"id"`
	WorkflowState string          `json:"workflow_state"`
	Completion    float64         `json:"completion"`
	Raw           json.RawMessage `json:"-"`
}

type UserProfile struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SISUserID    string `json:"sis_user_id"`
	PrimaryEmail string `json:"primary_email"`
	LoginID      string `json:"login_id"`
}

type Enrollment struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	CourseSectionID int64  `json:"course_section_id"`
	Type            string `json:"type"`
	EnrollmentState string `json:"enrollment_state"`
}

// CourseCreateRequest carries the fields of a new Canvas course. AccountRef
// and TermRef are sis-prefixed references ("sis_account_id:...",
// "sis_term_id:...").
type CourseCreateRequest struct {
	AccountRef  string
	Name        string
	CourseCode  string
	TermRef     string
	SISCourseID string
	IsShoppable bool
}

// CourseUpdate carries the optional fields of a course update; nil fields
// are left untouched.
type CourseUpdate struct {
	IsPublic       *bool
	PublicSyllabus *bool
	SyllabusBody   *string
}

const (
	// The course creator is enrolled as a teacher in the primary section.
	RoleTeacherEnrollment = "TeacherEnrollment"

	enrollmentStateActive = "active"
	migrationTypeCopy     = "course_copy_importer"
)
