package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CourseInstance is the catalog's registrar-fed course record. The wizard
// reads course metadata from it and writes back the Canvas course id, the
// enrollment sync flag and (through CourseSite/SiteMap) the official site
// pointer.
type CourseInstance struct {
	SISCourseID          string `gorm:"column:sis_course_id;primaryKey;size:20"`
	Title                string
	ShortTitle           string
	SubTitle             string
	RegistrarCode        string `gorm:"not null"`
	RegistrarCodeDisplay string
	SchoolID             string `gorm:"size:10;not null;index"`
	SISDepartmentID      *int64
	SISCourseGroupID     *int64
	SISTermID            int64 `gorm:"not null;index"`
	TermShoppingActive   bool
	ExcludeFromShopping  bool
	SyncToCanvas         bool
	CanvasCourseID       *int64
	CourseInfoHTML       string `gorm:"column:course_info_html"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (CourseInstance) TableName() string {
	return "course_instances"
}

// SISAccountID derives the Canvas account reference the course site is
// created under: course group first, then department, then school.
func (c *CourseInstance) SISAccountID() string {
	if c.SISCourseGroupID != nil {
		return fmt.Sprintf("coursegroup:%d", *c.SISCourseGroupID)
	}
	if c.SISDepartmentID != nil {
		return fmt.Sprintf("dept:%d", *c.SISDepartmentID)
	}
	return fmt.Sprintf("school:%s", c.SchoolID)
}

// CourseCode prefers the short title, then the registrar display code, then
// the raw registrar code.
func (c *CourseInstance) CourseCode() string {
	if c.ShortTitle != "" {
		return c.ShortTitle
	}
	if c.RegistrarCodeDisplay != "" {
		return c.RegistrarCodeDisplay
	}
	return c.RegistrarCode
}

// CourseName is the title (or the code when untitled) with the subtitle
// appended when present.
func (c *CourseInstance) CourseName() string {
	name := c.Title
	if name == "" {
		name = c.CourseCode()
	}
	if c.SubTitle != "" {
		name += ": " + c.SubTitle
	}
	return name
}

// PrimarySectionName names the main section of the new course site.
func (c *CourseInstance) PrimarySectionName() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(c.SchoolID), c.CourseCode())
}

// ShoppingActive reports whether the course can be browsed by non-enrolled
// users: its term must allow shopping and the course must not opt out.
func (c *CourseInstance) ShoppingActive() bool {
	return c.TermShoppingActive && !c.ExcludeFromShopping
}

// CourseSite is one site (of any kind) associated with a catalog course.
type CourseSite struct {
	ID         uuid.UUID `gorm:"primaryKey"`
	SiteType   string    `gorm:"size:20;not null"`
	ExternalID string    `gorm:"size:200;not null"`
	CreatedAt  time.Time
}

func (CourseSite) TableName() string {
	return "course_sites"
}

// SiteMap associates a course site with a course instance under a mapping
// type. The "official" map type marks the site the catalog points at.
type SiteMap struct {
	ID           uuid.UUID `gorm:"primaryKey"`
	SISCourseID  string    `gorm:"column:sis_course_id;size:20;not null;index"`
	CourseSiteID uuid.UUID `gorm:"not null"`
	MapType      string    `gorm:"size:20;not null"`
	CreatedAt    time.Time
}

func (SiteMap) TableName() string {
	return "site_maps"
}

const (
	SiteTypeExternal    = "external"
	SiteMapTypeOfficial = "official"
)

// SchoolTemplate is a school's default Canvas template course. When
// IncludeCourseInfo is set the catalog's course-info block is written into
// the new site's syllabus.
type SchoolTemplate struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	SchoolID          string `gorm:"size:10;not null;uniqueIndex"`
	TemplateCourseID  int64  `gorm:"not null"`
	IncludeCourseInfo bool
	CreatedAt         time.Time
}

func (SchoolTemplate) TableName() string {
	return "canvas_school_templates"
}
