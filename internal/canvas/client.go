package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// API is the typed surface of the Canvas REST API the wizard consumes.
// Every call blocks on the network and honors the context deadline.
type API interface {
	CreateCourse(ctx context.Context, req CourseCreateRequest) (*Course, error)
	CreateSection(ctx context.Context, courseID int64, name, sisSectionID string) (*Section, error)
	StartContentMigration(ctx context.Context, courseID, templateCourseID int64) (*ContentMigration, error)
	PollOperation(ctx context.Context, statusURL string) (*Progress, error)
	EnrollUser(ctx context.Context, sectionRef string, canvasUserID int64, role string) (*Enrollment, error)
	LookupUsersBySISID(ctx context.Context, sisUserID string) ([]UserProfile, error)
	GetUserProfileBySISID(ctx context.Context, sisUserID string) (*UserProfile, error)
	GetCourse(ctx context.Context, courseID int64) (*Course, error)
	UpdateCourse(ctx context.Context, courseID int64, update CourseUpdate) error
}

type Client struct {
	baseURL   string
	accountID string
	token     string
	client    *http.Client
}

// Make sure we conform to API interface
var _ API = (*Client)(nil)

func New(apiBaseURL, accountID, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   apiBaseURL,
		accountID: accountID,
		token:     token,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateCourse(ctx context.Context, req CourseCreateRequest) (*Course, error) {
	fields := map[string]interface{}{
		"name":          req.Name,
		"course_code":   req.CourseCode,
		"term_id":       req.TermRef,
		"sis_course_id": req.SISCourseID,
	}
	if req.IsShoppable {
		// Shoppable courses are browseable by any authenticated user
		// during the shopping period.
		fields["is_public_to_auth_users"] = true
	}
	body := map[string]interface{}{"course": fields}

	var course Course
	path := fmt.Sprintf("/accounts/%s/courses", url.PathEscape(req.AccountRef))
	if err := c.do(ctx, http.MethodPost, c.baseURL+path, body, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *Client) CreateSection(ctx context.Context, courseID int64, name, sisSectionID string) (*Section, error) {
	body := map[string]interface{}{
		"course_section": map[string]interface{}{
			"name":           name,
			"sis_section_id": sisSectionID,
		},
	}

	var section Section
	path := fmt.Sprintf("/courses/%d/sections", courseID)
	if err := c.do(ctx, http.MethodPost, c.baseURL+path, body, &section); err != nil {
		return nil, err
	}
	return &section, nil
}

func (c *Client) StartContentMigration(ctx context.Context, courseID, templateCourseID int64) (*ContentMigration, error) {
	body := map[string]interface{}{
		"migration_type": migrationTypeCopy,
		"settings": map[string]interface{}{
			"source_course_id": templateCourseID,
		},
	}

	var migration ContentMigration
	path := fmt.Sprintf("/courses/%d/content_migrations", courseID)
	if err := c.do(ctx, http.MethodPost, c.baseURL+path, body, &migration); err != nil {
		return nil, err
	}
	return &migration, nil
}

// PollOperation fetches the progress object behind the status url returned
// by StartContentMigration. The raw payload is retained for logging.
func (c *Client) PollOperation(ctx context.Context, statusURL string) (*Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building progress request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "polling operation")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading progress response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Method: http.MethodGet, URL: statusURL, Body: string(raw)}
	}

	var progress Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, errors.Wrap(err, "decoding progress response")
	}
	progress.Raw = raw
	return &progress, nil
}

func (c *Client) EnrollUser(ctx context.Context, sectionRef string, canvasUserID int64, role string) (*Enrollment, error) {
	body := map[string]interface{}{
		"enrollment": map[string]interface{}{
			"user_id":          canvasUserID,
			"type":             role,
			"enrollment_state": enrollmentStateActive,
		},
	}

	var enrollment Enrollment
	path := fmt.Sprintf("/sections/%s/enrollments", url.PathEscape(sectionRef))
	if err := c.do(ctx, http.MethodPost, c.baseURL+path, body, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LookupUsersBySISID searches the root account for users carrying the given
// sis id. Callers decide what zero or multiple matches mean.
func (c *Client) LookupUsersBySISID(ctx context.Context, sisUserID string) ([]UserProfile, error) {
	var users []UserProfile
	path := fmt.Sprintf("/accounts/%s/users?sis_user_id=%s", url.PathEscape(c.accountID), url.QueryEscape(sisUserID))
	if err := c.do(ctx, http.MethodGet, c.baseURL+path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetUserProfileBySISID(ctx context.Context, sisUserID string) (*UserProfile, error) {
	var profile UserProfile
	path := fmt.Sprintf("/users/sis_user_id:%s/profile", url.PathEscape(sisUserID))
	if err := c.do(ctx, http.MethodGet, c.baseURL+path, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	var course Course
	path := fmt.Sprintf("/courses/%d", courseID)
	if err := c.do(ctx, http.MethodGet, c.baseURL+path, nil, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *Client) UpdateCourse(ctx context.Context, courseID int64, update CourseUpdate) error {
	fields := map[string]interface{}{}
	if update.IsPublic != nil {
		fields["is_public"] = *update.IsPublic
	}
	if update.PublicSyllabus != nil {
		fields["public_syllabus"] = *update.PublicSyllabus
	}
	if update.SyllabusBody != nil {
		fields["syllabus_body"] = *update.SyllabusBody
	}
	if len(fields) == 0 {
		return nil
	}

	path := fmt.Sprintf("/courses/%d", courseID)
	return c.do(ctx, http.MethodPut, c.baseURL+path, map[string]interface{}{"course": fields}, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s %s", method, rawURL)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Method: method, URL: rawURL, Body: string(payload)}
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return errors.Wrapf(err, "decoding %s %s response", method, rawURL)
		}
	}
	return nil
}
