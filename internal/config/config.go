package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Canvas   *canvasConfig
	Email    *emailConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"coursewizard"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string        `envconfig:"COURSE_WIZARD_ADDRESS" default:":8080"`
	MetricsAddress  string        `envconfig:"COURSE_WIZARD_METRICS_ADDRESS" default:":8081"`
	LogLevel        string        `envconfig:"COURSE_WIZARD_LOG_LEVEL" default:"info"`
	LockDir         string        `envconfig:"COURSE_WIZARD_LOCK_DIR" default:"/var/run/course-wizard"`
	CallTimeout     time.Duration `envconfig:"COURSE_WIZARD_CALL_TIMEOUT" default:"30s"`
	LongRunningAge  time.Duration `envconfig:"COURSE_WIZARD_LONG_RUNNING_AGE" default:"4h"`
	MigrationFolder string        `envconfig:"COURSE_WIZARD_MIGRATIONS_FOLDER" default:""`
}

type canvasConfig struct {
	APIBaseURL  string        `envconfig:"CANVAS_API_BASE_URL" default:"http://localhost:8000/api/v1"`
	SiteBaseURL string        `envconfig:"CANVAS_SITE_BASE_URL" default:"http://localhost:8000/"`
	AccessToken string        `envconfig:"CANVAS_ACCESS_TOKEN" default:""`
	AccountID   string        `envconfig:"CANVAS_ROOT_ACCOUNT" default:"self"`
	Timeout     time.Duration `envconfig:"CANVAS_API_TIMEOUT" default:"30s"`
}

type emailConfig struct {
	SMTPHost       string `envconfig:"EMAIL_SMTP_HOST" default:"localhost"`
	SMTPPort       int    `envconfig:"EMAIL_SMTP_PORT" default:"25"`
	Username       string `envconfig:"EMAIL_USERNAME" default:""`
	Password       string `envconfig:"EMAIL_PASSWORD" default:""`
	FromAddress    string `envconfig:"EMAIL_FROM_ADDRESS" default:"course-wizard@localhost"`
	SupportAddress string `envconfig:"EMAIL_SUPPORT_ADDRESS" default:"support@localhost"`
	Environment    string `envconfig:"EMAIL_ENVIRONMENT" default:"production"`

	CourseFailureSubject  string `envconfig:"EMAIL_COURSE_FAILURE_SUBJECT" default:"Canvas course site creation failed"`
	CourseFailureBody     string `envconfig:"EMAIL_COURSE_FAILURE_BODY" default:"There was a problem creating a course site for course %s. Support has been notified."`
	CourseSuccessSubject  string `envconfig:"EMAIL_COURSE_SUCCESS_SUBJECT" default:"Canvas course site ready"`
	CourseSuccessBody     string `envconfig:"EMAIL_COURSE_SUCCESS_BODY" default:"Your new course site is ready at %s"`
	SupportFailureSubject string `envconfig:"EMAIL_SUPPORT_FAILURE_SUBJECT" default:"Canvas course creation problem"`
	SupportFailureBody    string `envconfig:"EMAIL_SUPPORT_FAILURE_BODY" default:"Course creation failed for course %s initiated by user %s: %s [environment: %s]"`
	BulkReportSubject     string `envconfig:"EMAIL_BULK_REPORT_SUBJECT" default:"Bulk course creation for %s term %d is complete"`
	BulkReportBody        string `envconfig:"EMAIL_BULK_REPORT_BODY" default:"Bulk course creation for %s term %d is complete. %d course sites were created successfully."`
	BulkReportFailedLine  string `envconfig:"EMAIL_BULK_REPORT_FAILED_LINE" default:" %d courses could not be processed. Support has been notified."`
}

func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault returns a configuration with every default applied and nothing
// read from the environment. Used by tests.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "pgsql", Hostname: "localhost", Port: 5432, Name: "coursewizard", User: "admin", Password: "adminpass"},
		Service:  &svcConfig{Address: ":8080", MetricsAddress: ":8081", LogLevel: "info", LockDir: "/var/run/course-wizard", CallTimeout: 30 * time.Second, LongRunningAge: 4 * time.Hour},
		Canvas:   &canvasConfig{APIBaseURL: "http://localhost:8000/api/v1", SiteBaseURL: "http://localhost:8000/", AccountID: "self", Timeout: 30 * time.Second},
		Email: &emailConfig{
			SMTPHost:              "localhost",
			SMTPPort:              25,
			FromAddress:           "course-wizard@localhost",
			SupportAddress:        "support@localhost",
			Environment:           "test",
			CourseFailureSubject:  "Canvas course site creation failed",
			CourseFailureBody:     "There was a problem creating a course site for course %s. Support has been notified.",
			CourseSuccessSubject:  "Canvas course site ready",
			CourseSuccessBody:     "Your new course site is ready at %s",
			SupportFailureSubject: "Canvas course creation problem",
			SupportFailureBody:    "Course creation failed for course %s initiated by user %s: %s [environment: %s]",
			BulkReportSubject:     "Bulk course creation for %s term %d is complete",
			BulkReportBody:        "Bulk course creation for %s term %d is complete. %d course sites were created successfully.",
			BulkReportFailedLine:  " %d courses could not be processed. Support has been notified.",
		},
	}
}
