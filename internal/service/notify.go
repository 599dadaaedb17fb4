package service

import (
	"context"
	"fmt"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/canvas"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/notification"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/store/model"
	"go.uber.org/zap"
)

// Notifier sends the wizard's outcome mail: per-course success and failure
// notices to the initiating user, escalations to the support queue, and the
// consolidated bulk completion report.
type Notifier struct {
	sender notification.Sender
	canvas canvas.API
	cfg    *config.Config
}

func NewNotifier(sender notification.Sender, canvasAPI canvas.API, cfg *config.Config) *Notifier {
	return &Notifier{sender: sender, canvas: canvasAPI, cfg: cfg}
}

// CourseSuccess tells the initiating user their new site is ready.
func (n *Notifier) CourseSuccess(ctx context.Context, job *model.CourseJob, siteURL string) error {
	to, err := n.initiatorAddress(ctx, job.CreatedByUserID)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, notification.Message{
		To:      []string{to},
		Subject: n.cfg.Email.CourseSuccessSubject,
		Body:    fmt.Sprintf(n.cfg.Email.CourseSuccessBody, siteURL),
	})
}

// CourseFailure tells the initiating user provisioning failed, copying the
// support queue. When the initiator's address cannot be resolved the notice
// still goes to support alone.
func (n *Notifier) CourseFailure(ctx context.Context, job *model.CourseJob) error {
	to := []string{n.cfg.Email.SupportAddress}
	if addr, err := n.initiatorAddress(ctx, job.CreatedByUserID); err != nil {
		zap.S().Named("notify").Warnw("could not resolve initiator address, notifying support only",
			"user_id", job.CreatedByUserID, "error", err)
	} else {
		to = append([]string{addr}, to...)
	}
	return n.sender.Send(ctx, notification.Message{
		To:      to,
		Subject: n.cfg.Email.CourseFailureSubject,
		Body:    fmt.Sprintf(n.cfg.Email.CourseFailureBody, job.SISCourseID),
	})
}

// SupportFailure escalates a provisioning error to the support queue with
// the environment tag so staging noise is easy to filter.
func (n *Notifier) SupportFailure(ctx context.Context, sisCourseID, userID string, cause error) error {
	detail := "unknown error"
	if cause != nil {
		detail = cause.Error()
	}
	return n.sender.Send(ctx, notification.Message{
		To:      []string{n.cfg.Email.SupportAddress},
		Subject: n.cfg.Email.SupportFailureSubject,
		Body:    fmt.Sprintf(n.cfg.Email.SupportFailureBody, sisCourseID, userID, detail, n.cfg.Email.Environment),
	})
}

// BulkReport sends the consolidated completion report for a bulk run. The
// failed suffix (and a copy to support) is added only when some courses did
// not make it.
func (n *Notifier) BulkReport(ctx context.Context, bulk *model.BulkJob, completed, failed int64) error {
	to, err := n.initiatorAddress(ctx, bulk.CreatedByUserID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(n.cfg.Email.BulkReportBody, bulk.SchoolID, bulk.SISTermID, completed)
	recipients := []string{to}
	if failed > 0 {
		body += fmt.Sprintf(n.cfg.Email.BulkReportFailedLine, failed)
		recipients = append(recipients, n.cfg.Email.SupportAddress)
	}

	return n.sender.Send(ctx, notification.Message{
		To:      recipients,
		Subject: fmt.Sprintf(n.cfg.Email.BulkReportSubject, bulk.SchoolID, bulk.SISTermID),
		Body:    body,
	})
}

func (n *Notifier) initiatorAddress(ctx context.Context, sisUserID string) (string, error) {
	profile, err := n.canvas.GetUserProfileBySISID(ctx, sisUserID)
	if err != nil {
		return "", fmt.Errorf("resolving address for user %s: %w", sisUserID, err)
	}
	if profile.PrimaryEmail == "" {
		return "", fmt.Errorf("user %s has no primary email", sisUserID)
	}
	return profile.PrimaryEmail, nil
}
