package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/faculty-ledger-api/internal/models"
	"github.com/noah-isme/faculty-ledger-api/pkg/jobs"
)

type notificationUserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// MailSender delivers a single message to one recipient address.
type MailSender interface {
	Send(to, subject, body string) error
}

type notificationPayload struct {
	FacultyID string
	Subject   string
	Body      string
}

// NotificationService dispatches ledger notifications through a background
// worker queue. Delivery is best effort: enqueue failures are reported to
// the caller as warnings and send failures are retried then logged, but a
// committed ledger decision is never rolled back because mail bounced.
type NotificationService struct {
	users  notificationUserFinder
	sender MailSender
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its queue. Start must be
// called before Notify will accept work.
func NewNotificationService(users notificationUserFinder, sender MailSender, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{users: users, sender: sender, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("notifications", svc.handle, cfg)
	return svc
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a message for the faculty member. The returned error means
// the message could not even be queued; callers surface it as a warning.
func (s *NotificationService) Notify(ctx context.Context, facultyID, subject, body string) error {
	if s == nil || s.queue == nil {
		return nil
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "ledger_notification",
		Payload: notificationPayload{FacultyID: facultyID, Subject: subject, Body: body},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.String("faculty_id", facultyID),
			zap.String("subject", subject),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	user, err := s.users.FindByID(ctx, payload.FacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification recipient not found", zap.String("faculty_id", payload.FacultyID))
			return nil
		}
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if err := s.sender.Send(user.Email, payload.Subject, payload.Body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
