package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/jobs"
	"github.com/JRCMora/jms-api/pkg/mailer"
)

const jobDeliverNotifications = "notification.deliver"

type notificationStore interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) error
}

type emailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// NotificationServiceConfig sizes delivery.
type NotificationServiceConfig struct {
	Workers      int
	Retries      int
	RetryDelay   time.Duration
	EmailEnabled bool
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Store   notificationStore
	Users   userFinder
	Mailer  emailSender
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  NotificationServiceConfig
}

// NotificationService turns workflow events into in-app notifications and,
// when configured, e-mail. One queued job delivers one event to every
// recipient; the queue's handler never enqueues into its own queue.
type NotificationService struct {
	store   notificationStore
	users   userFinder
	mailer  emailSender
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationServiceConfig
	queue   *jobs.Queue
	now     func() time.Time
}

// NewNotificationService constructs the service. Call Start before Publish
// to deliver asynchronously; otherwise events are delivered inline.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	cfg := params.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		store:   params.Store,
		users:   params.Users,
		mailer:  params.Mailer,
		metrics: params.Metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:       cfg.Workers,
		MaxRetries:    cfg.Retries,
		RetryDelay:    cfg.RetryDelay,
		MaxRetryDelay: 30 * cfg.RetryDelay,
		OnDrop:        s.dropped,
		Logger:        logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// QueueStats exposes delivery counters.
func (s *NotificationService) QueueStats() jobs.Stats {
	return s.queue.Stats()
}

// Publish implements EventSink. It never waits for queue capacity: when the
// queue is stopped or full the event is delivered in the caller's goroutine.
func (s *NotificationService) Publish(ctx context.Context, event models.WorkflowEvent) error {
	if len(event.Recipients) == 0 {
		return nil
	}
	job := jobs.Job{ID: uuid.NewString(), Type: jobDeliverNotifications, Payload: event}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Debug("notification queue unavailable, delivering inline", zap.Error(err))
		return s.handle(ctx, job)
	}
	return nil
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.Notification, error) {
	if userID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	items, err := s.store.List(ctx, models.NotificationFilter{
		UserID:     userID,
		UnreadOnly: query.UnreadOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to list notifications")
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if userID == "" {
		return appErrors.ErrUnauthorized
	}
	if err := s.store.MarkRead(ctx, id, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.WrapAs(appErrors.ErrStorageUnavailable, err, "failed to update notification")
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	if job.Type != jobDeliverNotifications {
		return fmt.Errorf("unknown job type %q", job.Type)
	}
	event, ok := job.Payload.(models.WorkflowEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := s.persist(ctx, event); err != nil {
		return err
	}
	s.email(ctx, event)
	return nil
}

func (s *NotificationService) persist(ctx context.Context, event models.WorkflowEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	message := renderMessage(event)
	createdAt := event.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	batch := make([]models.Notification, 0, len(event.Recipients))
	for _, userID := range event.Recipients {
		batch = append(batch, models.Notification{
			UserID:       userID,
			SubmissionID: event.SubmissionID,
			Event:        event.Event,
			Message:      message,
			Payload:      payload,
			Status:       models.NotificationUnread,
			CreatedAt:    createdAt,
		})
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return err
	}
	s.metrics.RecordNotification("in_app", true)
	return nil
}

// email runs after the in-app rows are stored. Failures are counted and
// logged; returning them would make the queue retry and duplicate rows.
func (s *NotificationService) email(ctx context.Context, event models.WorkflowEvent) {
	if !s.cfg.EmailEnabled || s.mailer == nil || s.users == nil {
		return
	}
	users, err := s.users.FindByIDs(ctx, event.Recipients)
	if err != nil {
		s.metrics.RecordNotification("email", false)
		s.logger.Warn("email recipients not resolved", zap.String("submission_id", event.SubmissionID), zap.Error(err))
		return
	}
	subject := renderSubject(event)
	body := "<p>" + html.EscapeString(renderMessage(event)) + "</p>"
	for _, user := range users {
		if user.Email == "" {
			s.logger.Debug("no e-mail address for recipient", zap.String("user_id", user.ID))
			continue
		}
		msg := mailer.Message{To: []string{user.Email}, Subject: subject, HTML: body}
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.metrics.RecordNotification("email", false)
			s.logger.Warn("email not delivered", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		s.metrics.RecordNotification("email", true)
	}
}

func (s *NotificationService) dropped(job jobs.Job, err error) {
	s.metrics.RecordNotification("in_app", false)
	s.logger.Error("notification dropped", zap.String("job_id", job.ID), zap.Error(err))
}

func payloadString(event models.WorkflowEvent, key string) string {
	if v, ok := event.Payload[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func renderSubject(event models.WorkflowEvent) string {
	title := payloadString(event, "title")
	switch event.Event {
	case models.EventAssignedReviewers:
		return "Review assignment: " + title
	case models.EventFeedbackRequested:
		return "Feedback requested: " + title
	case models.EventDecisionReady:
		return "Decision available: " + title
	default:
		return "Submission update: " + title
	}
}

func renderMessage(event models.WorkflowEvent) string {
	title := payloadString(event, "title")
	switch event.Event {
	case models.EventAssignedReviewers:
		return fmt.Sprintf("You have been assigned to review %q.", title)
	case models.EventFeedbackRequested:
		return fmt.Sprintf("Your feedback is requested for %q.", title)
	case models.EventDecisionReady:
		choice := strings.ReplaceAll(strings.ToLower(payloadString(event, "choice")), "_", " ")
		return fmt.Sprintf("The editor reached a decision on %q: %s.", title, choice)
	case models.EventStatusChanged:
		return fmt.Sprintf("%q moved from %s to %s.", title, orDash(payloadString(event, "fromLabel")), payloadString(event, "toLabel"))
	}
	return fmt.Sprintf("%q was updated.", title)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
