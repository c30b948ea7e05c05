package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/config"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
)

// NotificationChannel represents different notification channels
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSlack NotificationChannel = "slack"
)

// NotificationService fans safety events out to fleet operations channels.
// Delivery is best effort: failures are logged and counted but never
// propagated, a dropped Slack message must not block an immobilization.
type NotificationService struct {
	config      *config.NotificationConfig
	logger      *logger.Logger
	metrics     *metrics.Metrics
	emailClient *emailClient
	slackClient *slackClient
	templates   *notificationTemplates
}

type emailClient struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	opsList  string
}

type slackClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg *config.NotificationConfig, log *logger.Logger, m *metrics.Metrics) (*NotificationService, error) {
	var email *emailClient
	if cfg.Email.Enabled {
		email = &emailClient{
			smtpHost: cfg.Email.SMTPHost,
			smtpPort: cfg.Email.SMTPPort,
			username: cfg.Email.SMTPUser,
			password: cfg.Email.SMTPPassword,
			from:     cfg.Email.FromAddress,
			opsList:  cfg.Email.FleetOpsList,
		}
	}

	var slack *slackClient
	if cfg.Slack.Enabled {
		slack = &slackClient{
			webhookURL: cfg.Slack.WebhookURL,
			httpClient: &http.Client{Timeout: 10 * time.Second},
		}
	}

	templates, err := loadNotificationTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	return &NotificationService{
		config:      cfg,
		logger:      log,
		metrics:     m,
		emailClient: email,
		slackClient: slack,
		templates:   templates,
	}, nil
}

// NotifyKillSwitchEngaged announces an automatic or manual immobilization
func (s *NotificationService) NotifyKillSwitchEngaged(ctx context.Context, vehicle *models.Vehicle, reason string) {
	title := fmt.Sprintf("Vehicle immobilized: %s", vehicle.Name)
	text := fmt.Sprintf("*Vehicle:* %s\n*Reason:* %s", vehicle.Name, reason)

	s.sendSlack(ctx, "#F44336", title, text)
	s.sendEmail(ctx, title, s.templates.KillSwitchEngaged, killSwitchEmailData{
		VehicleName: vehicle.Name,
		VehicleID:   vehicle.ID.String(),
		Reason:      reason,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

// NotifyKillSwitchDisengaged announces that a vehicle was released
func (s *NotificationService) NotifyKillSwitchDisengaged(ctx context.Context, vehicle *models.Vehicle, reason string) {
	title := fmt.Sprintf("Vehicle released: %s", vehicle.Name)
	text := fmt.Sprintf("*Vehicle:* %s\n*Reason:* %s", vehicle.Name, reason)

	s.sendSlack(ctx, "#4CAF50", title, text)
	s.sendEmail(ctx, title, s.templates.KillSwitchDisengaged, killSwitchEmailData{
		VehicleName: vehicle.Name,
		VehicleID:   vehicle.ID.String(),
		Reason:      reason,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

// NotifyOverrideRequested alerts supervisors to a new escalation
func (s *NotificationService) NotifyOverrideRequested(ctx context.Context, req *models.SupervisorOverrideRequest) {
	title := fmt.Sprintf("Override requested (%s urgency)", req.Urgency)
	text := fmt.Sprintf("*Report:* %s\n*Reason:* %s\n*Expires:* %s",
		req.ReportID, req.Reason, req.ExpiresAt.Format(time.RFC3339))

	s.sendSlack(ctx, urgencyColor(req.Urgency), title, text)
	s.sendEmail(ctx, title, s.templates.OverrideRequested, overrideEmailData{
		RequestID: req.ID.String(),
		ReportID:  req.ReportID.String(),
		Reason:    req.Reason,
		Urgency:   string(req.Urgency),
		ExpiresAt: req.ExpiresAt.Format(time.RFC3339),
	})
}

// NotifyOverrideResolved announces an approval, denial, or expiry
func (s *NotificationService) NotifyOverrideResolved(ctx context.Context, req *models.SupervisorOverrideRequest) {
	var color, verdict string
	switch req.Status {
	case models.OverrideStatusApproved:
		color, verdict = "#4CAF50", "approved"
	case models.OverrideStatusDenied:
		color, verdict = "#F44336", "denied"
	case models.OverrideStatusExpired:
		color, verdict = "#9E9E9E", "expired"
	default:
		s.logger.Warn("Skipping notification for unresolved override",
			logger.String("request_id", req.ID.String()),
			logger.String("status", string(req.Status)),
		)
		return
	}

	title := fmt.Sprintf("Override %s: report %s", verdict, req.ReportID)
	text := fmt.Sprintf("*Report:* %s\n*Reason:* %s", req.ReportID, req.Reason)
	if req.ResolutionNotes != nil && *req.ResolutionNotes != "" {
		text += fmt.Sprintf("\n*Notes:* %s", *req.ResolutionNotes)
	}

	s.sendSlack(ctx, color, title, text)
	s.sendEmail(ctx, title, s.templates.OverrideResolved, overrideEmailData{
		RequestID: req.ID.String(),
		ReportID:  req.ReportID.String(),
		Reason:    req.Reason,
		Urgency:   string(req.Urgency),
		Verdict:   verdict,
	})
}

func urgencyColor(u models.OverrideUrgency) string {
	switch u {
	case models.UrgencyCritical:
		return "#F44336"
	case models.UrgencyHigh:
		return "#FF9800"
	case models.UrgencyMedium:
		return "#FFEB3B"
	}
	return "#2196F3"
}

func (s *NotificationService) sendSlack(ctx context.Context, color, title, text string) {
	if s.slackClient == nil {
		return
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  title,
				"text":   text,
				"footer": "Fleet Safety Immobilizer",
				"ts":     time.Now().Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.recordFailure(ChannelSlack, title, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.slackClient.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.recordFailure(ChannelSlack, title, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.slackClient.httpClient.Do(req)
	if err != nil {
		s.recordFailure(ChannelSlack, title, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.recordFailure(ChannelSlack, title, fmt.Errorf("webhook returned %d", resp.StatusCode))
		return
	}

	s.recordSuccess(ChannelSlack)
}

func (s *NotificationService) sendEmail(ctx context.Context, subject string, tmpl *template.Template, data interface{}) {
	if s.emailClient == nil || s.emailClient.opsList == "" {
		return
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		s.recordFailure(ChannelEmail, subject, err)
		return
	}

	recipients := strings.Split(s.emailClient.opsList, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	message := fmt.Sprintf("From: %s\r\n", s.emailClient.from)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", "))
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "\r\n"
	message += body.String()

	auth := smtp.PlainAuth("", s.emailClient.username, s.emailClient.password, s.emailClient.smtpHost)
	addr := fmt.Sprintf("%s:%d", s.emailClient.smtpHost, s.emailClient.smtpPort)

	if err := smtp.SendMail(addr, auth, s.emailClient.from, recipients, []byte(message)); err != nil {
		s.recordFailure(ChannelEmail, subject, err)
		return
	}

	s.recordSuccess(ChannelEmail)
}

func (s *NotificationService) recordSuccess(channel NotificationChannel) {
	if s.metrics != nil {
		s.metrics.NotificationsSent.With(prometheus.Labels{
			"channel": string(channel), "status": "sent",
		}).Inc()
	}
}

func (s *NotificationService) recordFailure(channel NotificationChannel, subject string, err error) {
	s.logger.Warn("Notification delivery failed",
		logger.String("channel", string(channel)),
		logger.String("subject", subject),
		logger.Err(err),
	)
	if s.metrics != nil {
		s.metrics.NotificationsSent.With(prometheus.Labels{
			"channel": string(channel), "status": "failed",
		}).Inc()
	}
}
