// Package notification delivers scheduled report artifacts to recipients.
package notification

import (
	"context"
	"fmt"
	"io"

	"go-reports/internal/common/clock"
	"go-reports/internal/config"
	"go-reports/internal/metrics"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sink sends one message. Implementations must honor ctx cancellation
// before starting slow I/O.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// NewSink picks SMTP when a host is configured and falls back to logging.
func NewSink(cfg *config.Config, repo DeliveryRepository, clk clock.Clock, logger *zap.Logger) Sink {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, report deliveries will only be logged")
		return &LogSink{Logger: logger.Named("delivery")}
	}
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPSink{
		From:   from,
		Repo:   repo,
		Clock:  clk,
		Logger: logger.Named("delivery"),
		send:   dialer.DialAndSend,
	}
}

// SMTPSink mails messages through gomail and records every attempt.
type SMTPSink struct {
	From   string
	Repo   DeliveryRepository
	Clock  clock.Clock
	Logger *zap.Logger
	send   func(m ...*gomail.Message) error
}

func (s *SMTPSink) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delivery := &Delivery{
		OrganizationID: msg.OrganizationID,
		ScheduleID:     msg.ScheduleID,
		ExecutionID:    msg.ExecutionID,
		From:           s.From,
		To:             msg.Recipients,
		Subject:        msg.Subject,
		Status:         DeliveryQueued,
		CreatedAt:      s.Clock.Now(),
	}
	if msg.Attachment != nil {
		delivery.AttachmentName = msg.Attachment.Filename
	}
	if s.Repo != nil {
		if err := s.Repo.Create(ctx, delivery); err != nil {
			s.Logger.Warn("failed to record delivery", zap.Error(err))
		}
	}

	err := s.send(buildMessage(s.From, msg))

	status, errMsg := DeliverySent, ""
	if err != nil {
		status, errMsg = DeliveryFailed, err.Error()
	}
	metrics.ObserveDelivery(string(status))
	if s.Repo != nil && !delivery.ID.IsZero() {
		if uerr := s.Repo.UpdateStatus(ctx, delivery.ID, status, errMsg, s.Clock.Now()); uerr != nil {
			s.Logger.Warn("failed to update delivery status", zap.Error(uerr))
		}
	}

	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.Logger.Info("report delivered",
		zap.Strings("to", msg.Recipients),
		zap.String("schedule_id", msg.ScheduleID),
		zap.String("execution_id", msg.ExecutionID),
	)
	return nil
}

func buildMessage(from string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.Recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if a := msg.Attachment; a != nil {
		data := a.Data
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		m.Attach(a.Filename, settings...)
	}
	return m
}

// LogSink only logs deliveries. Used when SMTP is not configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attachment := ""
	if msg.Attachment != nil {
		attachment = msg.Attachment.Filename
	}
	s.Logger.Info("report delivery (log only)",
		zap.Strings("to", msg.Recipients),
		zap.String("subject", msg.Subject),
		zap.String("attachment", attachment),
		zap.String("schedule_id", msg.ScheduleID),
	)
	return nil
}
