package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/harentsoaR/doctors-portal/internal/models"
)

// EmailMessage is a plain-text email.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	if fromName == "" {
		fromName = "Doctors Portal"
	}
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), fromEmail: fromEmail, fromName: fromName}
}

func (m *SendGridMailer) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid returned status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// LogMailer only logs. Used when no mail provider is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail disabled: would send email")
	return nil
}

// NotificationService sends booking confirmations in the background so the
// booking response never waits on the mail provider.
type NotificationService struct {
	mailer  Mailer
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotificationService(mailer Mailer, logger zerolog.Logger) *NotificationService {
	return &NotificationService{
		mailer:  mailer,
		logger:  logger.With().Str("component", "notifications").Logger(),
		timeout: 10 * time.Second,
	}
}

func (s *NotificationService) SendBookingConfirmation(b *models.Booking) {
	if b.Email == "" {
		s.logger.Debug().Msg("confirmation not sent: booking has no email")
		return
	}
	msg := BookingConfirmationMessage(b)
	bookingID := b.ID.Hex()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error().Err(err).Str("to", msg.To).Msg("failed to send booking confirmation")
			return
		}
		s.logger.Info().Str("to", msg.To).Str("booking_id", bookingID).Msg("booking confirmation sent")
	}()
}

// Wait blocks until every pending confirmation has been attempted.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func BookingConfirmationMessage(b *models.Booking) EmailMessage {
	name := b.Patient
	if name == "" {
		name = b.Email
	}
	body := fmt.Sprintf(
		"Hello %s,\n\nYour %s appointment is confirmed for %s at %s.\nAmount due: $%.2f\n\nBooking reference: %s\n",
		name, b.TreatmentName, b.AppointmentDate, b.TimeSlot, b.Price, b.ID.Hex(),
	)
	return EmailMessage{
		To:      b.Email,
		ToName:  b.Patient,
		Subject: fmt.Sprintf("Appointment confirmed: %s on %s", b.TreatmentName, b.AppointmentDate),
		Body:    body,
	}
}
