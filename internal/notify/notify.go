package notify

import (
	"context"
	"log"
)

// Notifier delivers out-of-band messages to users: verification codes, reset
// links, offline PINs. Delivery is best-effort; callers must not block auth
// flows on notifier failures.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// SMSSender is the transport used for SMS delivery.
type SMSSender interface {
	SendSMS(phone, message string) error
}

// Service routes notifications: SMS through the configured sender, email
// through the development log transport until an email provider is wired.
type Service struct {
	sms SMSSender
}

// NewService returns a Notifier. sms may be nil; then SMS falls back to the
// log transport as well.
func NewService(sms SMSSender) *Service {
	return &Service{sms: sms}
}

// SendEmail logs the notification. Message bodies carry secrets (codes, reset
// links) so only subject and recipient are logged.
func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	log.Printf("notify: email to=%s subject=%q", to, subject)
	return nil
}

// SendSMS delivers via the SMS sender when configured, otherwise logs the
// recipient only.
func (s *Service) SendSMS(ctx context.Context, to, body string) error {
	if s.sms != nil {
		return s.sms.SendSMS(to, body)
	}
	log.Printf("notify: sms to=%s (no sender configured)", to)
	return nil
}
