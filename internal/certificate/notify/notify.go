// Package notify tells students about issued certificates. Delivery is
// best-effort: callers log failures and never undo issuance because of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

// EventCertificateIssued is the only event published today.
const EventCertificateIssued = "certificate_issued"

// Event describes an issued certificate to its holder.
type Event struct {
	Type              string    `json:"type"`
	UserID            string    `json:"user_id"`
	Email             string    `json:"email,omitempty"`
	StudentName       string    `json:"student_name"`
	CourseID          string    `json:"course_id"`
	CourseName        string    `json:"course_name"`
	CertificateID     string    `json:"certificate_id"`
	CertificateNumber string    `json:"certificate_number"`
	Grade             string    `json:"grade"`
	Achievements      []string  `json:"achievements,omitempty"`
	VerificationURL   string    `json:"verification_url"`
	DocumentURL       string    `json:"document_url,omitempty"`
	ShareURL          string    `json:"share_url,omitempty"`
	AnchorMode        string    `json:"anchor_mode"`
	IssuedAt          time.Time `json:"issued_at"`
}

// Notifier delivers one event over one channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type channel struct {
	name     string
	notifier Notifier
}

// Fanout delivers each event to every configured channel. A failing
// channel does not stop the others.
type Fanout struct {
	channels []channel
	timeout  time.Duration
	logger   *slog.Logger
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithChannel adds a named channel. Nil notifiers are ignored.
func WithChannel(name string, n Notifier) FanoutOption {
	return func(f *Fanout) {
		if n != nil {
			f.channels = append(f.channels, channel{name: name, notifier: n})
		}
	}
}

// WithTimeout bounds each channel's delivery.
func WithTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		f.timeout = d
	}
}

func WithLogger(logger *slog.Logger) FanoutOption {
	return func(f *Fanout) {
		f.logger = logger
	}
}

func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Channels lists configured channel names in delivery order.
func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.channels))
	for _, c := range f.channels {
		names = append(names, c.name)
	}
	return names
}

// Notify delivers event to every channel and joins their errors.
func (f *Fanout) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, c := range f.channels {
		if err := f.deliver(ctx, c, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			if f.logger != nil {
				f.logger.WarnContext(ctx, "notification delivery failed",
					"channel", c.name,
					"certificate_id", event.CertificateID,
					"user_id", event.UserID,
					"error", err,
				)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, c channel, event Event) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return c.notifier.Notify(ctx, event)
}

// LinkedInShareURL builds an add-to-profile link for a certification.
func LinkedInShareURL(certificationName, organization string, issuedAt time.Time, certificateURL, certificateNumber string) string {
	q := url.Values{}
	q.Set("startTask", "CERTIFICATION_NAME")
	q.Set("name", certificationName)
	q.Set("organizationName", organization)
	if !issuedAt.IsZero() {
		q.Set("issueYear", strconv.Itoa(issuedAt.Year()))
		q.Set("issueMonth", strconv.Itoa(int(issuedAt.Month())))
	}
	q.Set("certUrl", certificateURL)
	q.Set("certId", certificateNumber)
	return "https://www.linkedin.com/profile/add?" + q.Encode()
}
