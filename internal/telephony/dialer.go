package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/events"
	"github.com/slingshot-ai/slingdial/internal/phonebook"
)

// CronExpr wraps a parsed 5-field cron schedule used to gate the dialer to
// a calling window.
type CronExpr struct {
	raw      string
	schedule cron.Schedule
}

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (*CronExpr, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &CronExpr{raw: expr, schedule: schedule}, nil
}

// Next returns the next activation time after t.
func (c *CronExpr) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Matches reports whether t falls within the same minute as an activation.
func (c *CronExpr) Matches(t time.Time) bool {
	truncated := t.Truncate(time.Minute)
	next := c.schedule.Next(truncated.Add(-time.Minute))
	return next.Equal(truncated)
}

func (c *CronExpr) String() string {
	return c.raw
}

// Dialer works through the phonebook, one outbound call at a time.
type Dialer struct {
	book     *phonebook.Book
	provider CallProvider
	manager  *CallManager
	bus      *events.Bus

	pauseBetween time.Duration
	pollInterval time.Duration
	maxDuration  time.Duration
	schedule     *CronExpr
}

// NewDialer creates a dialer from config. A non-empty cfg.Schedule restricts
// dialing to the cron schedule's calling window.
func NewDialer(book *phonebook.Book, provider CallProvider, manager *CallManager, bus *events.Bus, cfg config.DialerConfig) (*Dialer, error) {
	d := &Dialer{
		book:         book,
		provider:     provider,
		manager:      manager,
		bus:          bus,
		pauseBetween: cfg.PauseBetween.Duration(),
		pollInterval: cfg.PollInterval.Duration(),
		maxDuration:  cfg.MaxCallDuration.Duration(),
	}
	if d.pauseBetween <= 0 {
		d.pauseBetween = 10 * time.Second
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 2 * time.Second
	}
	if d.maxDuration <= 0 {
		d.maxDuration = 300 * time.Second
	}

	if cfg.Schedule != "" {
		expr, err := ParseCron(cfg.Schedule)
		if err != nil {
			return nil, err
		}
		d.schedule = expr
	}
	return d, nil
}

// Run works through the phonebook until the context is cancelled or every
// contact has been called. Each contact is marked called regardless of call
// outcome so a failing number cannot wedge the campaign.
func (d *Dialer) Run(ctx context.Context) error {
	slog.Info("dialer started", "pause", d.pauseBetween, "schedule", d.scheduleString())

	for {
		if err := d.waitForWindow(ctx); err != nil {
			return err
		}

		contact, err := d.book.Next()
		if errors.Is(err, phonebook.ErrNoContacts) {
			slog.Info("dialer finished, phonebook exhausted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("next contact: %w", err)
		}

		d.dialOne(ctx, *contact)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pauseBetween):
		}
	}
}

func (d *Dialer) dialOne(ctx context.Context, contact phonebook.Contact) {
	slog.Info("dialing contact", "id", contact.ID, "number", contact.PhoneNumber, "language", contact.Language)

	attempt := events.DialAttemptPayload{
		PhoneNumber: contact.PhoneNumber,
		Language:    contact.Language,
		ContactID:   contact.ID,
	}

	out := RunOutboundCall(ctx, d.provider, d.manager, contact, d.pollInterval, d.maxDuration)
	if out.Err != nil {
		attempt.Error = out.Err.Error()
		slog.Error("outbound call failed", "id", contact.ID, "number", contact.PhoneNumber, "error", out.Err)
	} else {
		slog.Info("outbound call done", "id", contact.ID, "number", contact.PhoneNumber,
			"reason", out.Reason, "duration", out.Duration)
	}
	d.bus.Publish(events.NewTypedEventWithThread(events.SourceDialer, attempt, out.ThreadID))

	if err := d.book.MarkCalled(contact.ID); err != nil {
		slog.Error("mark contact called", "id", contact.ID, "error", err)
	}
}

// waitForWindow blocks until the cron schedule permits dialing.
func (d *Dialer) waitForWindow(ctx context.Context) error {
	if d.schedule == nil {
		return nil
	}
	now := time.Now()
	if d.schedule.Matches(now) {
		return nil
	}
	next := d.schedule.Next(now)
	slog.Info("dialer waiting for calling window", "next", next)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Until(next)):
		return nil
	}
}

func (d *Dialer) scheduleString() string {
	if d.schedule == nil {
		return "always"
	}
	return d.schedule.String()
}
