package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/phonebook"
)

// CallProvider places an outbound call to a phone number. Dial returns once
// the callee has answered and the call session exists; the session then
// lives until its call record is deleted.
type CallProvider interface {
	Dial(ctx context.Context, phoneNumber, language string) (threadID string, err error)
}

// ManagerProvider places calls directly through the call manager. It is the
// provider used when the media leg is driven over the websocket hub.
type ManagerProvider struct {
	Manager *CallManager
}

func (p *ManagerProvider) Dial(ctx context.Context, phoneNumber, language string) (string, error) {
	threadID, _, err := p.Manager.StartCall(phoneNumber, language, config.DirectionOutbound)
	return threadID, err
}

// Outcome describes how an outbound call finished.
type Outcome struct {
	Contact  phonebook.Contact
	ThreadID string
	Reason   string // "completed", "timeout", "failed"
	Duration time.Duration
	Err      error
}

// RunOutboundCall dials one contact and waits for the call to finish. The
// call store is polled until the record disappears (the call-ended signal)
// or the hard cap elapses, in which case the call is torn down as timed out.
func RunOutboundCall(ctx context.Context, provider CallProvider, manager *CallManager, contact phonebook.Contact, pollInterval, maxDuration time.Duration) Outcome {
	start := time.Now()
	out := Outcome{Contact: contact}

	threadID, err := provider.Dial(ctx, contact.PhoneNumber, contact.Language)
	if err != nil {
		out.Reason = "failed"
		out.Err = fmt.Errorf("dial %s: %w", contact.PhoneNumber, err)
		return out
	}
	out.ThreadID = threadID

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			manager.EndCall(threadID, "shutdown")
			out.Reason = "failed"
			out.Err = ctx.Err()
			out.Duration = time.Since(start)
			return out

		case <-deadline.C:
			slog.Warn("outbound call hit duration cap", "thread", threadID, "cap", maxDuration)
			if err := manager.EndCall(threadID, "timeout"); err != nil {
				slog.Error("end timed-out call", "thread", threadID, "error", err)
			}
			out.Reason = "timeout"
			out.Duration = time.Since(start)
			return out

		case <-ticker.C:
			if !manager.Active(threadID) {
				out.Reason = "completed"
				out.Duration = time.Since(start)
				return out
			}
		}
	}
}
