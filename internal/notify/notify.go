package notify

import (
	"context"
	"log/slog"

	"github.com/example/ride-dispatch/internal/models"
)

// Recipient is one logical party with N delivery routes. Collaborating
// stores address the same driver by user id, mobile number, or both;
// alias resolution lives here so the dispatcher never has to care.
type Recipient struct {
	Aliases []string
}

func RecipientFor(aliases ...string) Recipient {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a != "" {
			out = append(out, a)
		}
	}
	return Recipient{Aliases: out}
}

// Publisher delivers an event to a recipient, at-least-once and
// fire-and-forget: an error means "no route delivered", and callers
// log it without rolling back any committed state.
type Publisher interface {
	Publish(ctx context.Context, to Recipient, event string, payload any) error
}

// Multi fans a publish across several delivery routes. Delivery
// succeeds if any route succeeds.
type Multi struct {
	Routes []Publisher
	Log    *slog.Logger
}

func (m *Multi) Publish(ctx context.Context, to Recipient, event string, payload any) error {
	var lastErr error
	delivered := false
	for _, r := range m.Routes {
		if err := r.Publish(ctx, to, event, payload); err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	if lastErr != nil && m.Log != nil {
		m.Log.Warn("notification undelivered", "event", event, "aliases", to.Aliases, "error", lastErr)
	}
	return lastErr
}

// Envelope is the wire shape of every event: a ride snapshot plus
// role-specific enrichment.
type Envelope struct {
	Event string         `json:"event"`
	Ride  *models.Ride   `json:"ride,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

func NewEnvelope(event string, ride *models.Ride, extra map[string]any) Envelope {
	return Envelope{Event: event, Ride: ride, Extra: extra}
}
