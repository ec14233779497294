// Package notify delivers dispatch offers to the selected driver over the
// configured channels.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/resqmeals/gateway/core/factory"
	"github.com/resqmeals/gateway/core/model"
)

// ErrUnreachable reports that a channel cannot address the driver, for
// example a Telegram notifier and a driver without a chat id.
var ErrUnreachable = errors.New("driver unreachable on channel")

// Offer is the pickup proposal sent to a driver.
type Offer struct {
	OfferID       string       `json:"offer_id"`
	JobID         string       `json:"job_id,omitempty"`
	AuditID       string       `json:"audit_id,omitempty"`
	Driver        model.Driver `json:"-"`
	DriverID      string       `json:"driver_id"`
	Message       string       `json:"message"`
	AcceptLink    string       `json:"accept_link"`
	PickupAddress string       `json:"pickup_address"`
	Deadline      string       `json:"deadline"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Notifier delivers an offer over one channel.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, offer Offer) error
}

// Result is the outcome of one channel delivery.
type Result struct {
	Channel string
	Err     error
}

// Skipped reports whether the channel did not apply to the driver.
func (r Result) Skipped() bool { return errors.Is(r.Err, ErrUnreachable) }

// Multi delivers an offer over every channel.
type Multi []Notifier

// Deliver notifies every channel and returns one result per channel.
func (m Multi) Deliver(ctx context.Context, offer Offer) []Result {
	out := make([]Result, 0, len(m))
	for _, n := range m {
		out = append(out, Result{Channel: n.Channel(), Err: n.Notify(ctx, offer)})
	}
	return out
}

// Nop discards offers.
type Nop struct{}

func (Nop) Channel() string                     { return "nop" }
func (Nop) Notify(context.Context, Offer) error { return nil }

var registry = factory.NewRegistry[Notifier]()

// Register adds a notifier factory identified by name.
func Register(name string, f factory.Factory[Notifier]) error {
	return registry.Register(name, f)
}

// New builds a Multi from configuration.
func New(cfgs []factory.ModuleConfig) (Multi, error) {
	out := make(Multi, 0, len(cfgs))
	for _, c := range cfgs {
		n, err := registry.Create(c)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func init() {
	_ = Register("nop", func(map[string]any) (Notifier, error) { return Nop{}, nil })
}
