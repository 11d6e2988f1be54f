// Package notify fans out system notifications (order updates, campaign
// pings, operator alerts) over the messaging channels. It is independent of
// conversations except for web chat, where a notification becomes a stored
// message.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier delivers one notification over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, recipientID, message string, data map[string]any) error
}

// Dispatcher routes notifications to named channels. Registration is
// overwrite-wins so a rebuilt notifier can replace its predecessor.
type Dispatcher struct {
	logger *slog.Logger
	mu     sync.RWMutex
	byName map[string]Notifier
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: log.With(slog.String("service", "notify")),
		byName: map[string]Notifier{},
	}
}

// Register adds or replaces the notifier for its channel name.
func (d *Dispatcher) Register(n Notifier) {
	if n == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byName[n.Name()]; exists {
		d.logger.Info("notifier replaced", slog.String("channel", n.Name()))
	}
	d.byName[n.Name()] = n
}

// Channels returns the registered channel names.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	return names
}

// SendViaChannel delivers one notification. Unknown channels and delivery
// failures are reported as false, never as a panic or error: one broken
// channel must not take down the caller.
func (d *Dispatcher) SendViaChannel(ctx context.Context, channelName, recipientID, message string, data map[string]any) bool {
	d.mu.RLock()
	notifier, ok := d.byName[channelName]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("notification channel not registered", slog.String("channel", channelName))
		return false
	}
	if err := notifier.Send(ctx, recipientID, message, data); err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("channel", channelName),
			slog.String("recipient", recipientID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// SendViaChannels fans one notification out over several channels
// independently; a failure on one channel does not stop the others.
func (d *Dispatcher) SendViaChannels(ctx context.Context, channels []string, recipientID, message string, data map[string]any) map[string]bool {
	results := make(map[string]bool, len(channels))
	for _, name := range channels {
		results[name] = d.SendViaChannel(ctx, name, recipientID, message, data)
	}
	return results
}
