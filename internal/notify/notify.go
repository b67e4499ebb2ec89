// Package notify delivers sales alerts for sessions that warm up or get
// matched to a company.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leadpulse/internal/metrics"
	"leadpulse/internal/scoring"
)

// Kind identifies what a notification announces.
type Kind string

const (
	KindTierUpgrade       Kind = "tier_upgrade"
	KindCompanyIdentified Kind = "company_identified"
)

// Notification is one alert about a session.
type Notification struct {
	Kind          Kind
	SessionID     string
	VisitorID     string
	Score         int
	Tier          scoring.Tier
	PreviousTier  scoring.Tier
	Page          string
	Country       string
	City          string
	CompanyName   string
	CompanyDomain string
	OccurredAt    time.Time
}

// Notifier sends a notification somewhere.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Options configures a Dispatcher.
type Options struct {
	// WatchTier is the lowest tier that produces upgrade alerts.
	WatchTier scoring.Tier
	Timeout   time.Duration
}

// Dispatcher decides which alerts are due and sends them in the background.
// A nil notifier turns every call into a no-op.
type Dispatcher struct {
	notifier Notifier
	dedup    *Dedup
	opts     Options
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher backed by dedup.
func NewDispatcher(notifier Notifier, dedup *Dedup, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		dedup:    dedup,
		opts:     opts,
		logger:   logger,
	}
}

// Dedup returns the cache the dispatcher marks keys in.
func (d *Dispatcher) Dedup() *Dedup {
	return d.dedup
}

// Enabled reports whether alerts are delivered anywhere.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.notifier != nil
}

// TierUpgraded queues an alert when a session rose into a watched tier it
// has not been announced at. It returns whether an alert was queued.
func (d *Dispatcher) TierUpgraded(n Notification) bool {
	if !d.Enabled() {
		return false
	}
	if !n.Tier.AtLeast(d.opts.WatchTier) || n.Tier <= n.PreviousTier {
		return false
	}
	n.Kind = KindTierUpgrade
	key := fmt.Sprintf("tier:%s:%s", n.SessionID, n.Tier.Slug())
	return d.dispatch(key, n)
}

// CompanyIdentified queues an alert the first time a session is matched to a
// company.
func (d *Dispatcher) CompanyIdentified(n Notification) bool {
	if !d.Enabled() || n.CompanyName == "" {
		return false
	}
	n.Kind = KindCompanyIdentified
	return d.dispatch("company:"+n.SessionID, n)
}

// Wait blocks until queued deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(key string, n Notification) bool {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	if !d.dedup.MarkOnce(key, n.OccurredAt) {
		return false
	}
	metrics.SetDedupeEntries(d.dedup.Len())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Notification delivery panicked",
					slog.String("kind", string(n.Kind)),
					slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, n); err != nil {
			metrics.NotificationSent(string(n.Kind), false)
			d.logger.Warn("Failed to deliver notification",
				slog.String("kind", string(n.Kind)),
				slog.String("session_id", n.SessionID),
				slog.Any("error", err))
			return
		}
		metrics.NotificationSent(string(n.Kind), true)
		d.logger.Debug("Notification delivered",
			slog.String("kind", string(n.Kind)),
			slog.String("session_id", n.SessionID))
	}()
	return true
}
