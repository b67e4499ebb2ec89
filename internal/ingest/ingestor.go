// Package ingest turns inbound browser events into stored events, updated
// sessions and the side effects that follow from them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/metrics"
	"leadpulse/internal/notify"
	"leadpulse/internal/pkg/async"
	"leadpulse/internal/pkg/company"
	"leadpulse/internal/pkg/geoip"
	ua "leadpulse/internal/pkg/user_agent"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
)

// Client timestamps further ahead than this are replaced by the server clock.
const maxClockSkew = 5 * time.Minute

// GeoLocator resolves an IP to a location.
type GeoLocator interface {
	Locate(ip string) (geoip.Location, error)
}

// CompanyResolver identifies the organization behind an IP.
type CompanyResolver interface {
	Resolve(ctx context.Context, ip string) (*company.Company, error)
}

// Options bound what a single event may do to a session.
type Options struct {
	Caps              sessions.Caps
	MaxJourneySteps   int
	EnrichmentTimeout time.Duration
}

// ClientInfo is what the transport knows about the caller.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Result is returned to the browser script.
type Result struct {
	EventID        string
	Score          int
	Tier           scoring.Tier
	IsBot          bool
	SessionCreated bool
}

// Ingestor processes events. It is safe for concurrent use.
type Ingestor struct {
	geo        GeoLocator
	companies  CompanyResolver
	dispatcher *notify.Dispatcher
	pool       *async.Pool
	opts       Options
	now        func() time.Time
}

// New creates an ingestor. geo and companies may be nil to disable the
// corresponding enrichment.
func New(geo GeoLocator, companies CompanyResolver, dispatcher *notify.Dispatcher, opts Options) *Ingestor {
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = 1500 * time.Millisecond
	}
	return &Ingestor{
		geo:        geo,
		companies:  companies,
		dispatcher: dispatcher,
		pool:       async.NewPool(2),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Dispatcher returns the notification dispatcher, which may be nil.
func (i *Ingestor) Dispatcher() *notify.Dispatcher {
	return i.dispatcher
}

type enrichment struct {
	location geoip.Location
	company  *company.Company
}

// Ingest records one event. The event row and the session update are
// written atomically; attribution, enrichment and notifications are best
// effort and never fail the call.
func (i *Ingestor) Ingest(ctx context.Context, db *gorm.DB, logger *slog.Logger, req *Request, client ClientInfo) (*Result, error) {
	start := time.Now()
	defer func() { metrics.ObserveIngest(time.Since(start).Seconds()) }()

	payload, err := events.DecodePayload(req.Event)
	if err != nil {
		metrics.EventRejected("invalid_payload")
		return nil, &ValidationError{Field: "event", Message: err.Error()}
	}

	now := i.now()
	timestamp := events.ParseTimestamp(req.Event.Timestamp, now)
	if timestamp.After(now.Add(maxClockSkew)) {
		timestamp = now
	}

	parsed := ua.ParseUserAgent(client.UserAgent)
	event := &events.Event{
		ID:        events.NewEventID(),
		Type:      payload.Kind(),
		Page:      payload.PagePath(),
		Timestamp: timestamp,
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		Data:      events.EncodeData(payload),
		Browser:   events.BrowserFromUA(parsed),
		OS:        events.NormalizeOperatingSystem(parsed.OS),
		Device:    events.NormalizeDevice(req.Device, parsed),
		IsBot:     parsed.Bot,
		BotName:   parsed.BotName,
	}

	if parsed.Bot {
		return i.ingestBot(db, logger, event)
	}

	var extra enrichment
	if payload.Kind() == events.KindPageView {
		extra = i.enrich(ctx, logger, client.IP)
		event.Country = extra.location.CountryCode
		event.Region = extra.location.Region
		event.City = extra.location.City
		if extra.company != nil {
			event.CompanyName = extra.company.Name
			event.CompanyDomain = extra.company.Domain
			event.CompanyIndustry = extra.company.Industry
		}
	}

	sessionCtx := sessions.Context{
		VisitorID:            req.VisitorID,
		Device:               event.Device,
		Browser:              event.Browser,
		OS:                   event.OS,
		Country:              event.Country,
		Region:               event.Region,
		City:                 event.City,
		CompanyName:          event.CompanyName,
		CompanyDomain:        event.CompanyDomain,
		CompanyIndustry:      event.CompanyIndustry,
		IsReturning:          req.IsReturning,
		PagesVisitedReported: max(req.PagesVisited, 0),
		SeedScore:            req.SeedScore(),
		Timestamp:            timestamp,
	}

	var (
		session *sessions.Session
		change  sessions.Change
	)
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}

		s, err := sessions.FindOrNew(tx, req.SessionID, sessionCtx)
		if err != nil {
			return err
		}
		change = s.Apply(payload, sessionCtx, i.opts.Caps)
		if err := sessions.Save(tx, s); err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist event for session %s: %w", req.SessionID, err)
	}

	metrics.EventIngested(string(payload.Kind()), false)

	if change.NewlyConverted {
		metrics.Converted(session.ConversionType)
		i.recordConversion(db, logger, req, session, payload)
	}
	i.notify(session, change, payload, timestamp)

	logger.Debug("Event ingested",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("session_id", req.SessionID),
		slog.Int("score", session.Score),
		slog.String("tier", session.Tier))

	return &Result{
		EventID:        event.ID,
		Score:          session.Score,
		Tier:           change.Tier,
		SessionCreated: change.Created,
	}, nil
}

// ingestBot stores the event for auditing and reports the session's current
// standing without touching it.
func (i *Ingestor) ingestBot(db *gorm.DB, logger *slog.Logger, event *events.Event) (*Result, error) {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store bot event: %w", err)
	}
	metrics.EventIngested(string(event.Type), true)

	result := &Result{EventID: event.ID, IsBot: true, Tier: scoring.TierCold}

	session, err := sessions.GetBySessionID(db, event.SessionID)
	var notFound *sessions.SessionNotFoundError
	switch {
	case err == nil:
		result.Score = session.Score
		result.Tier = scoring.TierFor(session.Score)
	case errors.As(err, &notFound):
	default:
		logger.Warn("Failed to load session for bot event",
			slog.String("session_id", event.SessionID),
			slog.Any("error", err))
	}

	logger.Debug("Bot event stored",
		slog.String("event_id", event.ID),
		slog.String("bot", event.BotName))
	return result, nil
}

// enrich runs geolocation and company lookups concurrently. Anything that
// fails or runs past the enrichment timeout is left empty.
func (i *Ingestor) enrich(ctx context.Context, logger *slog.Logger, ip string) enrichment {
	var out enrichment
	if !isPublicIP(ip) {
		return out
	}

	var tasks []async.Task
	if i.geo != nil {
		tasks = append(tasks, async.Task{
			Name: "geoip",
			Execute: func(ctx context.Context) (any, error) {
				return i.geo.Locate(ip)
			},
		})
	}
	if i.companies != nil {
		tasks = append(tasks, async.Task{
			Name: "company",
			Execute: func(ctx context.Context) (any, error) {
				return i.companies.Resolve(ctx, ip)
			},
		})
	}
	if len(tasks) == 0 {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, i.opts.EnrichmentTimeout)
	defer cancel()

	results := i.pool.Execute(ctx, tasks)
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			metrics.EnrichmentFailed(task.Name)
			logger.Debug("Enrichment timed out", slog.String("source", task.Name))
			continue
		}
		if result.Err != nil {
			if !errors.Is(result.Err, geoip.ErrUnavailable) {
				metrics.EnrichmentFailed(task.Name)
				logger.Debug("Enrichment failed",
					slog.String("source", task.Name),
					slog.Any("error", result.Err))
			}
			continue
		}
		switch data := result.Data.(type) {
		case geoip.Location:
			out.location = data
		case *company.Company:
			out.company = data
		}
	}
	return out
}

func (i *Ingestor) recordConversion(db *gorm.DB, logger *slog.Logger, req *Request, session *sessions.Session, payload events.Payload) {
	journey := req.PageJourney.Normalized()
	if len(journey) == 0 {
		logger.Debug("Conversion without page journey, skipping attribution",
			slog.String("session_id", session.SessionID))
		return
	}

	convertedAt := session.LastSeenAt
	if session.ConvertedAt != nil {
		convertedAt = *session.ConvertedAt
	}

	_, err := attribution.Record(db, logger, attribution.Input{
		SessionID:      session.SessionID,
		VisitorID:      session.VisitorID,
		ConversionType: session.ConversionType,
		ConversionPage: payload.PagePath(),
		Journey:        journey,
		Device:         session.Device,
		Country:        session.Country,
		ReferrerSource: session.ReferrerSource,
		ReferrerMedium: session.ReferrerMedium,
		UTMSource:      session.UTMSource,
		UTMCampaign:    session.UTMCampaign,
		ConvertedAt:    convertedAt,
		MaxSteps:       i.opts.MaxJourneySteps,
	})
	if err != nil {
		metrics.AttributionFailed()
		logger.Error("Failed to record conversion path",
			slog.String("session_id", session.SessionID),
			slog.Any("error", err))
	}
}

func (i *Ingestor) notify(session *sessions.Session, change sessions.Change, payload events.Payload, at time.Time) {
	if change.TierRaised() {
		metrics.TierUpgraded(change.Tier.Slug())
	}
	if !i.dispatcher.Enabled() {
		return
	}

	base := notify.Notification{
		SessionID:     session.SessionID,
		VisitorID:     session.VisitorID,
		Score:         session.Score,
		Tier:          change.Tier,
		PreviousTier:  change.PreviousTier,
		Page:          payload.PagePath(),
		Country:       session.Country,
		City:          session.City,
		CompanyName:   session.CompanyName,
		CompanyDomain: session.CompanyDomain,
		OccurredAt:    at,
	}

	if change.TierRaised() {
		i.dispatcher.TierUpgraded(base)
	}
	if change.CompanyIdentified {
		i.dispatcher.CompanyIdentified(base)
	}
}

func isPublicIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsGlobalUnicast() && !addr.IsPrivate() && !addr.IsLoopback()
}
