package sessions

import (
	"time"

	"leadpulse/internal/events"
	"leadpulse/internal/pkg/referrers"
	"leadpulse/internal/scoring"
)

// Caps bound the per-session aggregates.
type Caps struct {
	MaxPages int
	MaxScore int
}

// Context is what the ingestor knows about the request beyond the payload.
type Context struct {
	VisitorID            string
	Device               string
	Browser              string
	OS                   string
	Country              string
	Region               string
	City                 string
	CompanyName          string
	CompanyDomain        string
	CompanyIndustry      string
	IsReturning          bool
	PagesVisitedReported int
	SeedScore            int
	Timestamp            time.Time
}

// Change summarizes what an update did, for downstream side effects.
type Change struct {
	Created           bool
	Score             scoring.Result
	PreviousScore     int
	PreviousTier      scoring.Tier
	Tier              scoring.Tier
	NewlyConverted    bool
	CompanyIdentified bool
}

// TierRaised reports whether the update moved the session into a higher tier.
func (c Change) TierRaised() bool {
	return c.Tier > c.PreviousTier
}

// New starts an empty session for the first event of a visit.
func New(sessionID string, ctx Context) *Session {
	return &Session{
		SessionID:  sessionID,
		VisitorID:  ctx.VisitorID,
		Tier:       scoring.TierCold.String(),
		Pages:      []string{},
		StartedAt:  ctx.Timestamp,
		LastSeenAt: ctx.Timestamp,
	}
}

// Apply folds one human event into the session. It only appends, raises or
// sets fields; nothing already recorded is removed.
func (s *Session) Apply(payload events.Payload, ctx Context, caps Caps) Change {
	change := Change{Created: s.ID == 0 && s.EventCount == 0}

	if change.Created && ctx.SeedScore > 0 {
		s.Score = clampScore(ctx.SeedScore, caps)
	}

	change.PreviousScore = s.Score
	change.PreviousTier = scoring.TierFor(s.Score)

	result := scoring.Accumulate(s.Score, payload.ScoreInput())
	change.Score = result
	s.Score = max(s.Score, clampScore(result.Score, caps))
	change.Tier = scoring.TierFor(s.Score)
	s.Tier = change.Tier.String()

	s.EventCount++
	if ctx.Timestamp.After(s.LastSeenAt) {
		s.LastSeenAt = ctx.Timestamp
	}
	if s.StartedAt.IsZero() || (!ctx.Timestamp.IsZero() && ctx.Timestamp.Before(s.StartedAt)) {
		s.StartedAt = ctx.Timestamp
	}
	if ctx.IsReturning {
		s.IsReturning = true
	}
	s.PagesVisitedReported = max(s.PagesVisitedReported, ctx.PagesVisitedReported)

	switch p := payload.(type) {
	case events.PageView:
		s.applyPageView(p, ctx, caps, &change)
	case events.PageExit:
		s.DurationSeconds = max(s.DurationSeconds, p.DurationSeconds)
		s.MaxScrollDepth = max(s.MaxScrollDepth, p.MaxScrollDepth)
	case events.FormSubmitted:
		s.markConverted(ConversionFormSubmission, ctx.Timestamp, &change)
	case events.ChatLeadDetected:
		s.markConverted(ConversionChatLead, ctx.Timestamp, &change)
	}

	return change
}

func (s *Session) applyPageView(p events.PageView, ctx Context, caps Caps, change *Change) {
	path := p.Path
	if path == "" {
		path = "/"
	}

	if s.EntryPage == "" {
		s.EntryPage = path
		attribution := referrers.Classify(p.Referrer, p.UTMSource, p.UTMMedium)
		s.ReferrerSource = attribution.Source
		s.ReferrerMedium = attribution.Medium
		s.UTMSource = p.UTMSource
		s.UTMCampaign = p.UTMCampaign
	}
	s.ExitPage = path

	if n := len(s.Pages); (n == 0 || s.Pages[n-1] != path) && n < caps.MaxPages {
		s.Pages = append(s.Pages, path)
	}
	s.PageCount++

	fillEmpty(&s.Device, ctx.Device)
	fillEmpty(&s.Browser, ctx.Browser)
	fillEmpty(&s.OS, ctx.OS)
	fillEmpty(&s.Country, ctx.Country)
	fillEmpty(&s.Region, ctx.Region)
	fillEmpty(&s.City, ctx.City)

	if s.CompanyName == "" && ctx.CompanyName != "" {
		s.CompanyName = ctx.CompanyName
		s.CompanyDomain = ctx.CompanyDomain
		s.CompanyIndustry = ctx.CompanyIndustry
		change.CompanyIdentified = true
	}
}

func (s *Session) markConverted(conversionType string, at time.Time, change *Change) {
	if s.Converted {
		return
	}
	s.Converted = true
	s.ConversionType = conversionType
	convertedAt := at
	s.ConvertedAt = &convertedAt
	change.NewlyConverted = true
}

func fillEmpty(field *string, value string) {
	if *field == "" && value != "" {
		*field = value
	}
}

func clampScore(score int, caps Caps) int {
	if caps.MaxScore > 0 && score > caps.MaxScore {
		return caps.MaxScore
	}
	return max(score, 0)
}
