package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/ingest"
	"leadpulse/internal/notify"
	"leadpulse/internal/pkg/company"
	"leadpulse/internal/pkg/geoip"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
	"leadpulse/internal/testsupport"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	publicIP    = "203.0.113.10"
)

type fakeGeo struct {
	location geoip.Location
	err      error
}

func (f fakeGeo) Locate(string) (geoip.Location, error) {
	return f.location, f.err
}

type fakeCompanies struct {
	company *company.Company
	block   bool
}

func (f fakeCompanies) Resolve(ctx context.Context, _ string) (*company.Company, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.company, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) byKind(kind notify.Kind) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func newIngestor(geo ingest.GeoLocator, companies ingest.CompanyResolver) (*ingest.Ingestor, *recordingNotifier) {
	rec := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(rec, notify.NewDedup(1000, time.Hour), notify.Options{WatchTier: scoring.TierHot}, testsupport.GetLogger())
	ing := ingest.New(geo, companies, dispatcher, ingest.Options{
		Caps:              sessions.Caps{MaxPages: 100, MaxScore: 10000},
		MaxJourneySteps:   50,
		EnrichmentTimeout: 200 * time.Millisecond,
	})
	return ing, rec
}

func decode(t *testing.T, body string) *ingest.Request {
	t.Helper()
	req, err := ingest.DecodeRequest([]byte(body))
	require.NoError(t, err)
	return req
}

func TestIngestPageViews(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, rec := newIngestor(
		fakeGeo{location: geoip.Location{CountryCode: "de", Region: "Berlin", City: "Berlin"}},
		fakeCompanies{company: &company.Company{Name: "Acme Corp", Domain: "acme.io", Industry: "business"}},
	)
	client := ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA}
	ctx := context.Background()

	first, err := ing.Ingest(ctx, db, logger, decode(t, `{
		"visitorId": "v-1", "sessionId": "s-1",
		"event": {"type": "page_view", "page": "/?utm_source=newsletter&utm_medium=email",
		          "data": {"referrer": "https://mail.example.com/"}}
	}`), client)
	require.NoError(t, err)
	assert.NotEmpty(t, first.EventID)
	assert.True(t, first.SessionCreated)
	assert.Equal(t, 1, first.Score)
	assert.Equal(t, scoring.TierCold, first.Tier)

	second, err := ing.Ingest(ctx, db, logger, decode(t, `{
		"visitorId": "v-1", "sessionId": "s-1",
		"event": {"type": "page_view", "page": "/pricing"}
	}`), client)
	require.NoError(t, err)
	assert.False(t, second.SessionCreated)
	assert.Equal(t, 12, second.Score)

	session, err := sessions.GetBySessionID(db, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "/", session.EntryPage)
	assert.Equal(t, "/pricing", session.ExitPage)
	assert.Equal(t, []string{"/", "/pricing"}, session.Pages)
	assert.Equal(t, "de", session.Country)
	assert.Equal(t, "Berlin", session.City)
	assert.Equal(t, "desktop", session.Device)
	assert.Equal(t, "Acme Corp", session.CompanyName)
	assert.Equal(t, "newsletter", session.UTMSource)
	assert.Equal(t, "email", session.ReferrerMedium)
	assert.Equal(t, 2, session.EventCount)

	var stored events.Event
	require.NoError(t, db.Where("id = ?", first.EventID).First(&stored).Error)
	assert.Equal(t, events.KindPageView, stored.Type)
	assert.Equal(t, "de", stored.Country)
	assert.False(t, stored.IsBot)

	ing.Dispatcher().Wait()
	assert.Len(t, rec.byKind(notify.KindCompanyIdentified), 1)
	assert.Empty(t, rec.byKind(notify.KindTierUpgrade))
}

func TestIngestTierUpgradeNotifiesOnce(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, rec := newIngestor(nil, nil)
	client := ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA}
	ctx := context.Background()

	result, err := ing.Ingest(ctx, db, logger, decode(t, `{
		"visitorId": "v-2", "sessionId": "s-2", "leadScore": 40,
		"pageJourney": ["/", "/case-studies/acme", "/contact"],
		"event": {"type": "chat_lead_detected", "page": "/contact", "data": {"email": "jane@example.com"}}
	}`), client)
	require.NoError(t, err)
	assert.Equal(t, 73, result.Score)
	assert.Equal(t, scoring.TierHot, result.Tier)

	// Another high-intent event keeps the session Hot without a new alert.
	result, err = ing.Ingest(ctx, db, logger, decode(t, `{
		"visitorId": "v-2", "sessionId": "s-2", "leadScore": 0,
		"event": {"type": "chat_opened", "page": "/contact"}
	}`), client)
	require.NoError(t, err)
	assert.Equal(t, 86, result.Score)
	assert.Equal(t, scoring.TierHot, result.Tier)

	ing.Dispatcher().Wait()
	upgrades := rec.byKind(notify.KindTierUpgrade)
	require.Len(t, upgrades, 1)
	assert.Equal(t, "s-2", upgrades[0].SessionID)
	assert.Equal(t, scoring.TierWarm, upgrades[0].PreviousTier)
	assert.Equal(t, scoring.TierHot, upgrades[0].Tier)

	session, err := sessions.GetBySessionID(db, "s-2")
	require.NoError(t, err)
	assert.True(t, session.Converted)
	assert.Equal(t, sessions.ConversionChatLead, session.ConversionType)

	paths, err := attribution.GetBySession(db, "s-2")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "/", paths[0].FirstTouchPage)
	assert.Equal(t, "/contact", paths[0].LastTouchPage)
	assert.Equal(t, 3, paths[0].JourneyLength)
	assert.Equal(t, sessions.ConversionChatLead, paths[0].ConversionType)
}

func TestIngestConversionRecordedOnce(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, _ := newIngestor(nil, nil)
	client := ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA}
	body := `{
		"visitorId": "v-3", "sessionId": "s-3",
		"pageJourney": ["/", "/contact"],
		"event": {"type": "form_submitted", "page": "/contact", "data": {"formName": "demo"}}
	}`

	_, err := ing.Ingest(context.Background(), db, logger, decode(t, body), client)
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), db, logger, decode(t, body), client)
	require.NoError(t, err)

	paths, err := attribution.GetBySession(db, "s-3")
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestIngestConversionWithoutJourney(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, _ := newIngestor(nil, nil)
	_, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-4", "sessionId": "s-4",
		"event": {"type": "form_submitted", "page": "/contact"}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA})
	require.NoError(t, err)

	session, err := sessions.GetBySessionID(db, "s-4")
	require.NoError(t, err)
	assert.True(t, session.Converted)
	assert.Equal(t, sessions.ConversionFormSubmission, session.ConversionType)

	paths, err := attribution.GetBySession(db, "s-4")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestIngestBotTraffic(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, rec := newIngestor(nil, fakeCompanies{company: &company.Company{Name: "Google"}})

	result, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-5", "sessionId": "s-5", "leadScore": 500,
		"event": {"type": "form_submitted", "page": "/pricing"}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: googlebotUA})
	require.NoError(t, err)
	assert.True(t, result.IsBot)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, scoring.TierCold, result.Tier)

	var stored events.Event
	require.NoError(t, db.Where("id = ?", result.EventID).First(&stored).Error)
	assert.True(t, stored.IsBot)
	assert.Equal(t, "Googlebot", stored.BotName)

	_, err = sessions.GetBySessionID(db, "s-5")
	var notFound *sessions.SessionNotFoundError
	assert.True(t, errors.As(err, &notFound))

	ing.Dispatcher().Wait()
	assert.Empty(t, rec.byKind(notify.KindTierUpgrade))
	assert.Empty(t, rec.byKind(notify.KindCompanyIdentified))
}

func TestIngestBotLeavesExistingSessionUntouched(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, rec := newIngestor(nil, nil)

	_, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-9", "sessionId": "s-9",
		"event": {"type": "page_view", "page": "/"}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA})
	require.NoError(t, err)

	result, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-9", "sessionId": "s-9",
		"pageJourney": ["/", "/contact"],
		"event": {"type": "form_submitted", "page": "/contact", "data": {"formName": "demo"}}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: googlebotUA})
	require.NoError(t, err)
	assert.True(t, result.IsBot)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, scoring.TierCold, result.Tier)

	session, err := sessions.GetBySessionID(db, "s-9")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Score)
	assert.False(t, session.Converted)
	assert.Empty(t, session.ConversionType)

	paths, err := attribution.GetBySession(db, "s-9")
	require.NoError(t, err)
	assert.Empty(t, paths)

	ing.Dispatcher().Wait()
	assert.Empty(t, rec.byKind(notify.KindTierUpgrade))
}

func TestIngestStoresSanitizedData(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, _ := newIngestor(nil, nil)
	result, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-10", "sessionId": "s-10",
		"event": {
			"type": "form_submitted", "page": "/contact",
			"data": {"formName": "<script>alert(1)</script>Demo", "secret": "<img src=x onerror=alert(2)>"}
		}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA})
	require.NoError(t, err)

	var stored events.Event
	require.NoError(t, db.Where("id = ?", result.EventID).First(&stored).Error)
	assert.Contains(t, stored.Data, "Demo")
	assert.NotContains(t, stored.Data, "<script>")
	assert.NotContains(t, stored.Data, "secret")
	assert.NotContains(t, stored.Data, "onerror")
	assert.JSONEq(t, `{"path": "/contact", "formName": "Demo"}`, stored.Data)
}

func TestIngestEnrichmentFailuresAreIgnored(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, rec := newIngestor(fakeGeo{err: errors.New("lookup failed")}, fakeCompanies{block: true})

	start := time.Now()
	result, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-6", "sessionId": "s-6",
		"event": {"type": "page_view", "page": "/assessment"}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 11, result.Score)

	session, err := sessions.GetBySessionID(db, "s-6")
	require.NoError(t, err)
	assert.Empty(t, session.Country)
	assert.Empty(t, session.CompanyName)

	ing.Dispatcher().Wait()
	assert.Empty(t, rec.byKind(notify.KindCompanyIdentified))
}

func TestIngestPrivateIPSkipsEnrichment(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, _ := newIngestor(fakeGeo{location: geoip.Location{CountryCode: "us"}}, nil)
	_, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-7", "sessionId": "s-7",
		"event": {"type": "page_view", "page": "/"}
	}`), ingest.ClientInfo{IP: "10.0.0.4", UserAgent: chromeUA})
	require.NoError(t, err)

	session, err := sessions.GetBySessionID(db, "s-7")
	require.NoError(t, err)
	assert.Empty(t, session.Country)
}

func TestIngestInvalidPayload(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ing, _ := newIngestor(nil, nil)
	_, err := ing.Ingest(context.Background(), db, logger, decode(t, `{
		"visitorId": "v-8", "sessionId": "s-8",
		"event": {"type": "scroll_depth", "page": "/", "data": {"depth": "deep"}}
	}`), ingest.ClientInfo{IP: publicIP, UserAgent: chromeUA})
	require.Error(t, err)

	var validationErr *ingest.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	var count int64
	db.Model(&events.Event{}).Where("session_id = ?", "s-8").Count(&count)
	assert.Equal(t, int64(0), count)
}
