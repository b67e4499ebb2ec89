package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pariz/gountries"
)

// SlackConfig configures the webhook notifier.
type SlackConfig struct {
	WebhookURL string
	// DashboardURL, when set, links each alert to the session report.
	DashboardURL string
	Timeout      time.Duration
}

// Slack posts notifications to a Slack-compatible incoming webhook.
type Slack struct {
	url       string
	dashboard string
	client    *http.Client
	countries *gountries.Query
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSlack creates a webhook notifier.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, fmt.Errorf("slack webhook URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Slack{
		url:       cfg.WebhookURL,
		dashboard: strings.TrimRight(cfg.DashboardURL, "/"),
		client:    &http.Client{Timeout: timeout},
		countries: gountries.New(),
	}, nil
}

// Notify posts a single message.
func (s *Slack) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(s.message(n))
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack request failed with status %s", resp.Status)
	}
	return nil
}

func (s *Slack) message(n Notification) slackMessage {
	var headline string
	switch n.Kind {
	case KindTierUpgrade:
		headline = fmt.Sprintf("Lead heating up: %s -> %s (score %d)", n.PreviousTier, n.Tier, n.Score)
	case KindCompanyIdentified:
		headline = fmt.Sprintf("Company identified: %s", n.CompanyName)
		if n.CompanyDomain != "" {
			headline += fmt.Sprintf(" (%s)", n.CompanyDomain)
		}
	default:
		headline = fmt.Sprintf("Lead activity (score %d)", n.Score)
	}

	details := []string{fmt.Sprintf("*Session:* `%s`", n.SessionID)}
	if n.Page != "" {
		details = append(details, fmt.Sprintf("*Page:* %s", n.Page))
	}
	if loc := s.location(n); loc != "" {
		details = append(details, fmt.Sprintf("*Location:* %s", loc))
	}
	if n.Kind == KindCompanyIdentified {
		details = append(details, fmt.Sprintf("*Score:* %d (%s)", n.Score, n.Tier))
	} else if n.CompanyName != "" {
		details = append(details, fmt.Sprintf("*Company:* %s", n.CompanyName))
	}
	if s.dashboard != "" {
		details = append(details, fmt.Sprintf("<%s/sessions/%s|Open session>", s.dashboard, n.SessionID))
	}

	return slackMessage{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: headline}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.Join(details, "\n")}},
		},
	}
}

func (s *Slack) location(n Notification) string {
	country := n.Country
	if country != "" {
		if c, err := s.countries.FindCountryByAlpha(strings.ToUpper(country)); err == nil {
			country = c.Name.Common
		}
	}
	switch {
	case n.City != "" && country != "":
		return n.City + ", " + country
	case country != "":
		return country
	default:
		return n.City
	}
}
