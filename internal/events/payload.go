package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadpulse/internal/scoring"
)

const maxPathLength = 2048

// RawEvent is the event object exactly as the browser script sends it.
type RawEvent struct {
	Type      string          `json:"type"`
	Page      string          `json:"page"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Payload is the decoded, kind-specific content of an event. Each variant only
// carries the fields that make sense for its kind.
type Payload interface {
	Kind() Kind
	PagePath() string
	ScoreInput() scoring.Input
}

// PageView is a visit to a page.
type PageView struct {
	Path        string `json:"path"`
	Title       string `json:"title,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
}

// PageExit closes a page visit with dwell time and scroll depth.
type PageExit struct {
	Path            string `json:"path"`
	DurationSeconds int    `json:"duration"`
	MaxScrollDepth  int    `json:"maxScrollDepth"`
}

// ScrollDepth is a scroll milestone on a page.
type ScrollDepth struct {
	Path    string `json:"path"`
	Percent int    `json:"depth"`
}

// ChatOpened marks the chat widget being opened.
type ChatOpened struct {
	Path string `json:"path"`
}

// ChatMessage is a visitor message sent through the chat widget.
type ChatMessage struct {
	Path         string `json:"path"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// ChatLeadDetected is emitted when the chat assistant captures a lead.
type ChatLeadDetected struct {
	Path   string `json:"path"`
	Email  string `json:"email,omitempty"`
	Intent string `json:"intent,omitempty"`
}

// FormSubmitted is a lead form submission.
type FormSubmitted struct {
	Path     string `json:"path"`
	FormName string `json:"formName,omitempty"`
}

// Unknown keeps events of unrecognized kinds; they are stored but score zero.
type Unknown struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

func (p PageView) Kind() Kind { return KindPageView }
func (p PageExit) Kind() Kind { return KindPageExit }
func (p ScrollDepth) Kind() Kind { return KindScrollDepth }
func (p ChatOpened) Kind() Kind { return KindChatOpened }
func (p ChatMessage) Kind() Kind { return KindChatMessage }
func (p ChatLeadDetected) Kind() Kind { return KindChatLeadDetected }
func (p FormSubmitted) Kind() Kind { return KindFormSubmitted }
func (p Unknown) Kind() Kind { return Kind(p.Type) }

func (p PageView) PagePath() string { return p.Path }
func (p PageExit) PagePath() string { return p.Path }
func (p ScrollDepth) PagePath() string { return p.Path }
func (p ChatOpened) PagePath() string { return p.Path }
func (p ChatMessage) PagePath() string { return p.Path }
func (p ChatLeadDetected) PagePath() string { return p.Path }
func (p FormSubmitted) PagePath() string { return p.Path }
func (p Unknown) PagePath() string { return p.Path }

func (p PageView) ScoreInput() scoring.Input { return scoring.Input{Kind: string(KindPageView), Path: p.Path} }
func (p PageExit) ScoreInput() scoring.Input { return scoring.Input{Kind: string(KindPageExit), Path: p.Path} }
func (p ChatOpened) ScoreInput() scoring.Input { return scoring.Input{Kind: string(KindChatOpened), Path: p.Path} }
func (p ChatMessage) ScoreInput() scoring.Input { return scoring.Input{Kind: string(KindChatMessage), Path: p.Path} }
func (p Unknown) ScoreInput() scoring.Input { return scoring.Input{Kind: p.Type, Path: p.Path} }

func (p ScrollDepth) ScoreInput() scoring.Input {
	return scoring.Input{Kind: string(KindScrollDepth), Path: p.Path, ScrollPercent: p.Percent}
}

func (p ChatLeadDetected) ScoreInput() scoring.Input {
	return scoring.Input{Kind: string(KindChatLeadDetected), Path: p.Path}
}

func (p FormSubmitted) ScoreInput() scoring.Input {
	return scoring.Input{Kind: string(KindFormSubmitted), Path: p.Path}
}

// DecodePayload turns a raw event into its typed variant. Free-form strings
// are sanitized. Malformed data for a known kind is an error.
func DecodePayload(raw RawEvent) (Payload, error) {
	kind := Kind(strings.TrimSpace(raw.Type))
	if kind == "" {
		return nil, fmt.Errorf("event type is required")
	}

	path, query := NormalizePath(raw.Page)

	switch kind {
	case KindPageView:
		var p PageView
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.Title = SanitizeText(p.Title)
		p.Referrer = SanitizeText(p.Referrer)
		p.UTMSource = SanitizeText(firstNonEmpty(p.UTMSource, query.Get("utm_source")))
		p.UTMMedium = SanitizeText(firstNonEmpty(p.UTMMedium, query.Get("utm_medium")))
		p.UTMCampaign = SanitizeText(firstNonEmpty(p.UTMCampaign, query.Get("utm_campaign")))
		return p, nil
	case KindPageExit:
		var p PageExit
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.DurationSeconds = max(p.DurationSeconds, 0)
		p.MaxScrollDepth = clampPercent(p.MaxScrollDepth)
		return p, nil
	case KindScrollDepth:
		var p ScrollDepth
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.Percent = clampPercent(p.Percent)
		return p, nil
	case KindChatOpened:
		return ChatOpened{Path: path}, nil
	case KindChatMessage:
		var p ChatMessage
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.MessageCount = max(p.MessageCount, 0)
		return p, nil
	case KindChatLeadDetected:
		var p ChatLeadDetected
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.Email = SanitizeText(p.Email)
		p.Intent = SanitizeText(p.Intent)
		return p, nil
	case KindFormSubmitted:
		var p FormSubmitted
		if err := decodeData(raw.Data, &p); err != nil {
			return nil, err
		}
		p.Path = path
		p.FormName = SanitizeText(p.FormName)
		return p, nil
	default:
		return Unknown{Type: SanitizeText(string(kind)), Path: path}, nil
	}
}

// EncodeData renders the decoded fields of p as stored in Event.Data. Keys
// the variant does not declare are dropped.
func EncodeData(p Payload) string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseTimestamp accepts unix milliseconds or an RFC 3339 string. Missing or
// unparseable values fall back to now.
func ParseTimestamp(raw json.RawMessage, now time.Time) time.Time {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return now
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC()
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC()
		}
		return now
	}

	var ms float64
	if err := json.Unmarshal(trimmed, &ms); err == nil && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return now
}

// NormalizePath reduces a page reference to its path and returns the query
// string separately. Full URLs are accepted.
func NormalizePath(page string) (string, url.Values) {
	page = strings.TrimSpace(page)
	if page == "" {
		return "", url.Values{}
	}

	parsed, err := url.Parse(page)
	if err != nil {
		path := page
		if idx := strings.IndexAny(path, "?#"); idx >= 0 {
			path = path[:idx]
		}
		return truncatePath(ensureLeadingSlash(path)), url.Values{}
	}

	return truncatePath(ensureLeadingSlash(parsed.Path)), parsed.Query()
}

func decodeData(data json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}
	return nil
}

func ensureLeadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func truncatePath(path string) string {
	if len(path) > maxPathLength {
		return path[:maxPathLength]
	}
	return path
}

func clampPercent(v int) int {
	return min(max(v, 0), 100)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
