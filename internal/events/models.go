package events

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies what a behavioral event describes.
type Kind string

const (
	KindPageView         Kind = "page_view"
	KindPageExit         Kind = "page_exit"
	KindScrollDepth      Kind = "scroll_depth"
	KindChatOpened       Kind = "chat_opened"
	KindChatMessage      Kind = "chat_message"
	KindChatLeadDetected Kind = "chat_lead_detected"
	KindFormSubmitted    Kind = "form_submitted"
)

// KnownKinds lists every kind the pipeline has dedicated handling for.
var KnownKinds = []Kind{
	KindPageView,
	KindPageExit,
	KindScrollDepth,
	KindChatOpened,
	KindChatMessage,
	KindChatLeadDetected,
	KindFormSubmitted,
}

// IsConversion reports whether events of this kind convert a session.
func (k Kind) IsConversion() bool {
	return k == KindFormSubmitted || k == KindChatLeadDetected
}

// Constants for unknown or default values
const (
	UnknownDevice  = "__unknown_device__"
	UnknownBrowser = "__unknown_browser__"
	UnknownOS      = "__unknown_os__"
)

// Event is one stored behavioral event. Rows are append-only.
type Event struct {
	ID              string    `gorm:"primaryKey;size:26"`
	Type            Kind      `gorm:"index;size:64;not null"`
	Page            string    `gorm:"index"`
	Timestamp       time.Time `gorm:"index;not null"`
	VisitorID       string    `gorm:"index;size:128;not null"`
	SessionID       string    `gorm:"index;size:128;not null"`
	Data            string    `gorm:"type:text"`
	Browser         string
	OS              string
	Device          string
	Country         string `gorm:"index"`
	Region          string
	City            string
	IsBot           bool `gorm:"index;not null;default:false"`
	BotName         string
	CompanyName     string
	CompanyDomain   string
	CompanyIndustry string
	CreatedAt       time.Time `gorm:"index"`
}

// NewEventID returns a lexicographically sortable event identifier.
func NewEventID() string {
	return ulid.Make().String()
}
