package sessions

import "time"

// Session is the per-visit aggregate. It only ever grows: the score never
// drops, pages are appended, and the conversion flag is never cleared.
type Session struct {
	ID                   uint   `gorm:"primaryKey;autoIncrement"`
	SessionID            string `gorm:"uniqueIndex;size:128;not null"`
	VisitorID            string `gorm:"index;size:128;not null"`
	EntryPage            string
	ExitPage             string
	Device               string
	Browser              string
	OS                   string
	Country              string `gorm:"index"`
	Region               string
	City                 string
	Score                int      `gorm:"not null;default:0"`
	Tier                 string   `gorm:"index;size:16"`
	Pages                []string `gorm:"serializer:json;type:text"`
	PageCount            int
	PagesVisitedReported int
	Converted            bool `gorm:"index;not null;default:false"`
	ConversionType       string
	ConvertedAt          *time.Time
	DurationSeconds      int
	MaxScrollDepth       int
	ReferrerSource       string `gorm:"index"`
	ReferrerMedium       string
	UTMSource            string
	UTMCampaign          string
	CompanyName          string
	CompanyDomain        string
	CompanyIndustry      string
	IsReturning          bool
	EventCount           int
	StartedAt            time.Time `gorm:"index"`
	LastSeenAt           time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Conversion types recorded on sessions and conversion paths.
const (
	ConversionFormSubmission = "form_submission"
	ConversionChatLead       = "chat_lead"
)
