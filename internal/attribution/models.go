// Package attribution records the page journey that led a session to convert.
package attribution

import "time"

// Step is one page in a visitor's journey.
type Step struct {
	Page      string    `json:"page"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversionPath is an immutable snapshot of the journey that ended in a
// conversion. Rows are only ever created and read.
type ConversionPath struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"index;size:128;not null"`
	VisitorID      string `gorm:"index;size:128;not null"`
	ConversionType string `gorm:"index;not null"`
	ConversionPage string
	Steps          []Step `gorm:"serializer:json;type:text"`
	FirstTouchPage string `gorm:"index"`
	LastTouchPage  string `gorm:"index"`
	JourneyLength  int
	Device         string
	Country        string
	ReferrerSource string
	ReferrerMedium string
	UTMSource      string
	UTMCampaign    string
	ConvertedAt    time.Time `gorm:"index;not null"`
	CreatedAt      time.Time
}

// Pages returns the journey's page sequence.
func (c *ConversionPath) Pages() []string {
	pages := make([]string, len(c.Steps))
	for i, step := range c.Steps {
		pages[i] = step.Page
	}
	return pages
}
