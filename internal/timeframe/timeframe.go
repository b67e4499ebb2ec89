package timeframe

import (
	"fmt"
	"time"
)

// BucketSize is the granularity of a report series.
type BucketSize string

const (
	BucketSizeDay   BucketSize = "day"
	BucketSizeWeek  BucketSize = "week"
	BucketSizeMonth BucketSize = "month"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Range is a closed reporting window. From and To are stored in UTC; Tz is
// the zone day and week boundaries are computed in.
type Range struct {
	From time.Time
	To   time.Time
	Tz   *time.Location
}

// NewRange validates and normalizes a window.
func NewRange(from, to time.Time, tz *time.Location) (*Range, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Range{From: from.UTC(), To: to.UTC(), Tz: tz}, nil
}

func (r *Range) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// Contains reports whether t falls inside the window.
func (r *Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Key identifies the window, e.g. for caching computed reports.
func (r *Range) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.From.Format(time.RFC3339Nano), r.To.Format(time.RFC3339Nano), r.Tz.String())
}

// Label formats the window for report headers.
func (r *Range) Label() string {
	return fmt.Sprintf("%s to %s", r.From.In(r.Tz).Format("2006-01-02"), r.To.In(r.Tz).Format("2006-01-02"))
}

// Buckets lists the start of every bucket overlapping the window, ascending.
func (r *Range) Buckets(size BucketSize) []time.Time {
	var buckets []time.Time
	end := r.To.In(r.Tz)
	for current := TruncateToBucketInTimezone(r.From, size, r.Tz); !current.After(end); current = nextBucket(current, size) {
		buckets = append(buckets, current)
	}
	return buckets
}

// TruncateToBucketInTimezone returns the start of the bucket containing t.
// Weeks start on Monday.
func TruncateToBucketInTimezone(t time.Time, bucketSize BucketSize, loc *time.Location) time.Time {
	// Ensure we're working in the correct timezone
	localTime := t.In(loc)
	year, month, day := localTime.Year(), localTime.Month(), localTime.Day()

	switch bucketSize {
	case BucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case BucketSizeWeek:
		weekday := int(localTime.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, loc)
	case BucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	default:
		return localTime
	}
}

// FormatBucket renders a bucket start the way report series key it.
func FormatBucket(t time.Time, size BucketSize) string {
	if size == BucketSizeMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func nextBucket(t time.Time, size BucketSize) time.Time {
	switch size {
	case BucketSizeMonth:
		return t.AddDate(0, 1, 0)
	case BucketSizeWeek:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 0, 1)
	}
}
