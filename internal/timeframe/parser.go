package timeframe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeWindowBuffer extends ranges ending now so that events written while a
// report is being computed are not cut off.
const TimeWindowBuffer = 5 * time.Minute

// DefaultDays is the window used when no dates are given.
const DefaultDays = 30

// MaxDays bounds a single report window.
const MaxDays = 3 * 366

// ParserParams are the raw query parameters of a report request. Days wins
// over FromDate/ToDate when both are set.
type ParserParams struct {
	Days     string
	FromDate string
	ToDate   string
	Tz       string
}

type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Parse resolves params into a Range.
func (p *Parser) Parse(params ParserParams) (*Range, error) {
	tz := strings.TrimSpace(params.Tz)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("error loading timezone: %w", err)
	}
	now := p.timeProvider.Now(loc)

	if strings.TrimSpace(params.Days) != "" {
		days, err := strconv.Atoi(strings.TrimSpace(params.Days))
		if err != nil || days < 1 || days > MaxDays {
			return nil, fmt.Errorf("invalid 'days': must be between 1 and %d", MaxDays)
		}
		return p.lastDays(days, now, loc)
	}

	if params.FromDate == "" && params.ToDate == "" {
		return p.lastDays(DefaultDays, now, loc)
	}

	defaultFrom := startOfDay(now, loc).AddDate(0, 0, -(DefaultDays - 1))
	from, err := p.parseDateWithDefault(params.FromDate, defaultFrom, loc, false)
	if err != nil {
		return nil, fmt.Errorf("invalid 'from' date: %w", err)
	}
	to, err := p.parseDateWithDefault(params.ToDate, now.Add(TimeWindowBuffer), loc, true)
	if err != nil {
		return nil, fmt.Errorf("invalid 'to' date: %w", err)
	}
	if to.Sub(from) > time.Duration(MaxDays)*24*time.Hour {
		return nil, fmt.Errorf("range exceeds %d days", MaxDays)
	}
	return NewRange(from, to, loc)
}

// lastDays covers today and the days-1 days before it.
func (p *Parser) lastDays(days int, now time.Time, loc *time.Location) (*Range, error) {
	from := startOfDay(now, loc).AddDate(0, 0, -(days - 1))
	return NewRange(from, now.Add(TimeWindowBuffer), loc)
}

func (p *Parser) parseDateWithDefault(dateStr string, defaultDate time.Time, loc *time.Location, isEndDate bool) (time.Time, error) {
	if dateStr == "" {
		return defaultDate, nil
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}

	if !isEndDate {
		return date, nil
	}

	endOfDay := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, loc)
	now := p.timeProvider.Now(loc)
	if endOfDay.After(now) {
		// Ongoing day: include buffered now but never spill into the next day
		bufferedTime := now.Add(TimeWindowBuffer)
		if bufferedTime.After(endOfDay) {
			return endOfDay, nil
		}
		return bufferedTime, nil
	}
	return endOfDay, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
