package events

import (
	"time"

	"gorm.io/gorm"
)

// EventFilters represents filtering options for events
type EventFilters struct {
	FromDate    time.Time
	ToDate      time.Time
	SessionID   string
	VisitorID   string
	Kind        Kind
	PageFilter  string
	IncludeBots bool
	Limit       int
	Offset      int
}

// EventsResult represents paginated events result
type EventsResult struct {
	Events []Event
	Total  int64
}

// KindCount is the number of events of one kind.
type KindCount struct {
	Kind  Kind
	Count int64
}

// GetFilteredEvents retrieves filtered and paginated events
func GetFilteredEvents(db *gorm.DB, filters EventFilters) (EventsResult, error) {
	query := db.Model(&Event{}).
		Where("timestamp BETWEEN ? AND ?", filters.FromDate, filters.ToDate)

	if filters.SessionID != "" {
		query = query.Where("session_id = ?", filters.SessionID)
	}
	if filters.VisitorID != "" {
		query = query.Where("visitor_id = ?", filters.VisitorID)
	}
	if filters.Kind != "" {
		query = query.Where("type = ?", filters.Kind)
	}
	if filters.PageFilter != "" {
		query = query.Where("page LIKE ?", "%"+filters.PageFilter+"%")
	}
	if !filters.IncludeBots {
		query = query.Where("is_bot = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return EventsResult{}, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []Event
	if err := query.Order("timestamp DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&events).Error; err != nil {
		return EventsResult{}, err
	}

	return EventsResult{
		Events: events,
		Total:  total,
	}, nil
}

// CountByKind counts human events per kind in a time range, skipping pages
// under excludePrefix when it is set.
func CountByKind(db *gorm.DB, from, to time.Time, excludePrefix string) ([]KindCount, error) {
	query := db.Model(&Event{}).
		Select("type AS kind, COUNT(*) AS count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Where("is_bot = ?", false)

	if excludePrefix != "" {
		query = query.Where("page NOT LIKE ?", excludePrefix+"%")
	}

	var counts []KindCount
	err := query.Group("type").Order("count DESC").Scan(&counts).Error
	return counts, err
}

// DeleteOlderThan removes up to batchSize events created before cutoff and
// returns how many rows were removed.
func DeleteOlderThan(db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	ids := db.Model(&Event{}).
		Select("id").
		Where("created_at < ?", cutoff).
		Limit(batchSize)

	result := db.Where("id IN (?)", ids).Delete(&Event{})
	return result.RowsAffected, result.Error
}
