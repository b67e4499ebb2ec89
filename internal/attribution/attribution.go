package attribution

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Input describes a conversion at the moment it happens.
type Input struct {
	SessionID      string
	VisitorID      string
	ConversionType string
	ConversionPage string
	Journey        []Step
	Device         string
	Country        string
	ReferrerSource string
	ReferrerMedium string
	UTMSource      string
	UTMCampaign    string
	ConvertedAt    time.Time
	MaxSteps       int
}

// BuildPath turns a conversion into a path record. It returns false when the
// journey has no usable steps. Journeys longer than MaxSteps keep their first
// step and the most recent ones so both touch points survive.
func BuildPath(in Input) (*ConversionPath, bool) {
	steps := cleanSteps(in.Journey)
	if len(steps) == 0 {
		return nil, false
	}
	steps = capSteps(steps, in.MaxSteps)

	return &ConversionPath{
		SessionID:      in.SessionID,
		VisitorID:      in.VisitorID,
		ConversionType: in.ConversionType,
		ConversionPage: in.ConversionPage,
		Steps:          steps,
		FirstTouchPage: steps[0].Page,
		LastTouchPage:  steps[len(steps)-1].Page,
		JourneyLength:  len(steps),
		Device:         in.Device,
		Country:        in.Country,
		ReferrerSource: in.ReferrerSource,
		ReferrerMedium: in.ReferrerMedium,
		UTMSource:      in.UTMSource,
		UTMCampaign:    in.UTMCampaign,
		ConvertedAt:    in.ConvertedAt,
	}, true
}

// Record persists the conversion path for in. An empty journey is a no-op and
// returns nil, nil. Callers treat errors as non-fatal.
func Record(db *gorm.DB, logger *slog.Logger, in Input) (*ConversionPath, error) {
	path, ok := BuildPath(in)
	if !ok {
		logger.Debug("Skipping conversion path with empty journey",
			slog.String("session_id", in.SessionID),
			slog.String("conversion_type", in.ConversionType))
		return nil, nil
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(path).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record conversion path for session %s: %w", in.SessionID, err)
	}

	logger.Info("Recorded conversion path",
		slog.String("session_id", path.SessionID),
		slog.String("conversion_type", path.ConversionType),
		slog.String("first_touch", path.FirstTouchPage),
		slog.String("last_touch", path.LastTouchPage),
		slog.Int("journey_length", path.JourneyLength))

	return path, nil
}

// ListInRange returns conversion paths converted within [from, to], oldest
// first. Paths that start or end under excludePrefix are left out.
func ListInRange(db *gorm.DB, from, to time.Time, excludePrefix string) ([]ConversionPath, error) {
	query := db.Model(&ConversionPath{}).
		Where("converted_at BETWEEN ? AND ?", from, to)

	if excludePrefix != "" {
		query = query.
			Where("first_touch_page NOT LIKE ?", excludePrefix+"%").
			Where("conversion_page NOT LIKE ?", excludePrefix+"%")
	}

	var paths []ConversionPath
	if err := query.Order("converted_at ASC").Find(&paths).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversion paths: %w", err)
	}
	return paths, nil
}

// GetBySession returns the conversion paths recorded for a session.
func GetBySession(db *gorm.DB, sessionID string) ([]ConversionPath, error) {
	var paths []ConversionPath
	err := db.Where("session_id = ?", sessionID).Order("converted_at ASC").Find(&paths).Error
	return paths, err
}

func cleanSteps(journey []Step) []Step {
	steps := make([]Step, 0, len(journey))
	for _, step := range journey {
		page := strings.TrimSpace(step.Page)
		if page == "" {
			continue
		}
		steps = append(steps, Step{Page: page, Timestamp: step.Timestamp})
	}
	return steps
}

func capSteps(steps []Step, maxSteps int) []Step {
	if maxSteps < 2 || len(steps) <= maxSteps {
		return steps
	}
	capped := make([]Step, 0, maxSteps)
	capped = append(capped, steps[0])
	capped = append(capped, steps[len(steps)-(maxSteps-1):]...)
	return capped
}
