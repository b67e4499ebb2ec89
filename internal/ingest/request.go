package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["visitorId", "sessionId", "event"],
  "properties": {
    "visitorId": {"type": "string", "minLength": 1, "maxLength": 128},
    "sessionId": {"type": "string", "minLength": 1, "maxLength": 128},
    "device": {"type": "string", "maxLength": 64},
    "isReturning": {"type": "boolean"},
    "leadScore": {"type": "number"},
    "pagesVisited": {"type": "integer"},
    "pageJourney": {
      "type": "array",
      "items": {
        "anyOf": [
          {"type": "string"},
          {"type": "object", "properties": {"page": {"type": "string"}}}
        ]
      }
    },
    "event": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "minLength": 1, "maxLength": 64},
        "page": {"type": "string"},
        "data": {"type": ["object", "null"]}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
})

// Request is one inbound event envelope.
type Request struct {
	Event        events.RawEvent `json:"event"`
	VisitorID    string          `json:"visitorId"`
	SessionID    string          `json:"sessionId"`
	Device       string          `json:"device"`
	IsReturning  bool            `json:"isReturning"`
	LeadScore    float64         `json:"leadScore"`
	PagesVisited int             `json:"pagesVisited"`
	PageJourney  Journey         `json:"pageJourney"`
}

// Journey is the client-side page history. Entries may be bare paths or
// {page, timestamp} objects.
type Journey []attribution.Step

type journeyEntry struct {
	Page      string          `json:"page"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (j *Journey) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	steps := make(Journey, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var page string
			if err := json.Unmarshal(item, &page); err != nil {
				return err
			}
			steps = append(steps, attribution.Step{Page: page})
			continue
		}

		var entry journeyEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			return err
		}
		steps = append(steps, attribution.Step{
			Page:      entry.Page,
			Timestamp: events.ParseTimestamp(entry.Timestamp, time.Time{}),
		})
	}
	*j = steps
	return nil
}

// Normalized returns the journey with paths normalized the same way event
// pages are.
func (j Journey) Normalized() []attribution.Step {
	steps := make([]attribution.Step, 0, len(j))
	for _, step := range j {
		if strings.TrimSpace(step.Page) == "" {
			continue
		}
		path, _ := events.NormalizePath(step.Page)
		steps = append(steps, attribution.Step{Page: path, Timestamp: step.Timestamp})
	}
	return steps
}

// SeedScore is the client-reported score as a non-negative integer.
func (r *Request) SeedScore() int {
	if r.LeadScore <= 0 {
		return 0
	}
	return int(r.LeadScore)
}

// DecodeRequest validates body against the envelope schema and decodes it.
// Every failure is a *ValidationError.
func DecodeRequest(body []byte) (*Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ValidationError{Field: "body", Message: "request body is empty"}
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &ValidationError{Field: "body", Message: "request body is not valid JSON"}
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return nil, &ValidationError{Field: schemaField(first), Message: first.Description()}
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Field: "body", Message: err.Error()}
	}

	req.VisitorID = strings.TrimSpace(req.VisitorID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Event.Type = strings.TrimSpace(req.Event.Type)
	switch {
	case req.VisitorID == "":
		return nil, &ValidationError{Field: "visitorId", Message: "visitorId is required"}
	case req.SessionID == "":
		return nil, &ValidationError{Field: "sessionId", Message: "sessionId is required"}
	case req.Event.Type == "":
		return nil, &ValidationError{Field: "event.type", Message: "event type is required"}
	}

	return &req, nil
}

// schemaField names the offending property. For missing properties the
// library reports the parent object, so the property name is appended.
func schemaField(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() == "required" {
		if property, ok := e.Details()["property"].(string); ok {
			if field == "(root)" {
				return property
			}
			return field + "." + property
		}
	}
	return field
}
