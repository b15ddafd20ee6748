package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RawMessage is one undecoded hours feed message with its source position.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string

	// Commit acknowledges the message at the source. Nil for sources without
	// acknowledgement.
	Commit func(ctx context.Context) error
}

// HoursUpdate is a decoded official hours record and the instant it was
// published, which becomes the version's created_at.
type HoursUpdate struct {
	Hours       OfficialHours
	PublishedAt time.Time
}

type hoursPayload struct {
	ParkDate    string `json:"park_date"`
	ParkCode    string `json:"park_code"`
	OpeningTime string `json:"opening_time"`
	ClosingTime string `json:"closing_time"`
	EMHMorning  bool   `json:"emh_morning"`
	EMHEvening  bool   `json:"emh_evening"`
	PublishedAt string `json:"published_at,omitempty"`
}

// ParseHoursMessage decodes a JSON hours feed message. A missing published_at
// falls back to the message timestamp.
func ParseHoursMessage(msg RawMessage) (HoursUpdate, error) {
	var p hoursPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return HoursUpdate{}, fmt.Errorf("decode hours message: %w", err)
	}
	date, err := ParseDate(p.ParkDate)
	if err != nil {
		return HoursUpdate{}, fmt.Errorf("hours message park_date: %w", err)
	}
	if p.ParkCode == "" {
		return HoursUpdate{}, fmt.Errorf("hours message: empty park_code: %w", ErrMalformedRow)
	}

	published := msg.Timestamp
	if p.PublishedAt != "" {
		if published, err = ParseTimestamp(p.PublishedAt, time.UTC); err != nil {
			return HoursUpdate{}, fmt.Errorf("hours message published_at: %w", err)
		}
	}

	return HoursUpdate{
		Hours: OfficialHours{
			ParkDate:    date,
			ParkCode:    p.ParkCode,
			OpeningTime: p.OpeningTime,
			ClosingTime: p.ClosingTime,
			EMHMorning:  p.EMHMorning,
			EMHEvening:  p.EMHEvening,
			Source:      SourceKafka,
		},
		PublishedAt: published.UTC(),
	}, nil
}

// EncodeHoursMessage is the inverse of ParseHoursMessage.
func EncodeHoursMessage(u HoursUpdate) ([]byte, error) {
	p := hoursPayload{
		ParkDate:    u.Hours.ParkDate.Format(DateLayout),
		ParkCode:    u.Hours.ParkCode,
		OpeningTime: u.Hours.OpeningTime,
		ClosingTime: u.Hours.ClosingTime,
		EMHMorning:  u.Hours.EMHMorning,
		EMHEvening:  u.Hours.EMHEvening,
	}
	if !u.PublishedAt.IsZero() {
		p.PublishedAt = u.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode hours message: %w", err)
	}
	return data, nil
}
