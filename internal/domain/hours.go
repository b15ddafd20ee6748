package domain

import (
	"fmt"
	"time"
)

// VersionType distinguishes published hours from imputed ones.
type VersionType string

const (
	VersionOfficial  VersionType = "official"
	VersionPredicted VersionType = "predicted"
)

// Valid reports whether v is a known version type.
func (v VersionType) Valid() bool {
	return v == VersionOfficial || v == VersionPredicted
}

// Version sources stamped on rows.
const (
	SourceSync            = "s3_sync"
	SourceKafka           = "kafka_feed"
	SourceDonorImputation = "donor_imputation"
	SourceManual          = "manual"
)

// ParkHoursVersion is one version row of a park's operating hours for a park day.
type ParkHoursVersion struct {
	VersionID         int64       `json:"version_id" validate:"gt=0"`
	ParkDate          time.Time   `json:"park_date" validate:"required"`
	ParkCode          string      `json:"park_code" validate:"required"`
	VersionType       VersionType `json:"version_type" validate:"oneof=official predicted"`
	Source            string      `json:"source"`
	CreatedAt         time.Time   `json:"created_at" validate:"required"`
	ValidFrom         *time.Time  `json:"valid_from,omitempty"`
	ValidUntil        *time.Time  `json:"valid_until,omitempty"`
	OpeningTime       string      `json:"opening_time" validate:"required"`
	ClosingTime       string      `json:"closing_time" validate:"required"`
	EMHMorning        bool        `json:"emh_morning"`
	EMHEvening        bool        `json:"emh_evening"`
	Confidence        *float64    `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	ChangeProbability *float64    `json:"change_probability,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

// Key returns the (park_date, park_code) identity the row versions.
func (v ParkHoursVersion) Key() HoursKey {
	return HoursKey{ParkDate: DateOf(v.ParkDate), ParkCode: v.ParkCode}
}

// OperatingMinutes is the length of the operating day. A closing time at or
// before the opening time is past midnight.
func (v ParkHoursVersion) OperatingMinutes() (int, bool) {
	open, err := ClockMinutes(v.OpeningTime)
	if err != nil {
		return 0, false
	}
	closing, err := ClockMinutes(v.ClosingTime)
	if err != nil {
		return 0, false
	}
	if closing <= open {
		closing += 24 * 60
	}
	return closing - open, true
}

// SameHours reports whether two versions carry identical hours and EMH flags.
func (v ParkHoursVersion) SameHours(o ParkHoursVersion) bool {
	return v.OpeningTime == o.OpeningTime &&
		v.ClosingTime == o.ClosingTime &&
		v.EMHMorning == o.EMHMorning &&
		v.EMHEvening == o.EMHEvening
}

// ValidAt reports whether t falls inside the row's validity window.
// Nil bounds are open; valid_until is exclusive.
func (v ParkHoursVersion) ValidAt(t time.Time) bool {
	if v.CreatedAt.After(t) {
		return false
	}
	if v.ValidFrom != nil && v.ValidFrom.After(t) {
		return false
	}
	if v.ValidUntil != nil && !v.ValidUntil.After(t) {
		return false
	}
	return true
}

// HoursKey identifies one park day.
type HoursKey struct {
	ParkDate time.Time
	ParkCode string
}

func (k HoursKey) String() string {
	return fmt.Sprintf("%s/%s", k.ParkCode, k.ParkDate.Format(DateLayout))
}

// OfficialHours is one row of the hours ingestion feed.
type OfficialHours struct {
	ParkDate    time.Time
	ParkCode    string
	OpeningTime string
	ClosingTime string
	EMHMorning  bool
	EMHEvening  bool
	Source      string
}

// ChangeEvent is emitted when official hours for an already-versioned park day
// change. Previous is the version whose window was closed.
type ChangeEvent struct {
	ParkDate   time.Time        `json:"park_date"`
	ParkCode   string           `json:"park_code"`
	Previous   ParkHoursVersion `json:"previous"`
	Current    ParkHoursVersion `json:"current"`
	DetectedAt time.Time        `json:"detected_at"`
}

// DonorMatch is the outcome of a donor-day search. It is never persisted; only
// the predicted version built from it is.
type DonorMatch struct {
	TargetDate time.Time
	TargetPark string
	DonorDate  time.Time
	Score      float64
}
