package domain

import "time"

// WaitType classifies a wait-time observation.
type WaitType string

const (
	WaitPosted   WaitType = "POSTED"
	WaitActual   WaitType = "ACTUAL"
	WaitPriority WaitType = "PRIORITY"
)

// Observation is one row of the fact feed.
type Observation struct {
	EntityCode  string
	ObservedAt  time.Time
	WaitType    WaitType
	WaitMinutes float64
}

// PostedAggregateRow holds weighted POSTED statistics for one
// (entity_code, dategroupid, hour) group.
type PostedAggregateRow struct {
	EntityCode             string `validate:"required"`
	DateGroupID            string `validate:"required"`
	Hour                   int    `validate:"gte=0,lte=23"`
	PostedMedianWeighted   float64
	PostedMeanWeighted     float64
	PostedMedianUnweighted float64
	PostedMeanUnweighted   float64
	PostedCount            int       `validate:"gt=0"`
	AvgRecencyWeight       float64   `validate:"gt=0,lte=1"`
	MinParkDate            time.Time `validate:"required"`
	MaxParkDate            time.Time `validate:"required"`
}
