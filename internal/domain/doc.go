// Package domain models theme-park operating hours and wait-time observations.
//
// # Park Day
//
// Every observation belongs to an operational "park day", not a calendar day.
// The cutover is 6 AM in the park's local timezone: a reading taken at 01:30 on
// June 2 counts toward the June 1 park day. See [ParkDay].
//
// # Hours Versions
//
// Park hours arrive asynchronously and change over time. They are stored as an
// append-only set of versions keyed by (park_date, park_code, version_type):
//
//	official   published by the park; a later different official row closes the
//	           prior row's validity window (valid_until) instead of replacing it.
//	predicted  imputed from a historical "donor" day; only created while no
//	           official row exists and kept for audit once one does.
//
// Per key the lifecycle is NO_VERSION -> PREDICTED -> OFFICIAL. Rows are never
// deleted; the only mutation is closing a validity window.
//
// # Wait Types
//
//	POSTED    wait shown on the park's signage
//	ACTUAL    measured wait (crowd-sourced timings)
//	PRIORITY  return-time offset of the paid/priority queue
//
// # Recency Weights
//
// Two decay constants exist and are intentionally separate:
//
//	aggregate weighting  w(d) = 1 / (1 + days_ago/365)   see [RecencyWeight]
//	feature weighting    w(d) = 1 / (1 + days_ago/730)   see [FeatureRecencyWeight]
//
// # Cohorts
//
// A dategroupid groups calendar dates with similar demand (holidays, seasons).
// It is produced by an external classifier and treated as an opaque string.
package domain
