package posted

import (
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// Level identifies which fallback level answered a prediction.
type Level int

const (
	LevelNone Level = iota
	LevelExact
	LevelEntityCohort
	LevelEntityHour
	LevelEntity
	LevelParkHour
)

var levelNames = [...]string{"none", "exact", "entity_cohort", "entity_hour", "entity", "park_hour"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// Prediction is a predicted POSTED wait, the level that produced it, the
// number of observations behind the answer and their mean recency weight.
type Prediction struct {
	Value         float64
	Level         Level
	SampleSize    int
	RecencyWeight float64
}

// Table is an immutable aggregate lookup. Exact rows answer level 1; the
// pooled fallback rows computed from the same observations answer levels 2
// to 5.
type Table struct {
	rows       []domain.PostedAggregateRow
	classifier cohort.Classifier
	parks      ParkLocator

	exact     map[groupKey]int
	fallbacks map[fallbackKey]FallbackRow
}

// NewTable indexes rows and fallbacks for lookup. classifier resolves the
// cohort of a requested park date; parks maps entities to parks for the
// park-level fallback. Either may be nil: an unknown cohort only matches
// UNKNOWN rows, and a nil locator disables the park level.
func NewTable(rows []domain.PostedAggregateRow, fallbacks []FallbackRow, classifier cohort.Classifier, parks ParkLocator) *Table {
	t := &Table{
		rows:       rows,
		classifier: classifier,
		parks:      parks,
		exact:      make(map[groupKey]int, len(rows)),
		fallbacks:  make(map[fallbackKey]FallbackRow, len(fallbacks)),
	}
	for i, r := range rows {
		if r.PostedCount <= 0 {
			continue
		}
		t.exact[groupKey{entity: strings.ToUpper(r.EntityCode), cohort: r.DateGroupID, hour: r.Hour}] = i
	}
	for _, f := range fallbacks {
		if f.PostedCount <= 0 || !f.scoped() {
			continue
		}
		f.Key = strings.ToUpper(f.Key)
		t.fallbacks[f.key()] = f
	}
	return t
}

// NewSnapshotTable indexes a loaded snapshot.
func NewSnapshotTable(snap Snapshot, classifier cohort.Classifier, parks ParkLocator) *Table {
	return NewTable(snap.Rows, snap.Fallbacks, classifier, parks)
}

// Build indexes the builder's rows with its classifier and locator.
func (b *Builder) Build() *Table {
	return NewTable(b.Rows(), b.Fallbacks(), b.opts.Classifier, b.opts.Parks)
}

// Len returns the number of aggregate rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the aggregate rows in stored order.
func (t *Table) Rows() []domain.PostedAggregateRow {
	out := make([]domain.PostedAggregateRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// Row returns the exact aggregate row for a group.
func (t *Table) Row(entityCode, dateGroupID string, hour int) (domain.PostedAggregateRow, bool) {
	i, ok := t.exact[groupKey{entity: strings.ToUpper(entityCode), cohort: dateGroupID, hour: hour}]
	if !ok {
		return domain.PostedAggregateRow{}, false
	}
	return t.rows[i], true
}

// PredictedPosted walks the fallback cascade and returns the first level with
// data:
//
//  1. (entity, cohort, hour)
//  2. (entity, cohort) across hours
//  3. (entity, hour) across cohorts
//  4. (entity) across cohorts and hours
//  5. (park, hour) across the park's entities
//
// Levels are never blended.
func (t *Table) PredictedPosted(entityCode string, parkDate time.Time, hour int) (Prediction, bool) {
	entity := strings.ToUpper(entityCode)
	c := cohort.KeyFor(t.classifier, parkDate)

	if i, ok := t.exact[groupKey{entity: entity, cohort: c, hour: hour}]; ok {
		r := t.rows[i]
		return Prediction{Value: r.PostedMedianWeighted, Level: LevelExact, SampleSize: r.PostedCount, RecencyWeight: r.AvgRecencyWeight}, true
	}
	if p, ok := t.pooled(fallbackKey{level: LevelEntityCohort, key: entity, cohort: c, hour: AnyHour}); ok {
		return p, true
	}
	if p, ok := t.pooled(fallbackKey{level: LevelEntityHour, key: entity, cohort: AnyCohort, hour: hour}); ok {
		return p, true
	}
	if p, ok := t.pooled(fallbackKey{level: LevelEntity, key: entity, cohort: AnyCohort, hour: AnyHour}); ok {
		return p, true
	}
	if t.parks != nil {
		if park, ok := t.parks.ParkForEntity(entity); ok {
			if p, ok := t.pooled(fallbackKey{level: LevelParkHour, key: park, cohort: AnyCohort, hour: hour}); ok {
				return p, true
			}
		}
	}
	return Prediction{}, false
}

func (t *Table) pooled(k fallbackKey) (Prediction, bool) {
	f, ok := t.fallbacks[k]
	if !ok {
		return Prediction{}, false
	}
	return Prediction{Value: f.PostedMedianWeighted, Level: k.level, SampleSize: f.PostedCount, RecencyWeight: f.AvgRecencyWeight}, true
}
