// Package hours implements the append-only park-hours version table: point in
// time resolution, official change detection, donor-day imputation and
// persistence.
package hours

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/park-waits-etl/internal/cohort"
	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// Table holds every version row ever written. Rows are only appended; the one
// permitted mutation is closing an official row's validity window.
type Table struct {
	rows   []domain.ParkHoursVersion
	byKey  map[domain.HoursKey][]int
	nextID int64
}

// NewTable builds a table from existing rows. Rows with a zero VersionID get
// the next free ID.
func NewTable(rows ...domain.ParkHoursVersion) *Table {
	t := &Table{byKey: make(map[domain.HoursKey][]int), nextID: 1}
	for _, r := range rows {
		if r.VersionID >= t.nextID {
			t.nextID = r.VersionID + 1
		}
	}
	for _, r := range rows {
		t.append(r)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of all rows in append order.
func (t *Table) Rows() []domain.ParkHoursVersion {
	out := make([]domain.ParkHoursVersion, len(t.rows))
	copy(out, t.rows)
	return out
}

// Versions returns every row for a park day in append order.
func (t *Table) Versions(parkDate time.Time, parkCode string) []domain.ParkHoursVersion {
	idx := t.byKey[key(parkDate, parkCode)]
	out := make([]domain.ParkHoursVersion, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.rows[i])
	}
	return out
}

// Keys returns every versioned park day, sorted by park then date.
func (t *Table) Keys() []domain.HoursKey {
	keys := make([]domain.HoursKey, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ParkCode != keys[j].ParkCode {
			return keys[i].ParkCode < keys[j].ParkCode
		}
		return keys[i].ParkDate.Before(keys[j].ParkDate)
	})
	return keys
}

func (t *Table) append(v domain.ParkHoursVersion) domain.ParkHoursVersion {
	if v.VersionID == 0 {
		v.VersionID = t.nextID
	}
	if v.VersionID >= t.nextID {
		t.nextID = v.VersionID + 1
	}
	v.ParkDate = domain.DateOf(v.ParkDate)
	v.ParkCode = strings.ToUpper(v.ParkCode)
	t.rows = append(t.rows, v)
	k := v.Key()
	t.byKey[k] = append(t.byKey[k], len(t.rows)-1)
	return v
}

func key(parkDate time.Time, parkCode string) domain.HoursKey {
	return domain.HoursKey{ParkDate: domain.DateOf(parkDate), ParkCode: strings.ToUpper(parkCode)}
}

// latest picks the row index with the greatest CreatedAt among candidates,
// breaking ties by VersionID. Returns -1 when candidates is empty.
func (t *Table) latest(candidates []int) int {
	best := -1
	for _, i := range candidates {
		if best < 0 {
			best = i
			continue
		}
		a, b := t.rows[i], t.rows[best]
		if a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.VersionID > b.VersionID) {
			best = i
		}
	}
	return best
}

// currentOfficial returns the index of the open official row for a key, or -1.
func (t *Table) currentOfficial(k domain.HoursKey) int {
	var open []int
	for _, i := range t.byKey[k] {
		r := t.rows[i]
		if r.VersionType == domain.VersionOfficial && r.ValidUntil == nil {
			open = append(open, i)
		}
	}
	return t.latest(open)
}

func (t *Table) hasType(k domain.HoursKey, vt domain.VersionType) bool {
	for _, i := range t.byKey[k] {
		if t.rows[i].VersionType == vt {
			return true
		}
	}
	return false
}

// HasOfficial reports whether any official row exists for the park day.
func (t *Table) HasOfficial(parkDate time.Time, parkCode string) bool {
	return t.hasType(key(parkDate, parkCode), domain.VersionOfficial)
}

// HasPredicted reports whether any predicted row exists for the park day.
func (t *Table) HasPredicted(parkDate time.Time, parkCode string) bool {
	return t.hasType(key(parkDate, parkCode), domain.VersionPredicted)
}

// GetHours resolves the hours valid for a park day as of asOf (zero means now):
// the official row whose validity window contains asOf, else the latest
// predicted row when no official row had been created by asOf, else nothing.
func (t *Table) GetHours(parkDate time.Time, parkCode string, asOf time.Time) (domain.ParkHoursVersion, bool) {
	if asOf.IsZero() {
		asOf = domain.Now()
	}
	k := key(parkDate, parkCode)

	var valid, predicted []int
	officialSeen := false
	for _, i := range t.byKey[k] {
		r := t.rows[i]
		if r.CreatedAt.After(asOf) {
			continue
		}
		switch r.VersionType {
		case domain.VersionOfficial:
			officialSeen = true
			if r.ValidAt(asOf) {
				valid = append(valid, i)
			}
		case domain.VersionPredicted:
			predicted = append(predicted, i)
		}
	}

	if i := t.latest(valid); i >= 0 {
		return t.rows[i], true
	}
	if officialSeen {
		return domain.ParkHoursVersion{}, false
	}
	if i := t.latest(predicted); i >= 0 {
		return t.rows[i], true
	}
	return domain.ParkHoursVersion{}, false
}

// IsSuperseded reports whether a predicted row has been overtaken by official
// hours for its park day. The predicted row itself is left untouched.
func (t *Table) IsSuperseded(v domain.ParkHoursVersion) bool {
	if v.VersionType != domain.VersionPredicted {
		return false
	}
	return t.hasType(v.Key(), domain.VersionOfficial)
}

// OfficialResult describes the effect of CreateOfficialVersion.
type OfficialResult struct {
	Version  domain.ParkHoursVersion  // the current official row after the call
	Previous *domain.ParkHoursVersion // the row whose window was closed, if Changed
	Appended bool
	Changed  bool
}

// CreateOfficialVersion records official hours for a park day. Identical hours
// to the open official row are a no-op. Different hours close the open row at
// createdAt and append a new row (a change event). Predicted rows are never
// touched.
func (t *Table) CreateOfficialVersion(in domain.OfficialHours, createdAt time.Time) (OfficialResult, error) {
	v, err := officialRow(in, createdAt)
	if err != nil {
		return OfficialResult{}, err
	}
	k := v.Key()

	cur := t.currentOfficial(k)
	if cur >= 0 && t.rows[cur].SameHours(v) {
		return OfficialResult{Version: t.rows[cur]}, nil
	}

	res := OfficialResult{Appended: true}
	if cur >= 0 {
		prev := &t.rows[cur]
		// Out-of-order arrivals must not produce an inverted window.
		if v.CreatedAt.Before(prev.CreatedAt) {
			v.CreatedAt = prev.CreatedAt
			from := v.CreatedAt
			v.ValidFrom = &from
		}
		until := v.CreatedAt
		prev.ValidUntil = &until
		closed := *prev
		res.Previous = &closed
		res.Changed = true
	}
	res.Version = t.append(v)
	return res, nil
}

func officialRow(in domain.OfficialHours, createdAt time.Time) (domain.ParkHoursVersion, error) {
	if strings.TrimSpace(in.ParkCode) == "" {
		return domain.ParkHoursVersion{}, errors.New("official hours: empty park code")
	}
	if in.ParkDate.IsZero() {
		return domain.ParkHoursVersion{}, errors.New("official hours: empty park date")
	}
	opening, err := domain.ParseClock(in.OpeningTime)
	if err != nil {
		return domain.ParkHoursVersion{}, fmt.Errorf("official hours opening: %w", err)
	}
	closing, err := domain.ParseClock(in.ClosingTime)
	if err != nil {
		return domain.ParkHoursVersion{}, fmt.Errorf("official hours closing: %w", err)
	}
	if createdAt.IsZero() {
		createdAt = domain.Now()
	}
	createdAt = createdAt.UTC()
	source := in.Source
	if source == "" {
		source = domain.SourceSync
	}
	from := createdAt
	return domain.ParkHoursVersion{
		ParkDate:    domain.DateOf(in.ParkDate),
		ParkCode:    strings.ToUpper(strings.TrimSpace(in.ParkCode)),
		VersionType: domain.VersionOfficial,
		Source:      source,
		CreatedAt:   createdAt,
		ValidFrom:   &from,
		OpeningTime: opening,
		ClosingTime: closing,
		EMHMorning:  in.EMHMorning,
		EMHEvening:  in.EMHEvening,
	}, nil
}

// CreatePredictedVersionFromDonor appends a predicted row for the match's
// target day, copying the donor day's current official hours from source.
// It fails with ErrNoDonorData when the donor hours are missing, and refuses to
// overwrite: ErrOfficialExists or ErrVersionExists when the target already has
// rows. The classifier, when present, records both cohorts in the notes.
func (t *Table) CreatePredictedVersionFromDonor(
	match domain.DonorMatch,
	donorPark string,
	source *Table,
	classifier cohort.Classifier,
) (domain.ParkHoursVersion, error) {
	target := key(match.TargetDate, match.TargetPark)
	if t.hasType(target, domain.VersionOfficial) {
		return domain.ParkHoursVersion{}, fmt.Errorf("predict %s: %w", target, domain.ErrOfficialExists)
	}
	if t.hasType(target, domain.VersionPredicted) {
		return domain.ParkHoursVersion{}, fmt.Errorf("predict %s: %w", target, domain.ErrVersionExists)
	}
	if source == nil {
		source = t
	}

	donorKey := key(match.DonorDate, donorPark)
	di := source.currentOfficial(donorKey)
	if di < 0 {
		return domain.ParkHoursVersion{}, fmt.Errorf("predict %s from %s: %w", target, donorKey, domain.ErrNoDonorData)
	}
	donor := source.rows[di]

	now := domain.Now()
	from := now
	confidence := clamp01(match.Score)
	changeProb := source.ChangeRate(donorPark)

	notes := fmt.Sprintf("donor=%s score=%.3f", donorKey, match.Score)
	if classifier != nil {
		notes += fmt.Sprintf(" cohort=%s->%s",
			cohort.KeyFor(classifier, match.DonorDate), cohort.KeyFor(classifier, match.TargetDate))
	}

	return t.append(domain.ParkHoursVersion{
		ParkDate:          target.ParkDate,
		ParkCode:          target.ParkCode,
		VersionType:       domain.VersionPredicted,
		Source:            domain.SourceDonorImputation,
		CreatedAt:         now,
		ValidFrom:         &from,
		OpeningTime:       donor.OpeningTime,
		ClosingTime:       donor.ClosingTime,
		EMHMorning:        donor.EMHMorning,
		EMHEvening:        donor.EMHEvening,
		Confidence:        &confidence,
		ChangeProbability: &changeProb,
		Notes:             notes,
	}), nil
}

// ChangeRate is the share of a park's officially versioned days whose official
// hours changed at least once after first publication.
func (t *Table) ChangeRate(parkCode string) float64 {
	parkCode = strings.ToUpper(parkCode)
	days, changed := 0, 0
	for k, idx := range t.byKey {
		if k.ParkCode != parkCode {
			continue
		}
		officials := 0
		for _, i := range idx {
			if t.rows[i].VersionType == domain.VersionOfficial {
				officials++
			}
		}
		if officials == 0 {
			continue
		}
		days++
		if officials > 1 {
			changed++
		}
	}
	if days == 0 {
		return 0
	}
	return float64(changed) / float64(days)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
