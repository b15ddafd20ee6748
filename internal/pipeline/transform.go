package pipeline

import (
	"context"

	"github.com/couchcryptid/park-waits-etl/internal/domain"
)

// HoursTransformer implements Transformer for JSON hours feed messages.
type HoursTransformer struct{}

// NewTransformer creates an HoursTransformer.
func NewTransformer() *HoursTransformer {
	return &HoursTransformer{}
}

func (t *HoursTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.HoursUpdate, error) {
	return domain.ParseHoursMessage(raw)
}
