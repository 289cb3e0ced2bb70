package trip

import (
	"time"

	"github.com/tripforge/tripforge-backend/types"
)

// Builder assembles a CreateInput fluently. Validation happens in Build, by
// way of Create.
type Builder struct {
	in CreateInput
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithTraveler(id, name, email string) *Builder {
	b.in.Traveler = types.Traveler{ID: id, Name: name, Email: email}
	return b
}

func (b *Builder) WithTravelerPhone(phone string) *Builder {
	b.in.Traveler.Phone = phone
	return b
}

func (b *Builder) WithDates(start, end time.Time) *Builder {
	b.in.StartDate = start
	b.in.EndDate = end
	return b
}

func (b *Builder) WithPurpose(purpose string) *Builder {
	b.in.Purpose = purpose
	return b
}

func (b *Builder) WithStatus(status types.TripStatus) *Builder {
	b.in.Status = status
	return b
}

// WithOrigin sets the origin type and, for derived trips, the trip-level
// confidence.
func (b *Builder) WithOrigin(originType types.OriginType, confidence float64) *Builder {
	b.in.OriginType = originType
	if originType == types.OriginDerived {
		b.in.Confidence = &confidence
	}
	return b
}

func (b *Builder) WithExtension(namespace string, value types.Extension) *Builder {
	if b.in.Extensions == nil {
		b.in.Extensions = make(map[string]types.Extension)
	}
	b.in.Extensions[namespace] = value
	return b
}

func (b *Builder) WithSourceDocument(doc types.SourceDocument) *Builder {
	b.in.SourceDocument = &doc
	return b
}

// Build validates the accumulated input and returns the new trip.
func (b *Builder) Build() (*types.Trip, error) {
	return Create(b.in)
}
