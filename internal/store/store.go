package store

import (
	"context"
	"time"

	"github.com/nhle/eventcal/internal/model"
)

// EventStore defines the persistence interface for calendar events.
type EventStore interface {
	GetAll(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	GetByDateRange(ctx context.Context, start, end string) ([]model.Event, error)
	GetByTimeRange(ctx context.Context, from, to time.Time) ([]model.Event, error)
	Add(ctx context.Context, event model.Event, urgencyTagID int64, typeTagIDs []int64) error
	Update(ctx context.Context, event model.Event, urgencyTagID int64, typeTagIDs []int64) error
	Delete(ctx context.Context, id string) error
	Location() *time.Location
}

// TagStore defines the persistence interface for the two tag taxonomies
// and their associations with events.
type TagStore interface {
	// === Taxonomy listing ===

	GetAllTypeTags(ctx context.Context) ([]model.Tag, error)
	GetAllUrgencyTags(ctx context.Context) ([]model.Tag, error)

	// === Associations ===

	GetEventUrgencyTag(ctx context.Context, eventID string) (*model.Tag, error)
	GetEventTypeTags(ctx context.Context, eventID string) ([]model.Tag, error)
	GetEventsTagsByIDs(ctx context.Context, eventIDs []string) (map[string]model.EventTags, error)
	SetEventUrgencyTag(ctx context.Context, eventID string, urgencyTagID int64) error
	SetEventTypeTags(ctx context.Context, eventID string, typeTagIDs []int64) error
	SetEventTags(ctx context.Context, eventID string, urgencyTagID int64, typeTagIDs []int64) error

	// === Taxonomy maintenance ===

	CreateTypeTag(ctx context.Context, tag model.Tag) (model.Tag, error)
	CreateUrgencyTag(ctx context.Context, tag model.Tag) (model.Tag, error)
	UpdateTypeTag(ctx context.Context, tag model.Tag) error
	UpdateUrgencyTag(ctx context.Context, tag model.Tag) error
	DeleteTypeTag(ctx context.Context, id int64) error
	DeleteUrgencyTag(ctx context.Context, id int64) error
}

var (
	_ EventStore = (*EventRepository)(nil)
	_ TagStore   = (*TagRepository)(nil)
)
