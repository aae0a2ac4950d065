package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/eventcal/internal/ics"
	"github.com/nhle/eventcal/internal/model"
	"github.com/nhle/eventcal/internal/store"
)

// eventArgs is the wire form of add-event and update-event. Start and End
// accept RFC 3339 timestamps or dates.
type eventArgs struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	AllDay       bool    `json:"allDay"`
	URL          string  `json:"url"`
	Description  string  `json:"description"`
	UrgencyTagID int64   `json:"urgencyTagId"`
	TypeTagIDs   []int64 `json:"typeTagIds"`
}

func (a eventArgs) event(loc *time.Location) (model.Event, error) {
	start, err := store.ParseTimestamp(a.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("event start: %w", err)
	}
	end, err := store.ParseTimestamp(a.End, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("event end: %w", err)
	}
	return model.Event{
		ID:          a.ID,
		Title:       a.Title,
		Start:       start,
		End:         end,
		AllDay:      a.AllDay,
		URL:         a.URL,
		Description: a.Description,
	}, nil
}

// urgency returns the requested urgency tag, falling back to the default
// when the caller sent none.
func (a eventArgs) urgency() int64 {
	if a.UrgencyTagID == 0 {
		return model.DefaultUrgencyTagID
	}
	return a.UrgencyTagID
}

type rangeArgs struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type idArgs struct {
	ID string `json:"id"`
}

type tagIDArgs struct {
	ID int64 `json:"id"`
}

type eventIDArgs struct {
	EventID string `json:"eventId"`
}

type eventIDsArgs struct {
	EventIDs []string `json:"eventIds"`
}

type setTagsArgs struct {
	EventID      string  `json:"eventId"`
	UrgencyTagID int64   `json:"urgencyTagId"`
	TypeTagIDs   []int64 `json:"typeTagIds"`
}

type pathArgs struct {
	Path string `json:"path"`
}

// PathUpdate is the result of update-db-path.
type PathUpdate struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing arguments", store.ErrInvalidArgument)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: decoding arguments: %w", store.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Service) getAllEvents(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.events.GetAll(ctx)
}

func (s *Service) getEventsByDateRange(ctx context.Context, args json.RawMessage) (any, error) {
	var a rangeArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return s.events.GetByDateRange(ctx, a.Start, a.End)
}

func (s *Service) getEvent(ctx context.Context, args json.RawMessage) (any, error) {
	var a idArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return s.events.Get(ctx, a.ID)
}

func (s *Service) addEvent(ctx context.Context, args json.RawMessage) (any, error) {
	var a eventArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	event, err := a.event(s.events.Location())
	if err != nil {
		return nil, err
	}
	if err := s.events.Add(ctx, event, a.urgency(), a.TypeTagIDs); err != nil {
		return nil, err
	}
	return idArgs{ID: event.ID}, nil
}

func (s *Service) updateEvent(ctx context.Context, args json.RawMessage) (any, error) {
	var a eventArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	event, err := a.event(s.events.Location())
	if err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, event, a.urgency(), a.TypeTagIDs); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) deleteEvent(ctx context.Context, args json.RawMessage) (any, error) {
	var a idArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if err := s.events.Delete(ctx, a.ID); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) getAllUrgencyTags(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.tags.GetAllUrgencyTags(ctx)
}

func (s *Service) getAllTypeTags(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.tags.GetAllTypeTags(ctx)
}

func (s *Service) createUrgencyTag(ctx context.Context, args json.RawMessage) (any, error) {
	var tag model.Tag
	if err := decode(args, &tag); err != nil {
		return nil, err
	}
	return s.tags.CreateUrgencyTag(ctx, tag)
}

func (s *Service) createTypeTag(ctx context.Context, args json.RawMessage) (any, error) {
	var tag model.Tag
	if err := decode(args, &tag); err != nil {
		return nil, err
	}
	return s.tags.CreateTypeTag(ctx, tag)
}

func (s *Service) updateUrgencyTag(ctx context.Context, args json.RawMessage) (any, error) {
	var tag model.Tag
	if err := decode(args, &tag); err != nil {
		return nil, err
	}
	if err := s.tags.UpdateUrgencyTag(ctx, tag); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) updateTypeTag(ctx context.Context, args json.RawMessage) (any, error) {
	var tag model.Tag
	if err := decode(args, &tag); err != nil {
		return nil, err
	}
	if err := s.tags.UpdateTypeTag(ctx, tag); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) deleteUrgencyTag(ctx context.Context, args json.RawMessage) (any, error) {
	var a tagIDArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if err := s.tags.DeleteUrgencyTag(ctx, a.ID); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) deleteTypeTag(ctx context.Context, args json.RawMessage) (any, error) {
	var a tagIDArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if err := s.tags.DeleteTypeTag(ctx, a.ID); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) getEventTags(ctx context.Context, args json.RawMessage) (any, error) {
	var a eventIDArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}

	urgency, err := s.tags.GetEventUrgencyTag(ctx, a.EventID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	types, err := s.tags.GetEventTypeTags(ctx, a.EventID)
	if err != nil {
		return nil, err
	}
	return model.EventTags{UrgencyTag: urgency, TypeTags: types}, nil
}

func (s *Service) getEventsTagsByIDs(ctx context.Context, args json.RawMessage) (any, error) {
	var a eventIDsArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	return s.tags.GetEventsTagsByIDs(ctx, a.EventIDs)
}

func (s *Service) setEventTags(ctx context.Context, args json.RawMessage) (any, error) {
	var a setTagsArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	urgency := a.UrgencyTagID
	if urgency == 0 {
		urgency = model.DefaultUrgencyTagID
	}
	if err := s.tags.SetEventTags(ctx, a.EventID, urgency, a.TypeTagIDs); err != nil {
		return nil, err
	}
	return Ack{OK: true}, nil
}

func (s *Service) getDBPath(_ context.Context, _ json.RawMessage) (any, error) {
	cfg, err := s.configs.Read()
	if err != nil {
		return nil, err
	}
	return cfg.StoragePath, nil
}

// updateDBPath reports relocation failures inside its result rather than as
// a command error.
func (s *Service) updateDBPath(ctx context.Context, args json.RawMessage) (any, error) {
	var a pathArgs
	if err := decode(args, &a); err != nil {
		return nil, err
	}
	if err := s.relocator.Relocate(ctx, a.Path); err != nil {
		return PathUpdate{Success: false, Error: err.Error()}, nil
	}
	return PathUpdate{Success: true}, nil
}

func (s *Service) exportICS(ctx context.Context, args json.RawMessage) (any, error) {
	var a rangeArgs
	if len(args) > 0 {
		if err := decode(args, &a); err != nil {
			return nil, err
		}
	}

	var (
		events []model.Event
		err    error
	)
	if a.Start == "" && a.End == "" {
		events, err = s.events.GetAll(ctx)
	} else {
		events, err = s.events.GetByDateRange(ctx, a.Start, a.End)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	tags, err := s.tags.GetEventsTagsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return ics.Export(events, tags, s.now()), nil
}
