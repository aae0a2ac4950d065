package command

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/config"
	"github.com/nhle/eventcal/internal/relocate"
	"github.com/nhle/eventcal/internal/store"
)

// Command names understood by Dispatch.
const (
	GetAllEvents         = "get-all-events"
	GetEventsByDateRange = "get-events-by-date-range"
	GetEvent             = "get-event"
	AddEvent             = "add-event"
	UpdateEvent          = "update-event"
	DeleteEvent          = "delete-event"
	GetAllUrgencyTags    = "get-all-urgency-tags"
	GetAllTypeTags       = "get-all-type-tags"
	CreateUrgencyTag     = "create-urgency-tag"
	CreateTypeTag        = "create-type-tag"
	UpdateUrgencyTag     = "update-urgency-tag"
	UpdateTypeTag        = "update-type-tag"
	DeleteUrgencyTag     = "delete-urgency-tag"
	DeleteTypeTag        = "delete-type-tag"
	GetEventTags         = "get-event-tags"
	GetEventsTagsByIDs   = "get-events-tags-by-ids"
	SetEventTags         = "set-event-tags"
	GetDBPath            = "get-db-path"
	UpdateDBPath         = "update-db-path"
	ExportICS            = "export-ics"
)

// Error codes reported in Response.Error.
const (
	CodeStorageUnavailable = "StorageUnavailable"
	CodeInvalidReference   = "InvalidReference"
	CodeDuplicateID        = "DuplicateId"
	CodeNotFound           = "NotFound"
	CodeRelocationFailed   = "RelocationFailed"
	CodeStorageBusy        = "StorageBusy"
	CodeInvalidArgument    = "InvalidArgument"
	CodeUnknownCommand     = "UnknownCommand"
	CodeInternal           = "Internal"
)

// Request is a single call from the UI process.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is set.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error is the wire form of a failed command.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack is the result of commands that return nothing else.
type Ack struct {
	OK bool `json:"ok"`
}

// ConfigReader exposes the durable configuration record.
type ConfigReader interface {
	Read() (*config.Config, error)
}

// Relocator moves the storage file to another directory.
type Relocator interface {
	Relocate(ctx context.Context, newPath string) error
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Service maps commands onto the repositories and the relocation
// coordinator.
type Service struct {
	events    store.EventStore
	tags      store.TagStore
	configs   ConfigReader
	relocator Relocator
	log       *zap.Logger
	now       func() time.Time

	handlers map[string]handlerFunc
}

// New returns a Service. log may be nil.
func New(
	events store.EventStore,
	tags store.TagStore,
	configs ConfigReader,
	relocator Relocator,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		events:    events,
		tags:      tags,
		configs:   configs,
		relocator: relocator,
		log:       log.Named("command"),
		now:       time.Now,
	}
	s.handlers = map[string]handlerFunc{
		GetAllEvents:         s.getAllEvents,
		GetEventsByDateRange: s.getEventsByDateRange,
		GetEvent:             s.getEvent,
		AddEvent:             s.addEvent,
		UpdateEvent:          s.updateEvent,
		DeleteEvent:          s.deleteEvent,
		GetAllUrgencyTags:    s.getAllUrgencyTags,
		GetAllTypeTags:       s.getAllTypeTags,
		CreateUrgencyTag:     s.createUrgencyTag,
		CreateTypeTag:        s.createTypeTag,
		UpdateUrgencyTag:     s.updateUrgencyTag,
		UpdateTypeTag:        s.updateTypeTag,
		DeleteUrgencyTag:     s.deleteUrgencyTag,
		DeleteTypeTag:        s.deleteTypeTag,
		GetEventTags:         s.getEventTags,
		GetEventsTagsByIDs:   s.getEventsTagsByIDs,
		SetEventTags:         s.setEventTags,
		GetDBPath:            s.getDBPath,
		UpdateDBPath:         s.updateDBPath,
		ExportICS:            s.exportICS,
	}
	return s
}

// Dispatch runs one command. Failures are reported in the Response, never
// returned or panicked.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	h, ok := s.handlers[req.Command]
	if !ok {
		return Response{
			ID:    req.ID,
			Error: &Error{Code: CodeUnknownCommand, Message: "unknown command " + req.Command},
		}
	}

	result, err := h(ctx, req.Args)
	if err != nil {
		code := errorCode(err)
		if code == CodeInternal {
			s.log.Error("command failed",
				zap.String("command", req.Command), zap.String("request_id", req.ID), zap.Error(err))
		} else {
			s.log.Debug("command rejected",
				zap.String("command", req.Command), zap.String("code", code), zap.Error(err))
		}
		return Response{ID: req.ID, Error: &Error{Code: code, Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: result}
}

// errorCode maps an error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, relocate.ErrRelocationFailed):
		return CodeRelocationFailed
	case errors.Is(err, store.ErrStorageBusy):
		return CodeStorageBusy
	case errors.Is(err, store.ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, store.ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, store.ErrInvalidReference):
		return CodeInvalidReference
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrInvalidArgument):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}
