package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/model"
)

const eventColumns = `id, title, start, "end", allDay, url, description`

// eventRow is the on-disk shape of an event. Nullable columns tolerate rows
// written without defaults.
type eventRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Start       string         `db:"start"`
	End         string         `db:"end"`
	AllDay      sql.NullBool   `db:"allDay"`
	URL         sql.NullString `db:"url"`
	Description sql.NullString `db:"description"`
}

func (row eventRow) toModel(loc *time.Location) (model.Event, error) {
	start, err := ParseTimestamp(row.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing start of event %s: %w", row.ID, err)
	}
	end, err := ParseTimestamp(row.End, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("parsing end of event %s: %w", row.ID, err)
	}
	return model.Event{
		ID:          row.ID,
		Title:       row.Title,
		Start:       start,
		End:         end,
		AllDay:      row.AllDay.Bool,
		URL:         row.URL.String,
		Description: row.Description.String,
	}, nil
}

// EventRepository persists events. Tag associations written alongside an
// event share the event's transaction.
type EventRepository struct {
	session *Session
	tags    *TagRepository
	loc     *time.Location
	log     *zap.Logger
}

// NewEventRepository returns an EventRepository borrowing session. loc is
// the offset date-only range bounds are resolved in; nil selects
// DefaultRangeLocation.
func NewEventRepository(session *Session, tags *TagRepository, loc *time.Location) *EventRepository {
	if loc == nil {
		loc = DefaultRangeLocation
	}
	if tags == nil {
		tags = NewTagRepository(session)
	}
	return &EventRepository{
		session: session,
		tags:    tags,
		loc:     loc,
		log:     session.log.Named("events"),
	}
}

// Location returns the offset used for date-only bounds.
func (r *EventRepository) Location() *time.Location {
	return r.loc
}

// GetAll returns every event in insertion order.
func (r *EventRepository) GetAll(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := r.session.use(func(db *sqlx.DB) error {
		var err error
		events, err = r.selectEvents(ctx, db,
			"SELECT "+eventColumns+" FROM events ORDER BY rowid")
		return err
	})
	return events, err
}

// Get returns a single event by id.
func (r *EventRepository) Get(ctx context.Context, id string) (*model.Event, error) {
	var row eventRow
	err := r.session.use(func(db *sqlx.DB) error {
		return db.GetContext(ctx, &row,
			"SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}

	event, err := row.toModel(r.loc)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByDateRange returns the events overlapping [start, end). Bounds may be
// RFC 3339 timestamps or dates; see ResolveRange.
func (r *EventRepository) GetByDateRange(ctx context.Context, start, end string) ([]model.Event, error) {
	from, to, err := ResolveRange(start, end, r.loc)
	if err != nil {
		return nil, err
	}
	return r.GetByTimeRange(ctx, from, to)
}

// GetByTimeRange returns the events overlapping [from, to): events starting
// inside the range, ending inside it, or containing it entirely.
// Comparison goes through julianday so differing offsets compare by
// instant.
func (r *EventRepository) GetByTimeRange(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	offset := from.In(r.loc).Format("-07:00")
	var events []model.Event
	err := r.session.use(func(db *sqlx.DB) error {
		var err error
		events, err = r.selectEvents(ctx, db, `
			SELECT `+eventColumns+` FROM events
			WHERE `+storedInstant("start")+` < julianday(?)
			  AND `+storedInstant(`"end"`)+` > julianday(?)
			ORDER BY rowid`,
			offset, offset, formatTimestamp(to),
			offset, offset, formatTimestamp(from))
		return err
	})
	return events, err
}

// storedInstant is the julianday of column as toModel reads it. Rows written
// by earlier releases hold all-day bounds as bare dates and may omit the
// offset; SQLite would take those as UTC, so the range offset is appended.
// The expression binds the offset twice.
func storedInstant(column string) string {
	return `julianday(CASE
				WHEN length(` + column + `) = 10 THEN ` + column + ` || 'T00:00' || ?
				WHEN ` + column + ` NOT LIKE '%Z' AND substr(` + column + `, 17) NOT GLOB '*[+-]*' THEN ` + column + ` || ?
				ELSE ` + column + `
			END)`
}

func (r *EventRepository) selectEvents(
	ctx context.Context,
	q sqlx.QueryerContext,
	query string,
	args ...any,
) ([]model.Event, error) {
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}

	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toModel(r.loc)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Add inserts an event together with its urgency association and type
// associations. Either all rows are written or none are.
func (r *EventRepository) Add(
	ctx context.Context,
	event model.Event,
	urgencyTagID int64,
	typeTagIDs []int64,
) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	err := r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := eventExists(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("adding event %s: %w", event.ID, ErrDuplicateID)
		}
		if err := checkTagRefs(ctx, tx, urgencyTagID, typeTagIDs); err != nil {
			return fmt.Errorf("adding event %s: %w", event.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, title, start, "end", allDay, url, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.Title, formatTimestamp(event.Start), formatTimestamp(event.End),
			boolToInt(event.AllDay), event.URL, event.Description,
		); err != nil {
			return fmt.Errorf("inserting event %s: %w", event.ID, err)
		}

		return r.tags.attach(ctx, tx, event.ID, urgencyTagID, typeTagIDs, false)
	})
	if err != nil {
		return err
	}

	r.log.Debug("event added", zap.String("id", event.ID))
	return nil
}

// Update replaces every field of an existing event, its urgency
// association and its full set of type associations.
func (r *EventRepository) Update(
	ctx context.Context,
	event model.Event,
	urgencyTagID int64,
	typeTagIDs []int64,
) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	err := r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := eventExists(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("updating event %s: %w", event.ID, ErrNotFound)
		}
		if err := checkTagRefs(ctx, tx, urgencyTagID, typeTagIDs); err != nil {
			return fmt.Errorf("updating event %s: %w", event.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE events SET
				title = ?, start = ?, "end" = ?,
				allDay = ?, url = ?, description = ?
			WHERE id = ?`,
			event.Title, formatTimestamp(event.Start), formatTimestamp(event.End),
			boolToInt(event.AllDay), event.URL, event.Description,
			event.ID,
		); err != nil {
			return fmt.Errorf("updating event %s: %w", event.ID, err)
		}

		return r.tags.attach(ctx, tx, event.ID, urgencyTagID, typeTagIDs, true)
	})
	if err != nil {
		return err
	}

	r.log.Debug("event updated", zap.String("id", event.ID))
	return nil
}

// Delete removes an event; CASCADE removes its tag associations. Deleting
// an id that does not exist succeeds without changing anything.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	return r.session.use(func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting event %s: %w", id, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			r.log.Debug("delete of missing event ignored", zap.String("id", id))
			return nil
		}
		r.log.Debug("event deleted", zap.String("id", id))
		return nil
	})
}

func validateEvent(event model.Event) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("%w: event id must not be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(event.Title) == "" {
		return fmt.Errorf("%w: event title must not be empty", ErrInvalidArgument)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
