package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/nhle/eventcal/internal/model"
)

// taxonomy names the table backing one of the two tag taxonomies.
type taxonomy string

const (
	typeTaxonomy    taxonomy = "type_tag_props"
	urgencyTaxonomy taxonomy = "urgency_tag_props"
)

func (t taxonomy) label() string {
	if t == urgencyTaxonomy {
		return "urgency tag"
	}
	return "type tag"
}

// batchSize bounds the number of bind parameters in one IN (...) list.
const batchSize = 500

// TagRepository reads and writes the type and urgency taxonomies and their
// associations with events.
type TagRepository struct {
	session *Session
	log     *zap.Logger
}

// NewTagRepository returns a TagRepository borrowing session.
func NewTagRepository(session *Session) *TagRepository {
	return &TagRepository{session: session, log: session.log.Named("tags")}
}

// GetAllTypeTags lists the type taxonomy ordered by id.
func (r *TagRepository) GetAllTypeTags(ctx context.Context) ([]model.Tag, error) {
	return r.listTags(ctx, typeTaxonomy)
}

// GetAllUrgencyTags lists the urgency taxonomy ordered by id.
func (r *TagRepository) GetAllUrgencyTags(ctx context.Context) ([]model.Tag, error) {
	return r.listTags(ctx, urgencyTaxonomy)
}

func (r *TagRepository) listTags(ctx context.Context, tax taxonomy) ([]model.Tag, error) {
	tags := []model.Tag{}
	err := r.session.use(func(db *sqlx.DB) error {
		query := fmt.Sprintf(
			"SELECT id, tag_name, icon_name, COALESCE(color, '%s') AS color FROM %s ORDER BY id",
			model.DefaultTagColor, tax)
		if err := db.SelectContext(ctx, &tags, query); err != nil {
			return fmt.Errorf("querying %ss: %w", tax.label(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// GetEventUrgencyTag returns the urgency tag associated with an event, or
// ErrNotFound if the event has none.
func (r *TagRepository) GetEventUrgencyTag(ctx context.Context, eventID string) (*model.Tag, error) {
	var tag model.Tag
	err := r.session.use(func(db *sqlx.DB) error {
		return db.GetContext(ctx, &tag, `
			SELECT u.id, u.tag_name, u.icon_name, COALESCE(u.color, '#606266') AS color
			FROM urgency_tag_props u
			INNER JOIN event_urgency_tags e ON u.id = e.urgency_tag_id
			WHERE e.id = ?`, eventID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("urgency tag for event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting urgency tag for event %s: %w", eventID, err)
	}
	return &tag, nil
}

// GetEventTypeTags returns the type tags associated with an event. The
// result is empty, not nil, when there are none.
func (r *TagRepository) GetEventTypeTags(ctx context.Context, eventID string) ([]model.Tag, error) {
	tags := []model.Tag{}
	err := r.session.use(func(db *sqlx.DB) error {
		return db.SelectContext(ctx, &tags, `
			SELECT t.id, t.tag_name, t.icon_name, COALESCE(t.color, '#606266') AS color
			FROM type_tag_props t
			INNER JOIN event_type_tags e ON t.id = e.type_tag_id
			WHERE e.id = ?
			ORDER BY t.id`, eventID)
	})
	if err != nil {
		return nil, fmt.Errorf("querying type tags for event %s: %w", eventID, err)
	}
	return tags, nil
}

// eventTagRow is a tag joined with the event it is attached to.
type eventTagRow struct {
	EventID string `db:"event_id"`
	model.Tag
}

// GetEventsTagsByIDs returns the associations of every requested event in
// two bulk queries per batch of ids. Every requested id has an entry;
// missing urgency tags are nil and missing type tags are an empty slice.
func (r *TagRepository) GetEventsTagsByIDs(ctx context.Context, eventIDs []string) (map[string]model.EventTags, error) {
	result := make(map[string]model.EventTags, len(eventIDs))
	for _, id := range eventIDs {
		result[id] = model.EventTags{TypeTags: []model.Tag{}}
	}

	ids := uniqueStrings(eventIDs)
	if len(ids) == 0 {
		return result, nil
	}

	err := r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(ids); start += batchSize {
			chunk := ids[start:min(start+batchSize, len(ids))]
			if err := loadUrgencyTags(ctx, tx, chunk, result); err != nil {
				return err
			}
			if err := loadTypeTags(ctx, tx, chunk, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func loadUrgencyTags(ctx context.Context, tx *sqlx.Tx, ids []string, result map[string]model.EventTags) error {
	query, args, err := sqlx.In(`
		SELECT e.id AS event_id, u.id, u.tag_name, u.icon_name, COALESCE(u.color, '#606266') AS color
		FROM urgency_tag_props u
		INNER JOIN event_urgency_tags e ON u.id = e.urgency_tag_id
		WHERE e.id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("building urgency tag query: %w", err)
	}

	var rows []eventTagRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("querying urgency tags: %w", err)
	}
	for _, row := range rows {
		tag := row.Tag
		entry := result[row.EventID]
		entry.UrgencyTag = &tag
		result[row.EventID] = entry
	}
	return nil
}

func loadTypeTags(ctx context.Context, tx *sqlx.Tx, ids []string, result map[string]model.EventTags) error {
	query, args, err := sqlx.In(`
		SELECT e.id AS event_id, t.id, t.tag_name, t.icon_name, COALESCE(t.color, '#606266') AS color
		FROM type_tag_props t
		INNER JOIN event_type_tags e ON t.id = e.type_tag_id
		WHERE e.id IN (?)
		ORDER BY t.id`, ids)
	if err != nil {
		return fmt.Errorf("building type tag query: %w", err)
	}

	var rows []eventTagRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("querying type tags: %w", err)
	}
	for _, row := range rows {
		entry := result[row.EventID]
		entry.TypeTags = append(entry.TypeTags, row.Tag)
		result[row.EventID] = entry
	}
	return nil
}

// SetEventUrgencyTag replaces the event's urgency association.
func (r *TagRepository) SetEventUrgencyTag(ctx context.Context, eventID string, urgencyTagID int64) error {
	return r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireEvent(ctx, tx, eventID); err != nil {
			return err
		}
		if err := checkUrgencyTag(ctx, tx, urgencyTagID); err != nil {
			return err
		}
		return upsertUrgencyTag(ctx, tx, eventID, urgencyTagID)
	})
}

// SetEventTypeTags replaces all type tag associations of the event.
func (r *TagRepository) SetEventTypeTags(ctx context.Context, eventID string, typeTagIDs []int64) error {
	return r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireEvent(ctx, tx, eventID); err != nil {
			return err
		}
		if err := checkTypeTags(ctx, tx, typeTagIDs); err != nil {
			return err
		}
		return replaceTypeTags(ctx, tx, eventID, typeTagIDs)
	})
}

// SetEventTags replaces both the urgency and the type associations of the
// event in one transaction.
func (r *TagRepository) SetEventTags(ctx context.Context, eventID string, urgencyTagID int64, typeTagIDs []int64) error {
	return r.session.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireEvent(ctx, tx, eventID); err != nil {
			return err
		}
		if err := checkTagRefs(ctx, tx, urgencyTagID, typeTagIDs); err != nil {
			return err
		}
		return r.attach(ctx, tx, eventID, urgencyTagID, typeTagIDs, true)
	})
}

// attach writes an event's urgency association and type associations
// inside the caller's transaction. With replace set, existing type
// associations are removed first.
func (r *TagRepository) attach(
	ctx context.Context,
	tx *sqlx.Tx,
	eventID string,
	urgencyTagID int64,
	typeTagIDs []int64,
	replace bool,
) error {
	if err := upsertUrgencyTag(ctx, tx, eventID, urgencyTagID); err != nil {
		return err
	}
	if replace {
		return replaceTypeTags(ctx, tx, eventID, typeTagIDs)
	}
	return insertTypeTags(ctx, tx, eventID, typeTagIDs)
}

// CreateTypeTag adds a type tag and returns it with its assigned id.
func (r *TagRepository) CreateTypeTag(ctx context.Context, tag model.Tag) (model.Tag, error) {
	return r.createTag(ctx, typeTaxonomy, tag)
}

// CreateUrgencyTag adds an urgency tag and returns it with its assigned id.
func (r *TagRepository) CreateUrgencyTag(ctx context.Context, tag model.Tag) (model.Tag, error) {
	return r.createTag(ctx, urgencyTaxonomy, tag)
}

func (r *TagRepository) createTag(ctx context.Context, tax taxonomy, tag model.Tag) (model.Tag, error) {
	tag, err := normalizeTag(tax, tag)
	if err != nil {
		return model.Tag{}, err
	}

	err = r.session.use(func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (tag_name, icon_name, color) VALUES (?, ?, ?)", tax),
			tag.Name, tag.Icon, tag.Color)
		if err != nil {
			return fmt.Errorf("creating %s: %w", tax.label(), err)
		}
		tag.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading %s id: %w", tax.label(), err)
		}
		return nil
	})
	if err != nil {
		return model.Tag{}, err
	}

	r.log.Debug("tag created", zap.String("taxonomy", string(tax)), zap.Int64("id", tag.ID))
	return tag, nil
}

// UpdateTypeTag updates a type tag's name, icon and color.
func (r *TagRepository) UpdateTypeTag(ctx context.Context, tag model.Tag) error {
	return r.updateTag(ctx, typeTaxonomy, tag)
}

// UpdateUrgencyTag updates an urgency tag's name, icon and color.
func (r *TagRepository) UpdateUrgencyTag(ctx context.Context, tag model.Tag) error {
	return r.updateTag(ctx, urgencyTaxonomy, tag)
}

func (r *TagRepository) updateTag(ctx context.Context, tax taxonomy, tag model.Tag) error {
	tag, err := normalizeTag(tax, tag)
	if err != nil {
		return err
	}

	return r.session.use(func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET tag_name = ?, icon_name = ?, color = ? WHERE id = ?", tax),
			tag.Name, tag.Icon, tag.Color, tag.ID)
		if err != nil {
			return fmt.Errorf("updating %s %d: %w", tax.label(), tag.ID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%s %d: %w", tax.label(), tag.ID, ErrNotFound)
		}
		return nil
	})
}

// DeleteTypeTag removes a type tag. CASCADE on event_type_tags removes its
// associations and leaves everything else attached to those events.
func (r *TagRepository) DeleteTypeTag(ctx context.Context, id int64) error {
	return r.deleteTag(ctx, typeTaxonomy, id)
}

// DeleteUrgencyTag removes an urgency tag. Events that referenced it fall
// back to the default urgency tag, which itself cannot be deleted.
func (r *TagRepository) DeleteUrgencyTag(ctx context.Context, id int64) error {
	if id == model.DefaultUrgencyTagID {
		return fmt.Errorf("deleting default urgency tag: %w", ErrInvalidReference)
	}
	return r.deleteTag(ctx, urgencyTaxonomy, id)
}

func (r *TagRepository) deleteTag(ctx context.Context, tax taxonomy, id int64) error {
	return r.session.use(func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", tax), id)
		if err != nil {
			return fmt.Errorf("deleting %s %d: %w", tax.label(), id, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%s %d: %w", tax.label(), id, ErrNotFound)
		}
		r.log.Debug("tag deleted", zap.String("taxonomy", string(tax)), zap.Int64("id", id))
		return nil
	})
}

func normalizeTag(tax taxonomy, tag model.Tag) (model.Tag, error) {
	tag.Name = strings.TrimSpace(tag.Name)
	if tag.Name == "" {
		return tag, fmt.Errorf("%w: %s name must not be empty", ErrInvalidArgument, tax.label())
	}
	if strings.TrimSpace(tag.Color) == "" {
		tag.Color = model.DefaultTagColor
	}
	return tag, nil
}

// requireEvent reports ErrInvalidReference when eventID names no event.
func requireEvent(ctx context.Context, q sqlx.QueryerContext, eventID string) error {
	exists, err := eventExists(ctx, q, eventID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("event %s: %w", eventID, ErrInvalidReference)
	}
	return nil
}

func eventExists(ctx context.Context, q sqlx.QueryerContext, eventID string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM events WHERE id = ?", eventID); err != nil {
		return false, fmt.Errorf("checking event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// checkTagRefs validates every tag id an event is about to reference.
func checkTagRefs(ctx context.Context, q sqlx.QueryerContext, urgencyTagID int64, typeTagIDs []int64) error {
	if err := checkUrgencyTag(ctx, q, urgencyTagID); err != nil {
		return err
	}
	return checkTypeTags(ctx, q, typeTagIDs)
}

func checkUrgencyTag(ctx context.Context, q sqlx.QueryerContext, id int64) error {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM urgency_tag_props WHERE id = ?", id); err != nil {
		return fmt.Errorf("checking urgency tag %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("urgency tag %d: %w", id, ErrInvalidReference)
	}
	return nil
}

func checkTypeTags(ctx context.Context, q sqlx.QueryerContext, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("SELECT COUNT(*) FROM type_tag_props WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building type tag check: %w", err)
	}
	var n int
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return fmt.Errorf("checking type tags: %w", err)
	}
	if n != len(ids) {
		return fmt.Errorf("type tags %v: %w", ids, ErrInvalidReference)
	}
	return nil
}

func upsertUrgencyTag(ctx context.Context, tx *sqlx.Tx, eventID string, urgencyTagID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO event_urgency_tags (id, urgency_tag_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET urgency_tag_id = excluded.urgency_tag_id`,
		eventID, urgencyTagID)
	if err != nil {
		return fmt.Errorf("setting urgency tag %d on event %s: %w", urgencyTagID, eventID, err)
	}
	return nil
}

func insertTypeTags(ctx context.Context, tx *sqlx.Tx, eventID string, typeTagIDs []int64) error {
	for _, tagID := range uniqueIDs(typeTagIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_type_tags (id, type_tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			eventID, tagID); err != nil {
			return fmt.Errorf("setting type tag %d on event %s: %w", tagID, eventID, err)
		}
	}
	return nil
}

// replaceTypeTags deletes every type association of the event and inserts
// the given set.
func replaceTypeTags(ctx context.Context, tx *sqlx.Tx, eventID string, typeTagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_type_tags WHERE id = ?", eventID); err != nil {
		return fmt.Errorf("clearing type tags of event %s: %w", eventID, err)
	}
	return insertTypeTags(ctx, tx, eventID, typeTagIDs)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
