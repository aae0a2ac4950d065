package store

// FileName is the name of the storage file inside the storage directory.
const FileName = "calendar.db"

// schema creates every table if absent. Table and column names match files
// written by earlier desktop releases so existing calendars open unchanged.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	start       TEXT NOT NULL,
	"end"       TEXT NOT NULL,
	allDay      INTEGER,
	url         TEXT DEFAULT '',
	description TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS type_tag_props (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	tag_name  TEXT NOT NULL,
	icon_name TEXT NOT NULL,
	color     TEXT DEFAULT '#606266'
);

CREATE TABLE IF NOT EXISTS urgency_tag_props (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	tag_name  TEXT NOT NULL,
	icon_name TEXT NOT NULL,
	color     TEXT DEFAULT '#606266'
);

CREATE TABLE IF NOT EXISTS event_urgency_tags (
	id             TEXT PRIMARY KEY,
	urgency_tag_id INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY (id) REFERENCES events(id) ON DELETE CASCADE,
	FOREIGN KEY (urgency_tag_id) REFERENCES urgency_tag_props(id) ON DELETE SET DEFAULT
);

CREATE TABLE IF NOT EXISTS event_type_tags (
	id          TEXT NOT NULL,
	type_tag_id INTEGER NOT NULL,
	PRIMARY KEY (id, type_tag_id),
	FOREIGN KEY (id) REFERENCES events(id) ON DELETE CASCADE,
	FOREIGN KEY (type_tag_id) REFERENCES type_tag_props(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_event_urgency_tags_tag ON event_urgency_tags(urgency_tag_id);
CREATE INDEX IF NOT EXISTS idx_event_type_tags_tag ON event_type_tags(type_tag_id);
`

// seed inserts the default taxonomy. Rows whose id already exists are left
// alone so user edits to seeded tags survive re-initialization.
const seed = `
INSERT INTO type_tag_props (id, tag_name, icon_name, color) VALUES
	(1, 'Project', 'project-diagram', '#3498db'),
	(2, 'Study', 'book', '#2ecc71'),
	(3, 'Academic', 'graduation-cap', '#9b59b6'),
	(4, 'Leisure', 'gamepad', '#e74c3c')
ON CONFLICT(id) DO NOTHING;

INSERT INTO urgency_tag_props (id, tag_name, icon_name, color) VALUES
	(1, 'Normal', 'circle-info', '#909399'),
	(2, 'Attention', 'circle-exclamation', '#E6A23C'),
	(3, 'Important', 'triangle-exclamation', '#F56C6C')
ON CONFLICT(id) DO NOTHING;
`
