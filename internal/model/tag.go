package model

// DefaultTagColor is the neutral gray applied to tags created without a color.
const DefaultTagColor = "#606266"

// DefaultUrgencyTagID is the urgency tag events fall back to when their
// urgency tag is deleted.
const DefaultUrgencyTagID int64 = 1

// Tag is a row in either the type or the urgency taxonomy.
type Tag struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"tag_name" db:"tag_name"`
	Icon  string `json:"icon_name" db:"icon_name"`
	Color string `json:"color" db:"color"`
}

// EventTags groups the associations of a single event.
// UrgencyTag is nil when the event has no urgency association.
type EventTags struct {
	UrgencyTag *Tag  `json:"urgencyTag"`
	TypeTags   []Tag `json:"typeTags"`
}
