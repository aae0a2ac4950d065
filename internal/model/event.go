package model

import "time"

// Event is a calendar entry with a time span.
type Event struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Start       time.Time `json:"start" db:"start"`
	End         time.Time `json:"end" db:"end"`
	AllDay      bool      `json:"allDay" db:"allDay"`
	URL         string    `json:"url" db:"url"`
	Description string    `json:"description" db:"description"`
}
